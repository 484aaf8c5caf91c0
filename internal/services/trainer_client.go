package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/utils"
)

// TrainerClient kicks off fine-tuning jobs on the training service. The job
// runs out of process; the trainer reports back through the training-run
// result endpoint when it finishes.
type TrainerClient interface {
	StartRun(ctx context.Context, req StartRunRequest) error
}

type StartRunRequest struct {
	RunID        uuid.UUID
	Version      string
	SnapshotAt   time.Time
	TrainSamples int
	CallbackURL  string
}

type trainerClient struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
	apiKey  string
}

type startRunWireRequest struct {
	RunID        string `json:"run_id"`
	Version      string `json:"version"`
	SnapshotAt   string `json:"snapshot_at"`
	TrainSamples int    `json:"train_samples"`
	CallbackURL  string `json:"callback_url,omitempty"`
}

func NewTrainerClient(log *logger.Logger) (TrainerClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := utils.GetEnv("TRAINER_BASE_URL", "", log)
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("TRAINER_BASE_URL is required")
	}
	return &trainerClient{
		log:     log.With("client", "TrainerClient"),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  utils.GetEnv("TRAINER_API_KEY", "", log),
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (c *trainerClient) StartRun(ctx context.Context, in StartRunRequest) error {
	payload, err := json.Marshal(startRunWireRequest{
		RunID:        in.RunID.String(),
		Version:      in.Version,
		SnapshotAt:   in.SnapshotAt.UTC().Format(time.RFC3339),
		TrainSamples: in.TrainSamples,
		CallbackURL:  in.CallbackURL,
	})
	if err != nil {
		return fmt.Errorf("encode start-run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/runs", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("trainer call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("trainer status=%d body=%q", resp.StatusCode, truncate(raw, 512))
	}
	c.log.Info("training run dispatched", "run_id", in.RunID, "version", in.Version)
	return nil
}
