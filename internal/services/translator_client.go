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

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/utils"
)

// TranslatorClient calls the base translation model service. The promoted
// model version, when one exists, rides along so the serving side can route
// to the right checkpoint.
type TranslatorClient interface {
	Translate(ctx context.Context, req TranslateModelRequest) (TranslateModelResult, error)
}

type TranslateModelRequest struct {
	SourceText   string
	SourceLang   string
	TargetLang   string
	ModelVersion string
}

type TranslateModelResult struct {
	TranslatedText string
	ModelVersion   string
}

type translatorClient struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
	apiKey  string
}

type translateWireRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type translateWireResponse struct {
	TranslatedText string `json:"translated_text"`
	ModelVersion   string `json:"model_version"`
	Error          string `json:"error,omitempty"`
}

func NewTranslatorClient(log *logger.Logger) (TranslatorClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	baseURL := utils.GetEnv("TRANSLATOR_BASE_URL", "", log)
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("TRANSLATOR_BASE_URL is required")
	}
	return &translatorClient{
		log:     log.With("client", "TranslatorClient"),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  utils.GetEnv("TRANSLATOR_API_KEY", "", log),
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

func (c *translatorClient) Translate(ctx context.Context, in TranslateModelRequest) (TranslateModelResult, error) {
	if strings.TrimSpace(in.SourceText) == "" {
		return TranslateModelResult{}, fmt.Errorf("source text is required")
	}

	payload, err := json.Marshal(translateWireRequest{
		Text:       in.SourceText,
		SourceLang: in.SourceLang,
		TargetLang: in.TargetLang,
	})
	if err != nil {
		return TranslateModelResult{}, fmt.Errorf("encode translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return TranslateModelResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if strings.TrimSpace(in.ModelVersion) != "" {
		req.Header.Set("X-Model-Version", in.ModelVersion)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return TranslateModelResult{}, fmt.Errorf("translator call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TranslateModelResult{}, fmt.Errorf("read translator response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return TranslateModelResult{}, fmt.Errorf("translator status=%d body=%q", resp.StatusCode, truncate(raw, 512))
	}

	var decoded translateWireResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return TranslateModelResult{}, fmt.Errorf("decode translator response: %w", err)
	}
	if decoded.Error != "" {
		return TranslateModelResult{}, fmt.Errorf("translator error: %s", decoded.Error)
	}
	if strings.TrimSpace(decoded.TranslatedText) == "" {
		return TranslateModelResult{}, fmt.Errorf("translator returned empty text")
	}
	return TranslateModelResult{
		TranslatedText: decoded.TranslatedText,
		ModelVersion:   decoded.ModelVersion,
	}, nil
}
