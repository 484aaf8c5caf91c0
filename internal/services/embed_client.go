package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	redisclient "github.com/caspianpress/stylebridge-backend/internal/clients/redis"
	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/utils"
)

// EmbedClient produces embedding vectors for source-language text. Failures
// surface as ErrEmbeddingUnavailable so callers can take the degraded path
// instead of failing the request.
type EmbedClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dim() int
}

type embedClient struct {
	log        *logger.Logger
	http       *http.Client
	baseURL    string
	apiKey     string
	model      string
	dim        int
	maxRetries int
	cache      *redisclient.EmbedCache
	group      singleflight.Group
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewEmbedClient builds the provider client. cache may be nil; dedupe via
// singleflight still applies so a burst of identical texts makes one call.
func NewEmbedClient(log *logger.Logger, cache *redisclient.EmbedCache) (EmbedClient, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := utils.GetEnv("EMBEDDING_API_KEY", "", log)
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("EMBEDDING_API_KEY is required")
	}

	c := &embedClient{
		log:        log.With("client", "EmbedClient"),
		baseURL:    strings.TrimRight(utils.GetEnv("EMBEDDING_BASE_URL", "https://api.openai.com/v1", log), "/"),
		apiKey:     apiKey,
		model:      utils.GetEnv("EMBEDDING_MODEL", "text-embedding-3-small", log),
		dim:        utils.GetEnvAsInt("EMBEDDING_DIM", 1536, log),
		maxRetries: utils.GetEnvAsInt("EMBEDDING_MAX_RETRIES", 3, log),
		cache:      cache,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	if c.dim <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.dim)
	}
	return c, nil
}

func (c *embedClient) Model() string { return c.model }
func (c *embedClient) Dim() int      { return c.dim }

func (c *embedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty input text", ErrEmbeddingUnavailable)
	}

	if c.cache != nil {
		if values, ok := c.cache.Get(ctx, c.model, trimmed); ok {
			return values, nil
		}
	}

	result, err, _ := c.group.Do(c.model+"\x00"+trimmed, func() (any, error) {
		values, embedErr := c.embedRemote(ctx, trimmed)
		if embedErr != nil {
			return nil, embedErr
		}
		if c.cache != nil {
			c.cache.Set(ctx, c.model, trimmed, values)
		}
		return values, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]float32), nil
}

func (c *embedClient) embedRemote(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embeddingRequest{
		Model: c.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrEmbeddingUnavailable, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, ctx.Err())
			case <-time.After(backoffDelay(attempt, lastErr)):
			}
		}

		values, retryable, callErr := c.callOnce(ctx, payload)
		if callErr == nil {
			return values, nil
		}
		lastErr = callErr
		if !retryable {
			break
		}
		c.log.Warn("embedding call failed, retrying", "attempt", attempt+1, "error", callErr)
	}
	return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, lastErr)
}

func (c *embedClient) callOnce(ctx context.Context, payload []byte) (values []float32, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, &retryAfterError{
			status:     resp.StatusCode,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("embedding provider status=%d body=%q", resp.StatusCode, truncate(raw, 512))
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return nil, false, fmt.Errorf("embedding provider error: %s", decoded.Error.Message)
	}
	if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
		return nil, false, fmt.Errorf("embedding provider returned no vector")
	}
	if len(decoded.Data[0].Embedding) != c.dim {
		return nil, false, fmt.Errorf("embedding provider returned dim=%d, expected %d", len(decoded.Data[0].Embedding), c.dim)
	}
	return decoded.Data[0].Embedding, false, nil
}

type retryAfterError struct {
	status     int
	retryAfter time.Duration
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("embedding provider status=%d", e.status)
}

func backoffDelay(attempt int, lastErr error) time.Duration {
	if rae, ok := lastErr.(*retryAfterError); ok && rae.retryAfter > 0 {
		return rae.retryAfter
	}
	base := time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
	if base > 8*time.Second {
		base = 8 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 4))
	return base + jitter
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(raw []byte, n int) string {
	if len(raw) <= n {
		return string(raw)
	}
	return string(raw[:n]) + "..."
}
