package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

type scriptedTransport struct {
	responses []*http.Response
	errs      []error
	requests  []*http.Request
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i >= len(s.responses) {
		return nil, fmt.Errorf("unexpected request %d to %s", i, req.URL)
	}
	if s.errs != nil && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.responses[i], nil
}

func jsonResponse(status int, body any) *http.Response {
	raw, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func embeddingBody(vec []float32) map[string]any {
	return map[string]any{
		"data": []map[string]any{{"embedding": vec}},
	}
}

func newTestEmbedClient(t *testing.T, transport http.RoundTripper) *embedClient {
	t.Helper()
	t.Setenv("EMBEDDING_API_KEY", "test-key")
	t.Setenv("EMBEDDING_DIM", "3")
	t.Setenv("EMBEDDING_MAX_RETRIES", "2")

	client, err := NewEmbedClient(newTestLogger(t), nil)
	if err != nil {
		t.Fatalf("new embed client: %v", err)
	}
	ec := client.(*embedClient)
	ec.http = &http.Client{Transport: transport, Timeout: 5 * time.Second}
	return ec
}

func TestEmbedRetriesRateLimitThenSucceeds(t *testing.T) {
	vec := []float32{0.1, 0.2, 0.3}
	limited := jsonResponse(http.StatusTooManyRequests, map[string]any{})
	limited.Header.Set("Retry-After", "0")
	transport := &scriptedTransport{
		responses: []*http.Response{
			limited,
			jsonResponse(http.StatusOK, embeddingBody(vec)),
		},
	}
	ec := newTestEmbedClient(t, transport)

	got, err := ec.Embed(context.Background(), "Der Wind dreht.")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(got) != 3 || got[0] != 0.1 {
		t.Fatalf("vector = %v", got)
	}
	if len(transport.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(transport.requests))
	}
	if auth := transport.requests[0].Header.Get("Authorization"); auth != "Bearer test-key" {
		t.Fatalf("auth header = %q", auth)
	}
}

func TestEmbedExhaustedRetriesIsUnavailable(t *testing.T) {
	transport := &scriptedTransport{
		responses: []*http.Response{
			jsonResponse(http.StatusInternalServerError, map[string]any{}),
			jsonResponse(http.StatusInternalServerError, map[string]any{}),
			jsonResponse(http.StatusInternalServerError, map[string]any{}),
		},
	}
	ec := newTestEmbedClient(t, transport)

	_, err := ec.Embed(context.Background(), "text")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}
	if len(transport.requests) != 3 {
		t.Fatalf("requests = %d, want 3 (initial + 2 retries)", len(transport.requests))
	}
}

func TestEmbedBadRequestDoesNotRetry(t *testing.T) {
	transport := &scriptedTransport{
		responses: []*http.Response{
			jsonResponse(http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "bad input"}}),
		},
	}
	ec := newTestEmbedClient(t, transport)

	_, err := ec.Embed(context.Background(), "text")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}
	if len(transport.requests) != 1 {
		t.Fatalf("requests = %d, want 1 (no retry on 4xx)", len(transport.requests))
	}
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	transport := &scriptedTransport{
		responses: []*http.Response{
			jsonResponse(http.StatusOK, embeddingBody([]float32{0.1, 0.2})),
		},
	}
	ec := newTestEmbedClient(t, transport)

	_, err := ec.Embed(context.Background(), "text")
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable on dim mismatch", err)
	}
}

func TestEmbedRejectsEmptyInput(t *testing.T) {
	ec := newTestEmbedClient(t, &scriptedTransport{})
	if _, err := ec.Embed(context.Background(), "   "); !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if len(ec.http.Transport.(*scriptedTransport).requests) != 0 {
		t.Fatal("no request should be sent for empty input")
	}
}
