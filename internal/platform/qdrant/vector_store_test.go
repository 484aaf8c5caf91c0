package qdrant

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

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/platform/vectorindex"
)

type captureTransport struct {
	handler func(req *http.Request) (*http.Response, error)
	bodies  []map[string]any
	paths   []string
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.paths = append(c.paths, req.Method+" "+req.URL.Path)
	if req.Body != nil {
		raw, _ := io.ReadAll(req.Body)
		var decoded map[string]any
		_ = json.Unmarshal(raw, &decoded)
		c.bodies = append(c.bodies, decoded)
	} else {
		c.bodies = append(c.bodies, nil)
	}
	return c.handler(req)
}

func envelope(result any) *http.Response {
	raw, _ := json.Marshal(map[string]any{"result": result, "status": "ok"})
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func newTestStore(t *testing.T, transport http.RoundTripper, distance string) *vectorStore {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return &vectorStore{
		log: log,
		cfg: Config{
			URL:             "http://qdrant.test:6333",
			Collection:      "style_memory",
			NamespacePrefix: "sb",
			VectorDim:       3,
		},
		baseURL:  "http://qdrant.test:6333",
		nsPrefix: "sb",
		distance: distance,
		http:     &http.Client{Transport: transport, Timeout: 5 * time.Second},
	}
}

func TestUpsertSendsQualifiedPayload(t *testing.T) {
	transport := &captureTransport{handler: func(*http.Request) (*http.Response, error) {
		return envelope(map[string]any{"operation_id": 1}), nil
	}}
	store := newTestStore(t, transport, "Cosine")

	err := store.Upsert(context.Background(), "style-memory", []vectorindex.Vector{
		{ID: "entry-1", Values: []float32{0.1, 0.2, 0.3}, Metadata: map[string]any{"engine": "manual"}},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if transport.paths[0] != "PUT /collections/style_memory/points" {
		t.Fatalf("path = %q", transport.paths[0])
	}
	points := transport.bodies[0]["points"].([]any)
	if len(points) != 1 {
		t.Fatalf("points = %d", len(points))
	}
	point := points[0].(map[string]any)
	payload := point["payload"].(map[string]any)
	if payload["_sb_namespace"] != "sb:style-memory" {
		t.Fatalf("namespace payload = %v", payload["_sb_namespace"])
	}
	if payload["_sb_entry_id"] != "entry-1" {
		t.Fatalf("entry id payload = %v", payload["_sb_entry_id"])
	}
	if payload["engine"] != "manual" {
		t.Fatalf("metadata not carried: %v", payload)
	}
	if point["id"] == "" || point["id"] == "entry-1" {
		t.Fatalf("point id should be deterministic and namespaced, got %v", point["id"])
	}
}

func TestUpsertRejectsWrongDimensionBeforeAnyWrite(t *testing.T) {
	transport := &captureTransport{handler: func(*http.Request) (*http.Response, error) {
		t.Fatal("no request may reach the index")
		return nil, nil
	}}
	store := newTestStore(t, transport, "Cosine")

	err := store.Upsert(context.Background(), "style-memory", []vectorindex.Vector{
		{ID: "entry-1", Values: []float32{0.1, 0.2}},
	})
	if !errors.Is(err, vectorindex.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
	var opError *OperationError
	if !errors.As(err, &opError) || opError.Code != OperationErrorValidation {
		t.Fatalf("err = %v, want validation operation error", err)
	}
}

func TestQueryRejectsWrongDimension(t *testing.T) {
	store := newTestStore(t, &captureTransport{handler: func(*http.Request) (*http.Response, error) {
		t.Fatal("no request may reach the index")
		return nil, nil
	}}, "Cosine")

	_, err := store.QueryMatches(context.Background(), "style-memory", []float32{0.1}, 5)
	if !errors.Is(err, vectorindex.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestQueryMatchesOrderingAndPayloadIDs(t *testing.T) {
	transport := &captureTransport{handler: func(*http.Request) (*http.Response, error) {
		return envelope([]map[string]any{
			{"id": "p-2", "score": 0.72, "payload": map[string]any{"_sb_entry_id": "entry-b"}},
			{"id": "p-1", "score": 0.93, "payload": map[string]any{"_sb_entry_id": "entry-a"}},
		}), nil
	}}
	store := newTestStore(t, transport, "Cosine")

	matches, err := store.QueryMatches(context.Background(), "style-memory", []float32{0.1, 0.2, 0.3}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d", len(matches))
	}
	if matches[0].ID != "entry-a" || matches[0].Score != 0.93 {
		t.Fatalf("best match = %+v", matches[0])
	}
	if matches[1].ID != "entry-b" {
		t.Fatalf("second match = %+v", matches[1])
	}

	filter := transport.bodies[0]["filter"].(map[string]any)
	must := filter["must"].([]any)[0].(map[string]any)
	if must["key"] != "_sb_namespace" {
		t.Fatalf("filter key = %v", must["key"])
	}
}

func TestQueryNormalizesDistanceScores(t *testing.T) {
	transport := &captureTransport{handler: func(*http.Request) (*http.Response, error) {
		return envelope([]map[string]any{
			{"id": "p-1", "score": 1.0, "payload": map[string]any{"_sb_entry_id": "entry-a"}},
		}), nil
	}}
	store := newTestStore(t, transport, "Euclid")

	matches, err := store.QueryMatches(context.Background(), "style-memory", []float32{0.1, 0.2, 0.3}, 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if matches[0].Score != 0.5 {
		t.Fatalf("score = %g, want 0.5 for distance 1.0", matches[0].Score)
	}
}

func TestDeleteIDsDeduplicates(t *testing.T) {
	transport := &captureTransport{handler: func(*http.Request) (*http.Response, error) {
		return envelope(map[string]any{"operation_id": 2}), nil
	}}
	store := newTestStore(t, transport, "Cosine")

	err := store.DeleteIDs(context.Background(), "style-memory", []string{"entry-1", "entry-1", " ", "entry-2"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	points := transport.bodies[0]["points"].([]any)
	if len(points) != 2 {
		t.Fatalf("points = %d, want 2 after dedupe", len(points))
	}
}

func TestErrorEnvelopeSurfaces(t *testing.T) {
	transport := &captureTransport{handler: func(*http.Request) (*http.Response, error) {
		raw, _ := json.Marshal(map[string]any{"status": map[string]any{"error": "collection not found"}})
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(raw)),
		}, nil
	}}
	store := newTestStore(t, transport, "Cosine")

	_, err := store.QueryMatches(context.Background(), "style-memory", []float32{0.1, 0.2, 0.3}, 5)
	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("err = %v, want OperationError", err)
	}
	if opError.Code != OperationErrorQueryFailed {
		t.Fatalf("code = %v", opError.Code)
	}
}

func TestTransportFailureClassified(t *testing.T) {
	transport := &captureTransport{handler: func(*http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("connection refused")
	}}
	store := newTestStore(t, transport, "Cosine")

	err := store.Upsert(context.Background(), "style-memory", []vectorindex.Vector{
		{ID: "entry-1", Values: []float32{0.1, 0.2, 0.3}},
	})
	var opError *OperationError
	if !errors.As(err, &opError) {
		t.Fatalf("err = %v, want OperationError", err)
	}
	if opError.Code != OperationErrorTransportFailed {
		t.Fatalf("code = %v", opError.Code)
	}
}
