package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caspianpress/stylebridge-backend/internal/logger"
	"github.com/caspianpress/stylebridge-backend/internal/platform/vectorindex"
	"github.com/caspianpress/stylebridge-backend/internal/repos"
)

const insertMaxAttempts = 3

// MemoryInserter embeds freshly approved style-memory entries and writes
// them to the vector index in the background. Entries become retrievable
// only once the vector lands. A transient embedding outage is retried; an
// entry that fails for good is rolled back so the store never holds phantom
// rows the index cannot answer for.
type MemoryInserter struct {
	log    *logger.Logger
	embed  EmbedClient
	index  vectorindex.VectorStore
	memory repos.StyleMemoryRepo

	queue      chan uuid.UUID
	wg         sync.WaitGroup
	once       sync.Once
	retryDelay time.Duration

	mu      sync.Mutex
	stopped bool
}

func NewMemoryInserter(
	log *logger.Logger,
	embed EmbedClient,
	index vectorindex.VectorStore,
	memory repos.StyleMemoryRepo,
	workers int,
) *MemoryInserter {
	if workers <= 0 {
		workers = 2
	}
	m := &MemoryInserter{
		log:        log.With("service", "MemoryInserter"),
		embed:      embed,
		index:      index,
		memory:     memory,
		queue:      make(chan uuid.UUID, 256),
		retryDelay: 2 * time.Second,
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Enqueue hands an entry to the background workers. Non-blocking: when the
// queue is full the insert runs inline on a tracked goroutine rather than
// stalling the override response, so Stop still waits for it.
func (m *MemoryInserter) Enqueue(entryID uuid.UUID) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		m.log.Warn("inserter stopped, entry stays unindexed", "entry_id", entryID)
		return
	}
	select {
	case m.queue <- entryID:
	default:
		m.log.Warn("insert queue full, processing inline", "entry_id", entryID)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.process(entryID)
		}()
	}
}

// Stop drains all accepted work before returning, the queued entries and
// any inline inserts included.
func (m *MemoryInserter) Stop() {
	if m == nil {
		return
	}
	m.once.Do(func() {
		m.mu.Lock()
		m.stopped = true
		close(m.queue)
		m.mu.Unlock()
	})
	m.wg.Wait()
}

func (m *MemoryInserter) worker() {
	defer m.wg.Done()
	for entryID := range m.queue {
		m.process(entryID)
	}
}

func (m *MemoryInserter) process(entryID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	entry, err := m.memory.GetByID(ctx, nil, entryID)
	if err != nil {
		m.log.Error("load style memory entry failed", "entry_id", entryID, "error", err)
		return
	}
	if entry == nil {
		m.log.Warn("style memory entry vanished before indexing", "entry_id", entryID)
		return
	}

	vec, err := m.embedWithRetry(ctx, entry.SourceText, entryID)
	if err != nil {
		m.log.Error("embedding failed, rolling back entry", "entry_id", entryID, "error", err)
		m.rollback(ctx, entryID)
		return
	}
	if len(vec) != m.embed.Dim() {
		m.log.Error(
			"embedding dimension mismatch, rolling back entry",
			"entry_id", entryID,
			"expected", m.embed.Dim(),
			"got", len(vec),
		)
		m.rollback(ctx, entryID)
		return
	}

	err = m.index.Upsert(ctx, styleMemoryNamespace, []vectorindex.Vector{{
		ID:     entry.ID.String(),
		Values: vec,
		Metadata: map[string]any{
			"engine":      entry.Engine,
			"approved_at": entry.ApprovedAt.UTC().Format(time.RFC3339),
		},
	}})
	if err != nil {
		m.log.Error("vector upsert failed, rolling back entry", "entry_id", entryID, "error", err)
		m.rollback(ctx, entryID)
		return
	}

	if err := m.recordAuditCopy(ctx, entry.ID, vec); err != nil {
		// The index write already landed; the audit copy can be rebuilt
		// later, so only log.
		m.log.Warn("embedding audit copy write failed", "entry_id", entryID, "error", err)
	}
	m.log.Info("style memory entry indexed", "entry_id", entryID, "dim", len(vec))
}

// embedWithRetry rides out a transient embedding outage before giving up on
// an approved entry. Only the unavailability sentinel is retried; any other
// embedding error is permanent.
func (m *MemoryInserter) embedWithRetry(ctx context.Context, text string, entryID uuid.UUID) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= insertMaxAttempts; attempt++ {
		vec, err := m.embed.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if !errors.Is(err, ErrEmbeddingUnavailable) {
			return nil, err
		}
		lastErr = err
		if attempt < insertMaxAttempts {
			m.log.Warn("embedding unavailable, retrying entry", "entry_id", entryID, "attempt", attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * m.retryDelay):
			}
		}
	}
	return nil, lastErr
}

func (m *MemoryInserter) rollback(ctx context.Context, entryID uuid.UUID) {
	if err := m.memory.Delete(ctx, nil, entryID); err != nil {
		m.log.Error("entry rollback failed", "entry_id", entryID, "error", err)
	}
}

func (m *MemoryInserter) recordAuditCopy(ctx context.Context, entryID uuid.UUID, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return m.memory.SetEmbedding(ctx, nil, entryID, raw, len(vec))
}
