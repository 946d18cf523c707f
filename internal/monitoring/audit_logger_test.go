package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/retrieval"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

type memoryStore struct {
	mu      sync.Mutex
	records []*storage.ResolutionRecord
	err     error
}

func (m *memoryStore) Record(_ context.Context, rec *storage.ResolutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

// hungStore blocks every write until its context ends.
type hungStore struct {
	mu  sync.Mutex
	err error
}

func (h *hungStore) Record(ctx context.Context, _ *storage.ResolutionRecord) error {
	<-ctx.Done()
	h.mu.Lock()
	h.err = ctx.Err()
	h.mu.Unlock()
	return ctx.Err()
}

// hungSource blocks every query until its context ends.
type hungSource struct{ name string }

func (s hungSource) Name() string { return s.name }

func (s hungSource) Find(ctx context.Context, _ retrieval.Query) ([]retrieval.Fact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s hungSource) ListActive(ctx context.Context) ([]retrieval.Fact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type memoryPublisher struct {
	channel string
	events  []ResolutionEvent
}

func (p *memoryPublisher) Publish(_ context.Context, channel string, message interface{}) error {
	p.channel = channel
	p.events = append(p.events, message.(ResolutionEvent))
	return nil
}

func TestAuditLogger_ObserveResolution(t *testing.T) {
	store := &memoryStore{}
	pub := &memoryPublisher{}
	a := NewAuditLogger(nil, store, pub)

	ctx := observability.ContextWithRequestID(context.Background(), "req-7")
	a.ObserveResolution(ctx, &retrieval.Resolution{
		Query:   "copper",
		Stage:   retrieval.StageExact,
		Source:  retrieval.SourcePricing,
		Fact:    &retrieval.Fact{ID: "fact-1"},
		Latency: 12 * time.Millisecond,
	})
	a.Wait()

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, "exact", rec.Stage)
	assert.Equal(t, "fact-1", rec.FactID)
	assert.True(t, rec.Matched)
	assert.Equal(t, int64(12), rec.LatencyMS)

	assert.Equal(t, "resolutions", pub.channel)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "req-7", pub.events[0].RequestID)
	assert.Equal(t, rec.ID, pub.events[0].ID)
}

func TestAuditLogger_FailuresAreReported(t *testing.T) {
	store := &memoryStore{err: errors.New("db down")}
	pub := &memoryPublisher{}
	a := NewAuditLogger(nil, store, pub)

	err := a.LogEvent(context.Background(), ResolutionEvent{Stage: "fallback"})
	assert.ErrorContains(t, err, "db down")
	assert.Len(t, pub.events, 1, "publish still attempted")

	assert.NotPanics(t, func() {
		a.ObserveResolution(context.Background(), &retrieval.Resolution{Stage: retrieval.StageFallback})
		a.Wait()
	})
}

func TestAuditLogger_OutlivesRequestCancellation(t *testing.T) {
	store := &memoryStore{}
	a := NewAuditLogger(nil, store, nil)

	ctx, cancel := context.WithCancel(observability.ContextWithRequestID(context.Background(), "req-9"))
	a.ObserveResolution(ctx, &retrieval.Resolution{Stage: retrieval.StageFallback})
	cancel()
	a.Wait()

	require.Len(t, store.records, 1)
	assert.Equal(t, "fallback", store.records[0].Stage)
}

func TestCascade_HungStoreStillAnswersWithinBudget(t *testing.T) {
	store := &hungStore{}
	audit := NewAuditLogger(nil, store, nil, WithWriteTimeout(100*time.Millisecond))

	cfg := retrieval.DefaultConfig()
	cfg.StageTimeout = 50 * time.Millisecond
	cfg.Budget = 200 * time.Millisecond
	knowledge := hungSource{name: retrieval.SourceKnowledge}
	cascade := retrieval.NewCascade(retrieval.Sources{
		Pricing:   hungSource{name: retrieval.SourcePricing},
		Knowledge: knowledge,
		Catalog:   hungSource{name: retrieval.SourceCatalog},
	}, cfg, nil, retrieval.WithObserver(audit))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	res, err := cascade.Resolve(ctx, "how much for copper wire")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, retrieval.StageFallback, res.Stage)
	assert.True(t, res.Degraded)
	assert.Less(t, elapsed, time.Second)
	assert.NoError(t, ctx.Err(), "request context must not be used up")

	audit.Wait()
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.ErrorIs(t, store.err, context.DeadlineExceeded)
}

func TestAuditLogger_PersistsToSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(ctx, storage.DriverSQLite, ":memory:", storage.PoolConfig{})
	require.NoError(t, err)
	defer store.Close()
	_, err = store.Migrate(ctx)
	require.NoError(t, err)

	repo := storage.NewResolutionRepository(store)
	a := NewAuditLogger(nil, repo, nil)
	a.ObserveResolution(ctx, &retrieval.Resolution{Stage: retrieval.StageFallback})
	a.ObserveResolution(ctx, &retrieval.Resolution{Stage: retrieval.StageFallback})
	a.Wait()

	counts, err := repo.StageCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["fallback"])
}
