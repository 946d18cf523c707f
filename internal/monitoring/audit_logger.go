// Package monitoring records how caller questions were resolved.
package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/axmen-recycling/voice-agent/internal/cache"
	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/retrieval"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// ResolutionStore persists resolution events.
type ResolutionStore interface {
	Record(ctx context.Context, rec *storage.ResolutionRecord) error
}

// ResolutionEvent is one cascade outcome.
type ResolutionEvent struct {
	ID         uuid.UUID `json:"id"`
	RequestID  string    `json:"request_id,omitempty"`
	Query      string    `json:"query"`
	Stage      string    `json:"stage"`
	Source     string    `json:"source,omitempty"`
	FactID     string    `json:"fact_id,omitempty"`
	Matched    bool      `json:"matched"`
	Cached     bool      `json:"cached"`
	Degraded   bool      `json:"degraded"`
	LatencyMS  int64     `json:"latency_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DefaultWriteTimeout bounds one background event write.
const DefaultWriteTimeout = 2 * time.Second

// AuditLogger logs, persists and publishes resolution events. Store and
// publisher are optional.
type AuditLogger struct {
	logger       *observability.Logger
	store        ResolutionStore
	publisher    cache.Publisher
	writeTimeout time.Duration
	wg           sync.WaitGroup
}

// AuditOption configures an AuditLogger.
type AuditOption func(*AuditLogger)

// WithWriteTimeout overrides DefaultWriteTimeout.
func WithWriteTimeout(d time.Duration) AuditOption {
	return func(a *AuditLogger) {
		if d > 0 {
			a.writeTimeout = d
		}
	}
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(logger *observability.Logger, store ResolutionStore, publisher cache.Publisher, opts ...AuditOption) *AuditLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	a := &AuditLogger{
		logger:       logger,
		store:        store,
		publisher:    publisher,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ObserveResolution records a cascade outcome on a background goroutine and
// returns immediately. The write keeps the request's values but not its
// cancellation, and is bounded by the write timeout. Failures are logged only.
func (a *AuditLogger) ObserveResolution(ctx context.Context, res *retrieval.Resolution) {
	event := ResolutionEvent{
		RequestID: observability.RequestIDFromContext(ctx),
		Query:     res.Query,
		Stage:     string(res.Stage),
		Source:    res.Source,
		Matched:   res.Matched(),
		Cached:    res.Cached,
		Degraded:  res.Degraded,
		LatencyMS: res.Latency.Milliseconds(),
	}
	if res.Fact != nil {
		event.FactID = res.Fact.ID
	}

	event.ID = uuid.New()
	event.OccurredAt = time.Now().UTC()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.writeTimeout)
		defer cancel()

		if err := a.LogEvent(writeCtx, event); err != nil {
			a.logger.Warn().Err(err).Str("event_id", event.ID.String()).Msg("Failed to record resolution event")
		}
	}()
}

// Wait blocks until in-flight event writes finish.
func (a *AuditLogger) Wait() {
	a.wg.Wait()
}

// LogEvent records a resolution event.
func (a *AuditLogger) LogEvent(ctx context.Context, event ResolutionEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	a.logger.Info().
		Str("event_id", event.ID.String()).
		Str("request_id", event.RequestID).
		Str("stage", event.Stage).
		Str("source", event.Source).
		Str("fact_id", event.FactID).
		Bool("cached", event.Cached).
		Bool("degraded", event.Degraded).
		Int64("latency_ms", event.LatencyMS).
		Msg("Resolution event")

	var errs []error
	if a.store != nil {
		err := a.store.Record(ctx, &storage.ResolutionRecord{
			ID:         event.ID,
			Query:      event.Query,
			Stage:      event.Stage,
			Source:     event.Source,
			FactID:     event.FactID,
			Matched:    event.Matched,
			LatencyMS:  event.LatencyMS,
			OccurredAt: event.OccurredAt,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, cache.ChannelResolutions, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
