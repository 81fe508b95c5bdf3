package effects

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"caseflow/internal/platform/metrics"
	"caseflow/pkg/platform/tx"
	"caseflow/pkg/requestcontext"
)

type bufferKey struct{}

// Buffer holds a request's not-yet-released effects. It is created once per
// request by Recorder.Attach and cleared by Flush. The mutex exists because
// a client-disconnect flush can race the handler goroutine.
type Buffer struct {
	mu      sync.Mutex
	effects []*Effect
	flushed bool
}

// WithBuffer stores an effect buffer in context.
func WithBuffer(ctx context.Context, b *Buffer) context.Context {
	if b == nil {
		return ctx
	}
	return context.WithValue(ctx, bufferKey{}, b)
}

// BufferFrom extracts the request's effect buffer from context if present.
func BufferFrom(ctx context.Context) (*Buffer, bool) {
	b, ok := ctx.Value(bufferKey{}).(*Buffer)
	return b, ok
}

// Recorder buffers effects during a request and decides at flush time
// whether to release them to the queue (commit) or discard them (rollback).
type Recorder struct {
	queue   *Queue
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger used for rollback-discard notices.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithRecorderMetrics wires the discarded-effects counter.
func WithRecorderMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// NewRecorder constructs a Recorder releasing into the given queue.
func NewRecorder(queue *Queue, opts ...RecorderOption) *Recorder {
	r := &Recorder{queue: queue, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach idempotently ensures the context carries an effect buffer. The
// returned context must be threaded through the request's handlers.
func (r *Recorder) Attach(ctx context.Context) context.Context {
	if _, ok := BufferFrom(ctx); ok {
		return ctx
	}
	return WithBuffer(ctx, &Buffer{})
}

// EnqueueAfterCommit records an effect to be released when the request's
// transaction outcome is known. Without a buffer in context (background
// work, jobs) the effect goes straight to the queue. Returns the effect id
// either way.
func (r *Recorder) EnqueueAfterCommit(ctx context.Context, effect Effect) string {
	buffer, ok := BufferFrom(ctx)
	if !ok {
		return r.queue.Enqueue(effect)
	}

	if effect.ID == "" {
		effect.ID = uuid.NewString()
	}
	buffer.mu.Lock()
	buffer.effects = append(buffer.effects, &effect)
	buffer.mu.Unlock()
	return effect.ID
}

// Flush releases or discards the request's buffered effects, exactly once
// per request. Effects are released in insertion order iff no transaction
// was opened, or the transaction committed. A transaction that was opened
// and did not commit discards the buffer: work that is a consequence of a
// database write must never be observed downstream unless that write
// persisted.
func (r *Recorder) Flush(ctx context.Context) {
	buffer, ok := BufferFrom(ctx)
	if !ok {
		return
	}

	buffer.mu.Lock()
	if buffer.flushed {
		buffer.mu.Unlock()
		return
	}
	buffer.flushed = true
	buffered := buffer.effects
	buffer.effects = nil
	buffer.mu.Unlock()

	if len(buffered) == 0 {
		return
	}

	state, _ := tx.StateFrom(ctx)
	shouldRelease := !state.Active() || state.Committed()
	if !shouldRelease {
		r.logger.Warn("transaction rolled back, discarding buffered effects",
			"discarded", len(buffered),
			"request_id", requestcontext.RequestID(ctx),
		)
		if r.metrics != nil {
			r.metrics.EffectsDiscarded.Add(float64(len(buffered)))
		}
		return
	}

	for _, effect := range buffered {
		r.queue.Enqueue(*effect)
	}
}
