package effects

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"caseflow/internal/platform/metrics"
)

// failureHistoryCap bounds the in-memory failure history. Oldest records are
// silently evicted beyond this.
const failureHistoryCap = 10

// Queue is a process-wide FIFO of deferred effects with an at-most-one
// drain loop. Enqueue never blocks on effect execution; the drain runs in a
// background goroutine, awaiting each action to completion. A failing effect
// is re-appended to the tail until its retry budget runs out, so one bad
// effect never starves the rest of the queue.
//
// Queue state is in-memory only. A process restart loses pending effects and
// failure history; effects are best-effort work, not correctness-critical
// state.
type Queue struct {
	mu       sync.Mutex
	pending  []*Effect
	failures []FailureRecord // newest first
	draining bool

	logger  *slog.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithLogger sets the logger used for drop and retry warnings.
func WithLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = logger }
}

// WithMetrics wires queue counters and the depth gauge.
func WithMetrics(m *metrics.Metrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

// WithClock sets the clock used for failure timestamps (tests).
func WithClock(clock func() time.Time) QueueOption {
	return func(q *Queue) {
		if clock != nil {
			q.clock = clock
		}
	}
}

// NewQueue constructs an empty Queue. Queues are injected where needed; the
// application normally runs exactly one, but tests construct their own.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue normalizes the effect, appends it to the tail, and schedules an
// asynchronous drain. It returns the effect's id immediately; the caller
// never waits for execution.
func (q *Queue) Enqueue(effect Effect) string {
	q.normalize(&effect)

	q.mu.Lock()
	q.pending = append(q.pending, &effect)
	depth := len(q.pending)
	start := !q.draining
	if start {
		q.draining = true
	}
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.EffectsEnqueued.Inc()
		q.metrics.QueueDepth.Set(float64(depth))
	}
	if start {
		go q.drain()
	}
	return effect.ID
}

func (q *Queue) normalize(effect *Effect) {
	if effect.ID == "" {
		effect.ID = uuid.NewString()
	}
	if effect.Kind == "" {
		effect.Kind = KindUnspecified
	}
	if effect.Action == nil {
		effect.Action = func(context.Context) error { return nil }
	}
	if effect.MaxRetries == 0 {
		effect.MaxRetries = DefaultMaxRetries
	}
	effect.Attempts = 0
}

// drain pops and executes effects until the queue is empty. The draining
// flag is cleared under the same lock as the final emptiness check, so an
// Enqueue racing with drain exit either sees the flag still set or starts a
// fresh drain; effects are never stranded.
func (q *Queue) drain() {
	q.mu.Lock()
	for {
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		effect := q.pending[0]
		q.pending = q.pending[1:]
		if q.metrics != nil {
			q.metrics.QueueDepth.Set(float64(len(q.pending)))
		}
		q.mu.Unlock()

		// No deadline: an action is awaited to completion or failure.
		// Retries bound attempt count, not time.
		err := effect.Action(context.Background())

		q.mu.Lock()
		if err == nil {
			continue
		}
		effect.Attempts++
		if effect.Attempts <= effect.MaxRetries {
			// Retry at the tail so other queued effects get a turn first.
			q.pending = append(q.pending, effect)
			q.logger.Warn("effect failed, retrying",
				"effect_id", effect.ID,
				"kind", effect.Kind,
				"attempts", effect.Attempts,
				"max_retries", effect.MaxRetries,
				"error", err.Error(),
			)
			continue
		}
		q.recordFailureLocked(effect, err)
		q.logger.Warn("effect dropped after exhausting retries",
			"effect_id", effect.ID,
			"kind", effect.Kind,
			"attempts", effect.Attempts,
			"error", err.Error(),
		)
		if q.metrics != nil {
			q.metrics.EffectsFailed.Inc()
		}
	}
}

// recordFailureLocked prepends a failure record, evicting the oldest beyond
// capacity. Callers must hold q.mu.
func (q *Queue) recordFailureLocked(effect *Effect, err error) {
	record := FailureRecord{
		ID:         effect.ID,
		Kind:       effect.Kind,
		Payload:    effect.Payload,
		Err:        err,
		OccurredAt: q.clock(),
	}
	q.failures = append([]FailureRecord{record}, q.failures...)
	if len(q.failures) > failureHistoryCap {
		q.failures = q.failures[:failureHistoryCap]
	}
}

// Depth returns the number of effects waiting in the queue. An effect whose
// action is currently executing is not counted.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// FailedEffects returns a snapshot copy of the failure history, newest
// first.
func (q *Queue) FailedEffects() []FailureRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]FailureRecord, len(q.failures))
	copy(out, q.failures)
	return out
}

// Idle reports whether the queue has nothing pending and no drain running.
// Shutdown and tests poll this to know when deferred work has settled.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && !q.draining
}

// Reset clears the queue, failure history, and the drain guard. Test and
// operational escape hatch only.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.failures = nil
	q.draining = false
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(0)
	}
}
