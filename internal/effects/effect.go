// Package effects implements deferred, commit-gated side effects.
//
// Domain operations that need non-critical follow-up work (audit rows,
// metrics samples, notifications) describe it as an Effect and hand it to a
// Recorder. Effects buffered during a request are released to the Queue only
// once the request's database transaction is known to have committed, so a
// rolled-back write never produces a permanent side effect. The Queue drains
// asynchronously with a bounded retry budget per effect.
package effects

import (
	"context"
	"time"
)

// Effect kinds. Free-form strings; these cover the effects emitted by this
// application.
const (
	KindMetricsLatency = "METRICS_LATENCY"
	KindAuditWrite     = "AUDIT_WRITE"
	KindNotification   = "NOTIFICATION"
	KindSuspensionSync = "SUSPENSION_SYNC"
	KindUnspecified    = "UNSPECIFIED"
)

// DefaultMaxRetries is the retry budget applied when an effect does not set
// its own. An effect is attempted at most MaxRetries+1 times.
const DefaultMaxRetries = 2

// Action performs the real work of an effect. Actions must be idempotent:
// the queue retries after failure without deduplication, so a partially
// applied action may run again.
type Action func(ctx context.Context) error

// Effect is a unit of deferred work. Zero fields are filled in at enqueue
// time: a missing ID gets a generated UUID, a missing Kind becomes
// KindUnspecified, a missing Action becomes a no-op, and a zero MaxRetries
// means DefaultMaxRetries.
type Effect struct {
	ID         string
	Kind       string
	Payload    map[string]any
	Action     Action
	Attempts   int
	MaxRetries int
}

// FailureRecord captures an effect that exhausted its retry budget. Purely
// diagnostic; failed effects are never replayed from here.
type FailureRecord struct {
	ID         string
	Kind       string
	Payload    map[string]any
	Err        error
	OccurredAt time.Time
}
