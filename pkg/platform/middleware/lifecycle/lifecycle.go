// Package lifecycle provides the middleware that observes a request from
// start to finish. It installs the correlation id, the request-scoped time,
// the transaction state, and the deferred-effect buffer, then records latency
// and flushes the buffer exactly once when the request ends, whether it ends
// by the handler returning or by the client going away.
package lifecycle

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"caseflow/internal/effects"
	"caseflow/internal/platform/metrics"
	"caseflow/pkg/platform/tx"
	"caseflow/pkg/requestcontext"
)

const requestIDHeader = "X-Request-Id"

// Observer builds the lifecycle middleware. It must run before any handler
// that records effects or opens a transaction.
type Observer struct {
	recorder *effects.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures an Observer.
type Option func(*Observer)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Observer) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Observer) { o.metrics = m }
}

// NewObserver constructs an Observer flushing through the given recorder.
func NewObserver(recorder *effects.Recorder, opts ...Option) *Observer {
	o := &Observer{
		recorder: recorder,
		logger:   slog.Default(),
		tracer:   otel.Tracer("caseflow/http"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// statusRecorder captures the response status for the completion log. The
// status is atomic because a client-disconnect completion reads it from the
// watcher goroutine while the handler may still be writing.
type statusRecorder struct {
	http.ResponseWriter
	status atomic.Int32
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status.Store(int32(status))
	r.ResponseWriter.WriteHeader(status)
}

// Middleware wraps a handler with the request lifecycle. Completion is
// processed exactly once: a client disconnect observed on the request
// context and the handler's own return race for the same sync.Once.
func (o *Observer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, start)
		ctx, identity := requestcontext.WithIdentity(ctx)
		state := tx.NewState()
		ctx = tx.WithState(ctx, state)
		ctx = o.recorder.Attach(ctx)

		ctx, span := o.tracer.Start(ctx, r.Method+" "+r.URL.Path)
		span.SetAttributes(attribute.String("request.id", requestID))

		rec := &statusRecorder{ResponseWriter: w}
		rec.status.Store(http.StatusOK)
		req := r.WithContext(ctx)

		var once sync.Once
		finish := func(outcome string) {
			once.Do(func() {
				duration := time.Since(start)
				route := routePattern(req)
				status := int(rec.status.Load())

				o.recorder.EnqueueAfterCommit(ctx, effects.Effect{
					Kind:    effects.KindMetricsLatency,
					Payload: map[string]any{"route": route, "duration_ms": duration.Milliseconds()},
					Action: func(context.Context) error {
						if o.metrics != nil {
							o.metrics.ObserveRequest(route, duration)
						}
						return nil
					},
				})

				attrs := []any{
					"method", req.Method,
					"route", route,
					"status", status,
					"started_at", start,
					"duration_ms", duration.Milliseconds(),
					"outcome", outcome,
					"request_id", requestID,
					"tx_committed", state.Committed(),
				}
				if actor := identity.Actor(); !actor.IsNil() {
					attrs = append(attrs, "actor_id", actor.String())
				}
				if tenant := identity.Tenant(); !tenant.IsNil() {
					attrs = append(attrs, "tenant_id", tenant.String())
				}
				o.logger.InfoContext(ctx, "request completed", attrs...)

				o.recorder.Flush(ctx)

				span.SetAttributes(attribute.Int("http.status_code", status))
				span.End()
			})
		}

		handlerDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				finish("client_disconnected")
			case <-handlerDone:
			}
		}()

		next.ServeHTTP(rec, req)
		close(handlerDone)
		finish("completed")
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
