// Package httptransport wires the HTTP surface: middleware chain, domain
// routes, health and operational endpoints. Handlers live next to their
// services; this package only assembles them.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"caseflow/internal/effects"
	"caseflow/internal/transport/http/shared"
	"caseflow/pkg/platform/middleware/actor"
	"caseflow/pkg/platform/middleware/lifecycle"
	"caseflow/pkg/platform/middleware/metadata"
)

// Registrar is implemented by domain handler packages.
type Registrar interface {
	Register(r chi.Router)
}

// Deps carries everything the router needs.
type Deps struct {
	Logger    *slog.Logger
	Observer  *lifecycle.Observer
	Validator *actor.Validator
	Queue     *effects.Queue
	Handlers  []Registrar
	Health    []func() error
}

// NewRouter builds the full router. Every API route runs inside the request
// lifecycle; /healthz and /metrics stay outside it so probes never touch the
// effect machinery.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", handleHealth(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(deps.Observer.Middleware)
		r.Use(actor.RequireActor(deps.Validator, deps.Logger))

		for _, h := range deps.Handlers {
			h.Register(r)
		}

		r.Get("/ops/effects/failures", handleFailedEffects(deps.Queue))
	})

	return r
}

func handleHealth(checks []func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(); err != nil {
				shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
				})
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// failedEffectView is the wire form of a failure record; errors render as
// strings.
type failedEffectView struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Payload    map[string]any `json:"payload,omitempty"`
	Error      string         `json:"error"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// handleFailedEffects exposes the queue's bounded failure history, newest
// first, for operators diagnosing dropped deferred work.
func handleFailedEffects(queue *effects.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records := queue.FailedEffects()
		views := make([]failedEffectView, 0, len(records))
		for _, record := range records {
			view := failedEffectView{
				ID:         record.ID,
				Kind:       record.Kind,
				Payload:    record.Payload,
				OccurredAt: record.OccurredAt,
			}
			if record.Err != nil {
				view.Error = record.Err.Error()
			}
			views = append(views, view)
		}
		shared.WriteJSON(w, http.StatusOK, map[string]any{"failures": views})
	}
}
