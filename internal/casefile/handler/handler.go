package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"caseflow/internal/casefile/models"
	"caseflow/internal/softdelete"
	"caseflow/internal/transport/http/shared"
	id "caseflow/pkg/domain"
	dErrors "caseflow/pkg/domain-errors"
	"caseflow/pkg/requestcontext"
)

// Service defines the case operations the HTTP layer needs.
type Service interface {
	CreateCase(ctx context.Context, title, summary string) (*models.Case, error)
	GetCase(ctx context.Context, caseID id.CaseID) (*models.Case, error)
	GetCaseAnyState(ctx context.Context, caseID id.CaseID) (*models.Case, error)
	GetDeletedCase(ctx context.Context, caseID id.CaseID) (*models.Case, error)
	ListCases(ctx context.Context, filter softdelete.Filter, scope softdelete.Scope) ([]*models.Case, error)
	CountByStatus(ctx context.Context, filter softdelete.Filter, scope softdelete.Scope) (map[models.CaseStatus]int, error)
	SoftDeleteCase(ctx context.Context, caseID id.CaseID, reason string) (*models.Case, error)
	RestoreCase(ctx context.Context, caseID id.CaseID) (*models.Case, error)
}

// Handler handles case endpoints.
type Handler struct {
	cases  Service
	logger *slog.Logger
}

// New creates a case Handler.
func New(cases Service, logger *slog.Logger) *Handler {
	return &Handler{cases: cases, logger: logger}
}

// Register registers the case routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/cases", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/stats", h.handleStats)
		r.Get("/{caseID}", h.handleGet)
		r.Delete("/{caseID}", h.handleDelete)
		r.Post("/{caseID}/restore", h.handleRestore)
	})
}

type createCaseRequest struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	c, err := h.cases.CreateCase(ctx, req.Title, req.Summary)
	if err != nil {
		h.logger.WarnContext(ctx, "create case failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, err := id.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case ID"))
		return
	}

	var c *models.Case
	switch r.URL.Query().Get("deleted") {
	case "include":
		c, err = h.cases.GetCaseAnyState(ctx, caseID)
	case "only":
		c, err = h.cases.GetDeletedCase(ctx, caseID)
	default:
		c, err = h.cases.GetCase(ctx, caseID)
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cases, err := h.cases.ListCases(ctx, filterFromQuery(r), scopeFromQuery(r))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if cases == nil {
		cases = []*models.Case{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"cases": cases})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.cases.CountByStatus(ctx, filterFromQuery(r), scopeFromQuery(r))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"by_status": counts})
}

type deleteCaseRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, err := id.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case ID"))
		return
	}

	// The body is optional; deletes without a reason are legal.
	var req deleteCaseRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	c, err := h.cases.SoftDeleteCase(ctx, caseID, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "delete case failed",
			"request_id", requestcontext.RequestID(ctx),
			"case_id", caseID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caseID, err := id.ParseCaseID(chi.URLParam(r, "caseID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid case ID"))
		return
	}

	c, err := h.cases.RestoreCase(ctx, caseID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, c)
}

// scopeFromQuery maps the ?deleted= query parameter onto a read scope.
func scopeFromQuery(r *http.Request) softdelete.Scope {
	switch r.URL.Query().Get("deleted") {
	case "include":
		return softdelete.IncludeDeleted()
	case "only":
		return softdelete.OnlyDeleted()
	default:
		return softdelete.Default()
	}
}

// filterFromQuery builds the field filter from the supported query
// parameters. Reserved fields are not mapped here; a client that wants
// deleted records asks for a scope, not a filter.
func filterFromQuery(r *http.Request) softdelete.Filter {
	filter := softdelete.Filter{}
	for _, key := range []string{"status", "category_id", "title"} {
		if value := r.URL.Query().Get(key); value != "" {
			filter[key] = value
		}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}
