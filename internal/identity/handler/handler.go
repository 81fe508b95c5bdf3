package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"caseflow/internal/identity/models"
	"caseflow/internal/softdelete"
	"caseflow/internal/transport/http/shared"
	id "caseflow/pkg/domain"
	dErrors "caseflow/pkg/domain-errors"
	"caseflow/pkg/requestcontext"
)

// Service defines the user operations the HTTP layer needs.
type Service interface {
	CreateUser(ctx context.Context, email, firstName, lastName string) (*models.User, error)
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
	GetUserAnyState(ctx context.Context, userID id.UserID) (*models.User, error)
	ListUsers(ctx context.Context, scope softdelete.Scope) ([]*models.User, error)
	SoftDeleteUser(ctx context.Context, userID id.UserID, reason string) (*models.User, error)
	RestoreUser(ctx context.Context, userID id.UserID) (*models.User, error)
	IsSuspended(ctx context.Context, userID id.UserID) (bool, error)
}

// Handler handles user endpoints.
type Handler struct {
	users  Service
	logger *slog.Logger
}

// New creates a user Handler.
func New(users Service, logger *slog.Logger) *Handler {
	return &Handler{users: users, logger: logger}
}

// Register registers the user routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{userID}", h.handleGet)
		r.Get("/{userID}/suspended", h.handleSuspended)
		r.Delete("/{userID}", h.handleDelete)
		r.Post("/{userID}/restore", h.handleRestore)
	})
}

type createUserRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	u, err := h.users.CreateUser(ctx, req.Email, req.FirstName, req.LastName)
	if err != nil {
		h.logger.WarnContext(ctx, "create user failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user ID"))
		return
	}

	var u *models.User
	if r.URL.Query().Get("deleted") == "include" {
		u, err = h.users.GetUserAnyState(ctx, userID)
	} else {
		u, err = h.users.GetUser(ctx, userID)
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope := softdelete.Default()
	switch r.URL.Query().Get("deleted") {
	case "include":
		scope = softdelete.IncludeDeleted()
	case "only":
		scope = softdelete.OnlyDeleted()
	}

	users, err := h.users.ListUsers(ctx, scope)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) handleSuspended(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user ID"))
		return
	}

	suspended, err := h.users.IsSuspended(ctx, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"suspended": suspended})
}

type deleteUserRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user ID"))
		return
	}

	var req deleteUserRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	u, err := h.users.SoftDeleteUser(ctx, userID, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "delete user failed",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user ID"))
		return
	}

	u, err := h.users.RestoreUser(ctx, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, u)
}
