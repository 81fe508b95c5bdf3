package handler

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmemory "caseflow/internal/audit/store/memory"
	"caseflow/internal/casefile/models"
	"caseflow/internal/casefile/service"
	"caseflow/internal/casefile/store"
	"caseflow/internal/effects"
	id "caseflow/pkg/domain"
	"caseflow/pkg/testutil"
)

type fixture struct {
	router  http.Handler
	actorID id.UserID
	tenant  id.TenantID
	queue   *effects.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	queue := effects.NewQueue()
	recorder := effects.NewRecorder(queue)
	svc := service.New(store.NewInMemory(), auditmemory.New(), recorder)

	h := New(svc, slog.Default())
	r := chi.NewRouter()
	h.Register(r)

	return &fixture{
		router:  r,
		actorID: id.UserID(uuid.New()),
		tenant:  id.TenantID(uuid.New()),
		queue:   queue,
	}
}

func (f *fixture) createCase(t *testing.T, title string) *models.Case {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/cases", map[string]string{"title": title})
	rr := testutil.DoRequest(f.router, testutil.WithActor(req, f.actorID, f.tenant))
	require.Equal(t, http.StatusCreated, rr.Code)
	return testutil.UnmarshalResponse[models.Case](t, rr)
}

func TestCreateCase(t *testing.T) {
	f := newFixture(t)

	c := f.createCase(t, "Billing dispute")
	assert.Equal(t, "Billing dispute", c.Title)
	assert.Equal(t, models.CaseStatusOpen, c.Status)
	assert.Equal(t, f.tenant, c.TenantID)
}

func TestCreateCaseValidation(t *testing.T) {
	f := newFixture(t)

	req := testutil.NewJSONRequest(t, http.MethodPost, "/cases", map[string]string{"title": "   "})
	rr := testutil.DoRequest(f.router, testutil.WithActor(req, f.actorID, f.tenant))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "validation", testutil.UnmarshalErrorResponse(t, rr)["error"])
}

func TestDeleteThenGet(t *testing.T) {
	f := newFixture(t)
	c := f.createCase(t, "Lost shipment")

	req := testutil.NewJSONRequest(t, http.MethodDelete, "/cases/"+c.ID.String(), map[string]string{"reason": "duplicate"})
	rr := testutil.DoRequest(f.router, testutil.WithActor(req, f.actorID, f.tenant))
	require.Equal(t, http.StatusOK, rr.Code)
	deleted := testutil.UnmarshalResponse[models.Case](t, rr)
	require.NotNil(t, deleted.Deletion.DeletedAt)

	// Default read no longer sees the case.
	rr = testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodGet, "/cases/"+c.ID.String()), f.actorID, f.tenant))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// The admin view still does.
	rr = testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodGet, "/cases/"+c.ID.String()+"?deleted=include"), f.actorID, f.tenant))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestGetOnlyDeletedView(t *testing.T) {
	f := newFixture(t)
	live := f.createCase(t, "Still open")
	gone := f.createCase(t, "Removed")

	rr := testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodDelete, "/cases/"+gone.ID.String()), f.actorID, f.tenant))
	require.Equal(t, http.StatusOK, rr.Code)

	// A live case is not found under the only-deleted view.
	rr = testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodGet, "/cases/"+live.ID.String()+"?deleted=only"), f.actorID, f.tenant))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodGet, "/cases/"+gone.ID.String()+"?deleted=only"), f.actorID, f.tenant))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, gone.ID, testutil.UnmarshalResponse[models.Case](t, rr).ID)
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	c := f.createCase(t, "Access request")

	rr := testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodDelete, "/cases/"+c.ID.String()), f.actorID, f.tenant))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewJSONRequest(t, http.MethodPost, "/cases/"+c.ID.String()+"/restore", nil), f.actorID, f.tenant))
	require.Equal(t, http.StatusOK, rr.Code)
	restored := testutil.UnmarshalResponse[models.Case](t, rr)
	assert.Nil(t, restored.Deletion.DeletedAt)
	assert.Len(t, restored.Deletion.RestoreHistory, 1)
}

func TestListScopedByQuery(t *testing.T) {
	f := newFixture(t)
	f.createCase(t, "Live one")
	doomed := f.createCase(t, "Doomed one")

	rr := testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodDelete, "/cases/"+doomed.ID.String()), f.actorID, f.tenant))
	require.Equal(t, http.StatusOK, rr.Code)

	type listResponse struct {
		Cases []models.Case `json:"cases"`
	}

	rr = testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodGet, "/cases"), f.actorID, f.tenant))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, testutil.UnmarshalResponse[listResponse](t, rr).Cases, 1)

	rr = testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodGet, "/cases?deleted=only"), f.actorID, f.tenant))
	require.Equal(t, http.StatusOK, rr.Code)
	onlyDeleted := testutil.UnmarshalResponse[listResponse](t, rr).Cases
	require.Len(t, onlyDeleted, 1)
	assert.Equal(t, doomed.ID, onlyDeleted[0].ID)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.createCase(t, "One")
	f.createCase(t, "Two")

	rr := testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodGet, "/cases/stats"), f.actorID, f.tenant))
	require.Equal(t, http.StatusOK, rr.Code)

	type statsResponse struct {
		ByStatus map[string]int `json:"by_status"`
	}
	stats := testutil.UnmarshalResponse[statsResponse](t, rr)
	assert.Equal(t, 2, stats.ByStatus["open"])
}

func TestInvalidCaseID(t *testing.T) {
	f := newFixture(t)

	rr := testutil.DoRequest(f.router, testutil.WithActor(
		testutil.NewRequest(t, http.MethodGet, "/cases/not-a-uuid"), f.actorID, f.tenant))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
