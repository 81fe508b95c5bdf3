package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseflow/internal/effects"
	id "caseflow/pkg/domain"
	"caseflow/pkg/platform/tx"
	"caseflow/pkg/requestcontext"
)

func settle(t *testing.T, q *effects.Queue) {
	t.Helper()
	require.Eventually(t, q.Idle, 2*time.Second, time.Millisecond)
}

func TestRequestIDAssignedAndEchoed(t *testing.T) {
	queue := effects.NewQueue()
	recorder := effects.NewRecorder(queue)
	observer := NewObserver(recorder)

	var seen string
	handler := observer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cases", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get("X-Request-Id"))
}

func TestRequestIDPropagatedFromHeader(t *testing.T) {
	queue := effects.NewQueue()
	recorder := effects.NewRecorder(queue)
	observer := NewObserver(recorder)

	var seen string
	handler := observer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/cases", nil)
	req.Header.Set("X-Request-Id", "upstream-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "upstream-42", seen)
}

func TestBufferedEffectsReleasedOnCompletion(t *testing.T) {
	queue := effects.NewQueue()
	recorder := effects.NewRecorder(queue)
	observer := NewObserver(recorder)

	var executed atomic.Int32
	handler := observer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder.EnqueueAfterCommit(r.Context(), effects.Effect{
			Kind: effects.KindNotification,
			Action: func(context.Context) error {
				executed.Add(1)
				return nil
			},
		})
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/cases", nil))

	settle(t, queue)
	assert.Equal(t, int32(1), executed.Load())
}

func TestRolledBackEffectsDiscarded(t *testing.T) {
	queue := effects.NewQueue()
	recorder := effects.NewRecorder(queue)
	observer := NewObserver(recorder)

	var executed atomic.Int32
	handler := observer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		state, ok := tx.StateFrom(ctx)
		require.True(t, ok)
		state.MarkActive()
		// No commit: the write failed.
		recorder.EnqueueAfterCommit(ctx, effects.Effect{
			Action: func(context.Context) error {
				executed.Add(1)
				return nil
			},
		})
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/cases", nil))

	settle(t, queue)
	assert.Equal(t, int32(0), executed.Load())
}

func TestCompletionLogCarriesIdentityAndTxOutcome(t *testing.T) {
	queue := effects.NewQueue()
	recorder := effects.NewRecorder(queue)

	var buf bytes.Buffer
	observer := NewObserver(recorder, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	actorID := id.UserID(uuid.New())
	tenantID := id.TenantID(uuid.New())

	handler := observer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// What the auth middleware and a committing service do downstream.
		ctx := requestcontext.WithActorID(r.Context(), actorID)
		ctx = requestcontext.WithTenantID(ctx, tenantID)

		state, ok := tx.StateFrom(ctx)
		require.True(t, ok)
		state.MarkActive()
		state.MarkCommitted()

		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/cases", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request completed", line["msg"])
	assert.Equal(t, actorID.String(), line["actor_id"])
	assert.Equal(t, tenantID.String(), line["tenant_id"])
	assert.Equal(t, float64(http.StatusCreated), line["status"])
	assert.Equal(t, true, line["tx_committed"])
	assert.NotEmpty(t, line["started_at"])
}

func TestCompletionLogOmitsUnresolvedIdentity(t *testing.T) {
	queue := effects.NewQueue()
	recorder := effects.NewRecorder(queue)

	var buf bytes.Buffer
	observer := NewObserver(recorder, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	handler := observer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, "actor_id")
	assert.NotContains(t, line, "tenant_id")
	assert.Equal(t, false, line["tx_committed"])
}

func TestCompletionLogPrecedesDiscardNotice(t *testing.T) {
	queue := effects.NewQueue()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	recorder := effects.NewRecorder(queue, effects.WithRecorderLogger(logger))
	observer := NewObserver(recorder, WithLogger(logger))

	handler := observer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		state, ok := tx.StateFrom(ctx)
		require.True(t, ok)
		state.MarkActive()
		recorder.EnqueueAfterCommit(ctx, effects.Effect{
			Action: func(context.Context) error { return nil },
		})
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/cases", nil))

	logs := buf.String()
	completedAt := strings.Index(logs, "request completed")
	discardedAt := strings.Index(logs, "discarding buffered effects")
	require.NotEqual(t, -1, completedAt)
	require.NotEqual(t, -1, discardedAt)
	assert.Less(t, completedAt, discardedAt, "completion line is written before the buffer is flushed")
}

func TestDisconnectLogsWrittenStatus(t *testing.T) {
	queue := effects.NewQueue()
	recorder := effects.NewRecorder(queue)

	var buf bytes.Buffer
	observer := NewObserver(recorder, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	handler := observer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/cases", nil).WithContext(ctx)

	served := make(chan struct{})
	go func() {
		handler.ServeHTTP(httptest.NewRecorder(), req)
		close(served)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not observe disconnect")
	}

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "client_disconnected", line["outcome"])
	assert.Equal(t, float64(http.StatusAccepted), line["status"])
}

func TestCompletionProcessedExactlyOnceOnDisconnect(t *testing.T) {
	queue := effects.NewQueue()
	recorder := effects.NewRecorder(queue)
	observer := NewObserver(recorder)

	var executed atomic.Int32
	released := make(chan struct{})
	handler := observer.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder.EnqueueAfterCommit(r.Context(), effects.Effect{
			Action: func(context.Context) error {
				executed.Add(1)
				return nil
			},
		})
		// Stall until the client has gone away, then return normally so
		// both completion paths fire.
		<-r.Context().Done()
		close(released)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/cases", nil).WithContext(ctx)

	go handler.ServeHTTP(httptest.NewRecorder(), req)

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not observe disconnect")
	}

	settle(t, queue)
	assert.Equal(t, int32(1), executed.Load())
}
