package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcsys/recordq/internal/api"
	"github.com/qcsys/recordq/internal/api/shared"
	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/platform/memory"
	"github.com/qcsys/recordq/internal/service/lease"
	"github.com/qcsys/recordq/internal/service/queue"
)

type handlerFixture struct {
	pool    *memory.TaskPool
	records *api.RecordHandler
	intake  *api.IntakeHandler
}

func newHandlerFixture(t *testing.T, groups api.GroupResolver) *handlerFixture {
	t.Helper()
	log, _ := logger.NewTestLogger()
	pool := memory.NewTaskPool(log)
	leases := lease.NewLeaseManager(pool, 5*time.Minute, log)
	q := queue.NewQueueMutator(pool, memory.NewArchiveStore(log), 5*time.Minute, log)
	return &handlerFixture{
		pool:    pool,
		records: api.NewRecordHandler(leases, q, log),
		intake:  api.NewIntakeHandler(q, groups, log),
	}
}

func request(method, target, body, identity string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req = req.WithContext(shared.WithIdentity(req.Context(), identity))
	}
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNextRequiresIdentity(t *testing.T) {
	f := newHandlerFixture(t, api.StaticGroupResolver("S1"))
	rec := httptest.NewRecorder()
	f.records.Next(rec, request(http.MethodGet, "/api/record/next", "", ""))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNextOnEmptyPool(t *testing.T) {
	f := newHandlerFixture(t, api.StaticGroupResolver("S1"))
	rec := httptest.NewRecorder()
	f.records.Next(rec, request(http.MethodGet, "/api/record/next?session=S1", "", "alice"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No eligible task", decodeBody(t, rec)["error"])
}

func TestNextLeasesTask(t *testing.T) {
	f := newHandlerFixture(t, api.StaticGroupResolver("S1"))
	require.NoError(t, f.pool.Insert(context.Background(), &domain.Task{
		ID: "t1", GroupKey: "S1", SequenceKey: 1, Payload: domain.Payload{"label": "A1"},
	}))

	rec := httptest.NewRecorder()
	f.records.Next(rec, request(http.MethodGet, "/api/record/next?session=S1", "", "alice"))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "t1", body["_id"])
	assert.Equal(t, "A1", body["label"])
	assert.Equal(t, "alice", body["lockedBy"])

	rec = httptest.NewRecorder()
	f.records.Renew(rec, request(http.MethodPost, "/api/record/renew", `{"_id":"t1"}`, "bob"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequestBodyValidation(t *testing.T) {
	f := newHandlerFixture(t, api.StaticGroupResolver("S1"))

	tests := []struct {
		name    string
		handler http.HandlerFunc
		body    string
	}{
		{"renew missing id", f.records.Renew, `{}`},
		{"unlock malformed", f.records.Unlock, `{"_id":`},
		{"update_url missing url", f.records.UpdateURL, `{"_id":"t1"}`},
		{"update_field missing field", f.records.UpdateField, `{"_id":"t1","value":"x"}`},
		{"submit malformed", f.records.Submit, `not json`},
		{"submit incomplete", f.records.Submit, `{"_id":"t1"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.handler(rec, request(http.MethodPost, "/", tc.body, "alice"))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

type failingResolver struct{}

func (failingResolver) CurrentGroup(context.Context) (string, error) {
	return "", errors.New("settings unavailable")
}

func TestIntakeCreate(t *testing.T) {
	t.Run("uses current session", func(t *testing.T) {
		f := newHandlerFixture(t, api.StaticGroupResolver("S9"))
		rec := httptest.NewRecorder()
		f.intake.Create(rec, request(http.MethodPost, "/api/qc/tasks",
			`{"label":"x1","number":" 12 ","note":"dent"}`, "qc"))

		require.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "S9", body["session"])
		assert.Equal(t, "12", body["number"])
		assert.Equal(t, "X1", body["label"])
	})

	t.Run("query overrides session", func(t *testing.T) {
		f := newHandlerFixture(t, failingResolver{})
		rec := httptest.NewRecorder()
		f.intake.Create(rec, request(http.MethodPost, "/api/qc/tasks?session=S2",
			`{"label":"x1","number":"3"}`, "qc"))
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "S2", decodeBody(t, rec)["session"])
	})

	t.Run("resolver failure", func(t *testing.T) {
		f := newHandlerFixture(t, failingResolver{})
		rec := httptest.NewRecorder()
		f.intake.Create(rec, request(http.MethodPost, "/api/qc/tasks", `{"label":"x1","number":"3"}`, "qc"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("non numeric number", func(t *testing.T) {
		f := newHandlerFixture(t, api.StaticGroupResolver("S1"))
		rec := httptest.NewRecorder()
		f.intake.Create(rec, request(http.MethodPost, "/api/qc/tasks", `{"label":"x1","number":"twelve"}`, "qc"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
