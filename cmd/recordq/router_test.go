package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcsys/recordq/internal/config"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/store/storetest"
)

func newTestApp(t *testing.T, opts ...func(*config.Config)) (*application, *httptest.Server) {
	t.Helper()
	log, _ := logger.NewTestLogger()
	cfg := &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "debug"},
		Store:  config.StoreConfig{Driver: config.DriverMemory},
		Auth: config.AuthConfig{
			JWTSecret:            "router-test-secret-that-is-32-chars",
			TokenLifetimeMinutes: 60,
		},
		Queue: config.QueueConfig{
			LeaseTTLSeconds: 300,
			CurrentGroupKey: "S1",
			RecordTimezone:  "America/Toronto",
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	app, err := newApplication(context.Background(), cfg, log)
	require.NoError(t, err)

	srv := httptest.NewServer(app.setupRouter())
	t.Cleanup(srv.Close)
	return app, srv
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func login(t *testing.T, app *application, srv *httptest.Server, username string) *client {
	t.Helper()
	_, err := app.loginService.Register(context.Background(), username, "password123", "recorder")
	require.NoError(t, err)

	c := &client{t: t, base: srv.URL}
	status, body := c.do(http.MethodPost, "/api/login", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, username, body["username"])
	c.token = body["access_token"].(string)
	return c
}

func TestHealth(t *testing.T) {
	_, srv := newTestApp(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginWithForm(t *testing.T) {
	app, srv := newTestApp(t)
	_, err := app.loginService.Register(context.Background(), "alice", "password123", "admin")
	require.NoError(t, err)

	resp, err := http.PostForm(srv.URL+"/api/login", url.Values{
		"username": {"alice"},
		"password": {"password123"},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.PostForm(srv.URL+"/api/login", url.Values{
		"username": {"alice"},
		"password": {"wrong-password"},
	})
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestRecordRoutesRequireAuth(t *testing.T) {
	_, srv := newTestApp(t)
	c := &client{t: t, base: srv.URL}

	status, _ := c.do(http.MethodGet, "/api/record/next", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	c.token = "not-a-token"
	status, _ = c.do(http.MethodGet, "/api/record/sessions", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCheckoutLifecycle(t *testing.T) {
	app, srv := newTestApp(t)
	x := login(t, app, srv, "xavier")
	y := login(t, app, srv, "yolanda")

	status, _ := x.do(http.MethodGet, "/api/record/next?session=S1", nil)
	assert.Equal(t, http.StatusNotFound, status, "empty pool")

	status, a := x.do(http.MethodPost, "/api/qc/tasks", map[string]string{
		"label": "a1", "number": "1", "note": "scratched",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "A1", a["label"])
	assert.Equal(t, "(NA)", a["url"])
	status, b := x.do(http.MethodPost, "/api/qc/tasks?session=S1", map[string]string{
		"label": "b2", "number": "2", "note": "",
	})
	require.Equal(t, http.StatusCreated, status)

	status, sessions := x.do(http.MethodGet, "/api/record/sessions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"S1"}, sessions["sessions"])

	// X leases A, and a re-fetch returns the same task.
	status, got := x.do(http.MethodGet, "/api/record/next?session=S1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, a["_id"], got["_id"])
	assert.Equal(t, "xavier", got["lockedBy"])
	status, again := x.do(http.MethodGet, "/api/record/next?session=S1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, a["_id"], again["_id"])

	// Y cannot touch A.
	ref := map[string]any{"_id": a["_id"]}
	status, _ = y.do(http.MethodPost, "/api/record/renew", ref)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = y.do(http.MethodPost, "/api/record/unlock", ref)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = y.do(http.MethodPost, "/api/record/skip", ref)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = y.do(http.MethodPost, "/api/record/submit", storetest.NewSubmission(a["_id"].(string)))
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = x.do(http.MethodPost, "/api/record/renew", ref)
	assert.Equal(t, http.StatusOK, status)

	// X skips A; Y now gets the deferred A ahead of B.
	status, skipped := x.do(http.MethodPost, "/api/record/skip", ref)
	require.Equal(t, http.StatusOK, status)
	newA := skipped["_id"]
	assert.NotEqual(t, a["_id"], newA)

	status, gotY := y.do(http.MethodGet, "/api/record/next?session=S1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, newA, gotY["_id"])
	assert.NotContains(t, gotY, "skippedAt", "acquire clears the deferral")

	status, gotX := x.do(http.MethodGet, "/api/record/next", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, b["_id"], gotX["_id"])

	status, st := x.do(http.MethodGet, "/api/record/status?session=S1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), st["total"])
	assert.Equal(t, float64(2), st["locked"])
	assert.NotNil(t, st["next_locked"])

	// Field corrections are not lease gated but are whitelisted.
	status, _ = x.do(http.MethodPost, "/api/record/update_url", map[string]any{"_id": newA, "url": "https://fixed"})
	assert.Equal(t, http.StatusOK, status)
	status, _ = x.do(http.MethodPost, "/api/record/update_field", map[string]any{"_id": newA, "field": "lockedBy", "value": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = x.do(http.MethodPost, "/api/record/update_url", map[string]any{"_id": "missing", "url": "https://fixed"})
	assert.Equal(t, http.StatusNotFound, status)

	// Incomplete submission is rejected before anything changes.
	sub := storetest.NewSubmission(newA.(string))
	sub.Title = nil
	status, errBody := y.do(http.MethodPost, "/api/record/submit", sub)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.True(t, strings.Contains(errBody["error"].(string), "title"))

	status, rec := y.do(http.MethodPost, "/api/record/submit", storetest.NewSubmission(newA.(string)))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), rec["Image_count"])
	assert.Equal(t, "a.jpg", rec["Cover_image"])
	assert.Equal(t, "yolanda", rec["completed_by"])

	status, _ = x.do(http.MethodPost, "/api/record/unlock", map[string]any{"_id": b["_id"]})
	assert.Equal(t, http.StatusOK, status)

	status, st = x.do(http.MethodGet, "/api/record/status", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), st["total"])
	assert.Equal(t, float64(0), st["locked"])
}

func TestIntakeWithoutCurrentGroup(t *testing.T) {
	app, srv := newTestApp(t, func(cfg *config.Config) { cfg.Queue.CurrentGroupKey = "" })
	c := login(t, app, srv, "qc")

	status, body := c.do(http.MethodPost, "/api/qc/tasks", map[string]string{"label": "a", "number": "1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Current session is not configured", body["error"])
}
