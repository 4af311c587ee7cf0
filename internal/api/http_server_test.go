package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"skolar/internal/auth"
	"skolar/internal/config"
	"skolar/internal/database"
	"skolar/internal/models"
	"skolar/internal/remote"
	"skolar/internal/repository"
	"skolar/internal/service"
	"skolar/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu      sync.Mutex
	offline bool
	created int
}

func (f *fakeRemote) CreateBooking(_ context.Context, b models.NewBooking, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return "", fmt.Errorf("%w: dial tcp: connection refused", remote.ErrNetworkUnavailable)
	}
	f.created++
	return fmt.Sprintf("remote-%d", f.created), nil
}

func (f *fakeRemote) FetchTutors(context.Context) ([]models.Tutor, error) {
	return []models.Tutor{{ID: "t1", Name: "Ada", Subjects: []string{"Math"}}}, nil
}

func (f *fakeRemote) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeRemote) FetchBookingsForUser(_ context.Context, userID, _ string) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, &remote.RemoteError{Operation: "fetch_bookings", StatusCode: 503}
	}
	return []models.Booking{{ID: "b1", UserID: userID}}, nil
}

type testEnv struct {
	ts     *httptest.Server
	db     *database.DB
	remote *fakeRemote
	guard  *repository.MemorySyncGuard
}

func newTestEnv(t *testing.T, cfg config.APIConfig, userID string) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rem := &fakeRemote{}
	guard := repository.NewMemorySyncGuard()
	creds := auth.NewTokenProvider(config.AuthConfig{StaticToken: "tok"}, auth.NewSession(userID), &logger)
	engine := worker.NewSyncEngine(db, guard, nil, &logger)
	svc := service.NewBookingService(db, rem, creds, engine, nil, &logger)

	srv := NewHTTPServer(cfg, svc, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, db: db, remote: rem, guard: guard}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

const bookingJSON = `{"tutor_id":"t1","user_id":"user-1","subject":"Math","scheduled_at":"2025-03-01T14:30:00Z"}`

func TestCreateBookingOnline(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, "user-1")

	resp, body := env.do(t, http.MethodPost, "/api/v1/bookings", bookingJSON, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "remote-1", body["remote_id"])
	assert.Equal(t, false, body["queued"])
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestCreateBookingQueuedThenSynced(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, "user-1")
	env.remote.setOffline(true)

	resp, body := env.do(t, http.MethodPost, "/api/v1/bookings", bookingJSON, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, true, body["queued"])
	localID := int64(body["local_id"].(float64))
	assert.Positive(t, localID)

	resp, body = env.do(t, http.MethodGet, "/api/v1/pending/count", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/pending/%d", localID), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Math", body["subject"])
	assert.NotEmpty(t, body["idempotency_key"])

	resp, body = env.do(t, http.MethodGet, "/api/v1/pending", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["pending"], 1)

	env.remote.setOffline(false)
	resp, body = env.do(t, http.MethodPost, "/api/v1/sync", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["synced"])
	assert.Equal(t, float64(0), body["failed"])
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "synced", items[0].(map[string]any)["outcome"])

	_, body = env.do(t, http.MethodGet, "/api/v1/pending/count", "", nil)
	assert.Equal(t, float64(0), body["count"])
}

func TestCreateBookingInvalid(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, "user-1")

	resp, _ := env.do(t, http.MethodPost, "/api/v1/bookings", `{"tutor_id":"t1","user_id":"u","subject":" ","scheduled_at":"2025-03-01T14:30:00Z"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/bookings", `{"tutor_id":"t1","user_id":"user-9","subject":"Math","scheduled_at":"2025-03-01T14:30:00Z"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/bookings", `{"unknown":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/bookings", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPendingGetErrors(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, "user-1")

	resp, _ := env.do(t, http.MethodGet, "/api/v1/pending/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/pending/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncErrors(t *testing.T) {
	t.Run("NotSignedIn", func(t *testing.T) {
		env := newTestEnv(t, config.APIConfig{}, "")
		env.remote.setOffline(true)
		resp, _ := env.do(t, http.MethodPost, "/api/v1/bookings", bookingJSON, nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		resp, body := env.do(t, http.MethodPost, "/api/v1/sync", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, body["error"], "not authenticated")
	})

	t.Run("Busy", func(t *testing.T) {
		env := newTestEnv(t, config.APIConfig{}, "user-1")
		release, ok, err := env.guard.TryAcquire(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		defer release()

		resp, _ := env.do(t, http.MethodPost, "/api/v1/sync", "", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("MethodNotAllowed", func(t *testing.T) {
		env := newTestEnv(t, config.APIConfig{}, "user-1")
		resp, _ := env.do(t, http.MethodGet, "/api/v1/sync", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestRemoteReads(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{}, "user-1")

	resp, body := env.do(t, http.MethodGet, "/api/v1/tutors", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["tutors"], 1)

	resp, body = env.do(t, http.MethodGet, "/api/v1/bookings/mine", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["bookings"], 1)

	env.remote.setOffline(true)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/bookings/mine", "", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	cfg := config.APIConfig{Auth: config.APIAuthConfig{Enabled: true, APIKeys: []config.APIClientKey{{Key: "k"}}}}
	env := newTestEnv(t, cfg, "user-1")

	resp, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestWriteServiceErrorMapping(t *testing.T) {
	logger := zerolog.Nop()
	srv := NewHTTPServer(config.APIConfig{}, nil, &logger)

	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: subject", models.ErrInvalidInput), http.StatusBadRequest},
		{database.ErrPendingNotFound, http.StatusNotFound},
		{worker.ErrSyncInProgress, http.StatusConflict},
		{&worker.SyncAbortedError{Reason: worker.ErrAuthFailure}, http.StatusUnauthorized},
		{service.ErrNotSignedIn, http.StatusUnauthorized},
		{&remote.RemoteError{StatusCode: 500}, http.StatusBadGateway},
		{fmt.Errorf("%w: disk full", database.ErrStorage), http.StatusInternalServerError},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		srv.writeServiceError(rec, req, tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}
