package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/room-reservations/internal/application"
	"github.com/example/room-reservations/internal/audit"
)

type fakeAuthenticator struct {
	device application.Device
	err    error
	keys   []string
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, rawKey string) (application.Device, error) {
	f.keys = append(f.keys, rawKey)
	return f.device, f.err
}

func TestRequireDevice(t *testing.T) {
	t.Parallel()

	t.Run("rejects requests without a key", func(t *testing.T) {
		t.Parallel()

		auth := &fakeAuthenticator{}
		handler := RequireDevice(auth, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next handler should not be called without a device key")
		}))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/office/grid", nil))

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.Empty(t, auth.keys)
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		t.Parallel()

		auth := &fakeAuthenticator{err: application.ErrUnauthorized}
		handler := RequireDevice(auth, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next handler should not be called for an unknown key")
		}))

		req := httptest.NewRequest(http.MethodGet, "/office/grid", nil)
		req.Header.Set(DeviceKeyHeader, "wrong")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.Equal(t, []string{"wrong"}, auth.keys)
	})

	t.Run("maps storage failures to 503", func(t *testing.T) {
		t.Parallel()

		auth := &fakeAuthenticator{err: application.ErrTransientStorage}
		handler := RequireDevice(auth, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("next handler should not be called when storage is unavailable")
		}))

		req := httptest.NewRequest(http.MethodGet, "/office/grid", nil)
		req.Header.Set(DeviceKeyHeader, "key")
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	})

	t.Run("attaches the device actor", func(t *testing.T) {
		t.Parallel()

		auth := &fakeAuthenticator{device: application.Device{ID: "dev-1", Label: "Lobby kiosk"}}
		captured := make(chan application.Actor, 1)
		handler := RequireDevice(auth, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			require.True(t, ok)
			captured <- actor
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodGet, "/office/grid", nil)
		req.Header.Set(DeviceKeyHeader, "  good-key ")
		req.RemoteAddr = "10.0.0.7:51234"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)

		require.Equal(t, http.StatusNoContent, recorder.Code)
		actor := <-captured
		assert.Equal(t, audit.ActorDevice, actor.Kind)
		assert.Equal(t, "Lobby kiosk", actor.Label)
		require.NotNil(t, actor.DeviceID)
		assert.Equal(t, "dev-1", *actor.DeviceID)
		assert.Equal(t, "10.0.0.7", actor.IP)
		assert.Equal(t, []string{"good-key"}, auth.keys)
	})
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, LoggerFromContext(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/grid", nil)
	req.Header.Set("X-Request-ID", "req-42")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	assert.Equal(t, "req-42", recorder.Header().Get("X-Request-ID"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "/grid", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
}

func TestRequestLoggerGeneratesRequestID(t *testing.T) {
	t.Parallel()

	handler := RequestLogger(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/grid", nil))

	assert.Len(t, recorder.Header().Get("X-Request-ID"), 36)
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Date(2024, time.January, 15, 15, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(1, 2, clock.Now)

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "clients have separate budgets")

	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	clock.Advance(time.Hour)
	limiter.Allow("10.0.0.3")
	limiter.mu.Lock()
	_, kept := limiter.limiters["10.0.0.1"]
	limiter.mu.Unlock()
	assert.False(t, kept, "idle clients are forgotten")
}

func TestRateLimiterMiddleware(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Date(2024, time.January, 15, 15, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(1, 1, clock.Now)
	handler := limiter.Middleware(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/reservations/r1/cancel", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		return recorder
	}

	assert.Equal(t, http.StatusOK, send().Code)
	limited := send()
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1", limited.Header().Get("Retry-After"))
}
