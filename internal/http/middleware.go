package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/room-reservations/internal/application"
)

// DeviceKeyHeader carries the raw access device key.
const DeviceKeyHeader = "X-Device-Key"

// DeviceAuthenticator resolves a raw device key to an enabled device.
type DeviceAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (application.Device, error)
}

// RequireDevice rejects requests without a valid device key and attaches the
// device actor to the request context.
func RequireDevice(authenticator DeviceAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(DeviceKeyHeader))
			if key == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingDeviceKey)
				return
			}

			device, err := authenticator.Authenticate(r.Context(), key)
			if err != nil {
				switch {
				case errors.Is(err, application.ErrUnauthorized):
					responder.writeCode(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "the device key is not recognised")
				default:
					responder.handleServiceError(r.Context(), w, err)
				}
				return
			}

			ctx := ContextWithActor(r.Context(), device.Actor(clientIP(r)))
			if logger := LoggerFromContext(ctx); logger != nil {
				ctx = ContextWithLogger(ctx, logger.With("device_id", device.ID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger attaches a request scoped logger and logs each request's outcome.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// RateLimiter throttles requests per client address with a token bucket each.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
	limiters map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per client with the given burst.
// Clients idle for ten minutes are forgotten.
func NewRateLimiter(perSecond float64, burst int, now func() time.Time) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idle:     10 * time.Minute,
		now:      now,
		limiters: make(map[string]*clientLimiter),
	}
}

// Allow reports whether a request from client may proceed now.
func (l *RateLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.idle {
			delete(l.limiters, key)
		}
	}

	entry, ok := l.limiters[client]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[client] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Middleware answers 429 once a client exceeds its budget.
func (l *RateLimiter) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l != nil && !l.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				responder.writeCode(r.Context(), w, http.StatusTooManyRequests, "RATE_LIMITED", statusMessage(http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
