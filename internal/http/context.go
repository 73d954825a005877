package http

import (
	"context"
	"log/slog"

	"github.com/example/room-reservations/internal/application"
	"github.com/example/room-reservations/internal/logging"
)

type contextKey string

const (
	actorContextKey         contextKey = "actor"
	reservationIDContextKey contextKey = "reservation_id"
)

// ContextWithActor returns a derived context containing the authenticated actor.
func ContextWithActor(ctx context.Context, actor application.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// ActorFromContext extracts the authenticated actor from context if available.
func ActorFromContext(ctx context.Context) (application.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(application.Actor)
	return actor, ok
}

// ContextWithReservationID injects the reservation identifier resolved from the request path.
func ContextWithReservationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, reservationIDContextKey, id)
}

// ReservationIDFromContext extracts a reservation identifier previously associated with the context.
func ReservationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(reservationIDContextKey).(string)
	return id, ok
}

// ContextWithLogger attaches a request scoped logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext returns the request scoped logger, or nil.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
