package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/room-reservations/internal/application"
)

var (
	errBadRequestBody       = errors.New("request body is not valid JSON")
	errInvalidReservationID = errors.New("reservation id is required")
	errMissingDeviceKey     = errors.New("device key is required")
)

type responder struct {
	logger *slog.Logger
	now    func() time.Time
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger, now: time.Now}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var (
		vErr     *application.ValidationError
		conflict *application.ConflictError
		locked   *application.LockedError
	)
	switch {
	case errors.As(err, &vErr):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "the request has invalid fields",
			Errors:    vErr.FieldErrors,
		})
	case errors.Is(err, application.ErrInvalidTimeInput):
		r.writeCode(ctx, w, http.StatusBadRequest, "INVALID_TIME_INPUT", "start, end and dates must be RFC 3339 values with an offset")
	case errors.Is(err, application.ErrInvalidWindow):
		r.writeCode(ctx, w, http.StatusBadRequest, "INVALID_WINDOW", "the window must be slot aligned, on one local day and within operating hours")
	case errors.Is(err, application.ErrInvalidRecurrenceRange):
		r.writeCode(ctx, w, http.StatusBadRequest, "INVALID_RECURRENCE_RANGE", "repeat days and repeat until are invalid")
	case errors.Is(err, application.ErrTooManyOccurrences):
		r.writeCode(ctx, w, http.StatusBadRequest, "TOO_MANY_OCCURRENCES", "the series has too many occurrences")
	case errors.As(err, &conflict):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{
			ErrorCode: "CONFLICT",
			Message:   "the window overlaps an existing reservation or block",
			Conflict:  toConflictDTO(conflict),
		})
	case errors.Is(err, application.ErrConflict):
		r.writeCode(ctx, w, http.StatusConflict, "CONFLICT", "the window overlaps an existing reservation or block")
	case errors.Is(err, application.ErrInvalidState):
		r.writeCode(ctx, w, http.StatusConflict, "INVALID_STATE", "the reservation is not in a state that allows this operation")
	case errors.Is(err, application.ErrNotFound):
		r.writeCode(ctx, w, http.StatusNotFound, "NOT_FOUND", statusMessage(http.StatusNotFound))
	case errors.As(err, &locked):
		seconds := int(locked.RetryAfter(r.now()) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		r.writeJSON(ctx, w, http.StatusLocked, errorResponse{
			ErrorCode:   "CANCEL_LOCKED",
			Message:     "too many wrong PINs; try again later",
			LockedUntil: locked.Until.UTC().Format(time.RFC3339),
		})
	case errors.Is(err, application.ErrInvalidPIN):
		r.writeCode(ctx, w, http.StatusForbidden, "INVALID_PIN", "the PIN does not match")
	case errors.Is(err, application.ErrUnauthorized):
		r.writeCode(ctx, w, http.StatusUnauthorized, "UNAUTHORIZED", statusMessage(http.StatusUnauthorized))
	case errors.Is(err, application.ErrTransientStorage):
		w.Header().Set("Retry-After", "1")
		r.writeCode(ctx, w, http.StatusServiceUnavailable, "STORAGE_BUSY", statusMessage(http.StatusServiceUnavailable))
	default:
		r.writeCode(ctx, w, http.StatusInternalServerError, "INTERNAL", statusMessage(http.StatusInternalServerError))
	}
}

func (r responder) writeCode(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "the request is malformed"
	case http.StatusUnauthorized:
		return "a valid device key is required"
	case http.StatusForbidden:
		return "the operation is not permitted"
	case http.StatusNotFound:
		return "the requested resource does not exist"
	case http.StatusConflict:
		return "the request conflicts with the current state"
	case http.StatusTooManyRequests:
		return "too many requests; slow down"
	case http.StatusServiceUnavailable:
		return "storage is busy; retry shortly"
	default:
		return "internal server error"
	}
}

type errorResponse struct {
	ErrorCode   string            `json:"error_code,omitempty"`
	Message     string            `json:"message"`
	Errors      map[string]string `json:"errors,omitempty"`
	Conflict    *conflictDTO      `json:"conflict,omitempty"`
	LockedUntil string            `json:"locked_until,omitempty"`
}

type conflictDTO struct {
	Type          string `json:"type"`
	ConflictingID string `json:"conflicting_id"`
	RoomID        string `json:"room_id"`
	Start         string `json:"start"`
	End           string `json:"end"`
}

func toConflictDTO(c *application.ConflictError) *conflictDTO {
	return &conflictDTO{
		Type:          string(c.Type),
		ConflictingID: c.ConflictingID,
		RoomID:        c.RoomID,
		Start:         c.Start.UTC().Format(time.RFC3339),
		End:           c.End.UTC().Format(time.RFC3339),
	}
}
