package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/room-reservations/internal/application"
	"github.com/example/room-reservations/internal/slot"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

type reservationService interface {
	CreateReservation(ctx context.Context, params application.CreateReservationParams) (application.CreateReservationResult, error)
	UpdateReservation(ctx context.Context, params application.UpdateReservationParams) (application.Reservation, error)
	UpdateSeries(ctx context.Context, params application.UpdateSeriesParams) (application.UpdateSeriesResult, error)
	CancelReservation(ctx context.Context, params application.CancelParams) (application.CancelResult, error)
	CancelSeries(ctx context.Context, params application.CancelParams) (application.CancelResult, error)
	GetReservation(ctx context.Context, id string) (application.Reservation, error)
	Calendar() *slot.Calendar
}

// ReservationHandler serves the reservation mutation endpoints.
type ReservationHandler struct {
	service   reservationService
	responder responder
	logger    *slog.Logger
}

// NewReservationHandler wires a handler to the reservation service.
func NewReservationHandler(service reservationService, logger *slog.Logger) *ReservationHandler {
	base := defaultLogger(logger)
	return &ReservationHandler{service: service, responder: newResponder(base), logger: base}
}

// WithClock sets the time source used to compute Retry-After for locked cancels.
func (h *ReservationHandler) WithClock(now func() time.Time) *ReservationHandler {
	if h != nil && now != nil {
		h.responder.now = now
	}
	return h
}

func (h *ReservationHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "ReservationHandler", operation, attrs...)
}

// Create handles POST /reservations.
func (h *ReservationHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	logger := h.log(r.Context(), "Create")

	var req createReservationRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	params, err := req.toParams(h.service.Calendar(), actor)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	result, err := h.service.CreateReservation(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reservation created", "room_id", params.RoomID, "count", len(result.IDs))
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, createReservationResponse{
		IDs:      result.IDs,
		SeriesID: result.SeriesID,
		Count:    len(result.IDs),
	})
}

// Get handles GET /reservations/{id}.
func (h *ReservationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := reservationIDFromRequest(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidReservationID)
		return
	}

	reservation, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReservationDTO(reservation, h.service.Calendar().Location()))
}

// Update handles PATCH /reservations/{id}.
func (h *ReservationHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := reservationIDFromRequest(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidReservationID)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	logger := h.log(r.Context(), "Update", "reservation_id", id)

	var req updateReservationRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	scope, err := parseScope(req.Scope)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	changes, err := req.toChanges(h.service.Calendar())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	if scope == scopeSeries {
		result, err := h.service.UpdateSeries(r.Context(), application.UpdateSeriesParams{
			ReservationID: id,
			PIN:           req.PIN,
			Changes:       changes,
			Actor:         actor,
		})
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		logger.InfoContext(r.Context(), "series updated", "series_id", result.SeriesID, "count", result.Count)
		h.responder.writeJSON(r.Context(), w, http.StatusOK, updateSeriesResponse{SeriesID: result.SeriesID, Count: result.Count})
		return
	}

	reservation, err := h.service.UpdateReservation(r.Context(), application.UpdateReservationParams{
		ID:      id,
		PIN:     req.PIN,
		Changes: changes,
		Actor:   actor,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reservation updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toReservationDTO(reservation, h.service.Calendar().Location()))
}

// Cancel handles POST /reservations/{id}/cancel.
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := reservationIDFromRequest(r)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidReservationID)
		return
	}

	actor, _ := ActorFromContext(r.Context())
	logger := h.log(r.Context(), "Cancel", "reservation_id", id)

	var req cancelRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	scope, err := parseScope(req.Scope)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	params := application.CancelParams{ID: id, PIN: req.PIN, Actor: actor}
	var result application.CancelResult
	if scope == scopeSeries {
		result, err = h.service.CancelSeries(r.Context(), params)
	} else {
		result, err = h.service.CancelReservation(r.Context(), params)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "reservation cancelled", "count", len(result.IDs))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, cancelResponse{
		IDs:      result.IDs,
		SeriesID: result.SeriesID,
		Count:    len(result.IDs),
	})
}

const (
	scopeSingle = "single"
	scopeSeries = "series"
)

func parseScope(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", scopeSingle:
		return scopeSingle, nil
	case scopeSeries:
		return scopeSeries, nil
	}
	return "", &application.ValidationError{FieldErrors: map[string]string{"scope": "must be single or series"}}
}

func reservationIDFromRequest(r *http.Request) (string, bool) {
	id, ok := ReservationIDFromContext(r.Context())
	id = strings.TrimSpace(id)
	return id, ok && id != ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("empty body")
	}
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

type createReservationRequest struct {
	RoomID      string  `json:"room_id"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	Title       string  `json:"title"`
	Note        string  `json:"note"`
	Color       string  `json:"color"`
	PIN         string  `json:"pin"`
	RepeatDays  []int   `json:"repeat_days"`
	RepeatUntil *string `json:"repeat_until"`
}

func (req createReservationRequest) toParams(calendar *slot.Calendar, actor application.Actor) (application.CreateReservationParams, error) {
	start, err := calendar.ParseInstant(req.Start)
	if err != nil {
		return application.CreateReservationParams{}, fmt.Errorf("%w: start: %w", application.ErrInvalidTimeInput, err)
	}
	end, err := calendar.ParseInstant(req.End)
	if err != nil {
		return application.CreateReservationParams{}, fmt.Errorf("%w: end: %w", application.ErrInvalidTimeInput, err)
	}

	params := application.CreateReservationParams{
		RoomID:     req.RoomID,
		Start:      start,
		End:        end,
		Title:      req.Title,
		Note:       req.Note,
		Color:      req.Color,
		PIN:        req.PIN,
		RepeatDays: req.RepeatDays,
		Actor:      actor,
	}
	if req.RepeatUntil != nil && strings.TrimSpace(*req.RepeatUntil) != "" {
		until, err := slot.ParseDate(*req.RepeatUntil)
		if err != nil {
			return application.CreateReservationParams{}, fmt.Errorf("%w: repeat_until: %w", application.ErrInvalidRecurrenceRange, err)
		}
		params.RepeatUntil = &until
	}
	return params, nil
}

type createReservationResponse struct {
	IDs      []string `json:"ids"`
	SeriesID *string  `json:"series_id"`
	Count    int      `json:"count"`
}

type updateReservationRequest struct {
	PIN    string  `json:"pin"`
	Scope  string  `json:"scope"`
	RoomID *string `json:"room_id"`
	Start  *string `json:"start"`
	End    *string `json:"end"`
	Title  *string `json:"title"`
	Note   *string `json:"note"`
	Color  *string `json:"color"`
	NewPIN *string `json:"new_pin"`
}

func (req updateReservationRequest) toChanges(calendar *slot.Calendar) (application.ReservationChanges, error) {
	changes := application.ReservationChanges{
		RoomID: req.RoomID,
		Title:  req.Title,
		Note:   req.Note,
		Color:  req.Color,
		NewPIN: req.NewPIN,
	}
	if req.Start != nil {
		start, err := calendar.ParseInstant(*req.Start)
		if err != nil {
			return application.ReservationChanges{}, fmt.Errorf("%w: start: %w", application.ErrInvalidTimeInput, err)
		}
		changes.Start = &start
	}
	if req.End != nil {
		end, err := calendar.ParseInstant(*req.End)
		if err != nil {
			return application.ReservationChanges{}, fmt.Errorf("%w: end: %w", application.ErrInvalidTimeInput, err)
		}
		changes.End = &end
	}
	return changes, nil
}

type cancelRequest struct {
	PIN   string `json:"pin"`
	Scope string `json:"scope"`
}

type cancelResponse struct {
	IDs      []string `json:"ids"`
	SeriesID *string  `json:"series_id,omitempty"`
	Count    int      `json:"count"`
}

type updateSeriesResponse struct {
	SeriesID string `json:"series_id"`
	Count    int    `json:"count"`
}

// reservationDTO is the device facing view of a reservation. Internal notes stay on the office grid.
type reservationDTO struct {
	ID                string  `json:"id"`
	RoomID            string  `json:"room_id"`
	Start             string  `json:"start"`
	End               string  `json:"end"`
	Status            string  `json:"status"`
	SeriesID          *string `json:"series_id,omitempty"`
	Title             string  `json:"title"`
	Color             string  `json:"color"`
	CancelLockedUntil *string `json:"cancel_locked_until,omitempty"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

func toReservationDTO(r application.Reservation, loc *time.Location) reservationDTO {
	dto := reservationDTO{
		ID:        r.ID,
		RoomID:    r.RoomID,
		Start:     formatInstant(r.Start, loc),
		End:       formatInstant(r.End, loc),
		Status:    string(r.Status),
		SeriesID:  r.SeriesID,
		Title:     r.Title,
		Color:     r.Color,
		CreatedAt: formatInstant(r.CreatedAt, time.UTC),
		UpdatedAt: formatInstant(r.UpdatedAt, time.UTC),
	}
	if r.CancelLockedUntil != nil {
		until := formatInstant(*r.CancelLockedUntil, time.UTC)
		dto.CancelLockedUntil = &until
	}
	return dto
}

func formatInstant(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.RFC3339)
}
