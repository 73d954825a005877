package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/room-reservations/internal/application"
	"github.com/example/room-reservations/internal/slot"
)

type scheduleService interface {
	DaySchedule(ctx context.Context, date slot.Date, opts application.DayOptions) (application.DaySchedule, error)
	Today() slot.Date
	Calendar() *slot.Calendar
}

// GridHandler renders day schedules as JSON grids.
type GridHandler struct {
	service   scheduleService
	responder responder
	logger    *slog.Logger
}

// NewGridHandler wires a handler to the reservation service.
func NewGridHandler(service scheduleService, logger *slog.Logger) *GridHandler {
	base := defaultLogger(logger)
	return &GridHandler{service: service, responder: newResponder(base), logger: base}
}

// Public handles GET /grid.
func (h *GridHandler) Public(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, application.DayOptions{})
}

// Office handles GET /office/grid and includes internal fields.
func (h *GridHandler) Office(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, application.DayOptions{IncludeInternal: true})
}

func (h *GridHandler) serve(w http.ResponseWriter, r *http.Request, opts application.DayOptions) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	date := h.service.Today()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := slot.ParseDate(raw)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, fmt.Errorf("%w: date: %w", application.ErrInvalidTimeInput, err))
			return
		}
		date = parsed
	}

	logger := handlerLogger(r.Context(), h.logger, "GridHandler", "DaySchedule", "date", date.String(), "internal", opts.IncludeInternal)
	schedule, err := h.service.DaySchedule(r.Context(), date, opts)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.DebugContext(r.Context(), "day schedule served", "reservations", len(schedule.Reservations), "blocks", len(schedule.Blocks))
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toGridResponse(schedule, h.service.Calendar().Location()))
}

type gridResponse struct {
	Date         string               `json:"date"`
	Open         string               `json:"open"`
	Close        string               `json:"close"`
	SlotMinutes  int                  `json:"slot_minutes"`
	Slots        []string             `json:"slots"`
	Rooms        []gridRoomDTO        `json:"rooms"`
	Reservations []gridReservationDTO `json:"reservations"`
	Blocks       []gridBlockDTO       `json:"blocks"`
}

type gridRoomDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type gridReservationDTO struct {
	ID       string  `json:"id"`
	RoomID   string  `json:"room_id"`
	Start    string  `json:"start"`
	End      string  `json:"end"`
	Title    string  `json:"title"`
	Color    string  `json:"color"`
	Note     string  `json:"note,omitempty"`
	SeriesID *string `json:"series_id,omitempty"`
}

type gridBlockDTO struct {
	ID     string  `json:"id"`
	RoomID *string `json:"room_id"`
	Start  string  `json:"start"`
	End    string  `json:"end"`
	Reason string  `json:"reason"`
}

func toGridResponse(s application.DaySchedule, loc *time.Location) gridResponse {
	resp := gridResponse{
		Date:         s.Date.String(),
		Open:         s.Open,
		Close:        s.Close,
		SlotMinutes:  s.SlotMinutes,
		Slots:        s.Slots,
		Rooms:        make([]gridRoomDTO, 0, len(s.Rooms)),
		Reservations: make([]gridReservationDTO, 0, len(s.Reservations)),
		Blocks:       make([]gridBlockDTO, 0, len(s.Blocks)),
	}
	for _, room := range s.Rooms {
		resp.Rooms = append(resp.Rooms, gridRoomDTO{ID: room.ID, Name: room.Name})
	}
	for _, r := range s.Reservations {
		resp.Reservations = append(resp.Reservations, gridReservationDTO{
			ID:       r.ID,
			RoomID:   r.RoomID,
			Start:    formatInstant(r.Start, loc),
			End:      formatInstant(r.End, loc),
			Title:    r.Title,
			Color:    r.Color,
			Note:     r.Note,
			SeriesID: r.SeriesID,
		})
	}
	for _, b := range s.Blocks {
		resp.Blocks = append(resp.Blocks, gridBlockDTO{
			ID:     b.ID,
			RoomID: b.RoomID,
			Start:  formatInstant(b.Start, loc),
			End:    formatInstant(b.End, loc),
			Reason: b.Reason,
		})
	}
	return resp
}
