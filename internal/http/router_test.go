package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/room-reservations/internal/application"
	"github.com/example/room-reservations/internal/audit"
	apihttp "github.com/example/room-reservations/internal/http"
	"github.com/example/room-reservations/internal/slot"
	"github.com/example/room-reservations/internal/testfixtures"
)

type apiHarness struct {
	t      *testing.T
	router http.Handler
	clock  *testfixtures.Clock
	roomID string
	key    string
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := testfixtures.NewServiceFactory()
	harness := testfixtures.NewSQLiteHarness(t, factory.Clock)
	room := testfixtures.NewRoomFixture(testfixtures.WithRoomName("Boardroom"))
	harness.SeedRoom(t, room)

	facility := factory.NewFacilityService(testfixtures.FacilityServiceDeps{Facility: harness.Store, Logger: logger})
	registered, err := facility.RegisterDevice(ctx, application.RegisterDeviceParams{
		Label: "Lobby kiosk",
		Actor: application.Actor{Kind: audit.ActorAdmin, Label: "admin"},
	})
	require.NoError(t, err)

	reservations := factory.NewReservationService(testfixtures.ReservationServiceDeps{
		Store:    harness.Store,
		Calendar: testfixtures.Chicago(t),
		Lockout:  application.LockoutPolicy{Threshold: 2, Cooldown: 5 * time.Minute},
		Logger:   logger,
	})
	devices := factory.NewDeviceService(harness.Store, nil)

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Reservations:  apihttp.NewReservationHandler(reservations, logger).WithClock(factory.Clock.NowFunc()),
		Grid:          apihttp.NewGridHandler(reservations, logger),
		RequireDevice: apihttp.RequireDevice(devices, logger),
		PINLimiter:    apihttp.NewRateLimiter(100, 100, factory.Clock.NowFunc()).Middleware(logger),
		Middleware:    []func(http.Handler) http.Handler{apihttp.RequestLogger(logger)},
	})

	return &apiHarness{t: t, router: router, clock: factory.Clock, roomID: room.ID, key: registered.Key}
}

func (h *apiHarness) do(method, path string, body any, withKey bool) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set(apihttp.DeviceKeyHeader, h.key)
	}
	recorder := httptest.NewRecorder()
	h.router.ServeHTTP(recorder, req)
	return recorder
}

func decode[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out), recorder.Body.String())
	return out
}

type createResponse struct {
	IDs      []string `json:"ids"`
	SeriesID *string  `json:"series_id"`
	Count    int      `json:"count"`
}

type errorBody struct {
	ErrorCode string            `json:"error_code"`
	Errors    map[string]string `json:"errors"`
	Conflict  *struct {
		Type          string `json:"type"`
		ConflictingID string `json:"conflicting_id"`
	} `json:"conflict"`
}

type gridBody struct {
	Date        string   `json:"date"`
	Open        string   `json:"open"`
	Close       string   `json:"close"`
	SlotMinutes int      `json:"slot_minutes"`
	Slots       []string `json:"slots"`
	Rooms       []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"rooms"`
	Reservations []struct {
		ID       string  `json:"id"`
		Start    string  `json:"start"`
		Title    string  `json:"title"`
		Note     string  `json:"note"`
		SeriesID *string `json:"series_id"`
	} `json:"reservations"`
}

func TestReservationLifecycleOverHTTP(t *testing.T) {
	h := newAPIHarness(t)

	create := map[string]any{
		"room_id": h.roomID,
		"start":   "2024-01-16T10:00:00-06:00",
		"end":     "2024-01-16T11:00:00-06:00",
		"title":   "Standup",
		"note":    "bring the burndown chart",
		"pin":     "1234",
	}

	t.Run("mutations require a device key", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/reservations", create, false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	rec := h.do(http.MethodPost, "/reservations", create, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[createResponse](t, rec)
	require.Len(t, created.IDs, 1)
	assert.Equal(t, 1, created.Count)
	assert.Nil(t, created.SeriesID)
	id := created.IDs[0]

	t.Run("overlap is a conflict", func(t *testing.T) {
		overlap := map[string]any{
			"room_id": h.roomID,
			"start":   "2024-01-16T10:30:00-06:00",
			"end":     "2024-01-16T11:30:00-06:00",
			"title":   "Interview",
			"pin":     "5678",
		}
		rec := h.do(http.MethodPost, "/reservations", overlap, true)
		require.Equal(t, http.StatusConflict, rec.Code)
		body := decode[errorBody](t, rec)
		require.NotNil(t, body.Conflict)
		assert.Equal(t, "reservation", body.Conflict.Type)
		assert.Equal(t, id, body.Conflict.ConflictingID)
	})

	t.Run("invalid input is a bad request", func(t *testing.T) {
		misaligned := map[string]any{
			"room_id": h.roomID,
			"start":   "2024-01-16T10:15:00-06:00",
			"end":     "2024-01-16T11:00:00-06:00",
			"title":   "Interview",
			"pin":     "5678",
		}
		rec := h.do(http.MethodPost, "/reservations", misaligned, true)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_WINDOW", decode[errorBody](t, rec).ErrorCode)

		noOffset := map[string]any{"room_id": h.roomID, "start": "2024-01-16T10:00:00", "end": "2024-01-16T11:00:00", "title": "x", "pin": "5678"}
		rec = h.do(http.MethodPost, "/reservations", noOffset, true)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_TIME_INPUT", decode[errorBody](t, rec).ErrorCode)

		req := httptest.NewRequest(http.MethodPost, "/reservations", bytes.NewBufferString("{"))
		req.Header.Set(apihttp.DeviceKeyHeader, h.key)
		raw := httptest.NewRecorder()
		h.router.ServeHTTP(raw, req)
		assert.Equal(t, http.StatusBadRequest, raw.Code)
	})

	t.Run("public grid hides internal notes", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/grid?date=2024-01-16", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		grid := decode[gridBody](t, rec)
		assert.Equal(t, "2024-01-16", grid.Date)
		assert.Equal(t, "09:00", grid.Open)
		assert.Equal(t, "20:00", grid.Close)
		assert.Equal(t, 30, grid.SlotMinutes)
		assert.Len(t, grid.Slots, 22)
		require.Len(t, grid.Rooms, 1)
		assert.Equal(t, "Boardroom", grid.Rooms[0].Name)
		require.Len(t, grid.Reservations, 1)
		assert.Equal(t, "2024-01-16T10:00:00-06:00", grid.Reservations[0].Start)
		assert.Empty(t, grid.Reservations[0].Note)
	})

	t.Run("office grid needs a device and shows notes", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/office/grid?date=2024-01-16", nil, false).Code)

		rec := h.do(http.MethodGet, "/office/grid?date=2024-01-16", nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		grid := decode[gridBody](t, rec)
		require.Len(t, grid.Reservations, 1)
		assert.Equal(t, "bring the burndown chart", grid.Reservations[0].Note)
	})

	t.Run("grid defaults to the local today", func(t *testing.T) {
		h.clock.SetLocal(testfixtures.Chicago(t), slot.Date{Year: 2024, Month: time.January, Day: 16}, slot.TimeOfDay{Hour: 8})
		rec := h.do(http.MethodGet, "/grid", nil, false)
		require.Equal(t, http.StatusOK, rec.Code)
		grid := decode[gridBody](t, rec)
		assert.Equal(t, "2024-01-16", grid.Date)
		assert.Len(t, grid.Reservations, 1)
	})

	t.Run("grid rejects malformed dates", func(t *testing.T) {
		rec := h.do(http.MethodGet, "/grid?date=16-01-2024", nil, false)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update reschedules and retitles", func(t *testing.T) {
		rec := h.do(http.MethodPatch, "/reservations/"+id, map[string]any{
			"pin":   "1234",
			"title": "Daily standup",
			"start": "2024-01-16T10:30:00-06:00",
			"end":   "2024-01-16T11:30:00-06:00",
		}, true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode[map[string]any](t, rec)
		assert.Equal(t, "Daily standup", body["title"])
		assert.Equal(t, "2024-01-16T10:30:00-06:00", body["start"])
		assert.NotContains(t, body, "note")

		noOffset := map[string]any{"pin": "1234", "start": "2024-01-16T12:00:00", "end": "2024-01-16T13:00:00"}
		assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPatch, "/reservations/"+id, noOffset, true).Code)

		rec = h.do(http.MethodGet, "/reservations/"+id, nil, true)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Daily standup", decode[map[string]any](t, rec)["title"])
	})

	t.Run("wrong PINs lock the cancel", func(t *testing.T) {
		wrong := map[string]any{"pin": "0000"}
		assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/reservations/"+id+"/cancel", wrong, true).Code)
		assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/reservations/"+id+"/cancel", wrong, true).Code)

		rec := h.do(http.MethodPost, "/reservations/"+id+"/cancel", map[string]any{"pin": "1234"}, true)
		require.Equal(t, http.StatusLocked, rec.Code)
		assert.Equal(t, "300", rec.Header().Get("Retry-After"))
	})

	t.Run("cancel succeeds after the cooldown", func(t *testing.T) {
		h.clock.Advance(6 * time.Minute)
		rec := h.do(http.MethodPost, "/reservations/"+id+"/cancel", map[string]any{"pin": "1234"}, true)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, decode[createResponse](t, rec).Count)

		rec = h.do(http.MethodPost, "/reservations/"+id+"/cancel", map[string]any{"pin": "1234"}, true)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown routes and methods", func(t *testing.T) {
		assert.Equal(t, http.StatusMethodNotAllowed, h.do(http.MethodGet, "/reservations", nil, true).Code)
		assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/reservations/missing", nil, true).Code)
		assert.Equal(t, http.StatusNotFound, h.do(http.MethodPost, "/reservations/"+id+"/archive", nil, true).Code)
		assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/reservations/"+id+"/cancel", map[string]any{"pin": "1234", "scope": "week"}, true).Code)
	})
}

func TestSeriesOverHTTP(t *testing.T) {
	h := newAPIHarness(t)

	rec := h.do(http.MethodPost, "/reservations", map[string]any{
		"room_id":      h.roomID,
		"start":        "2024-01-16T14:00:00-06:00",
		"end":          "2024-01-16T15:00:00-06:00",
		"title":        "Design review",
		"pin":          "2468",
		"repeat_days":  []int{2, 4},
		"repeat_until": "2024-01-25",
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[createResponse](t, rec)
	require.Equal(t, 4, created.Count)
	require.NotNil(t, created.SeriesID)

	noPIN := map[string]any{"scope": "series", "title": "hijacked"}
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPatch, "/reservations/"+created.IDs[0], noPIN, true).Code)

	rec = h.do(http.MethodPatch, "/reservations/"+created.IDs[0], map[string]any{
		"pin":   "2468",
		"scope": "series",
		"color": "#ffe0b2",
		"start": "2024-01-16T15:00:00-06:00",
		"end":   "2024-01-16T16:00:00-06:00",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.Equal(t, float64(4), body["count"])
	assert.Equal(t, *created.SeriesID, body["series_id"])

	rec = h.do(http.MethodGet, "/reservations/"+created.IDs[3], nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	occurrence := decode[map[string]any](t, rec)
	assert.Equal(t, "2024-01-25T15:00:00-06:00", occurrence["start"])
	assert.Equal(t, "#ffe0b2", occurrence["color"])

	missing := map[string]any{"pin": "2468", "scope": "series", "title": "x"}
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodPatch, "/reservations/unknown", missing, true).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPatch, "/reservations/"+created.IDs[0], map[string]any{"pin": "2468", "scope": "week", "title": "x"}, true).Code)

	rec = h.do(http.MethodGet, "/office/grid?date=2024-01-18", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	grid := decode[gridBody](t, rec)
	require.Len(t, grid.Reservations, 1)
	require.NotNil(t, grid.Reservations[0].SeriesID)
	assert.Equal(t, *created.SeriesID, *grid.Reservations[0].SeriesID)

	rec = h.do(http.MethodPost, "/reservations/"+created.IDs[1]+"/cancel", map[string]any{"pin": "2468", "scope": "series"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 4, decode[createResponse](t, rec).Count)

	rec = h.do(http.MethodGet, "/grid?date=2024-01-23", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[gridBody](t, rec).Reservations)
}
