package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/example/room-reservations/internal/audit"
	"github.com/example/room-reservations/internal/metrics"
	"github.com/example/room-reservations/internal/persistence"
	"github.com/example/room-reservations/internal/recurrence"
	"github.com/example/room-reservations/internal/scheduler"
	"github.com/example/room-reservations/internal/slot"
)

// ReservationService is the single authority for creating, updating and
// cancelling reservations. Every mutation runs in one storage transaction.
type ReservationService struct {
	store       persistence.Store
	hasher      PINHasher
	emitter     audit.Emitter
	calendar    *slot.Calendar
	engine      *recurrence.Engine
	checker     *scheduler.Checker
	metrics     *metrics.Metrics
	lockout     LockoutPolicy
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewReservationService constructs a reservation service with the provided dependencies.
func NewReservationService(store persistence.Store, hasher PINHasher, emitter audit.Emitter, calendar *slot.Calendar, idGenerator func() string, now func() time.Time) *ReservationService {
	return NewReservationServiceWithLogger(store, hasher, emitter, calendar, idGenerator, now, nil)
}

// NewReservationServiceWithLogger constructs a reservation service with a specified logger.
func NewReservationServiceWithLogger(store persistence.Store, hasher PINHasher, emitter audit.Emitter, calendar *slot.Calendar, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ReservationService {
	if hasher == nil {
		hasher = NewArgon2idHasher(Argon2idParams{})
	}
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	if calendar == nil {
		cal, err := slot.LoadCalendar(slot.DefaultTimezone)
		if err != nil {
			cal = slot.NewCalendar(time.UTC)
		}
		calendar = cal
	}
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	if now == nil {
		now = time.Now
	}
	return &ReservationService{
		store:       store,
		hasher:      hasher,
		emitter:     emitter,
		calendar:    calendar,
		engine:      recurrence.NewEngine(calendar),
		checker:     scheduler.NewChecker(),
		lockout:     DefaultLockoutPolicy,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// WithLockoutPolicy replaces the cancel lockout policy. Non-positive fields keep the defaults.
func (s *ReservationService) WithLockoutPolicy(policy LockoutPolicy) *ReservationService {
	if policy.Threshold <= 0 {
		policy.Threshold = DefaultLockoutPolicy.Threshold
	}
	if policy.Cooldown <= 0 {
		policy.Cooldown = DefaultLockoutPolicy.Cooldown
	}
	s.lockout = policy
	return s
}

// WithMetrics attaches prometheus counters.
func (s *ReservationService) WithMetrics(m *metrics.Metrics) *ReservationService {
	s.metrics = m
	return s
}

// Calendar exposes the civil calendar the service evaluates rules in.
func (s *ReservationService) Calendar() *slot.Calendar {
	return s.calendar
}

// Today returns the current local date.
func (s *ReservationService) Today() slot.Date {
	return s.calendar.LocalDate(s.now())
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ReservationService", operation, attrs...)
}

// logFailure logs err at a level matching its kind and counts it.
func (s *ReservationService) logFailure(ctx context.Context, logger *slog.Logger, operation, msg string, err error) {
	kind := ErrorKind(err)
	s.metrics.Error(operation, kind)
	level := slog.LevelWarn
	if kind == "unexpected" || kind == "transient_storage" {
		level = slog.LevelError
	}
	logger.Log(ctx, level, msg, "error", err, "error_kind", kind)
}

// emit records an audit event after commit. Failures are logged, never returned.
func (s *ReservationService) emit(ctx context.Context, logger *slog.Logger, actor Actor, action audit.Action, reservationID *string, detail map[string]any) {
	event := audit.Event{
		At:            s.now().UTC(),
		ActorKind:     actor.Kind,
		ActorLabel:    actor.Label,
		Action:        action,
		ReservationID: reservationID,
		IP:            optionalIP(actor.IP),
		Detail:        detail,
	}
	if event.ActorKind == "" {
		event.ActorKind = SystemActor.Kind
		event.ActorLabel = SystemActor.Label
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		logger.ErrorContext(ctx, "failed to emit audit event", "action", string(action), "error", err)
	}
}

// CreateReservation books a single window or a weekly series. Either every
// occurrence is stored or none is.
func (s *ReservationService) CreateReservation(ctx context.Context, params CreateReservationParams) (result CreateReservationResult, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateReservation",
		"room_id", params.RoomID,
		"actor", params.Actor.Label,
	)
	defer func() {
		if err != nil {
			s.logFailure(ctx, logger, "create", "failed to create reservation", err)
			return
		}
		logger.InfoContext(ctx, "reservation created", "count", len(result.IDs), "series_id", derefString(result.SeriesID))
	}()

	if s.store == nil {
		err = fmt.Errorf("reservation store not configured")
		return
	}

	title := strings.TrimSpace(params.Title)
	note := strings.TrimSpace(params.Note)
	color := strings.TrimSpace(params.Color)
	if color == "" {
		color = DefaultColor
	}

	vErr := &ValidationError{}
	if strings.TrimSpace(params.RoomID) == "" {
		vErr.add("room_id", "room is required")
	}
	validateTitle(vErr, title)
	validateColor(vErr, color)
	if !validPIN(params.PIN) {
		vErr.add("pin", "PIN must be exactly 4 digits")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if err = mapWindowError(s.calendar.ValidateWindow(params.Start, params.End)); err != nil {
		return
	}

	var windows []recurrence.Window
	windows, err = s.expand(params)
	if err != nil {
		return
	}

	var pinHash string
	pinHash, err = s.hasher.Hash(params.PIN)
	if err != nil {
		err = fmt.Errorf("hash cancel PIN: %w", err)
		return
	}

	var seriesID *string
	if len(windows) > 1 || params.RepeatUntil != nil {
		id := s.idGenerator()
		seriesID = &id
	}

	now := s.now().UTC()
	rows := make([]persistence.Reservation, 0, len(windows))
	for _, w := range windows {
		rows = append(rows, persistence.Reservation{
			ID:              s.idGenerator(),
			RoomID:          params.RoomID,
			StartAt:         w.Start,
			EndAt:           w.End,
			Status:          persistence.StatusConfirmed,
			SeriesID:        seriesID,
			Title:           title,
			NoteInternal:    note,
			Color:           color,
			PINHash:         pinHash,
			CreatedByDevice: params.Actor.DeviceID,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	var room persistence.Room
	err = s.store.WithinTransaction(ctx, func(tx persistence.Tx) error {
		var txErr error
		room, txErr = activeRoom(ctx, tx, params.RoomID)
		if txErr != nil {
			return txErr
		}

		querier := overlapAdapter{tx: tx}
		for _, row := range rows {
			conflict, checkErr := s.checker.FindConflict(ctx, querier, row.RoomID, row.StartAt, row.EndAt, "")
			if checkErr != nil {
				return checkErr
			}
			if conflict != nil {
				s.metrics.Conflict(string(conflict.Type))
				return newConflictError(conflict)
			}
		}

		return tx.InsertReservations(ctx, rows)
	})
	if err != nil {
		err = mapStorageError(err)
		return
	}

	result = CreateReservationResult{
		IDs:          make([]string, 0, len(rows)),
		SeriesID:     seriesID,
		Reservations: make([]Reservation, 0, len(rows)),
	}
	for _, row := range rows {
		result.IDs = append(result.IDs, row.ID)
		result.Reservations = append(result.Reservations, toReservation(row))
	}

	if seriesID == nil {
		s.metrics.ReservationsCreated("single", 1)
		s.emit(ctx, logger, params.Actor, audit.ActionReservationCreate, &rows[0].ID, map[string]any{
			"room":     room.Name,
			"room_id":  room.ID,
			"start_at": rows[0].StartAt.Format(time.RFC3339),
			"end_at":   rows[0].EndAt.Format(time.RFC3339),
			"title":    title,
		})
		return
	}

	s.metrics.ReservationsCreated("series", len(rows))
	repeatUntil := ""
	if params.RepeatUntil != nil {
		repeatUntil = params.RepeatUntil.String()
	}
	s.emit(ctx, logger, params.Actor, audit.ActionReservationCreateSeries, &rows[0].ID, map[string]any{
		"room":             room.Name,
		"room_id":          room.ID,
		"series_id":        *seriesID,
		"count":            len(rows),
		"repeat_days":      params.RepeatDays,
		"repeat_until":     repeatUntil,
		"start_time":       s.calendar.LocalTimeOfDay(params.Start).String(),
		"duration_minutes": int(params.End.Sub(params.Start) / time.Minute),
		"title":            title,
	})
	return
}

// expand turns the request into concrete windows, validating each one.
func (s *ReservationService) expand(params CreateReservationParams) ([]recurrence.Window, error) {
	hasDays := len(params.RepeatDays) > 0
	hasUntil := params.RepeatUntil != nil
	if !hasDays && !hasUntil {
		return []recurrence.Window{{
			Date:  s.calendar.LocalDate(params.Start),
			Start: params.Start.UTC(),
			End:   params.End.UTC(),
		}}, nil
	}
	if hasDays != hasUntil {
		return nil, fmt.Errorf("%w: repeat days and repeat until must be given together", ErrInvalidRecurrenceRange)
	}

	first := s.calendar.LocalDate(params.Start)
	dates, err := s.engine.Expand(first, params.RepeatDays, *params.RepeatUntil)
	if err != nil {
		return nil, mapRecurrenceError(err)
	}

	windows := s.engine.Windows(dates, params.Start, params.End)
	for _, w := range windows {
		if err := s.calendar.ValidateWindow(w.Start, w.End); err != nil {
			return nil, fmt.Errorf("occurrence %s: %w", w.Date, mapWindowError(err))
		}
	}
	return windows, nil
}

// UpdateReservation edits one confirmed reservation after checking its cancel
// PIN. A new room or window is checked for conflicts, ignoring the reservation
// itself.
func (s *ReservationService) UpdateReservation(ctx context.Context, params UpdateReservationParams) (reservation Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateReservation",
		"reservation_id", params.ID,
		"actor", params.Actor.Label,
	)
	defer func() {
		if err != nil {
			s.logFailure(ctx, logger, "update", "failed to update reservation", err)
			return
		}
		logger.InfoContext(ctx, "reservation updated")
	}()

	if s.store == nil {
		err = fmt.Errorf("reservation store not configured")
		return
	}

	var e edit
	e, err = s.newEdit(params.Changes)
	if err != nil {
		return
	}

	now := s.now().UTC()
	var (
		failure *pinFailure
		updated persistence.Reservation
	)
	err = s.store.WithinTransaction(ctx, func(tx persistence.Tx) error {
		current, txErr := tx.GetReservation(ctx, params.ID)
		if txErr != nil {
			return txErr
		}
		if current.Status != persistence.StatusConfirmed {
			return fmt.Errorf("%w: reservation %s is %s", ErrInvalidState, current.ID, current.Status)
		}
		failure, txErr = s.checkPIN(ctx, tx, current, params.PIN, now)
		if txErr != nil || failure != nil {
			return txErr
		}

		e.apply(&current)
		if e.start != nil {
			current.StartAt, current.EndAt = *e.start, *e.end
		}
		if e.moves() {
			if _, txErr = activeRoom(ctx, tx, current.RoomID); txErr != nil {
				return txErr
			}
			conflict, checkErr := s.checker.FindConflict(ctx, overlapAdapter{tx: tx}, current.RoomID, current.StartAt, current.EndAt, current.ID)
			if checkErr != nil {
				return checkErr
			}
			if conflict != nil {
				s.metrics.Conflict(string(conflict.Type))
				return newConflictError(conflict)
			}
		}
		current.UpdatedAt = now
		if txErr = tx.UpdateReservation(ctx, current); txErr != nil {
			return txErr
		}
		updated = current
		return nil
	})
	if err != nil {
		err = mapStorageError(err)
		return
	}
	if failure != nil {
		err = s.reportPINFailure(ctx, logger, params.Actor, failure, map[string]any{"operation": "update", "scope": "single"})
		return
	}

	reservation = toReservation(updated)
	s.emit(ctx, logger, params.Actor, audit.ActionReservationUpdate, &updated.ID, e.detail())
	return
}

// UpdateSeries edits every confirmed occurrence of a series after checking the
// cancel PIN of the addressed occurrence.
func (s *ReservationService) UpdateSeries(ctx context.Context, params UpdateSeriesParams) (result UpdateSeriesResult, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateSeries",
		"reservation_id", params.ReservationID,
		"actor", params.Actor.Label,
	)
	defer func() {
		if err != nil {
			s.logFailure(ctx, logger, "update_series", "failed to update series", err)
			return
		}
		logger.InfoContext(ctx, "series updated", "series_id", result.SeriesID, "count", result.Count)
	}()

	if s.store == nil {
		err = fmt.Errorf("reservation store not configured")
		return
	}

	var e edit
	e, err = s.newEdit(params.Changes)
	if err != nil {
		return
	}

	now := s.now().UTC()
	var (
		failure *pinFailure
		firstID string
	)
	err = s.store.WithinTransaction(ctx, func(tx persistence.Tx) error {
		anchor, txErr := tx.GetReservation(ctx, params.ReservationID)
		if txErr != nil {
			return txErr
		}
		if anchor.Status != persistence.StatusConfirmed {
			return fmt.Errorf("%w: reservation %s is %s", ErrInvalidState, anchor.ID, anchor.Status)
		}
		if anchor.SeriesID == nil {
			return fmt.Errorf("%w: reservation %s is not part of a series", ErrInvalidState, anchor.ID)
		}
		failure, txErr = s.checkPIN(ctx, tx, anchor, params.PIN, now)
		if txErr != nil || failure != nil {
			return txErr
		}

		rows, txErr := tx.ListSeries(ctx, *anchor.SeriesID, persistence.StatusConfirmed)
		if txErr != nil {
			return txErr
		}
		if len(rows) == 0 {
			return fmt.Errorf("%w: series %s has no confirmed reservations", persistence.ErrNotFound, *anchor.SeriesID)
		}
		if txErr = s.editSeries(ctx, tx, anchor, rows, e, now); txErr != nil {
			return txErr
		}
		firstID = rows[0].ID
		result = UpdateSeriesResult{SeriesID: *anchor.SeriesID, Count: len(rows)}
		return nil
	})
	if err != nil {
		result = UpdateSeriesResult{}
		err = mapStorageError(err)
		return
	}
	if failure != nil {
		err = s.reportPINFailure(ctx, logger, params.Actor, failure, map[string]any{"operation": "update", "scope": "series"})
		return
	}

	detail := e.detail()
	detail["series_id"] = result.SeriesID
	detail["count"] = result.Count
	s.emit(ctx, logger, params.Actor, audit.ActionReservationUpdateSeries, &firstID, detail)
	return
}

// editSeries applies e to rows, which are ordered by start. A new window is
// taken exactly by the anchor; the other rows move by the same number of civil
// days and the same wall-clock offset, keeping their durations.
func (s *ReservationService) editSeries(ctx context.Context, tx persistence.Tx, anchor persistence.Reservation, rows []persistence.Reservation, e edit, now time.Time) error {
	var shift time.Duration
	if e.start != nil {
		days := s.calendar.LocalDate(anchor.StartAt).DaysUntil(s.calendar.LocalDate(*e.start))
		clock := s.calendar.LocalTimeOfDay(*e.start).Sub(s.calendar.LocalTimeOfDay(anchor.StartAt))
		for i := range rows {
			if rows[i].ID == anchor.ID {
				rows[i].StartAt, rows[i].EndAt = *e.start, *e.end
				continue
			}
			duration := rows[i].EndAt.Sub(rows[i].StartAt)
			start := s.calendar.Shift(rows[i].StartAt, days, clock).UTC()
			end := start.Add(duration)
			if err := s.calendar.ValidateWindow(start, end); err != nil {
				return fmt.Errorf("occurrence %s: %w", s.calendar.LocalDate(rows[i].StartAt), mapWindowError(err))
			}
			rows[i].StartAt, rows[i].EndAt = start, end
		}
		shift = e.start.Sub(anchor.StartAt)
	}

	members := make(map[string]struct{}, len(rows))
	byRoom := map[string][]scheduler.Interval{}
	for i := range rows {
		e.apply(&rows[i])
		rows[i].UpdatedAt = now
		members[rows[i].ID] = struct{}{}
		byRoom[rows[i].RoomID] = append(byRoom[rows[i].RoomID], scheduler.Interval{ID: rows[i].ID, Start: rows[i].StartAt, End: rows[i].EndAt})
	}

	if e.moves() {
		for roomID, intervals := range byRoom {
			if _, err := activeRoom(ctx, tx, roomID); err != nil {
				return err
			}
			// Single edits may have moved an occurrence next to a sibling; a
			// longer window can then overlap it.
			if conflict := scheduler.DetectWithin(intervals); conflict != nil {
				conflict.RoomID = roomID
				s.metrics.Conflict(string(conflict.Type))
				return newConflictError(conflict)
			}
		}
		querier := overlapAdapter{tx: tx, skip: members}
		for _, row := range rows {
			conflict, err := s.checker.FindConflict(ctx, querier, row.RoomID, row.StartAt, row.EndAt, row.ID)
			if err != nil {
				return err
			}
			if conflict != nil {
				s.metrics.Conflict(string(conflict.Type))
				return newConflictError(conflict)
			}
		}
	}

	// Write in the direction of the move so no row lands on a start a sibling
	// still holds.
	for i := range rows {
		row := rows[i]
		if shift > 0 {
			row = rows[len(rows)-1-i]
		}
		if err := tx.UpdateReservation(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

type cancelScope string

const (
	cancelScopeSingle cancelScope = "single"
	cancelScopeSeries cancelScope = "series"
)

// CancelReservation cancels one reservation after checking its PIN.
func (s *ReservationService) CancelReservation(ctx context.Context, params CancelParams) (CancelResult, error) {
	return s.cancel(ctx, params, cancelScopeSingle)
}

// CancelSeries checks the PIN of the addressed reservation and cancels every
// confirmed occurrence of its series.
func (s *ReservationService) CancelSeries(ctx context.Context, params CancelParams) (CancelResult, error) {
	return s.cancel(ctx, params, cancelScopeSeries)
}

func (s *ReservationService) cancel(ctx context.Context, params CancelParams, scope cancelScope) (result CancelResult, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CancelReservation",
		"reservation_id", params.ID,
		"scope", string(scope),
		"actor", params.Actor.Label,
	)
	defer func() {
		if err != nil {
			s.logFailure(ctx, logger, "cancel", "failed to cancel reservation", err)
			return
		}
		logger.InfoContext(ctx, "reservation cancelled", "count", len(result.IDs))
	}()

	if s.store == nil {
		err = fmt.Errorf("reservation store not configured")
		return
	}

	now := s.now().UTC()
	var (
		failure   *pinFailure
		cancelled []persistence.Reservation
	)
	err = s.store.WithinTransaction(ctx, func(tx persistence.Tx) error {
		target, txErr := tx.GetReservation(ctx, params.ID)
		if txErr != nil {
			return txErr
		}
		if target.Status != persistence.StatusConfirmed {
			return fmt.Errorf("%w: reservation %s is %s", ErrInvalidState, target.ID, target.Status)
		}
		if scope == cancelScopeSeries && target.SeriesID == nil {
			return fmt.Errorf("%w: reservation %s is not part of a series", ErrInvalidState, target.ID)
		}
		failure, txErr = s.checkPIN(ctx, tx, target, params.PIN, now)
		if txErr != nil || failure != nil {
			return txErr
		}

		rows := []persistence.Reservation{target}
		if scope == cancelScopeSeries {
			rows, txErr = tx.ListSeries(ctx, *target.SeriesID, persistence.StatusConfirmed)
			if txErr != nil {
				return txErr
			}
		}
		for i := range rows {
			rows[i].Status = persistence.StatusCancelled
			rows[i].CancelFailCount = 0
			rows[i].CancelLockedUntil = nil
			rows[i].UpdatedAt = now
			if txErr = tx.UpdateReservation(ctx, rows[i]); txErr != nil {
				return txErr
			}
		}
		cancelled = rows
		return nil
	})
	if err != nil {
		err = mapStorageError(err)
		return
	}
	if failure != nil {
		err = s.reportPINFailure(ctx, logger, params.Actor, failure, map[string]any{"operation": "cancel", "scope": string(scope)})
		return
	}

	result = CancelResult{IDs: make([]string, 0, len(cancelled))}
	if scope == cancelScopeSeries {
		result.SeriesID = cancelled[0].SeriesID
	}
	for _, row := range cancelled {
		result.IDs = append(result.IDs, row.ID)
		detail := map[string]any{
			"scope":    string(scope),
			"start_at": row.StartAt.Format(time.RFC3339),
			"end_at":   row.EndAt.Format(time.RFC3339),
		}
		if row.SeriesID != nil {
			detail["series_id"] = *row.SeriesID
		}
		id := row.ID
		s.emit(ctx, logger, params.Actor, audit.ActionReservationCancel, &id, detail)
	}
	s.metrics.ReservationsCancelled(string(scope), len(cancelled))
	return
}

// pinFailure is a rejected PIN whose counter change was written in the transaction.
type pinFailure struct {
	row       persistence.Reservation
	lockedNow bool
}

// checkPIN verifies pin against target inside tx. A reservation in cooldown
// fails with *LockedError before the PIN is looked at. A wrong PIN bumps the
// failure counter, starting a cooldown at the threshold, and writes it; the
// caller commits and reports the returned failure.
func (s *ReservationService) checkPIN(ctx context.Context, tx persistence.Tx, target persistence.Reservation, pin string, now time.Time) (*pinFailure, error) {
	if target.CancelLockedUntil != nil && now.Before(*target.CancelLockedUntil) {
		return nil, &LockedError{Until: *target.CancelLockedUntil}
	}
	ok, err := s.hasher.Verify(pin, target.PINHash)
	if err != nil {
		return nil, fmt.Errorf("verify cancel PIN: %w", err)
	}
	if ok {
		return nil, nil
	}

	failure := &pinFailure{}
	target.CancelFailCount++
	if target.CancelFailCount >= s.lockout.Threshold {
		until := now.Add(s.lockout.Cooldown)
		target.CancelLockedUntil = &until
		target.CancelFailCount = 0
		failure.lockedNow = true
	}
	target.UpdatedAt = now
	if err = tx.UpdateReservation(ctx, target); err != nil {
		return nil, err
	}
	failure.row = target
	return failure, nil
}

// reportPINFailure audits a committed PIN failure and returns the caller's error.
func (s *ReservationService) reportPINFailure(ctx context.Context, logger *slog.Logger, actor Actor, failure *pinFailure, detail map[string]any) error {
	s.metrics.PINFailure()
	failed := map[string]any{"fail_count": failure.row.CancelFailCount}
	for k, v := range detail {
		failed[k] = v
	}
	s.emit(ctx, logger, actor, audit.ActionCancelPINFailed, &failure.row.ID, failed)
	if !failure.lockedNow {
		return ErrInvalidPIN
	}

	s.metrics.Lockout()
	until := failure.row.CancelLockedUntil.Format(time.RFC3339)
	locked := map[string]any{"locked_until": until}
	for k, v := range detail {
		locked[k] = v
	}
	s.emit(ctx, logger, actor, audit.ActionCancelLocked, &failure.row.ID, locked)
	return fmt.Errorf("%w: cancel locked until %s", ErrInvalidPIN, until)
}

// GetReservation returns one reservation by id.
func (s *ReservationService) GetReservation(ctx context.Context, id string) (reservation Reservation, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	defer func() {
		if err != nil {
			s.logFailure(ctx, s.loggerWith(ctx, "GetReservation", "reservation_id", id), "get", "failed to load reservation", err)
		}
	}()

	if s.store == nil {
		err = fmt.Errorf("reservation store not configured")
		return
	}
	var row persistence.Reservation
	row, err = s.store.GetReservation(ctx, id)
	if err != nil {
		err = mapStorageError(err)
		return
	}
	reservation = toReservation(row)
	return
}

// DaySchedule assembles the grid of one local day for active rooms.
func (s *ReservationService) DaySchedule(ctx context.Context, date slot.Date, opts DayOptions) (schedule DaySchedule, err error) {
	if s == nil {
		err = fmt.Errorf("ReservationService is nil")
		return
	}

	logger := s.loggerWith(ctx, "DaySchedule", "date", date.String())
	defer func() {
		if err != nil {
			s.logFailure(ctx, logger, "day_schedule", "failed to load day schedule", err)
		}
	}()

	if s.store == nil {
		err = fmt.Errorf("reservation store not configured")
		return
	}
	if date.IsZero() {
		err = fmt.Errorf("%w: date is required", ErrInvalidTimeInput)
		return
	}

	open, closing := s.calendar.DayBounds(date)

	var rooms []persistence.Room
	rooms, err = s.store.ListActiveRooms(ctx)
	if err != nil {
		err = mapStorageError(err)
		return
	}
	var reservations []persistence.Reservation
	reservations, err = s.store.ListConfirmedBetween(ctx, open, closing)
	if err != nil {
		err = mapStorageError(err)
		return
	}
	var blocks []persistence.Block
	blocks, err = s.store.ListBlocksBetween(ctx, open, closing)
	if err != nil {
		err = mapStorageError(err)
		return
	}

	active := make(map[string]struct{}, len(rooms))
	schedule = DaySchedule{
		Date:         date,
		Open:         slot.Opening.String(),
		Close:        slot.Closing.String(),
		SlotMinutes:  int(slot.SlotDuration / time.Minute),
		Slots:        s.calendar.Slots(date),
		Rooms:        make([]RoomSummary, 0, len(rooms)),
		Reservations: make([]GridReservation, 0, len(reservations)),
		Blocks:       make([]GridBlock, 0, len(blocks)),
	}
	for _, room := range rooms {
		active[room.ID] = struct{}{}
		schedule.Rooms = append(schedule.Rooms, RoomSummary{ID: room.ID, Name: room.Name})
	}
	for _, r := range reservations {
		if _, ok := active[r.RoomID]; !ok {
			continue
		}
		item := GridReservation{
			ID:     r.ID,
			RoomID: r.RoomID,
			Start:  r.StartAt,
			End:    r.EndAt,
			Title:  r.Title,
			Color:  r.Color,
		}
		if opts.IncludeInternal {
			item.Note = r.NoteInternal
			item.SeriesID = r.SeriesID
		}
		schedule.Reservations = append(schedule.Reservations, item)
	}
	for _, b := range blocks {
		if b.RoomID != nil {
			if _, ok := active[*b.RoomID]; !ok {
				continue
			}
		}
		schedule.Blocks = append(schedule.Blocks, GridBlock{
			ID:     b.ID,
			RoomID: b.RoomID,
			Start:  b.StartAt,
			End:    b.EndAt,
			Reason: b.Reason,
		})
	}
	return
}

// edit is a validated ReservationChanges. The new PIN is already hashed.
type edit struct {
	roomID  *string
	start   *time.Time
	end     *time.Time
	title   *string
	note    *string
	color   *string
	pinHash *string
}

// newEdit validates changes and hashes a new PIN before any transaction opens.
func (s *ReservationService) newEdit(changes ReservationChanges) (edit, error) {
	var e edit
	vErr := &ValidationError{}
	if changes.RoomID != nil {
		trimmed := strings.TrimSpace(*changes.RoomID)
		if trimmed == "" {
			vErr.add("room_id", "room must not be empty")
		}
		e.roomID = &trimmed
	}
	if (changes.Start == nil) != (changes.End == nil) {
		vErr.add("end", "start and end must be given together")
	}
	if changes.Title != nil {
		trimmed := strings.TrimSpace(*changes.Title)
		validateTitle(vErr, trimmed)
		e.title = &trimmed
	}
	if changes.Note != nil {
		trimmed := strings.TrimSpace(*changes.Note)
		e.note = &trimmed
	}
	if changes.Color != nil {
		trimmed := strings.TrimSpace(*changes.Color)
		if trimmed == "" {
			trimmed = DefaultColor
		}
		validateColor(vErr, trimmed)
		e.color = &trimmed
	}
	if changes.NewPIN != nil && !validPIN(*changes.NewPIN) {
		vErr.add("new_pin", "PIN must be exactly 4 digits")
	}
	if changes == (ReservationChanges{}) {
		vErr.add("body", "at least one field must change")
	}
	if vErr.HasErrors() {
		return edit{}, vErr
	}

	if changes.Start != nil {
		start, end := changes.Start.UTC(), changes.End.UTC()
		if err := mapWindowError(s.calendar.ValidateWindow(start, end)); err != nil {
			return edit{}, err
		}
		e.start, e.end = &start, &end
	}
	if changes.NewPIN != nil {
		hash, err := s.hasher.Hash(*changes.NewPIN)
		if err != nil {
			return edit{}, fmt.Errorf("hash cancel PIN: %w", err)
		}
		e.pinHash = &hash
	}
	return e, nil
}

// moves reports whether the edit changes where or when a reservation takes place.
func (e edit) moves() bool {
	return e.roomID != nil || e.start != nil
}

// apply copies every field except the window onto r.
func (e edit) apply(r *persistence.Reservation) {
	if e.roomID != nil {
		r.RoomID = *e.roomID
	}
	if e.title != nil {
		r.Title = *e.title
	}
	if e.note != nil {
		r.NoteInternal = *e.note
	}
	if e.color != nil {
		r.Color = *e.color
	}
	if e.pinHash != nil {
		r.PINHash = *e.pinHash
		r.CancelFailCount = 0
	}
}

func (e edit) detail() map[string]any {
	detail := map[string]any{}
	if e.roomID != nil {
		detail["room_id"] = *e.roomID
	}
	if e.start != nil {
		detail["start_at"] = e.start.Format(time.RFC3339)
		detail["end_at"] = e.end.Format(time.RFC3339)
	}
	if e.title != nil {
		detail["title"] = *e.title
	}
	if e.note != nil {
		detail["note_changed"] = true
	}
	if e.color != nil {
		detail["color"] = *e.color
	}
	if e.pinHash != nil {
		detail["pin_changed"] = true
	}
	return detail
}

func validateTitle(vErr *ValidationError, title string) {
	switch {
	case title == "":
		vErr.add("title", "title is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		vErr.add("title", fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
	}
}

func validateColor(vErr *ValidationError, color string) {
	if utf8.RuneCountInString(color) > MaxColorLength {
		vErr.add("color", fmt.Sprintf("color must be at most %d characters", MaxColorLength))
	}
}

// activeRoom loads a room that may take new bookings.
func activeRoom(ctx context.Context, tx persistence.Tx, id string) (persistence.Room, error) {
	room, err := tx.GetRoom(ctx, id)
	if err != nil {
		return persistence.Room{}, err
	}
	if !room.Active {
		return persistence.Room{}, fmt.Errorf("%w: room %s is not active", ErrInvalidState, room.ID)
	}
	return room, nil
}

// overlapAdapter narrows storage rows to the intervals the checker compares.
// Reservations in skip are ignored on top of the checker's excludeID.
type overlapAdapter struct {
	tx   persistence.Tx
	skip map[string]struct{}
}

func (a overlapAdapter) FirstOverlappingBlock(ctx context.Context, roomID string, start, end time.Time) (scheduler.Interval, bool, error) {
	block, ok, err := a.tx.FirstOverlappingBlock(ctx, roomID, start, end)
	if err != nil || !ok {
		return scheduler.Interval{}, ok, err
	}
	return scheduler.Interval{ID: block.ID, Start: block.StartAt, End: block.EndAt}, true, nil
}

func (a overlapAdapter) FirstOverlappingReservation(ctx context.Context, roomID string, start, end time.Time, excludeID string) (scheduler.Interval, bool, error) {
	if len(a.skip) == 0 {
		r, ok, err := a.tx.FirstOverlappingReservation(ctx, roomID, start, end, excludeID)
		if err != nil || !ok {
			return scheduler.Interval{}, ok, err
		}
		return scheduler.Interval{ID: r.ID, Start: r.StartAt, End: r.EndAt}, true, nil
	}

	rows, err := a.tx.ListConfirmedBetween(ctx, start, end)
	if err != nil {
		return scheduler.Interval{}, false, err
	}
	for _, r := range rows {
		if r.RoomID != roomID || r.ID == excludeID {
			continue
		}
		if _, ok := a.skip[r.ID]; ok {
			continue
		}
		return scheduler.Interval{ID: r.ID, Start: r.StartAt, End: r.EndAt}, true, nil
	}
	return scheduler.Interval{}, false, nil
}

func optionalIP(ip string) *string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil
	}
	return &ip
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

var _ scheduler.OverlapQuerier = overlapAdapter{}

// IsRetryable reports whether err is a transient storage failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStorage)
}
