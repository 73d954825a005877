package application

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/room-reservations/internal/audit"
	"github.com/example/room-reservations/internal/persistence"
)

// deviceKeyBytes is the entropy of generated device keys.
const deviceKeyBytes = 24

// RoomInput captures the editable room fields.
type RoomInput struct {
	Name      string
	Location  string
	SortOrder int
	Active    bool
}

// CreateRoomParams wraps the data required to create a room.
type CreateRoomParams struct {
	Input RoomInput
	Actor Actor
}

// UpdateRoomParams wraps the data required to update a room.
type UpdateRoomParams struct {
	RoomID string
	Input  RoomInput
	Actor  Actor
}

// CreateBlockParams describes an administrative block. A nil RoomID blocks every room.
type CreateBlockParams struct {
	RoomID *string
	Start  time.Time
	End    time.Time
	Reason string
	Actor  Actor
}

// RegisterDeviceParams names a new access device.
type RegisterDeviceParams struct {
	Label string
	Actor Actor
}

// RegisteredDevice carries the only copy of a new device's raw key.
type RegisteredDevice struct {
	Device Device
	Key    string
}

// FacilityService orchestrates validation, authorization, and persistence for
// rooms, blocks and access devices.
type FacilityService struct {
	facility    persistence.FacilityRepository
	hasher      PINHasher
	emitter     audit.Emitter
	idGenerator func() string
	logger      *slog.Logger
}

// NewFacilityService constructs a facility service with the provided dependencies.
func NewFacilityService(facility persistence.FacilityRepository, hasher PINHasher, emitter audit.Emitter, idGenerator func() string) *FacilityService {
	return NewFacilityServiceWithLogger(facility, hasher, emitter, idGenerator, nil)
}

// NewFacilityServiceWithLogger constructs a facility service with a specified logger.
func NewFacilityServiceWithLogger(facility persistence.FacilityRepository, hasher PINHasher, emitter audit.Emitter, idGenerator func() string, logger *slog.Logger) *FacilityService {
	if hasher == nil {
		hasher = NewArgon2idHasher(Argon2idParams{})
	}
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	return &FacilityService{facility: facility, hasher: hasher, emitter: emitter, idGenerator: idGenerator, logger: defaultLogger(logger)}
}

func (s *FacilityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "FacilityService", operation, attrs...)
}

func (s *FacilityService) emit(ctx context.Context, logger *slog.Logger, actor Actor, action audit.Action, detail map[string]any) {
	event := audit.Event{
		ActorKind:  actor.Kind,
		ActorLabel: actor.Label,
		Action:     action,
		IP:         optionalIP(actor.IP),
		Detail:     detail,
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		logger.ErrorContext(ctx, "failed to emit audit event", "action", string(action), "error", err)
	}
}

func (s *FacilityService) ready(actor Actor) error {
	if s == nil {
		return fmt.Errorf("FacilityService is nil")
	}
	if actor.Kind != audit.ActorAdmin && actor.Kind != audit.ActorSystem {
		return ErrUnauthorized
	}
	if s.facility == nil {
		return fmt.Errorf("facility repository not configured")
	}
	return nil
}

// CreateRoom validates input and persists a new room.
func (s *FacilityService) CreateRoom(ctx context.Context, params CreateRoomParams) (room persistence.Room, err error) {
	if err = s.ready(params.Actor); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CreateRoom", "actor", params.Actor.Label)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("room_id", room.ID).InfoContext(ctx, "room created")
	}()

	vErr := validateRoomInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	room, err = s.facility.CreateRoom(ctx, persistence.Room{
		ID:        s.idGenerator(),
		Name:      strings.TrimSpace(params.Input.Name),
		Location:  strings.TrimSpace(params.Input.Location),
		SortOrder: params.Input.SortOrder,
		Active:    params.Input.Active,
	})
	if err != nil {
		err = mapFacilityRepoError(err, "name")
		return
	}

	s.emit(ctx, logger, params.Actor, audit.ActionRoomCreate, map[string]any{"room_id": room.ID, "name": room.Name})
	return
}

// UpdateRoom validates input and replaces the editable fields of a room.
func (s *FacilityService) UpdateRoom(ctx context.Context, params UpdateRoomParams) (room persistence.Room, err error) {
	if err = s.ready(params.Actor); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "UpdateRoom",
		"actor", params.Actor.Label,
		"room_id", params.RoomID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update room", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "room updated")
	}()

	var existing persistence.Room
	existing, err = s.facility.GetRoom(ctx, params.RoomID)
	if err != nil {
		err = mapStorageError(err)
		return
	}

	vErr := validateRoomInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated := existing
	updated.Name = strings.TrimSpace(params.Input.Name)
	updated.Location = strings.TrimSpace(params.Input.Location)
	updated.SortOrder = params.Input.SortOrder
	updated.Active = params.Input.Active

	if err = s.facility.UpdateRoom(ctx, updated); err != nil {
		err = mapFacilityRepoError(err, "name")
		return
	}

	room = updated
	s.emit(ctx, logger, params.Actor, audit.ActionRoomUpdate, map[string]any{
		"room_id": room.ID,
		"name":    room.Name,
		"active":  room.Active,
	})
	return
}

// CreateBlock stores an administrative block over a room or the whole facility.
func (s *FacilityService) CreateBlock(ctx context.Context, params CreateBlockParams) (block persistence.Block, err error) {
	if err = s.ready(params.Actor); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "CreateBlock",
		"actor", params.Actor.Label,
		"room_id", derefString(params.RoomID),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create block", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("block_id", block.ID).InfoContext(ctx, "block created")
	}()

	if params.Start.IsZero() || params.End.IsZero() {
		err = fmt.Errorf("%w: block start and end are required", ErrInvalidTimeInput)
		return
	}
	if !params.Start.Before(params.End) {
		err = fmt.Errorf("%w: block end must be after start", ErrInvalidWindow)
		return
	}
	if params.RoomID != nil {
		if _, err = s.facility.GetRoom(ctx, *params.RoomID); err != nil {
			err = mapStorageError(err)
			return
		}
	}

	block, err = s.facility.CreateBlock(ctx, persistence.Block{
		ID:      s.idGenerator(),
		RoomID:  params.RoomID,
		StartAt: params.Start.UTC(),
		EndAt:   params.End.UTC(),
		Reason:  strings.TrimSpace(params.Reason),
	})
	if err != nil {
		err = mapFacilityRepoError(err, "block")
		return
	}

	s.emit(ctx, logger, params.Actor, audit.ActionBlockCreate, map[string]any{
		"block_id": block.ID,
		"room_id":  derefString(block.RoomID),
		"start_at": block.StartAt.Format(time.RFC3339),
		"end_at":   block.EndAt.Format(time.RFC3339),
		"reason":   block.Reason,
	})
	return
}

// DeleteBlock removes a block.
func (s *FacilityService) DeleteBlock(ctx context.Context, actor Actor, blockID string) error {
	if err := s.ready(actor); err != nil {
		return err
	}

	logger := s.loggerWith(ctx, "DeleteBlock",
		"actor", actor.Label,
		"block_id", blockID,
	)

	if err := s.facility.DeleteBlock(ctx, blockID); err != nil {
		err = mapStorageError(err)
		logger.ErrorContext(ctx, "failed to delete block", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	logger.InfoContext(ctx, "block deleted")
	s.emit(ctx, logger, actor, audit.ActionBlockDelete, map[string]any{"block_id": blockID})
	return nil
}

// RegisterDevice creates an enabled device with a freshly generated key.
// Only the hash is stored; the raw key is returned once.
func (s *FacilityService) RegisterDevice(ctx context.Context, params RegisterDeviceParams) (registered RegisteredDevice, err error) {
	if err = s.ready(params.Actor); err != nil {
		return
	}

	logger := s.loggerWith(ctx, "RegisterDevice", "actor", params.Actor.Label)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to register device", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("device_id", registered.Device.ID).InfoContext(ctx, "device registered")
	}()

	label := strings.TrimSpace(params.Label)
	if label == "" {
		vErr := &ValidationError{}
		vErr.add("label", "label is required")
		err = vErr
		return
	}

	var key string
	key, err = generateDeviceKey()
	if err != nil {
		return
	}
	var hash string
	hash, err = s.hasher.Hash(key)
	if err != nil {
		err = fmt.Errorf("hash device key: %w", err)
		return
	}

	var stored persistence.AccessDevice
	stored, err = s.facility.CreateDevice(ctx, persistence.AccessDevice{
		ID:      s.idGenerator(),
		Label:   label,
		KeyHash: hash,
		Enabled: true,
	})
	if err != nil {
		err = mapFacilityRepoError(err, "label")
		return
	}

	registered = RegisteredDevice{Device: Device{ID: stored.ID, Label: stored.Label}, Key: key}
	s.emit(ctx, logger, params.Actor, audit.ActionDeviceRegister, map[string]any{"device_id": stored.ID, "label": stored.Label})
	return
}

func validateRoomInput(input RoomInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if input.SortOrder < 0 {
		vErr.add("sort_order", "sort order must not be negative")
	}

	return vErr
}

// mapFacilityRepoError turns storage constraint failures into field errors on field.
func mapFacilityRepoError(err error, field string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		vErr := &ValidationError{}
		vErr.add(field, "already exists")
		return vErr
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add(field, "violates a storage constraint")
		return vErr
	}
	return mapStorageError(err)
}

func generateDeviceKey() (string, error) {
	buf := make([]byte, deviceKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate device key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
