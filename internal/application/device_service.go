package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/room-reservations/internal/audit"
	"github.com/example/room-reservations/internal/persistence"
)

// Device is an authenticated access device.
type Device struct {
	ID    string
	Label string
}

// Actor returns the audit identity of the device for a request from ip.
func (d Device) Actor(ip string) Actor {
	id := d.ID
	return Actor{Kind: audit.ActorDevice, Label: d.Label, DeviceID: &id, IP: ip}
}

// DeviceService verifies device keys presented by kiosks and office terminals.
type DeviceService struct {
	devices persistence.DeviceRepository
	hasher  PINHasher
	cache   *deviceCache
	logger  *slog.Logger
}

// NewDeviceService constructs a device service. Verified keys are cached for cacheTTL.
func NewDeviceService(devices persistence.DeviceRepository, hasher PINHasher, now func() time.Time, cacheTTL time.Duration) *DeviceService {
	return NewDeviceServiceWithLogger(devices, hasher, now, cacheTTL, nil)
}

// NewDeviceServiceWithLogger constructs a device service with a specified logger.
func NewDeviceServiceWithLogger(devices persistence.DeviceRepository, hasher PINHasher, now func() time.Time, cacheTTL time.Duration, logger *slog.Logger) *DeviceService {
	if hasher == nil {
		hasher = NewArgon2idHasher(Argon2idParams{})
	}
	return &DeviceService{
		devices: devices,
		hasher:  hasher,
		cache:   newDeviceCache(cacheTTL, 0, now),
		logger:  defaultLogger(logger),
	}
}

func (s *DeviceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "DeviceService", operation, attrs...)
}

// Authenticate resolves rawKey to an enabled device or returns ErrUnauthorized.
func (s *DeviceService) Authenticate(ctx context.Context, rawKey string) (device Device, err error) {
	if s == nil {
		err = fmt.Errorf("DeviceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Authenticate")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "device authentication failed", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		err = ErrUnauthorized
		return
	}
	if cached, ok := s.cache.Get(rawKey); ok {
		device = cached
		return
	}
	if s.devices == nil {
		err = fmt.Errorf("device repository not configured")
		return
	}

	var devices []persistence.AccessDevice
	devices, err = s.devices.ListEnabledDevices(ctx)
	if err != nil {
		err = mapStorageError(err)
		return
	}
	for _, candidate := range devices {
		ok, verifyErr := s.hasher.Verify(rawKey, candidate.KeyHash)
		if verifyErr != nil {
			logger.ErrorContext(ctx, "stored device key hash is unreadable", "device_id", candidate.ID, "error", verifyErr)
			continue
		}
		if ok {
			device = Device{ID: candidate.ID, Label: candidate.Label}
			s.cache.Store(rawKey, device)
			return
		}
	}
	err = ErrUnauthorized
	return
}

// Invalidate forgets every cached key, for example after a device is disabled.
func (s *DeviceService) Invalidate() {
	if s == nil {
		return
	}
	s.cache.Invalidate()
}
