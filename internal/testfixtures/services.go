package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/room-reservations/internal/application"
	"github.com/example/room-reservations/internal/audit"
	"github.com/example/room-reservations/internal/persistence"
	"github.com/example/room-reservations/internal/slot"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// ReservationServiceDeps captures dependencies for constructing a reservation service.
type ReservationServiceDeps struct {
	Store    persistence.Store
	Hasher   application.PINHasher
	Emitter  audit.Emitter
	Calendar *slot.Calendar
	Lockout  application.LockoutPolicy
	Logger   *slog.Logger
}

// NewReservationService builds a reservation service using the supplied
// dependencies combined with the factory defaults. The hasher defaults to
// FastHasher.
func (f *ServiceFactory) NewReservationService(deps ReservationServiceDeps) *application.ReservationService {
	hasher := deps.Hasher
	if hasher == nil {
		hasher = FastHasher()
	}
	return application.NewReservationServiceWithLogger(
		deps.Store,
		hasher,
		deps.Emitter,
		deps.Calendar,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		deps.Logger,
	).WithLockoutPolicy(deps.Lockout)
}

// FacilityServiceDeps captures dependencies for constructing a facility service.
type FacilityServiceDeps struct {
	Facility persistence.FacilityRepository
	Hasher   application.PINHasher
	Emitter  audit.Emitter
	Logger   *slog.Logger
}

// NewFacilityService builds a facility service using the supplied dependencies.
func (f *ServiceFactory) NewFacilityService(deps FacilityServiceDeps) *application.FacilityService {
	hasher := deps.Hasher
	if hasher == nil {
		hasher = FastHasher()
	}
	return application.NewFacilityServiceWithLogger(
		deps.Facility,
		hasher,
		deps.Emitter,
		f.IDGenerator.NextFunc(),
		deps.Logger,
	)
}

// NewDeviceService builds a device service that caches keys for one minute of factory time.
func (f *ServiceFactory) NewDeviceService(devices persistence.DeviceRepository, hasher application.PINHasher) *application.DeviceService {
	if hasher == nil {
		hasher = FastHasher()
	}
	return application.NewDeviceService(devices, hasher, f.Clock.NowFunc(), time.Minute)
}
