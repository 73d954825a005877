package testfixtures

import (
	"context"
	"testing"
	"time"

	"github.com/example/room-reservations/internal/application"
	"github.com/example/room-reservations/internal/audit"
)

func TestServiceFactoryNewReservationService(t *testing.T) {
	factory := NewServiceFactory()
	harness := NewSQLiteHarness(t, factory.Clock)
	room := NewRoomFixture()
	harness.SeedRoom(t, room)

	svc := factory.NewReservationService(ReservationServiceDeps{Store: harness.Store, Calendar: Chicago(t)})

	result, err := svc.CreateReservation(context.Background(), application.CreateReservationParams{
		RoomID: room.ID,
		Start:  ReferenceTime(),
		End:    ReferenceTime().Add(time.Hour),
		Title:  "Standup",
		PIN:    "1234",
		Actor:  application.Actor{Kind: audit.ActorDevice, Label: "kiosk"},
	})
	if err != nil {
		t.Fatalf("CreateReservation returned error: %v", err)
	}
	if len(result.IDs) != 1 || result.IDs[0] != "id-1" {
		t.Fatalf("expected generated ID id-1, got %v", result.IDs)
	}
	if !result.Reservations[0].CreatedAt.Equal(factory.Clock.Now()) {
		t.Fatalf("expected timestamp %v, got %v", factory.Clock.Now(), result.Reservations[0].CreatedAt)
	}
}

func TestServiceFactoryNewFacilityAndDeviceServices(t *testing.T) {
	factory := NewServiceFactory(WithIDGenerator(NewIDGenerator("dev")))
	harness := NewSQLiteHarness(t, factory.Clock)
	hasher := FastHasher()

	facility := factory.NewFacilityService(FacilityServiceDeps{Facility: harness.Store, Hasher: hasher})
	registered, err := facility.RegisterDevice(context.Background(), application.RegisterDeviceParams{
		Label: "lobby kiosk",
		Actor: application.SystemActor,
	})
	if err != nil {
		t.Fatalf("RegisterDevice returned error: %v", err)
	}

	devices := factory.NewDeviceService(harness.Store, hasher)
	device, err := devices.Authenticate(context.Background(), registered.Key)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if device.ID != "dev-1" || device.Label != "lobby kiosk" {
		t.Fatalf("unexpected device %+v", device)
	}
}
