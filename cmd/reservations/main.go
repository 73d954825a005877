package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/room-reservations/internal/application"
	"github.com/example/room-reservations/internal/audit"
	"github.com/example/room-reservations/internal/config"
	httptransport "github.com/example/room-reservations/internal/http"
	"github.com/example/room-reservations/internal/logging"
	"github.com/example/room-reservations/internal/metrics"
	"github.com/example/room-reservations/internal/persistence/sqlite"
	"github.com/example/room-reservations/internal/slot"
)

const usage = `usage: reservations <command> [flags]

commands:
  serve       run the HTTP API (default)
  migrate     apply database migrations and exit
  add-room    create a room: -name NAME [-location LOC] [-sort N] [-inactive]
  add-block   block rooms: -start RFC3339 -end RFC3339 [-room ID] [-reason TEXT]
  add-device  register an access device and print its key: -label LABEL
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	switch command {
	case "serve":
		return app.serve(ctx)
	case "migrate":
		logger.Info("migrations applied")
		return nil
	case "add-room":
		return app.addRoom(ctx, args, stdout)
	case "add-block":
		return app.addBlock(ctx, args, stdout)
	case "add-device":
		return app.addDevice(ctx, args, stdout)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

type app struct {
	cfg          config.Config
	logger       *slog.Logger
	store        *sqlite.Store
	calendar     *slot.Calendar
	registry     *prometheus.Registry
	reservations *application.ReservationService
	facility     *application.FacilityService
	devices      *application.DeviceService
}

var adminActor = application.Actor{Kind: audit.ActorAdmin, Label: "cli"}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	calendar, err := slot.LoadCalendar(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	store, err := sqlite.Open(sqlite.DefaultConfig(cfg.SQLitePath))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.Migrate(ctx, logger); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters := metrics.New(registry)

	emitter := audit.MultiEmitter{
		audit.NewStoreEmitter(store, uuid.NewString, time.Now),
		audit.NewLogEmitter(logger),
	}
	hasher := application.NewArgon2idHasher(application.Argon2idParams{})

	reservations := application.NewReservationServiceWithLogger(store, hasher, emitter, calendar, uuid.NewString, time.Now, logger).
		WithLockoutPolicy(application.LockoutPolicy{Threshold: cfg.LockoutThreshold, Cooldown: cfg.LockoutCooldown}).
		WithMetrics(counters)

	return &app{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		calendar:     calendar,
		registry:     registry,
		reservations: reservations,
		facility:     application.NewFacilityServiceWithLogger(store, hasher, emitter, uuid.NewString, logger),
		devices:      application.NewDeviceServiceWithLogger(store, hasher, time.Now, cfg.DeviceCacheTTL, logger),
	}, nil
}

func (a *app) handler() http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Reservations:  httptransport.NewReservationHandler(a.reservations, a.logger),
		Grid:          httptransport.NewGridHandler(a.reservations, a.logger),
		RequireDevice: httptransport.RequireDevice(a.devices, a.logger),
		PINLimiter:    httptransport.NewRateLimiter(a.cfg.CancelRate, a.cfg.CancelBurst, time.Now).Middleware(a.logger),
		Metrics:       promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Middleware:    []func(http.Handler) http.Handler{httptransport.RequestLogger(a.logger)},
	})
}

func (a *app) serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.HTTPPort),
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	a.logger.Info("reservations API listening", "addr", server.Addr, "timezone", a.cfg.Timezone)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	a.logger.Info("reservations API stopped")
	return nil
}

func (a *app) addRoom(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("add-room", flag.ContinueOnError)
	name := fs.String("name", "", "room name")
	location := fs.String("location", "", "room location")
	sortOrder := fs.Int("sort", 0, "grid position")
	inactive := fs.Bool("inactive", false, "hide the room from the grid")
	if err := fs.Parse(args); err != nil {
		return err
	}

	room, err := a.facility.CreateRoom(ctx, application.CreateRoomParams{
		Input: application.RoomInput{Name: *name, Location: *location, SortOrder: *sortOrder, Active: !*inactive},
		Actor: adminActor,
	})
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	fmt.Fprintln(stdout, room.ID)
	return nil
}

func (a *app) addBlock(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("add-block", flag.ContinueOnError)
	roomID := fs.String("room", "", "room id; empty blocks every room")
	start := fs.String("start", "", "block start, RFC 3339 with offset")
	end := fs.String("end", "", "block end, RFC 3339 with offset")
	reason := fs.String("reason", "", "reason shown on the grid")
	if err := fs.Parse(args); err != nil {
		return err
	}

	startAt, err := a.calendar.ParseInstant(*start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	endAt, err := a.calendar.ParseInstant(*end)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}

	params := application.CreateBlockParams{Start: startAt, End: endAt, Reason: *reason, Actor: adminActor}
	if id := strings.TrimSpace(*roomID); id != "" {
		params.RoomID = &id
	}
	block, err := a.facility.CreateBlock(ctx, params)
	if err != nil {
		return fmt.Errorf("create block: %w", err)
	}
	fmt.Fprintln(stdout, block.ID)
	return nil
}

func (a *app) addDevice(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("add-device", flag.ContinueOnError)
	label := fs.String("label", "", "device label")
	if err := fs.Parse(args); err != nil {
		return err
	}

	registered, err := a.facility.RegisterDevice(ctx, application.RegisterDeviceParams{Label: *label, Actor: adminActor})
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	fmt.Fprintf(stdout, "%s %s\n", registered.Device.ID, registered.Key)
	return nil
}
