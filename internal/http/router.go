package http

import (
	"net/http"
	"strings"
)

// RouterConfig collects the handlers and middleware served by NewRouter.
type RouterConfig struct {
	Reservations *ReservationHandler
	Grid         *GridHandler
	// RequireDevice guards every route that needs an access device.
	RequireDevice func(http.Handler) http.Handler
	// PINLimiter throttles PIN-checked requests (edits and cancels) per client.
	PINLimiter func(http.Handler) http.Handler
	Metrics    http.Handler
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	device := wrap(cfg.RequireDevice)
	limited := wrap(cfg.PINLimiter)

	if cfg.Reservations != nil {
		mux.Handle("/reservations", device(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Reservations.Create(w, r)
		})))

		update := limited(http.HandlerFunc(cfg.Reservations.Update))
		cancel := limited(http.HandlerFunc(cfg.Reservations.Cancel))
		mux.Handle("/reservations/", device(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rest := strings.TrimPrefix(r.URL.Path, "/reservations/")
			id, action, _ := strings.Cut(rest, "/")
			if id == "" {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithReservationID(r.Context(), id))
			switch action {
			case "":
				switch r.Method {
				case http.MethodGet:
					cfg.Reservations.Get(w, r)
				case http.MethodPatch:
					update.ServeHTTP(w, r)
				default:
					methodNotAllowed(w, http.MethodGet, http.MethodPatch)
				}
			case "cancel":
				if r.Method != http.MethodPost {
					methodNotAllowed(w, http.MethodPost)
					return
				}
				cancel.ServeHTTP(w, r)
			default:
				http.NotFound(w, r)
			}
		})))

	}

	if cfg.Grid != nil {
		mux.HandleFunc("/grid", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Grid.Public(w, r)
		})
		mux.Handle("/office/grid", device(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Grid.Office(w, r)
		})))
	}

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func wrap(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
