package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP routing tree for the bridge API.
func NewRouter(api *API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(middleware.Timeout(20 * time.Second))
	r.Use(StripIngressPrefix)
	r.Use(RequestLogger(api))

	r.Get("/healthz", api.Health)
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Get("/devices", api.ListDevices)
		apiRouter.Get("/devices/{key}", func(w http.ResponseWriter, r *http.Request) {
			api.GetDevice(w, r, chi.URLParam(r, "key"))
		})
		apiRouter.Get("/devices/{key}/presets", func(w http.ResponseWriter, r *http.Request) {
			api.ListAvailablePresets(w, r, chi.URLParam(r, "key"))
		})
		apiRouter.Post("/devices/{key}/power", func(w http.ResponseWriter, r *http.Request) {
			api.Power(w, r, chi.URLParam(r, "key"))
		})
		apiRouter.Post("/devices/{key}/volume", func(w http.ResponseWriter, r *http.Request) {
			api.SetVolume(w, r, chi.URLParam(r, "key"))
		})
		apiRouter.Post("/devices/{key}/mode", func(w http.ResponseWriter, r *http.Request) {
			api.SetMode(w, r, chi.URLParam(r, "key"))
		})
		apiRouter.Post("/devices/{key}/shuffle", func(w http.ResponseWriter, r *http.Request) {
			api.SetShuffle(w, r, chi.URLParam(r, "key"))
		})
		apiRouter.Post("/devices/{key}/interval", func(w http.ResponseWriter, r *http.Request) {
			api.SetInterval(w, r, chi.URLParam(r, "key"))
		})
		apiRouter.Post("/devices/{key}/slots", func(w http.ResponseWriter, r *http.Request) {
			api.SetSlotSpeed(w, r, chi.URLParam(r, "key"))
		})
		apiRouter.Post("/devices/{key}/preset", func(w http.ResponseWriter, r *http.Request) {
			api.ApplyPreset(w, r, chi.URLParam(r, "key"))
		})

		apiRouter.Get("/interval-types", api.ListIntervalTypes)
		apiRouter.Get("/presets", api.ListPresets)
		apiRouter.Post("/refresh", api.Refresh)
	})

	return r
}

// RunServer starts and gracefully stops HTTP server with context cancellation.
func RunServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
