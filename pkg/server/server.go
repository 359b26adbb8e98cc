package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	dashboardhandlers "github.com/seclens/auditgate/pkg/handlers/dashboard"
	ingesthandlers "github.com/seclens/auditgate/pkg/handlers/ingest"
	auditgatemiddleware "github.com/seclens/auditgate/pkg/server/middleware"
	"github.com/seclens/auditgate/pkg/services/dashboard"
	"github.com/seclens/auditgate/pkg/services/ingest"
)

type WebAPI struct {
	router *chi.Mux
	logger *zerolog.Logger
	server *http.Server
}

type Dependencies struct {
	Gateway   *ingest.Gateway
	Dashboard *dashboard.Service
	Logger    zerolog.Logger
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

// ConfigureRouter builds the API routes. Split out of NewWebAPI so tests
// can mount the router on httptest directly.
func ConfigureRouter(config Config) *chi.Mux {
	ingestHandler := ingesthandlers.NewHandler(config.Dependencies.Gateway)
	dashboardHandler := dashboardhandlers.NewHandler(config.Dependencies.Dashboard)

	router := chi.NewRouter()

	router.Use(auditgatemiddleware.Logger(&config.Dependencies.Logger))
	router.Use(middleware.Recoverer)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", ingestHandler.Submit)
		r.Get("/runs", dashboardHandler.ListRuns)
		r.Get("/runs/{run_id}", dashboardHandler.GetRun)
		r.Get("/summary", dashboardHandler.GetSummary)
	})

	return router
}

func NewWebAPI(logger zerolog.Logger, config Config) *WebAPI {
	router := ConfigureRouter(config)

	return &WebAPI{
		router: router,
		logger: &logger,
		server: &http.Server{
			Addr:    config.Addr,
			Handler: router,
		},
	}
}

func (w *WebAPI) Start() error {
	serverErrors := make(chan error, 1)
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-shutdown:
		w.logger.Info().Msg("shutdown initiated")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := w.server.Shutdown(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}

		if err != nil {
			return err
		}
	}

	return nil
}
