// Package app holds process-wide state shared by the service's listeners.
package app

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"speaker-diarization-service/internal/config"
	"speaker-diarization-service/internal/observability/logging"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	ready atomic.Bool
	now   func() time.Time
}

// New constructs a new Application from the provided configuration and
// initialises the global logger.
func New(cfg *config.Config) *Application {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
		now:    time.Now,
	}
	a.StartupTime = a.now().UTC()

	a.Logger.Info().
		Str("logLevel", cfg.Observability.LogLevel).
		Str("principal", cfg.Service.Principal).
		Msg("Speaker diarization application created")
	return a
}

// Start marks the application ready to serve traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("segmentationModel", a.Cfg.Models.Segmentation).
		Str("embeddingModel", a.Cfg.Models.Embedding).
		Msg("Speaker diarization service starting")

	return nil
}

// Ready reports whether the application accepts traffic.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Uptime returns the time since the application was created.
func (a *Application) Uptime() time.Duration {
	return a.now().Sub(a.StartupTime)
}

// Shutdown marks the application not ready so that probes fail while
// in-flight requests drain.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	shutdownLogger.Info().
		Dur("uptime", a.Uptime()).
		Msg("Speaker diarization service shutting down")
}
