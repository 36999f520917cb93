// Package runtime wires settings, logging, telemetry and database stores for the
// command-line interface.
package runtime

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/casebridge/dispatch-migrate/internal/buildinfo"
	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/datastore"
	"github.com/casebridge/dispatch-migrate/internal/errors"
	"github.com/casebridge/dispatch-migrate/internal/logger"
)

const telemetryFlushTimeout = 2 * time.Second

// App is shared by every command. Init must run before Logger and OpenStores are
// useful; the root command does this after flags are parsed.
type App struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	// Out receives command reports; logs go to stderr.
	Out io.Writer

	central *logger.CentralLogger
}

// New creates an App writing reports to stdout.
func New(settings *conf.Settings) *App {
	return &App{Settings: settings, Build: buildinfo.Current(), Out: os.Stdout}
}

// Init validates the final settings, builds the logger and enables Sentry when
// a DSN is configured.
func (a *App) Init() error {
	if err := conf.ValidateSettings(a.Settings); err != nil {
		return errors.New(err).
			Component("runtime").
			Category(errors.CategoryConfiguration).
			Context("operation", "validate").
			Build()
	}

	central, err := logger.NewCentralLogger(loggingConfig(a.Settings.Logging))
	if err != nil {
		return errors.New(err).
			Component("runtime").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_logger").
			Build()
	}
	a.central = central

	if err := errors.InitSentry(a.Settings.Sentry.DSN, a.Build.Release()); err != nil {
		a.Logger("runtime").Warn("error reporting disabled", logger.Error(err))
	}
	return nil
}

func loggingConfig(s conf.LogSettings) *logger.LoggingConfig {
	level := s.Level
	if level == "" {
		level = logger.DefaultLogLevel
	}
	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
	}
	if s.File != "" {
		cfg.FileOutput = &logger.FileOutput{Enabled: true, Path: s.File, Level: level}
	}
	return cfg
}

// Logger returns a module logger. Before Init it discards everything.
func (a *App) Logger(module string) logger.Logger {
	if a.central == nil {
		return logger.NewSlogLogger(io.Discard, logger.LogLevelInfo, nil).Module(module)
	}
	return a.central.Module(module)
}

// OpenStores connects to the source and the target database.
func (a *App) OpenStores(ctx context.Context) (source, target *datastore.Store, err error) {
	log := a.Logger("datastore")
	source, err = datastore.Open(ctx, "source", &a.Settings.Source, log)
	if err != nil {
		return nil, nil, err
	}
	target, err = datastore.Open(ctx, "target", &a.Settings.Target, log)
	if err != nil {
		_ = source.Close()
		return nil, nil, err
	}
	return source, target, nil
}

// OpenTarget connects to the target database only.
func (a *App) OpenTarget(ctx context.Context) (*datastore.Store, error) {
	return datastore.Open(ctx, "target", &a.Settings.Target, a.Logger("datastore"))
}

// Close flushes telemetry and the log file.
func (a *App) Close() error {
	errors.FlushTelemetry(telemetryFlushTimeout)
	if a.central == nil {
		return nil
	}
	return a.central.Close()
}
