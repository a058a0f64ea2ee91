package app

import (
	"io"
	"log/slog"
	"os"

	"github.com/tpodg/fleetadmin/internal/config"
	"github.com/tpodg/fleetadmin/internal/dispatch"
	"github.com/tpodg/fleetadmin/internal/plan"
	"github.com/tpodg/fleetadmin/internal/registry"
)

type App struct {
	Logger     *slog.Logger
	Config     *config.Config
	Dispatcher plan.Dispatcher
}

// New builds the application with a text logger on stderr.
func New(cfg *config.Config) *App {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput is New with log lines written to w. Extra options are passed
// to the dispatcher.
func NewWithOutput(cfg *config.Config, w io.Writer, extra ...dispatch.Option) *App {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))

	opts := []dispatch.Option{dispatch.WithLogger(logger)}
	if cfg.Timeout > 0 {
		opts = append(opts, dispatch.WithTimeout(cfg.Timeout))
	}
	opts = append(opts, extra...)

	return &App{
		Logger: logger,
		Config: cfg,
		Dispatcher: &plan.Retrier{
			Dispatcher: dispatch.New(registry.Default(), opts...),
			Retries:    cfg.Retries,
			Logger:     logger,
		},
	}
}
