// Command steadd runs the stead daemon: the local control plane that owns
// the contract store, resource registry, endpoint registry, and event bus
// behind a single request/response API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/steadhq/stead/internal/daemon"
	"github.com/steadhq/stead/pkg/config"
	sserr "github.com/steadhq/stead/pkg/errors"
)

// DaemonConfig is steadd's process configuration, loaded from STEAD_*
// environment variables with the defaults below applied first.
type DaemonConfig struct {
	// Workspace is the directory root under which .stead/ durable state
	// lives. One steadd instance owns one workspace.
	Workspace string `env:"WORKSPACE" envDefault:"."`

	// DBPath is where the contract store's SQLite file lives; when unset
	// it is <Workspace>/.stead/stead.db. The endpoint lease file
	// (resources.json) is written alongside it.
	DBPath string `env:"DB_PATH"`

	ResourcePortStart uint16 `env:"RESOURCE_PORT_START" envDefault:"3000"`
	ResourcePortEnd   uint16 `env:"RESOURCE_PORT_END" envDefault:"4999"`
	EndpointPortStart uint16 `env:"ENDPOINT_PORT_START" envDefault:"4100"`
	EndpointPortEnd   uint16 `env:"ENDPOINT_PORT_END" envDefault:"4999"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Validate implements [config.Validator].
func (c DaemonConfig) Validate() error {
	if c.ResourcePortStart > c.ResourcePortEnd {
		return sserr.Newf(sserr.CodeValidation,
			"resource port range start %d is after end %d", c.ResourcePortStart, c.ResourcePortEnd)
	}
	if c.EndpointPortStart > c.EndpointPortEnd {
		return sserr.Newf(sserr.CodeValidation,
			"endpoint port range start %d is after end %d", c.EndpointPortStart, c.EndpointPortEnd)
	}
	return nil
}

func main() {
	cfg := config.MustLoad[DaemonConfig](config.New().WithEnvPrefix("STEAD"))
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.Workspace, ".stead", "stead.db")
	}

	logger := slog.New(newLogHandler(cfg.LogFormat, parseLevel(cfg.LogLevel)))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shut down tracer provider", "error", err)
		}
	}()

	d, err := daemon.Open(ctx, daemon.Options{
		DBPath:            cfg.DBPath,
		ResourcePortStart: cfg.ResourcePortStart,
		ResourcePortEnd:   cfg.ResourcePortEnd,
		EndpointPortStart: cfg.EndpointPortStart,
		EndpointPortEnd:   cfg.EndpointPortEnd,
	})
	if err != nil {
		logger.Error("failed to open daemon", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error("failed to close daemon cleanly", "error", err)
		}
	}()

	health := d.Health(ctx)
	logger.Info("steadd ready", "db_path", cfg.DBPath, "health", health.Data)

	<-ctx.Done()
	logger.Info("steadd shutting down")
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func newLogHandler(format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.NewJSONHandler(os.Stdout, opts)
}
