package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/clientops/internal/config"
)

// NewLogger creates a structured JSON zerolog.Logger for long-running
// processes. The service name is attached to every event.
func NewLogger(cfg *config.Config, service string) zerolog.Logger {
	return build(os.Stdout, cfg.LogLevel, service)
}

// NewConsoleLogger creates a human-readable logger for the operator CLI.
// Output goes to stderr so that machine-readable stdout stays clean.
func NewConsoleLogger(cfg *config.Config, service string) zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return build(w, cfg.LogLevel, service)
}

func build(w io.Writer, levelName, service string) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}

	level, err := zerolog.ParseLevel(levelName)
	if err != nil || levelName == "" {
		level = zerolog.InfoLevel
	}

	return ctx.Logger().Level(level)
}
