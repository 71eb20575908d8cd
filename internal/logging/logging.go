// Package logging builds the slog loggers flowd's subsystems use. The
// teacher calls the package-level slog.Info/Warn/Error functions directly
// against whatever default handler the process started with; flowd needs
// one named logger per subsystem (SPEC_FULL.md §4.J) plus an explicit
// JSON/text handler choice, so this package builds those loggers once at
// startup and hands them to each subsystem's constructor.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Loggers bundles one *slog.Logger per subsystem, all sharing one handler.
type Loggers struct {
	Graph     *slog.Logger
	Runtime   *slog.Logger
	Server    *slog.Logger
	Component *slog.Logger
	Network   *slog.Logger
}

// New builds the handler (JSON in production, text otherwise) at the given
// level name ("debug", "info", "warn", "error") and derives one named
// logger per subsystem from it.
func New(levelName string, json bool) *Loggers {
	level := parseLevel(levelName)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	base := slog.New(handler)
	slog.SetDefault(base)

	return &Loggers{
		Graph:     base.With("subsystem", "graph"),
		Runtime:   base.With("subsystem", "runtime"),
		Server:    base.With("subsystem", "server"),
		Component: base.With("subsystem", "component"),
		Network:   base.With("subsystem", "network"),
	}
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
