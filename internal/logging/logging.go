// Package logging builds the structured logger the linker and CLI share.
// Every run always logs human-readable text to stderr; when a JSON log
// destination is also given (for CI capture or a build-server log
// aggregator) the two handlers are fanned out to in lockstep via
// slog-multi, so neither sink has to special-case the other's format.
package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// New builds a *slog.Logger at Info level, or Debug when verbose is set.
// jsonLog may be nil, in which case only the stderr text handler is used.
func New(verbose bool, jsonLog io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	}
	if jsonLog != nil {
		handlers = append(handlers, slog.NewJSONHandler(jsonLog, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slogmulti.Fanout(handlers...))
}
