// Package telemetry wires up logging and tracing for binaries and
// tests. The library packages only use the otel API; installing a
// real exporter pipeline is the embedding application's business.
package telemetry

import (
	"log/slog"
	"os"
	"testing"
)

// InitSlog installs the default text handler on stderr.
func InitSlog(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

var setupTestEnvironments = map[string]bool{}

// SetupForTesting configures logging for a test environment, ensuring
// that it isn't set up more than once per name.
func SetupForTesting(t testing.TB, name string) func() {
	if setupTestEnvironments[name] {
		return func() {}
	}
	setupTestEnvironments[name] = true
	InitSlog(testing.Verbose())
	return func() {}
}
