package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Setup installs the process-wide JSON logger. Unknown level strings
// fall back to info; config validation rejects them before this runs.
func Setup(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})

	slog.SetDefault(slog.New(handler))
}

// Component returns a logger tagged with the owning subsystem so server
// and device lines are separable in aggregated output.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

func Fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
