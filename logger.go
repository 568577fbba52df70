package hio

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging installs a TextHandler as the default slog logger and sets
// its level from the HIO_LOG_LEVEL environment variable (DEBUG/WARN/ERROR,
// default INFO). Applications that want hio's default logging behavior call
// this once at startup; library code never calls it implicitly.
func ConfigureLogging() {
	logLevel.Set(slog.LevelInfo)

	switch os.Getenv("HIO_LOG_LEVEL") {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel overrides the level set by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
