// Package logging provides the process-wide structured logger. It wraps
// zap behind the same narrow surface the teacher's internal/debug
// package exposes (SetOutput-style toggles, a quiet mode for when the
// daemon is driven by another tool over stdio), so call sites never
// import zap directly.
package logging

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu      sync.Mutex
	logger  = newDefault()
	quiet   bool
)

func newDefault() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stderr), levelFromEnv())
	return zap.New(core)
}

func levelFromEnv() zapcore.Level {
	switch os.Getenv("PROBE_LOG_LEVEL") {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		if os.Getenv("PROBE_DEBUG") == "1" || os.Getenv("PROBE_DEBUG") == "true" {
			return zapcore.DebugLevel
		}
		return zapcore.InfoLevel
	}
}

// SetQuiet suppresses all output, used when the daemon's stdio is a
// JSON-RPC transport that must not be polluted by log lines.
func SetQuiet(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// SetOutput redirects logging to an arbitrary writer (tests, log files).
func SetOutput(w io.Writer, level zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(w), level)
	logger = zap.New(core)
}

// L returns the shared logger, or a no-op logger when quiet mode is on.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		return zap.NewNop()
	}
	return logger
}

// Named returns a child logger scoped to a component name, matching the
// teacher's convention of tagging log lines by subsystem
// (e.g. "indexmgr", "lsp", "branch").
func Named(component string) *zap.Logger {
	return L().Named(component)
}
