// Package logging holds the process-wide zap logger. CLI output meant for the
// user goes to stdout via fmt; everything here is diagnostics on stderr.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base *zap.SugaredLogger

func init() {
	// Safe no-op until Initialize runs, so package-level use never panics.
	base = zap.NewNop().Sugar()
}

// Initialize builds the global logger. Debug enables the debug level and
// caller annotations; otherwise the output stays at info with a console
// encoder.
func Initialize(debug bool) {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stderr),
		level,
	)

	opts := []zap.Option{}
	if debug {
		opts = append(opts, zap.AddCaller())
	}
	base = zap.New(core, opts...).Sugar()
}

// Named returns a logger for one subsystem (scanner, cache, injector, ...).
func Named(name string) *zap.SugaredLogger {
	return base.Named(name)
}

// Sync flushes buffered log entries. Called on process exit.
func Sync() {
	_ = base.Sync()
}
