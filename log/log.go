// Package log provides a thin, package-level structured logger used by every
// component in this repository. It wraps zap's SugaredLogger so call sites
// can log either printf-style ("Debugf") or structured key-value pairs
// ("Debugw") without threading a logger instance through every function.
package log

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	// logTestWriterName is the magic output value that redirects logs to
	// logTestWriter instead of a file or stdout/stderr, for use in tests.
	logTestWriterName = "test"
)

var (
	sugared atomic.Pointer[zap.SugaredLogger]
	level   atomic.Value // string

	// panicOnInvalidChars, when true, makes every log call panic if the
	// formatted message contains invalid UTF-8. Off by default; tests flip
	// it on to assert the check fires.
	panicOnInvalidChars bool

	// logTestWriter is where logs go when Init is called with output set to
	// logTestWriterName. Defaults to stderr so accidental use outside tests
	// is still visible.
	logTestWriter io.Writer = os.Stderr
)

func init() {
	level.Store(LogLevelInfo)
	if err := Init(LogLevelInfo, "stderr", nil); err != nil {
		panic(err)
	}
}

// Init (re)configures the global logger. level is one of the LogLevel*
// constants. output is "stdout", "stderr", a file path, or the internal
// test sentinel. maxSize, when non-nil, is reserved for log-rotation
// thresholds (bytes) in deployments that write to a file; it is otherwise
// ignored.
func Init(lvl, output string, maxSize *int64) error {
	zapLevel, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", lvl, err)
	}

	var ws zapcore.WriteSyncer
	switch output {
	case "stdout":
		ws = zapcore.AddSync(os.Stdout)
	case "stderr":
		ws = zapcore.AddSync(os.Stderr)
	case logTestWriterName:
		ws = zapcore.AddSync(logTestWriter)
	default:
		f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("could not open log file %q: %w", output, err)
		}
		ws = zapcore.AddSync(f)
	}
	_ = maxSize // rotation size is a deployment concern, not exercised here

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, zapLevel)

	sugared.Store(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar())
	level.Store(lvl)
	return nil
}

func get() *zap.SugaredLogger {
	return sugared.Load()
}

// Level returns the currently configured log level.
func Level() string {
	return level.Load().(string)
}

func checkValid(s string) {
	if panicOnInvalidChars && !utf8.ValidString(s) {
		panic(fmt.Sprintf("log: message contains invalid UTF-8: %q", s))
	}
}

// Debugf logs a printf-formatted message at debug level.
func Debugf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	checkValid(msg)
	get().Debug(msg)
}

// Infof logs a printf-formatted message at info level.
func Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	checkValid(msg)
	get().Info(msg)
}

// Warnf logs a printf-formatted message at warn level.
func Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	checkValid(msg)
	get().Warn(msg)
}

// Errorf logs a printf-formatted message at error level.
func Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	checkValid(msg)
	get().Error(msg)
}

// Fatalf logs a printf-formatted message at fatal level and exits.
func Fatalf(format string, args ...any) {
	get().Fatalf(format, args...)
}

// Debugw logs msg at debug level with structured key-value pairs.
func Debugw(msg string, keysAndValues ...any) {
	checkValid(msg)
	get().Debugw(msg, keysAndValues...)
}

// Infow logs msg at info level with structured key-value pairs.
func Infow(msg string, keysAndValues ...any) {
	checkValid(msg)
	get().Infow(msg, keysAndValues...)
}

// Warnw logs msg at warn level with structured key-value pairs.
func Warnw(msg string, keysAndValues ...any) {
	checkValid(msg)
	get().Warnw(msg, keysAndValues...)
}

// Errorw logs msg at error level with structured key-value pairs.
func Errorw(msg string, keysAndValues ...any) {
	checkValid(msg)
	get().Errorw(msg, keysAndValues...)
}

// Error logs one or more values at error level, typically an error.
func Error(args ...any) {
	get().Error(args...)
}

// Warn logs one or more values at warn level.
func Warn(args ...any) {
	get().Warn(args...)
}
