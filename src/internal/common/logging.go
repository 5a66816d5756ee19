package common

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
	LogFatal
)

var logLevelNames = map[LogLevel]string{
	LogDebug: "debug",
	LogInfo:  "info",
	LogWarn:  "warn",
	LogError: "error",
	LogFatal: "fatal",
}

func (l LogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return "info"
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogDebug:
		return zapcore.DebugLevel
	case LogWarn:
		return zapcore.WarnLevel
	case LogError:
		return zapcore.ErrorLevel
	case LogFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// ParseLogLevel maps a config string to a LogLevel. Unknown values fall back to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogDebug
	case "warn", "warning":
		return LogWarn
	case "error":
		return LogError
	case "fatal":
		return LogFatal
	default:
		return LogInfo
	}
}

var (
	atomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	baseOnce    sync.Once
	baseLogger  *zap.Logger
)

func base() *zap.Logger {
	baseOnce.Do(func() {
		if os.Getenv("LSP_PROXY_DEBUG") == "true" {
			atomicLevel.SetLevel(zapcore.DebugLevel)
		}
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(zapcore.AddSync(os.Stderr)),
			atomicLevel,
		)
		baseLogger = zap.New(core)
	})
	return baseLogger
}

// SetLogLevel changes the level of every logger created by this package.
func SetLogLevel(level LogLevel) {
	atomicLevel.SetLevel(level.zapLevel())
}

// SafeLogger writes to stderr only; stdout may be a protocol stream.
type SafeLogger struct {
	prefix string
	sugar  *zap.SugaredLogger
}

// NewSafeLogger creates a new safe logger with the given prefix
func NewSafeLogger(prefix string) *SafeLogger {
	return &SafeLogger{
		prefix: prefix,
		sugar:  base().Named(prefix).Sugar(),
	}
}

// NewLoggerWith builds a logger from an arbitrary zap logger, used by tests to capture output.
func NewLoggerWith(prefix string, l *zap.Logger) *SafeLogger {
	return &SafeLogger{prefix: prefix, sugar: l.Named(prefix).Sugar()}
}

// With returns a child logger carrying structured key/value context.
func (l *SafeLogger) With(keysAndValues ...interface{}) *SafeLogger {
	return &SafeLogger{prefix: l.prefix, sugar: l.sugar.With(keysAndValues...)}
}

func (l *SafeLogger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *SafeLogger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *SafeLogger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *SafeLogger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Fatal logs a fatal message and exits
func (l *SafeLogger) Fatal(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}

// Sync flushes buffered entries.
func (l *SafeLogger) Sync() error {
	return l.sugar.Sync()
}

// Global logger instances for convenience
var (
	LSPLogger     = NewSafeLogger("LSP")
	GatewayLogger = NewSafeLogger("Gateway")
	CLILogger     = NewSafeLogger("CLI")
	CacheLogger   = NewSafeLogger("Cache")
	StorageLogger = NewSafeLogger("Storage")
)
