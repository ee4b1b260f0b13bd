// Package logger provides the logging facility used across kubeboot.
// It wraps zap with two custom levels (SUCCESS and FAIL) that the console
// sink renders distinctively, and an optional JSON file sink rotated by
// lumberjack. Initialize the global logger once in main:
//
//	logOpts := logger.DefaultOptions()
//	logOpts.ConsoleLevel = logger.DebugLevel
//	logger.Init(logOpts)
//	defer logger.SyncGlobal()
//
//	logger.Info("bootstrapping cluster %s", name)
//	logger.Success("control plane ready")
package logger

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Level is kubeboot's own log level. It is mapped onto zapcore.Level for the
// underlying logger; SuccessLevel and FailLevel only exist for display.
type Level int8

const (
	DebugLevel Level = iota - 1
	InfoLevel
	// SuccessLevel marks successful completion of a significant operation.
	// Rendered green on the console, logged as INFO in the file sink.
	SuccessLevel
	WarnLevel
	ErrorLevel
	// FailLevel logs the message and exits the process with status 1.
	FailLevel
)

// String returns a lowercase name for the level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case SuccessLevel:
		return "success"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FailLevel:
		return "fail"
	default:
		return fmt.Sprintf("level(%d)", l)
	}
}

// CapitalString returns the uppercase name used as the console prefix.
func (l Level) CapitalString() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case SuccessLevel:
		return "SUCCESS"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FailLevel:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// ToZapLevel converts a Level to the zap level it is recorded at.
func (l Level) ToZapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel, SuccessLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FailLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Options configures a Logger.
type Options struct {
	// ConsoleLevel is the minimum level printed to stdout.
	ConsoleLevel Level
	// FileLevel is the minimum level written to the log file.
	FileLevel Level
	// LogFilePath is the JSON log file location; required when FileOutput is set.
	LogFilePath string
	// ConsoleOutput enables the console sink.
	ConsoleOutput bool
	// FileOutput enables the rotated JSON file sink.
	FileOutput bool
	// ColorConsole enables ANSI colors on the console sink.
	ColorConsole bool
	// TimestampFormat is the time layout for both sinks.
	TimestampFormat string
}

// DefaultOptions returns the configuration used when Init is not given
// anything more specific: INFO+ colored console, no file output.
func DefaultOptions() Options {
	return Options{
		ConsoleLevel:    InfoLevel,
		FileLevel:       DebugLevel,
		LogFilePath:     "kubeboot.log",
		ConsoleOutput:   true,
		FileOutput:      false,
		ColorConsole:    true,
		TimestampFormat: time.RFC3339,
	}
}

// Logger wraps zap.SugaredLogger with the custom level methods.
type Logger struct {
	*zap.SugaredLogger
	opts Options
}

var (
	globalLogger *Logger
	once         sync.Once
)

// Init initializes the global logger. It is safe to call more than once;
// only the first call takes effect.
func Init(opts Options) {
	once.Do(func() {
		globalLogger = NewLogger(opts)
	})
}

// Get returns the global logger, initializing it with DefaultOptions if
// Init was never called.
func Get() *Logger {
	if globalLogger == nil {
		Init(DefaultOptions())
	}
	return globalLogger
}

// NewLogger builds a Logger from opts. Useful for tests that want an
// isolated instance; applications normally use Init/Get.
func NewLogger(opts Options) *Logger {
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = time.RFC3339
	}

	var cores []zapcore.Core
	if opts.ConsoleOutput {
		cores = append(cores, newConsoleCore(opts))
	}
	if opts.FileOutput && opts.LogFilePath != "" {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout(opts.TimestampFormat)
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.LogFilePath,
			MaxSize:    50, // MiB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileWriter, opts.FileLevel.ToZapLevel())
		cores = append(cores, fileCore)
	}
	if len(cores) == 0 {
		return &Logger{SugaredLogger: zap.NewNop().Sugar(), opts: opts}
	}

	zl := zap.New(zapcore.NewTee(cores...))
	return &Logger{SugaredLogger: zl.Sugar(), opts: opts}
}

func (l *Logger) log(level Level, template string, args ...interface{}) {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	msg := fmt.Sprintf(template, args...)
	// The console core reads this field back to render SUCCESS/FAIL.
	fields := []interface{}{customLevelKey, level.CapitalString()}
	switch level {
	case DebugLevel:
		l.SugaredLogger.Debugw(msg, fields...)
	case InfoLevel, SuccessLevel:
		l.SugaredLogger.Infow(msg, fields...)
	case WarnLevel:
		l.SugaredLogger.Warnw(msg, fields...)
	case ErrorLevel:
		l.SugaredLogger.Errorw(msg, fields...)
	case FailLevel:
		l.SugaredLogger.Fatalw(msg, fields...)
	default:
		l.SugaredLogger.Infow(msg, fields...)
	}
}

// Debugf logs at DebugLevel.
func (l *Logger) Debugf(template string, args ...interface{}) { l.log(DebugLevel, template, args...) }

// Infof logs at InfoLevel.
func (l *Logger) Infof(template string, args ...interface{}) { l.log(InfoLevel, template, args...) }

// Successf logs at SuccessLevel.
func (l *Logger) Successf(template string, args ...interface{}) {
	l.log(SuccessLevel, template, args...)
}

// Warnf logs at WarnLevel.
func (l *Logger) Warnf(template string, args ...interface{}) { l.log(WarnLevel, template, args...) }

// Errorf logs at ErrorLevel.
func (l *Logger) Errorf(template string, args ...interface{}) { l.log(ErrorLevel, template, args...) }

// Failf logs at FailLevel and exits the process.
func (l *Logger) Failf(template string, args ...interface{}) { l.log(FailLevel, template, args...) }

// With returns a child logger carrying the given structured context, e.g.
// ("phase", "prepare", "host", "master-1"). The console core renders known
// context keys as bracketed prefixes.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...), opts: l.opts}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil || l.SugaredLogger == nil {
		return nil
	}
	return l.SugaredLogger.Sync()
}

// Package-level helpers against the global logger.

func Debug(template string, args ...interface{})   { Get().Debugf(template, args...) }
func Info(template string, args ...interface{})    { Get().Infof(template, args...) }
func Success(template string, args ...interface{}) { Get().Successf(template, args...) }
func Warn(template string, args ...interface{})    { Get().Warnf(template, args...) }
func Error(template string, args ...interface{})   { Get().Errorf(template, args...) }
func Fail(template string, args ...interface{})    { Get().Failf(template, args...) }

// SyncGlobal flushes the global logger. Call before exit.
func SyncGlobal() error { return Get().Sync() }
