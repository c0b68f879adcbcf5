// Package logging provides global logging functions for durandal-mcp.
// Use dot import to access L_info, L_error, etc. directly.
//
// Sinks: colored human output on stderr, an optional JSON-lines file sink
// with size-based rotation, and an optional errors-only JSON-lines sink
// rotated the same way. Standard output is reserved for
// protocol frames and is never written here.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Log levels
const (
	LevelFatal = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	logger        *log.Logger
	fileLogger    *log.Logger
	errFileLogger *log.Logger
	fileSink      *rotatingWriter
	errFileSink   *rotatingWriter
	once          sync.Once

	currentLevel int32 = LevelInfo

	// Global shutdown flag - checked by components before operations
	shuttingDown int32
)

// Config holds logging configuration
type Config struct {
	Level         int
	TimeFormat    string
	ShowCaller    bool
	FilePath      string // optional JSON-lines sink
	ErrorFilePath string // optional JSON-lines sink receiving errors only
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		TimeFormat: "15:04:05",
		ShowCaller: true,
	}
}

// ParseLevel converts a level name to its constant. Unknown names map to info.
func ParseLevel(name string) int {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Init initializes the global logger. Safe to call multiple times.
func Init(cfg *Config) {
	once.Do(func() {
		if cfg == nil {
			cfg = DefaultConfig()
		}

		logger = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			TimeFormat:      cfg.TimeFormat,
			ReportCaller:    cfg.ShowCaller,
			CallerOffset:    3, // Skip three frames (emit -> logMsg -> L_*) to reach the caller
		})

		if cfg.FilePath != "" {
			sink, err := newRotatingWriter(cfg.FilePath, maxSinkBytes, keepRotated)
			if err != nil {
				logger.Warn("log file sink unavailable", "path", cfg.FilePath, "error", err)
			} else {
				fileSink = sink
				fileLogger = log.NewWithOptions(sink, log.Options{
					ReportTimestamp: true,
					Formatter:       log.JSONFormatter,
				})
			}
		}
		if cfg.ErrorFilePath != "" {
			sink, err := newRotatingWriter(cfg.ErrorFilePath, maxSinkBytes, keepRotated)
			if err != nil {
				logger.Warn("error log sink unavailable", "path", cfg.ErrorFilePath, "error", err)
			} else {
				errFileSink = sink
				errFileLogger = log.NewWithOptions(sink, log.Options{
					ReportTimestamp: true,
					Formatter:       log.JSONFormatter,
				})
				errFileLogger.SetLevel(log.ErrorLevel)
			}
		}

		atomic.StoreInt32(&currentLevel, int32(cfg.Level))
		applyLevel(cfg.Level)
	})
}

// ensureInit ensures logger is initialized with defaults if not already
func ensureInit() {
	if logger == nil {
		Init(nil)
	}
}

func applyLevel(level int) {
	var l log.Level
	switch level {
	case LevelDebug:
		l = log.DebugLevel
	case LevelInfo:
		l = log.InfoLevel
	case LevelWarn:
		l = log.WarnLevel
	default:
		l = log.ErrorLevel
	}
	logger.SetLevel(l)
	if fileLogger != nil {
		fileLogger.SetLevel(l)
	}
}

// hasFmtVerb checks if a string contains printf-style format verbs
func hasFmtVerb(s string) bool {
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '%' {
			next := s[i+1]
			if next != '%' && strings.ContainsRune("vsdtfgeopqxXbcUT+#", rune(next)) {
				return true
			}
		}
	}
	return false
}

// logMsg handles the flexible logging format:
// - logMsg(level, "message") -> simple
// - logMsg(level, "value is %d", 42) -> printf
// - logMsg(level, "loaded", "key", val, ...) -> structured
func logMsg(level log.Level, msg string, args ...interface{}) {
	ensureInit()

	var finalMsg string
	var keyvals []interface{}

	if len(args) == 0 {
		finalMsg = msg
	} else if hasFmtVerb(msg) {
		finalMsg = fmt.Sprintf(msg, args...)
	} else {
		finalMsg = msg
		keyvals = args
	}

	emit(logger, level, finalMsg, keyvals)
	if fileLogger != nil {
		emit(fileLogger, level, finalMsg, keyvals)
	}
	if errFileLogger != nil && (level == log.ErrorLevel || level == log.FatalLevel) {
		emit(errFileLogger, level, finalMsg, keyvals)
	}
}

func emit(l *log.Logger, level log.Level, msg string, keyvals []interface{}) {
	switch level {
	case log.DebugLevel:
		l.Debug(msg, keyvals...)
	case log.InfoLevel:
		l.Info(msg, keyvals...)
	case log.WarnLevel:
		l.Warn(msg, keyvals...)
	case log.ErrorLevel:
		l.Error(msg, keyvals...)
	case log.FatalLevel:
		l.Fatal(msg, keyvals...)
	}
}

// L_debug logs at debug level
func L_debug(msg string, args ...interface{}) {
	logMsg(log.DebugLevel, msg, args...)
}

// L_info logs at info level
func L_info(msg string, args ...interface{}) {
	logMsg(log.InfoLevel, msg, args...)
}

// L_warn logs at warn level
func L_warn(msg string, args ...interface{}) {
	logMsg(log.WarnLevel, msg, args...)
}

// L_error logs at error level
func L_error(msg string, args ...interface{}) {
	logMsg(log.ErrorLevel, msg, args...)
}

// L_fatal logs at fatal level and exits
func L_fatal(msg string, args ...interface{}) {
	logMsg(log.FatalLevel, msg, args...)
}

// SetLevel changes the log level at runtime
func SetLevel(level int) {
	ensureInit()
	atomic.StoreInt32(&currentLevel, int32(level))
	applyLevel(level)
}

// GetLevel returns the current log level
func GetLevel() int {
	return int(atomic.LoadInt32(&currentLevel))
}

// SetShuttingDown marks the application as shutting down
func SetShuttingDown() {
	atomic.StoreInt32(&shuttingDown, 1)
	L_info("shutting down")
}

// IsShuttingDown returns true if application is shutting down
func IsShuttingDown() bool {
	return atomic.LoadInt32(&shuttingDown) == 1
}

// Close flushes and closes the file sinks, if any.
func Close() {
	if fileSink != nil {
		fileSink.Close()
	}
	if errFileSink != nil {
		errFileSink.Close()
	}
}
