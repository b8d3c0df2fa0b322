package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DEBUG level for detailed troubleshooting
	DEBUG LogLevel = iota
	// INFO level for informational messages
	INFO
	// WARN level for warning conditions
	WARN
	// ERROR level for error conditions
	ERROR
	// FATAL level for critical errors that cause program termination
	FATAL
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Color returns the ANSI color code for the log level
func (l LogLevel) Color() string {
	switch l {
	case DEBUG:
		return "\033[36m" // Cyan
	case INFO:
		return "\033[32m" // Green
	case WARN:
		return "\033[33m" // Yellow
	case ERROR:
		return "\033[31m" // Red
	case FATAL:
		return "\033[35m" // Magenta
	default:
		return "\033[0m"
	}
}

// Logger provides leveled logging with caller annotation
type Logger struct {
	level   LogLevel
	writer  io.Writer
	prefix  string
	colored bool
	mu      sync.Mutex
}

// NewLogger creates a new logger
func NewLogger(prefix string, level LogLevel) *Logger {
	// Disable colors when not writing to a terminal
	colored := true
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colored = false
		}
	}

	return &Logger{
		level:   level,
		writer:  os.Stdout,
		prefix:  prefix,
		colored: colored,
	}
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput sets the output destination
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

// log logs a message with the specified level
func (l *Logger) log(level LogLevel, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Get file and line information
	_, file, line, ok := runtime.Caller(2)
	fileInfo := "???"
	if ok {
		fileInfo = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	formattedMsg := msg
	if len(args) > 0 {
		formattedMsg = fmt.Sprintf(msg, args...)
	}

	timeStr := time.Now().Format("2006-01-02 15:04:05")
	if l.colored {
		reset := "\033[0m"
		fmt.Fprintf(l.writer, "%s %s%s%s [%s] [%s] %s\n",
			timeStr, level.Color(), level.String(), reset, l.prefix, fileInfo, formattedMsg)
	} else {
		fmt.Fprintf(l.writer, "%s %s [%s] [%s] %s\n",
			timeStr, level.String(), l.prefix, fileInfo, formattedMsg)
	}

	if level == FATAL {
		os.Exit(1)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(DEBUG, msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(INFO, msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(WARN, msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(ERROR, msg, args...)
}

// Fatal logs a fatal message and terminates the program
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log(FATAL, msg, args...)
}

// Global logger registry
var (
	DefaultLogger *Logger
	loggerMap     = map[string]*Logger{}
	loggerMu      sync.Mutex
	defaultLevel  LogLevel
)

// GetLogger returns a logger with the specified name
func GetLogger(name string) *Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger, ok := loggerMap[name]; ok {
		return logger
	}

	logger := NewLogger(name, defaultLevel)
	loggerMap[name] = logger

	return logger
}

// ParseLevel maps a level name to a LogLevel, defaulting to INFO
func ParseLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Configure applies the configured level, and optionally a log file, to the
// default logger and to every registered and future logger. The file is
// appended to alongside stdout.
func Configure(level, file string) error {
	lvl := ParseLevel(level)

	var writer io.Writer
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writer = io.MultiWriter(os.Stdout, f)
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()

	defaultLevel = lvl
	for _, logger := range loggerMap {
		logger.SetLevel(lvl)
		if writer != nil {
			logger.SetOutput(writer)
		}
	}
	DefaultLogger.SetLevel(lvl)
	if writer != nil {
		DefaultLogger.SetOutput(writer)
	}

	return nil
}

// Configure standard logger to use our custom logger
func init() {
	defaultLevel = ParseLevel(os.Getenv("LOG_LEVEL"))
	DefaultLogger = NewLogger("DEFAULT", defaultLevel)

	log.SetFlags(0)
	log.SetOutput(&logAdapter{DefaultLogger})
}

// logAdapter adapts our logger to the io.Writer interface
type logAdapter struct {
	logger *Logger
}

// Write implements io.Writer for log adapter
func (a *logAdapter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSuffix(string(p), "\n")
	a.logger.Info(msg)
	return len(p), nil
}
