package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZerkerEOD/krakenhashes/jwtworker/internal/logbuffer"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

// LogFileName is the name of the log file when file logging is enabled
const LogFileName = "jwtworker.log"

var (
	// mu protects all mutable logger state
	mu sync.RWMutex

	isEnabled    bool
	currentLevel LogLevel

	logFile     *os.File
	logFilePath string

	// out is stdout, or stdout+file when file logging is on
	out *log.Logger

	buffer *logbuffer.Ring

	levelNames = map[LogLevel]string{
		LevelDebug:   "DEBUG",
		LevelInfo:    "INFO",
		LevelWarning: "WARNING",
		LevelError:   "ERROR",
	}
	levelMap = map[string]LogLevel{
		"DEBUG":   LevelDebug,
		"INFO":    LevelInfo,
		"WARNING": LevelWarning,
		"ERROR":   LevelError,
	}
)

func init() {
	out = log.New(os.Stdout, "", 0)

	size := logbuffer.DefaultCapacity
	if v := os.Getenv("LOG_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}
	buffer = logbuffer.New(size)

	Reinitialize()
}

// Reinitialize reads DEBUG, LOG_LEVEL and LOG_DIR from the environment.
// Called once at startup and again after a .env file has been loaded.
func Reinitialize() {
	debugEnv := os.Getenv("DEBUG")
	enabled := debugEnv == "true" || debugEnv == "1"

	level := LevelInfo
	if l, ok := levelMap[strings.ToUpper(os.Getenv("LOG_LEVEL"))]; ok {
		level = l
	}

	mu.Lock()
	isEnabled = enabled
	currentLevel = level
	mu.Unlock()

	if enabled {
		if dir := os.Getenv("LOG_DIR"); dir != "" {
			if err := EnableFileLogging(dir); err != nil {
				fmt.Fprintf(os.Stderr, "file logging unavailable: %v\n", err)
			}
		}
		Info("Debug logging initialized - Enabled: %v, Level: %s, File: %q", enabled, levelNames[level], GetLogFilePath())
	} else {
		_ = DisableFileLogging()
	}
}

// IsDebugEnabled returns whether logging is enabled
func IsDebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return isEnabled
}

// GetLogLevel returns the current minimum level
func GetLogLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// GetLogLevelName returns the name of the current minimum level
func GetLogLevelName() string {
	mu.RLock()
	defer mu.RUnlock()
	return levelNames[currentLevel]
}

// GetLogFilePath returns the active log file, or "" when file logging is off
func GetLogFilePath() string {
	mu.RLock()
	defer mu.RUnlock()
	return logFilePath
}

// SetEnabled toggles logging at runtime
func SetEnabled(enabled bool) {
	mu.Lock()
	isEnabled = enabled
	mu.Unlock()
}

// SetLevel changes the minimum level at runtime
func SetLevel(level LogLevel) {
	mu.Lock()
	currentLevel = level
	mu.Unlock()
}

// ParseLevel converts a level name to a LogLevel
func ParseLevel(name string) (LogLevel, bool) {
	l, ok := levelMap[strings.ToUpper(name)]
	return l, ok
}

// EnableFileLogging mirrors output into dir/jwtworker.log
func EnableFileLogging(dir string) error {
	mu.Lock()
	defer mu.Unlock()

	path := filepath.Join(dir, LogFileName)
	if logFile != nil && logFilePath == path {
		return nil
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = f
	logFilePath = path
	out = log.New(io.MultiWriter(os.Stdout, f), "", 0)
	return nil
}

// DisableFileLogging closes the log file and returns to stdout only
func DisableFileLogging() error {
	mu.Lock()
	defer mu.Unlock()

	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	logFilePath = ""
	out = log.New(os.Stdout, "", 0)
	return err
}

// BufferedLogs returns buffered entries at or after since
func BufferedLogs(since time.Time) []logbuffer.Entry {
	return buffer.Since(since)
}

// BufferStats returns the number of buffered entries and the buffer capacity
func BufferStats() (count, capacity int) {
	return buffer.Len(), buffer.Cap()
}

// ClearBuffer drops all buffered entries
func ClearBuffer() {
	buffer.Reset()
}

// Log writes a message at the given level if logging is enabled
func Log(level LogLevel, format string, v ...interface{}) {
	mu.RLock()
	enabled := isEnabled
	minLevel := currentLevel
	mu.RUnlock()

	if !enabled || level < minLevel {
		return
	}

	// skip Log and the Debug/Info/... wrapper
	pc, file, line, _ := runtime.Caller(2)
	funcName := runtime.FuncForPC(pc).Name()

	message := fmt.Sprintf(format, v...)
	now := time.Now()

	buffer.Append(logbuffer.Entry{
		Timestamp: now,
		Level:     levelNames[level],
		Message:   message,
		Caller:    fmt.Sprintf("%s:%d", filepath.Base(file), line),
	})

	mu.RLock()
	out.Printf("[%s] [%s] [%s:%d] [%s] %s\n",
		levelNames[level],
		now.Format("2006-01-02 15:04:05.000"),
		file,
		line,
		funcName,
		message,
	)
	mu.RUnlock()
}

// Debug logs a debug level message
func Debug(format string, v ...interface{}) {
	Log(LevelDebug, format, v...)
}

// Info logs an info level message
func Info(format string, v ...interface{}) {
	Log(LevelInfo, format, v...)
}

// Warning logs a warning level message
func Warning(format string, v ...interface{}) {
	Log(LevelWarning, format, v...)
}

// Error logs an error level message
func Error(format string, v ...interface{}) {
	Log(LevelError, format, v...)
}

// Mask shortens a sensitive value (token, recovered secret) for log output.
// Values of 8 runes or fewer are fully masked.
func Mask(s string) string {
	r := []rune(s)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + "..." + string(r[len(r)-4:])
}
