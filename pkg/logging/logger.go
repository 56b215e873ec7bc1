package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Level is a log severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int32(l))
	}
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger provides leveled logging for webpilot components.
// All logs of one run go to a single file in ~/.webpilot/logs/.
//
// Nothing is ever written to stdout: in stdio transport mode stdout carries
// the MCP protocol stream.
type Logger struct {
	sessionID string
	component string
	sink      *sink
	owner     bool
}

// sink is the destination shared by a logger and the children derived from it.
type sink struct {
	mu        sync.Mutex
	file      *os.File
	logger    *log.Logger
	logPath   string
	closeOnce sync.Once
}

var (
	// one id per process run; it names the log file
	sessionID     string
	sessionIDOnce sync.Once

	logDir         string
	logDirOverride string
	initOnce       sync.Once
	initErr        error

	minLevel atomic.Int32

	// mirror receives a copy of every entry when non-nil
	mirror atomic.Pointer[io.Writer]
)

func init() {
	minLevel.Store(int32(LevelInfo))
}

// SetLevel sets the minimum level written by every logger.
func SetLevel(l Level) {
	minLevel.Store(int32(l))
}

// SetLogDirectory overrides ~/.webpilot/logs. It only has an effect before
// the first logger is created.
func SetLogDirectory(dir string) {
	logDirOverride = dir
}

// MirrorTo copies every log entry to w in addition to the log file.
// Pass nil to stop mirroring.
func MirrorTo(w io.Writer) {
	if w == nil {
		mirror.Store(nil)
		return
	}
	mirror.Store(&w)
}

// getSessionID returns or creates the session ID for this execution
func getSessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

// initLogDirectory ensures the log directory exists
func initLogDirectory() error {
	initOnce.Do(func() {
		dir := logDirOverride
		if dir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				initErr = fmt.Errorf("failed to get home directory: %w", err)
				return
			}
			dir = filepath.Join(homeDir, ".webpilot", "logs")
		}

		if err := os.MkdirAll(dir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
			return
		}
		logDir = dir
	})
	return initErr
}

// NewLogger creates a new logger for a specific component.
// The logger writes to ~/.webpilot/logs/<session-id>-webpilot.log
//
// If the log directory cannot be created or the log file cannot be opened,
// it returns a fallback logger that writes to stderr along with the error.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	sessID := getSessionID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-webpilot.log", sessID))

	// Append mode: components share the file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		sessionID: sessID,
		component: component,
		sink: &sink{
			file:    file,
			logger:  log.New(file, "", 0),
			logPath: logPath,
		},
		owner: true,
	}, nil
}

// MustLogger is NewLogger for callers that are fine with the stderr fallback.
func MustLogger(component string) *Logger {
	l, _ := NewLogger(component)
	return l
}

// Discard returns a logger that drops everything. Tests use it.
func Discard() *Logger {
	return &Logger{
		sessionID: getSessionID(),
		component: "discard",
		sink:      &sink{logger: log.New(io.Discard, "", 0)},
	}
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error) *Logger {
	logger := log.New(os.Stderr, "", 0)
	l := &Logger{
		sessionID: getSessionID(),
		component: component,
		sink:      &sink{logger: logger},
		owner:     true,
	}
	l.Warnf("failed to initialize file logging, falling back to stderr: %v", err)
	return l
}

// Named returns a child logger for another component that writes to the
// same destination.
func (l *Logger) Named(component string) *Logger {
	return &Logger{
		sessionID: l.sessionID,
		component: component,
		sink:      l.sink,
	}
}

// formatLogEntry renders "[ts] [component] [LEVEL] msg".
func (l *Logger) formatLogEntry(level Level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) write(level Level, format string, v ...any) {
	if l == nil || int32(level) < minLevel.Load() {
		return
	}
	entry := l.formatLogEntry(level, fmt.Sprintf(format, v...))

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.logger.Println(entry)
	if w := mirror.Load(); w != nil && l.sink.file != nil {
		fmt.Fprintln(*w, entry)
	}
}

// Printf logs at info level. It lets a Logger stand in where a printf-style
// logger is expected.
func (l *Logger) Printf(format string, v ...any) {
	l.write(LevelInfo, format, v...)
}

// Debugf, Infof, Warnf and Errorf log at their level. Entries below the
// level set with SetLevel are dropped.
func (l *Logger) Debugf(format string, v ...any) {
	l.write(LevelDebug, format, v...)
}

func (l *Logger) Infof(format string, v ...any) {
	l.write(LevelInfo, format, v...)
}

func (l *Logger) Warnf(format string, v ...any) {
	l.write(LevelWarn, format, v...)
}

func (l *Logger) Errorf(format string, v ...any) {
	l.write(LevelError, format, v...)
}

// Writer adapts the logger for libraries that log through an io.Writer.
// Each write becomes one warning entry.
func (l *Logger) Writer() io.Writer {
	return entryWriter{l}
}

type entryWriter struct{ l *Logger }

func (w entryWriter) Write(p []byte) (int, error) {
	w.l.write(LevelWarn, "%s", strings.TrimRight(string(p), "\r\n"))
	return len(p), nil
}

func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogPath is empty when logging fell back to stderr.
func (l *Logger) LogPath() string {
	return l.sink.logPath
}

// Close closes the log file. Safe to call multiple times. Loggers derived
// with Named do not own the file and closing them is a no-op.
func (l *Logger) Close() error {
	if !l.owner {
		return nil
	}
	var err error
	l.sink.closeOnce.Do(func() {
		if l.sink.file != nil {
			err = l.sink.file.Close()
		}
	})
	return err
}

// GetSessionID returns the id shared by every logger of this run.
func GetSessionID() string {
	return getSessionID()
}

// GetLogDirectory resolves and creates the log directory.
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
