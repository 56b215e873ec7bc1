package logging

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDir points logging at a temporary directory and resets global state
func setupTestDir(t *testing.T) {
	t.Helper()

	tempDir := t.TempDir()

	origLogDir := logDir
	origOverride := logDirOverride
	origInitErr := initErr
	origSessionID := sessionID
	origLevel := Level(minLevel.Load())

	logDir = ""
	logDirOverride = tempDir
	initErr = nil
	initOnce = sync.Once{}
	sessionID = ""
	sessionIDOnce = sync.Once{}
	SetLevel(LevelDebug)

	t.Cleanup(func() {
		logDir = origLogDir
		logDirOverride = origOverride
		initErr = origInitErr
		initOnce = sync.Once{}
		sessionID = origSessionID
		sessionIDOnce = sync.Once{}
		SetLevel(origLevel)
		MirrorTo(nil)
	})
}

func readLog(t *testing.T, l *Logger) string {
	t.Helper()
	content, err := os.ReadFile(l.LogPath())
	require.NoError(t, err)
	return string(content)
}

func TestNewLogger(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test-component")
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, "test-component", logger.component)
	assert.NotEmpty(t, logger.SessionID())
	assert.FileExists(t, logger.LogPath())

	dir, err := GetLogDirectory()
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(logger.LogPath()))
}

func TestLoggerFormatting(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	require.NoError(t, err)
	defer logger.Close()

	logger.Printf("Test message %d", 123)
	logger.Debugf("Debug message")
	logger.Infof("Info message")
	logger.Warnf("Warning message")
	logger.Errorf("Error message")

	content := readLog(t, logger)
	for _, pattern := range []string{
		"[test] [INFO] Test message 123",
		"[test] [DEBUG] Debug message",
		"[test] [INFO] Info message",
		"[test] [WARN] Warning message",
		"[test] [ERROR] Error message",
	} {
		assert.Contains(t, content, pattern)
	}
}

func TestLevelFiltering(t *testing.T) {
	setupTestDir(t)
	SetLevel(LevelWarn)

	logger, err := NewLogger("filter")
	require.NoError(t, err)
	defer logger.Close()

	logger.Debugf("hidden debug")
	logger.Infof("hidden info")
	logger.Warnf("shown warn")

	content := readLog(t, logger)
	assert.NotContains(t, content, "hidden")
	assert.Contains(t, content, "shown warn")
}

func TestNamedSharesDestination(t *testing.T) {
	setupTestDir(t)

	parent, err := NewLogger("orchestrator")
	require.NoError(t, err)
	defer parent.Close()

	child := parent.Named("launcher")
	child.Infof("from child")
	parent.Infof("from parent")

	// Closing a child must not close the parent's file
	require.NoError(t, child.Close())
	parent.Infof("after child close")

	content := readLog(t, parent)
	assert.Contains(t, content, "[launcher] [INFO] from child")
	assert.Contains(t, content, "[orchestrator] [INFO] from parent")
	assert.Contains(t, content, "after child close")
	assert.Equal(t, parent.LogPath(), child.LogPath())
}

func TestMultipleComponentsShareSession(t *testing.T) {
	setupTestDir(t)

	logger1, err := NewLogger("component1")
	require.NoError(t, err)
	defer logger1.Close()

	logger2, err := NewLogger("component2")
	require.NoError(t, err)
	defer logger2.Close()

	assert.Equal(t, logger1.SessionID(), logger2.SessionID())
	assert.Equal(t, logger1.LogPath(), logger2.LogPath())
}

func TestMirror(t *testing.T) {
	setupTestDir(t)

	var buf bytes.Buffer
	MirrorTo(&buf)

	logger, err := NewLogger("mirror")
	require.NoError(t, err)
	defer logger.Close()

	logger.Infof("copied")
	assert.Contains(t, buf.String(), "[mirror] [INFO] copied")
}

func TestLoggerClose(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	require.NoError(t, err)

	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestLogPathFormat(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("test")
	require.NoError(t, err)
	defer logger.Close()

	fileName := filepath.Base(logger.LogPath())
	require.True(t, strings.HasSuffix(fileName, "-webpilot.log"), fileName)
	assert.Contains(t, strings.TrimSuffix(fileName, "-webpilot.log"), "-")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Errorf("nothing %s", "here")
	assert.Empty(t, l.LogPath())
	assert.NoError(t, l.Close())
}

func TestWriterLogsEntries(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("writer")
	require.NoError(t, err)
	defer logger.Close()

	_, err = io.WriteString(logger.Writer(), "transport hiccup\n")
	require.NoError(t, err)

	content := readLog(t, logger)
	assert.Contains(t, content, "[writer] [WARN] transport hiccup")
	assert.NotContains(t, content, "hiccup\n\n")
}
