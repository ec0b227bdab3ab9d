package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func noColor() *bool {
	v := false
	return &v
}

func TestInitializeSplitsLevelsAcrossSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spam.log")
	var console bytes.Buffer

	logger, closeFn, err := Initialize(Config{
		Name:         "gdb_script",
		FilePath:     path,
		FileLevel:    zapcore.DebugLevel,
		Console:      &console,
		ConsoleLevel: zapcore.ErrorLevel,
		Color:        noColor(),
	})
	require.NoError(t, err)

	logger.Debug("debug record")
	logger.Warn("warn record")
	logger.Error("error record")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	file := string(data)
	assert.Contains(t, file, " - DEBUG - gdb_script - debug record")
	assert.Contains(t, file, " - WARN - gdb_script - warn record")
	assert.Contains(t, file, " - ERROR - gdb_script - error record")

	assert.NotContains(t, console.String(), "debug record")
	assert.NotContains(t, console.String(), "warn record")
	assert.Contains(t, console.String(), " - ERROR - gdb_script - error record")
}

func TestInitializeAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spam.log")

	for _, msg := range []string{"first run", "second run"} {
		logger, closeFn, err := Initialize(Config{Name: "t", FilePath: path, FileLevel: zapcore.InfoLevel})
		require.NoError(t, err)
		logger.Info(msg)
		require.NoError(t, closeFn())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "first run"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "second run"), lines[1])
}

func TestInitializeWithoutSinks(t *testing.T) {
	logger, closeFn, err := Initialize(Config{})
	require.NoError(t, err)
	logger.Error("dropped")
	assert.NoError(t, closeFn())
}

func TestInitializeBadPath(t *testing.T) {
	_, _, err := Initialize(Config{FilePath: filepath.Join(t.TempDir(), "missing", "spam.log")})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("error")
	require.NoError(t, err)
	assert.Equal(t, zapcore.ErrorLevel, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestShouldUseColorNonFile(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, shouldUseColor(&buf))
}
