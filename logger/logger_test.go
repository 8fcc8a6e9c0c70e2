package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	l := New(WARN, "", 10)
	l.SetConsoleOutput(false)

	l.Error("boom")
	l.Warn("careful")
	l.Info("ignored")
	l.Debug("ignored")

	buf := l.GetBuffer()
	require.Len(t, buf, 2)
	assert.Equal(t, "boom", buf[0].Message)
	assert.Equal(t, "careful", buf[1].Message)
}

func TestContextPairs(t *testing.T) {
	l := New(DEBUG, "", 10)
	l.SetConsoleOutput(false)

	l.Info("job done", "id", "j1", "retries", 2)

	buf := l.GetBuffer()
	require.Len(t, buf, 1)
	assert.Equal(t, "j1", buf[0].Context["id"])
	assert.Equal(t, 2, buf[0].Context["retries"])
}

func TestBufferBounded(t *testing.T) {
	l := New(INFO, "", 3)
	l.SetConsoleOutput(false)

	for i := 0; i < 5; i++ {
		l.Info("entry")
	}
	assert.Len(t, l.GetBuffer(), 3)
}

func TestFileOutput(t *testing.T) {
	dir := t.TempDir()
	l := New(INFO, dir, 10)
	l.SetConsoleOutput(false)

	l.Info("written to file", "key", "value")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "print-agent.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] written to file")
	assert.Contains(t, string(data), "key=value")
}

func TestFormatLogEntry(t *testing.T) {
	l := New(DEBUG, "", 10)
	l.SetConsoleOutput(false)
	l.Warn("low paper", "printer", "Front_Desk")

	line := formatLogEntry(l.GetBuffer()[0])
	assert.True(t, strings.Contains(line, "[WARN] low paper"))
	assert.True(t, strings.Contains(line, "printer=Front_Desk"))
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, ERROR, LevelFromString("error"))
	assert.Equal(t, TRACE, LevelFromString("TRACE"))
	assert.Equal(t, INFO, LevelFromString("bogus"))
}
