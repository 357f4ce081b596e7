package util

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesFileAndConsole(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() { log.Logger = saved })

	dir := t.TempDir()
	var console bytes.Buffer

	path, err := InitLogger(LogConfig{Level: "debug", Directory: dir, MaxBackups: 3, Console: true, ConsoleOut: &console})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	logger := ComponentLogger("test")
	logger.Info().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"app":"ggeimport"`)
	assert.Contains(t, console.String(), "hello")
}

func TestCleanOldLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"ggeimport_2026-01-01.log",
		"ggeimport_2026-01-02.log",
		"ggeimport_2026-01-03.log",
		"other.log",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	cleanOldLogs(dir, 2)

	assert.NoFileExists(t, filepath.Join(dir, "ggeimport_2026-01-01.log"))
	assert.FileExists(t, filepath.Join(dir, "ggeimport_2026-01-02.log"))
	assert.FileExists(t, filepath.Join(dir, "ggeimport_2026-01-03.log"))
	assert.FileExists(t, filepath.Join(dir, "other.log"))
}

func TestDescribeHost(t *testing.T) {
	info := DescribeHost()
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Equal(t, runtime.NumCPU(), info.CPUCores)
	assert.NotEmpty(t, info.OS)
}

func TestDescribeProcess(t *testing.T) {
	usage, err := DescribeProcess()
	require.NoError(t, err)
	assert.Equal(t, int32(os.Getpid()), usage.PID)
	assert.Positive(t, usage.Goroutines)
}
