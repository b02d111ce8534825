package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/espbridge/internal/model"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "espbridge"))

	rec := model.BridgeRecord{
		PID:       31337,
		Device:    "/dev/ttyUSB0",
		Port:      4000,
		LogPath:   s.LogPath(),
		StartedAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.Save(rec))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

// TestStore_LoadMissing verifies that the first run, with no record on
// disk, is reported as "no record" rather than an error.
func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())

	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_LoadCorrupt(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, os.WriteFile(s.RecordPath(), []byte("pid: [not, a, number"), 0o644))

	_, ok, err := s.Load()
	assert.Error(t, err)
	assert.False(t, ok)
}

// TestStore_SaveOverwrites verifies that a second launch replaces the
// first record and leaves no temp files behind.
func TestStore_SaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	require.NoError(t, s.Save(model.BridgeRecord{PID: 1, Port: 4000}))
	require.NoError(t, s.Save(model.BridgeRecord{PID: 2, Port: 4000}))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.PID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the record file should remain")
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.Save(model.BridgeRecord{PID: 5}))

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())

	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Paths(t *testing.T) {
	s := NewStore("/var/cache/espbridge")

	assert.Equal(t, "/var/cache/espbridge", s.Dir())
	assert.Equal(t, filepath.Join("/var/cache/espbridge", "bridge.yaml"), s.RecordPath())
	assert.Equal(t, filepath.Join("/var/cache/espbridge", "bridge.log"), s.LogPath())
	assert.Equal(t, filepath.Join("/var/cache/espbridge", "container.log"), s.ContainerLogPath())
}
