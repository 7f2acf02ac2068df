package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/extanim/internal/screenshot"
)

func TestEngine_Snapshot(t *testing.T) {
	ctrl := newFakeController()
	e := NewEngine(Options{Features: enabled, Compositor: &fakeCompositor{}, Controller: ctrl})
	e.AddDisplay(0, 0, "DSI-1")
	e.AddDisplay(1, 3, "HDMI-A-1")
	e.FrameComposed(context.Background(), []screenshot.Layer{{LayerStack: 3, Screenshot: true}})

	s := e.Snapshot()
	assert.Equal(t, StatusSchemaVersion, s.SchemaVersion)
	assert.Equal(t, os.Getpid(), s.PID)
	assert.True(t, s.GateEnabled)
	assert.True(t, s.Tracking)
	assert.Equal(t, "1s", s.GateTimeout)
	assert.Equal(t, []int32{0, 5, 6, 7}, s.Builtin)
	assert.True(t, s.Animating)
	assert.Equal(t, map[string]int{"builtin": 1, "pluggable": 1, "virtual": 0}, s.Counts)

	require.Len(t, s.Displays, 2)
	assert.Equal(t, "builtin", s.Displays[0].Category)
	assert.False(t, s.Displays[0].Animating)
	assert.Equal(t, "pluggable", s.Displays[1].Category)
	assert.Equal(t, "HDMI-A-1", s.Displays[1].Name)
	assert.True(t, s.Displays[1].Animating)

	// Screenshot gone: nothing animating any more
	e.FrameComposed(context.Background(), nil)
	assert.False(t, e.Snapshot().Animating)
}

func TestStatus_SaveLoadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "status.json")

	missing, err := LoadStatus(path)
	require.NoError(t, err)
	assert.Nil(t, missing)

	e := NewEngine(Options{Features: enabled, Compositor: &fakeCompositor{}})
	e.AddDisplay(8, 2, "virtual")
	require.NoError(t, SaveStatus(path, e.Snapshot()))

	loaded, err := LoadStatus(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Displays, 1)
	assert.Equal(t, "virtual", loaded.Displays[0].Category)
	assert.True(t, loaded.Features.SuppressExternalAnimation)
	assert.False(t, loaded.Stale(time.Minute))

	require.NoError(t, RemoveStatus(path))
	require.NoError(t, RemoveStatus(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadStatus_Errors(t *testing.T) {
	dir := t.TempDir()

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{"), 0600))
	_, err := LoadStatus(corrupt)
	assert.Error(t, err)

	future := filepath.Join(dir, "future.json")
	require.NoError(t, os.WriteFile(future, []byte(`{"schema_version": 99}`), 0600))
	_, err = LoadStatus(future)
	assert.Error(t, err)
}

func TestStatus_Stale(t *testing.T) {
	s := &Status{UpdatedAt: time.Now().Add(-time.Hour).Unix()}
	assert.True(t, s.Stale(time.Minute))
}
