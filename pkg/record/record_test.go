package record

import (
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LindonKelley/newtonian-gravity/pkg/simulation"
)

func sampleSnapshot() simulation.Snapshot {
	return simulation.Snapshot{
		Tick: 7,
		Bodies: []simulation.Particle{
			{ID: 0, Pos: mgl64.Vec2{1, 2}, Vel: mgl64.Vec2{0.5, -0.5}, Mass: 3, Radius: 1},
			{ID: 2, Pos: mgl64.Vec2{-4, 8}, Vel: mgl64.Vec2{0, 1}, Mass: 1, Radius: 0.5},
		},
	}
}

func TestSqliteRecordsFrames(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "frames.sqlite"))
	require.NoError(t, err)
	defer db.Close()

	frames := make(chan simulation.Snapshot, 1)
	done := make(chan error, 1)
	go func() {
		done <- db.WriteFrames(frames)
	}()
	frames <- sampleSnapshot()
	close(frames)
	require.NoError(t, <-done)
	require.NoError(t, db.CreateIndices())

	got, err := db.Frame(7)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot().Bodies, got)

	missing, err := db.Frame(8)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestOpenRefusesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.sqlite")
	db, err := Open(path)
	require.NoError(t, err)
	db.Close()

	_, err = Open(path)
	assert.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "final.state")
	want := sampleSnapshot()
	require.NoError(t, SaveState(path, want))

	got, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = LoadState(filepath.Join(t.TempDir(), "nope.state"))
	assert.Error(t, err)
}
