package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(t *testing.T, kind Kind, display int32) Event {
	t.Helper()
	e, err := NewEvent(kind, display)
	require.NoError(t, err)
	return *e
}

func TestNewEvent(t *testing.T) {
	e, err := NewEvent(KindForcedPass, 2)
	require.NoError(t, err)

	assert.Len(t, e.ID, 26)
	assert.Equal(t, KindForcedPass, e.Kind)
	assert.Equal(t, int32(2), e.Display)
	assert.WithinDuration(t, time.Now(), e.Time(), time.Second)
	assert.NoError(t, e.Validate())
}

func TestEventValidate(t *testing.T) {
	assert.ErrorIs(t, (&Event{Kind: KindAnimating}).Validate(), ErrEmptyID)
	assert.ErrorIs(t, (&Event{ID: "x", Kind: "bogus"}).Validate(), ErrUnknownKind)
}

func TestOpen_WritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "extanim_schema_version")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestJournal_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	j, err := Open(path)
	require.NoError(t, err)

	pass := testEvent(t, KindForcedPass, 2)
	pass.Outcome = "timed_out"
	pass.Elapsed = time.Second
	require.NoError(t, j.Append(pass))

	anim := testEvent(t, KindAnimating, 1)
	anim.Animating = true
	require.NoError(t, j.Append(anim))

	events, err := j.Load()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, pass, events[0])
	assert.Equal(t, anim, events[1])

	// Appends continue after a load
	require.NoError(t, j.Append(testEvent(t, KindDisplayRemoved, 1)))
	tail, err := j.Tail(1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, KindDisplayRemoved, tail[0].Kind)

	require.NoError(t, j.Close())

	// Reopen and read back
	fromDisk, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, fromDisk, 3)
}

func TestJournal_AppendVisibleToReaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, j.Append(testEvent(t, KindForcedPass, 1)))
	}

	// A second reader sees every record while the journal stays open
	events, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestJournal_RejectsInvalid(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	defer j.Close()

	assert.Error(t, j.Append(Event{Kind: KindForcedPass}))
}

func TestJournal_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(testEvent(t, KindForcedPass, 8)))
	require.NoError(t, j.Clear())

	events, err := j.Load()
	require.NoError(t, err)
	assert.Empty(t, events)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "extanim_schema_version")
}

func TestJournal_Closed(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "events.jsonl"))
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Append(testEvent(t, KindAnimating, 1)), ErrClosed)
	_, err = j.Load()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, j.Clear(), ErrClosed)
}

func TestReadFile_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"extanim_schema_version":1,"created_at":1703577600}
{"id":"01HQ0000000000000000000001","kind":"forced_pass","display":2,"outcome":"completed","timestamp":1703577600000}
{invalid json}
{"kind":"forced_pass","display":3}
{"id":"01HQ0000000000000000000002","kind":"animating","display":1,"animating":true,"timestamp":1703577601000}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	events, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "completed", events[0].Outcome)
	assert.True(t, events[1].Animating)
}

func TestReadFile_FutureSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"extanim_schema_version":99,"created_at":1}`+"\n"), 0600))

	_, err := ReadFile(path)
	assert.Error(t, err)
}

func TestReadFile_Missing(t *testing.T) {
	events, err := ReadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	assert.Nil(t, events)
}
