package sequence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/magarm/pkg/robot"
)

func threePoses() []robot.Position {
	return []robot.Position{
		robot.NewPosition(100, 100, 100, 100, false),
		robot.NewPosition(200, 200, 200, 200, true),
		robot.NewPosition(300, 300, 300, 300, false),
	}
}

func TestStore_RecordAndDelete(t *testing.T) {
	s := NewStore()
	for i, p := range threePoses() {
		assert.Equal(t, i, s.Record(p))
	}
	s.Record(threePoses()[0]) // duplicates allowed
	assert.Equal(t, 4, s.Len())

	require.NoError(t, s.Delete(1))
	assert.Equal(t, []robot.Position{threePoses()[0], threePoses()[2], threePoses()[0]}, s.Positions())

	p, err := s.At(1)
	require.NoError(t, err)
	assert.Equal(t, threePoses()[2], p)
}

func TestStore_DeleteOutOfRange(t *testing.T) {
	empty := NewStore()
	assert.ErrorIs(t, empty.Delete(0), ErrOutOfRange)

	s := NewStore(threePoses()...)
	for _, i := range []int{-1, 3, 10} {
		assert.ErrorIs(t, s.Delete(i), ErrOutOfRange)
	}
	assert.Equal(t, threePoses(), s.Positions())

	_, err := s.At(3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestStore_PositionsIsACopy(t *testing.T) {
	s := NewStore(threePoses()...)
	ps := s.Positions()
	ps[0] = robot.DefaultHome()
	assert.Equal(t, threePoses(), s.Positions())
}

func TestStore_JSON(t *testing.T) {
	data, err := json.Marshal(NewStore())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))

	data, err = json.Marshal(NewStore(threePoses()[:2]...))
	require.NoError(t, err)
	assert.JSONEq(t, `[[100,100,100,100,0],[200,200,200,200,1]]`, string(data))

	s := NewStore(threePoses()...)
	assert.Error(t, json.Unmarshal([]byte(`[[1,2,3,4,0],[1,2]]`), s))
	assert.Error(t, json.Unmarshal([]byte(`null`), s))
	assert.Equal(t, threePoses(), s.Positions(), "failed decode leaves the store unchanged")
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	saved := NewStore(threePoses()...)

	got, err := saved.Save(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	loaded := NewStore(robot.DefaultHome())
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, threePoses(), loaded.Positions())
}

func TestStore_SaveAppendsExtension(t *testing.T) {
	base := filepath.Join(t.TempDir(), "pick")

	got, err := NewStore(threePoses()...).Save(base)
	require.NoError(t, err)
	assert.Equal(t, base+".json", got)
	assert.FileExists(t, base+".json")
}

func TestStore_SaveEmptyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")

	_, err := NewStore().Save(path)
	assert.ErrorIs(t, err, ErrEmptySequence)
	assert.NoFileExists(t, path)
}

func TestStore_SaveFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "positions.json")

	_, err := NewStore(threePoses()...).Save(path)
	var ferr *FileError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "save", ferr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStore_LoadFailures(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(threePoses()...)

	err := s.Load(filepath.Join(dir, "nope.json"))
	var ferr *FileError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "load", ferr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)

	for name, content := range map[string]string{
		"broken.json":    `[[1,2,3,4,0]`,
		"short.json":     `[[1,2,3,4]]`,
		"badmagnet.json": `[[1,2,3,4,7]]`,
		"null.json":      "null\n",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		assert.Error(t, s.Load(path), name)
	}
	assert.Equal(t, threePoses(), s.Positions())
}

func TestStore_LoadClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, []byte(`[[-10, 2000, 5, 6, 1]]`), 0644))

	s := NewStore()
	require.NoError(t, s.Load(path))
	assert.Equal(t, []robot.Position{robot.NewPosition(0, 1023, 5, 6, true)}, s.Positions())
}
