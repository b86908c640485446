package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvsystems/slackbase/pkg/fs"
)

func TestSaveLoadHint_RoundTrip(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()
	aw := fs.NewAtomicWriter(fsys)
	path := filepath.Join(t.TempDir(), "test.hint")

	idx := newOffsetIndex()
	idx.set("a", extent{offset: 0, length: 10})
	idx.set("b", extent{offset: 10, length: 20})

	require.NoError(t, saveHint(aw, path, idx))

	loaded, err := loadHint(fsys, path)
	require.NoError(t, err)

	ext, ok := loaded.get("a")
	require.True(t, ok)
	assert.Equal(t, extent{offset: 0, length: 10}, ext)

	ext, ok = loaded.get("b")
	require.True(t, ok)
	assert.Equal(t, extent{offset: 10, length: 20}, ext)
}

func TestSaveHint_Empty(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()
	aw := fs.NewAtomicWriter(fsys)
	path := filepath.Join(t.TempDir(), "test.hint")

	require.NoError(t, saveHint(aw, path, newOffsetIndex()))

	loaded, err := loadHint(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.len())
}

func TestLoadHint_MalformedRowIsRejected(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()
	path := filepath.Join(t.TempDir(), "test.hint")

	require.NoError(t, fsys.WriteFile(path, []byte("a,notanumber,5\n"), 0o644))

	_, err := loadHint(fsys, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestHintIsFresh_MissingHintIsNotFresh(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")
	hintPath := filepath.Join(dir, "test.hint")

	require.NoError(t, fsys.WriteFile(logPath, []byte("x"), 0o644))

	fresh, err := hintIsFresh(fsys, logPath, hintPath)
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestHintIsFresh_NewerHintIsFresh(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")
	hintPath := filepath.Join(dir, "test.hint")

	require.NoError(t, fsys.WriteFile(logPath, []byte("x"), 0o644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, fsys.WriteFile(hintPath, []byte("y"), 0o644))

	fresh, err := hintIsFresh(fsys, logPath, hintPath)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestHintIsFresh_StaleHintIsNotFresh(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "test.log")
	hintPath := filepath.Join(dir, "test.hint")

	require.NoError(t, fsys.WriteFile(hintPath, []byte("y"), 0o644))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, fsys.WriteFile(logPath, []byte("x"), 0o644))

	fresh, err := hintIsFresh(fsys, logPath, hintPath)
	require.NoError(t, err)
	assert.False(t, fresh)
}
