package script

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvsystems/slackbase/pkg/fs"
)

func openTestManager(t *testing.T) *Manager {
	t.Helper()

	fsys := fs.NewReal()
	aw := fs.NewAtomicWriter(fsys)
	dbPath := filepath.Join(t.TempDir(), "test.db")

	m, err := Open(fsys, aw, dbPath)
	require.NoError(t, err)

	return m
}

func TestManager_RegisterAndSourceRoundTrip(t *testing.T) {
	t.Parallel()

	m := openTestManager(t)

	id, err := m.Register("return 1", "", "")
	require.NoError(t, err)
	assert.Len(t, id, 40) // sha1 hex digest length

	src, err := m.Source(id)
	require.NoError(t, err)
	assert.Equal(t, "return 1", src)
}

func TestManager_RegisterWithNameBindsResolve(t *testing.T) {
	t.Parallel()

	m := openTestManager(t)

	id, err := m.Register("return 1", "myscript", "does a thing")
	require.NoError(t, err)

	resolved, err := m.Resolve("myscript")
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	src, err := m.Source("myscript")
	require.NoError(t, err)
	assert.Equal(t, "return 1", src)
}

func TestManager_RegisterSameSourceTwiceReturnsSameID(t *testing.T) {
	t.Parallel()

	m := openTestManager(t)

	id1, err := m.Register("return 1", "", "")
	require.NoError(t, err)

	id2, err := m.Register("return 1", "", "")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
}

func TestManager_RegisterNameAlreadyBoundToDifferentScriptFails(t *testing.T) {
	t.Parallel()

	m := openTestManager(t)

	_, err := m.Register("return 1", "taken", "")
	require.NoError(t, err)

	_, err = m.Register("return 2", "taken", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNameTaken))
}

func TestManager_ResolveUnknownReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	m := openTestManager(t)

	_, err := m.Resolve("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManager_List_SortedBySHA1(t *testing.T) {
	t.Parallel()

	m := openTestManager(t)

	_, err := m.Register("return 1", "a", "")
	require.NoError(t, err)
	_, err = m.Register("return 2", "b", "")
	require.NoError(t, err)

	list := m.List()
	require.Len(t, list, 2)
	assert.LessOrEqual(t, list[0].SHA1, list[1].SHA1)
}

func TestManager_Rename_RebindsNameAndDropsOld(t *testing.T) {
	t.Parallel()

	m := openTestManager(t)

	id, err := m.Register("return 1", "oldname", "")
	require.NoError(t, err)

	require.NoError(t, m.Rename(id, "newname"))

	resolved, err := m.Resolve("newname")
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	_, err = m.Resolve("oldname")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManager_Remove_DeletesMetaAndSource(t *testing.T) {
	t.Parallel()

	m := openTestManager(t)

	id, err := m.Register("return 1", "doomed", "")
	require.NoError(t, err)

	require.NoError(t, m.Remove(id))

	_, err = m.Resolve("doomed")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = m.Source(id)
	assert.Error(t, err)
}

func TestManager_Open_ReloadsPersistedMetadata(t *testing.T) {
	t.Parallel()

	fsys := fs.NewReal()
	aw := fs.NewAtomicWriter(fsys)
	dbPath := filepath.Join(t.TempDir(), "test.db")

	m1, err := Open(fsys, aw, dbPath)
	require.NoError(t, err)

	id, err := m1.Register("return 42", "answer", "the answer")
	require.NoError(t, err)

	m2, err := Open(fsys, aw, dbPath)
	require.NoError(t, err)

	resolved, err := m2.Resolve("answer")
	require.NoError(t, err)
	assert.Equal(t, id, resolved)

	src, err := m2.Source("answer")
	require.NoError(t, err)
	assert.Equal(t, "return 42", src)
}
