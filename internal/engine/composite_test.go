package engine

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	e, err := Open(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() { _ = e.Close() })

	return e
}

func TestHash_SetGetDelGetAll(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)

	require.NoError(t, e.HashSet("user:1", "name", "ann"))
	require.NoError(t, e.HashSet("user:1", "age", "30"))

	value, ok := e.HashGet("user:1", "name")
	require.True(t, ok)
	assert.Equal(t, `"ann"`, value)

	all := e.HashGetAll("user:1")
	if diff := cmp.Diff(map[string]string{"name": `"ann"`, "age": "30"}, all); diff != "" {
		t.Errorf("hash fields mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, e.HashDel("user:1", "age"))

	_, ok = e.HashGet("user:1", "age")
	assert.False(t, ok)
}

func TestJSONSetField_StoresRawJSONWhenValueIsJSON(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)

	require.NoError(t, e.JSONSetField("doc:1", "tags", `["a","b"]`))

	value, ok := e.JSONGetField("doc:1", "tags")
	require.True(t, ok)
	assert.Equal(t, `["a","b"]`, value)
}

func TestJSONGetField_MissingKeyOrField(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)

	_, ok := e.JSONGetField("absent", "field")
	assert.False(t, ok)

	require.NoError(t, e.JSONSetField("doc:1", "a", "1"))

	_, ok = e.JSONGetField("doc:1", "missing")
	assert.False(t, ok)
}

func TestList_LPushRPushAndPop(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)

	require.NoError(t, e.ListRPush("queue", "a"))
	require.NoError(t, e.ListRPush("queue", "b"))
	require.NoError(t, e.ListLPush("queue", "z"))

	assert.Equal(t, 3, e.ListLen("queue"))

	head, ok, err := e.ListLPop("queue")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "z", head)

	tail, ok, err := e.ListRPop("queue")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", tail)

	assert.Equal(t, 1, e.ListLen("queue"))
}

func TestList_PopOnEmptyListReportsNotFound(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)

	_, ok, err := e.ListLPop("absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = e.ListRPop("absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListRange_PositiveAndNegativeIndices(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)

	for _, v := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, e.ListRPush("letters", v))
	}

	assert.Equal(t, []string{"a", "b", "c"}, e.ListRange("letters", 0, 2))
	assert.Equal(t, []string{"c", "d", "e"}, e.ListRange("letters", -3, -1))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, e.ListRange("letters", 0, -1))
}

func TestListRange_OutOfBoundsClampsToEmpty(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)

	require.NoError(t, e.ListRPush("letters", "a"))

	assert.Equal(t, []string{}, e.ListRange("letters", 5, 10))
	assert.Equal(t, []string{}, e.ListRange("letters", 2, 1))
	assert.Equal(t, []string{}, e.ListRange("absent", 0, -1))
}

func TestSet_AddIsIdempotent(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)

	require.NoError(t, e.SetAdd("tags", "go"))
	require.NoError(t, e.SetAdd("tags", "rust"))
	require.NoError(t, e.SetAdd("tags", "go"))

	assert.ElementsMatch(t, []string{"go", "rust"}, e.SetShow("tags"))
}

func TestSet_ShowOnAbsentKeyIsEmptyNotNilSemantically(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)

	assert.Equal(t, []string{}, e.SetShow("absent"))
}
