package script

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCapabilities is an in-memory Capabilities double for exercising the
// sandbox without a live engine.
type fakeCapabilities struct {
	data map[string]string
}

func newFakeCapabilities(seed map[string]string) *fakeCapabilities {
	data := make(map[string]string, len(seed))
	for k, v := range seed {
		data[k] = v
	}

	return &fakeCapabilities{data: data}
}

func (f *fakeCapabilities) Get(key string) (string, bool) {
	v, ok := f.data[key]
	return v, ok
}

func (f *fakeCapabilities) Set(key, value string) error {
	f.data[key] = value
	return nil
}

func (f *fakeCapabilities) Delete(key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeCapabilities) Snapshot() map[string]string {
	out := make(map[string]string, len(f.data))
	for k, v := range f.data {
		out[k] = v
	}

	return out
}

type failingCapabilities struct {
	*fakeCapabilities
}

func (f *failingCapabilities) Set(key, value string) error {
	return errors.New("disk full")
}

func TestRun_ReturnsScalar(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities(nil)

	result, err := Run("return 1 + 1", nil, nil, caps)
	require.NoError(t, err)
	assert.Equal(t, "2", result)
}

func TestRun_GetSetDelCallbacks(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities(map[string]string{"k": "v"})

	_, err := Run(`
		local existing = GET(KEYS[1])
		SET(KEYS[2], existing)
		DEL(KEYS[1])
		return existing
	`, []string{"k", "k2"}, nil, caps)
	require.NoError(t, err)

	_, ok := caps.Get("k")
	assert.False(t, ok)

	v, ok := caps.Get("k2")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestRun_KeysAndArgsVisibleAsTables(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities(nil)

	result, err := Run("return KEYS[1] .. ARGS[1]", []string{"foo"}, []string{"bar"}, caps)
	require.NoError(t, err)
	assert.Equal(t, `"foobar"`, result)
}

func TestRun_DBTableExposesSnapshot(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities(map[string]string{"a": "1"})

	result, err := Run("return DB.a", nil, nil, caps)
	require.NoError(t, err)
	assert.Equal(t, `"1"`, result)
}

func TestRun_TableResultRendersAsJSONArrayWhenContiguous(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities(nil)

	result, err := Run(`return {"a", "b", "c"}`, nil, nil, caps)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b","c"]`, result)
}

func TestRun_TableResultRendersAsJSONObjectWhenSparse(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities(nil)

	result, err := Run(`local t = {} t["x"] = 1 t["y"] = 2 return t`, nil, nil, caps)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1,"y":2}`, result)
}

func TestRun_NoReturnValueYieldsNull(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities(nil)

	result, err := Run("local x = 1", nil, nil, caps)
	require.NoError(t, err)
	assert.Equal(t, "null", result)
}

func TestRun_SyntaxErrorIsClassified(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities(nil)

	_, err := Run("this is not lua (((", nil, nil, caps)
	require.Error(t, err)

	var sandboxErr *SandboxError
	require.True(t, errors.As(err, &sandboxErr))
	assert.Equal(t, "syntax", sandboxErr.Kind)
}

func TestRun_CallbackFailurePropagatesAsSandboxError(t *testing.T) {
	t.Parallel()

	caps := &failingCapabilities{fakeCapabilities: newFakeCapabilities(nil)}

	_, err := Run(`SET("k", "v")`, nil, nil, caps)
	require.Error(t, err)

	var sandboxErr *SandboxError
	require.True(t, errors.As(err, &sandboxErr))
}

func TestRun_GetMissingKeyReturnsNilToLua(t *testing.T) {
	t.Parallel()

	caps := newFakeCapabilities(nil)

	result, err := Run(`
		local v = GET("missing")
		if v == nil then return "was-nil" end
		return "not-nil"
	`, nil, nil, caps)
	require.NoError(t, err)
	assert.Equal(t, `"was-nil"`, result)
}
