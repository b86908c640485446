package serialize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlain_RoundTripsUnchanged(t *testing.T) {
	t.Parallel()

	p := NewPlain()

	data, err := p.Serialize("hello world")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)

	value, err := p.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, "hello world", value)
}

func TestPlain_Clone(t *testing.T) {
	t.Parallel()

	p := NewPlain()
	clone := p.Clone()

	assert.IsType(t, Plain{}, clone)
}

func TestJSON_CanonicalizesWhitespaceAndKeyOrder(t *testing.T) {
	t.Parallel()

	j := NewJSON()

	data, err := j.Serialize(`{  "b": 2,   "a"  :  1 }`)
	require.NoError(t, err)

	value, err := j.Deserialize(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2}`, value)
}

func TestJSON_RejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	j := NewJSON()

	_, err := j.Serialize("not json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidJSON))
}

func TestJSON_AcceptsScalarsAndArrays(t *testing.T) {
	t.Parallel()

	j := NewJSON()

	cases := []string{`42`, `"a string"`, `[1,2,3]`, `null`, `true`}

	for _, in := range cases {
		in := in

		t.Run(in, func(t *testing.T) {
			t.Parallel()

			_, err := j.Serialize(in)
			assert.NoError(t, err)
		})
	}
}

func TestJSON_Clone(t *testing.T) {
	t.Parallel()

	j := NewJSON()
	clone := j.Clone()

	assert.IsType(t, JSON{}, clone)
}
