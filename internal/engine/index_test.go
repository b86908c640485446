package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOffsetIndex_PutThenDeleteRemovesKey(t *testing.T) {
	t.Parallel()

	var raw []byte
	raw = appendLine(raw, encodePut("a", []byte("1"), 0))
	raw = appendLine(raw, encodeDelete("a"))

	idx, err := buildOffsetIndex(raw, 1000)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.len())
}

func TestBuildOffsetIndex_LaterPutWins(t *testing.T) {
	t.Parallel()

	var raw []byte
	raw = appendLine(raw, encodePut("a", []byte("1"), 0))
	raw = appendLine(raw, encodePut("a", []byte("2"), 0))

	idx, err := buildOffsetIndex(raw, 1000)
	require.NoError(t, err)

	ext, ok := idx.get("a")
	require.True(t, ok)

	line, err := trimLFFromSlice(raw, ext)
	require.NoError(t, err)

	rec, err := decodeRecord(line)
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), rec.value)
}

func TestBuildOffsetIndex_ExpiredPutIsNotIndexed(t *testing.T) {
	t.Parallel()

	var raw []byte
	raw = appendLine(raw, encodePut("a", []byte("1"), 500))

	idx, err := buildOffsetIndex(raw, 1000)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.len())
}

func TestBuildOffsetIndex_InvalidLineIsSkippedButKeepsOffsetsAligned(t *testing.T) {
	t.Parallel()

	var raw []byte
	raw = appendLine(raw, "garbage\tline")
	raw = appendLine(raw, encodePut("a", []byte("1"), 0))

	idx, err := buildOffsetIndex(raw, 1000)
	require.NoError(t, err)

	ext, ok := idx.get("a")
	require.True(t, ok)

	line, err := trimLFFromSlice(raw, ext)
	require.NoError(t, err)

	rec, err := decodeRecord(line)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.key)
}

func appendLine(raw []byte, line string) []byte {
	raw = append(raw, line...)
	raw = append(raw, '\n')

	return raw
}

func trimLFFromSlice(raw []byte, ext extent) (string, error) {
	end := ext.offset + ext.length
	if end > int64(len(raw)) {
		end = int64(len(raw))
	}

	return trimLF(raw[ext.offset:end]), nil
}
