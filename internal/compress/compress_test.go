package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZlibRoundTrip(t *testing.T) {
	z := NewZlib()
	src := bytes.Repeat([]byte("<html>Main_Page</html>"), 200)
	packed, err := z.Compress(src)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(src))

	out, err := z.Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestZlibEmptyInput(t *testing.T) {
	z := NewZlib()
	packed, err := z.Compress(nil)
	require.NoError(t, err)
	out, err := z.Decompress(packed)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestZlibRejectsGarbage(t *testing.T) {
	_, err := NewZlib().Decompress([]byte("not zlib"))
	assert.Error(t, err)
}
