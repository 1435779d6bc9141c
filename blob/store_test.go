package blob

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := []byte{1, 2, 3}
	require.NoError(t, s.Put(ctx, "a", data))
	data[0] = 9

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "a"))
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()
	s := NewMemoryStore()
	assert.Error(t, s.Put(ctx, "a", nil))
}

func TestCompressedStore(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStore()
	data := bytes.Repeat([]byte("grove"), 1000)
	for _, c := range []Compression{None, Zstd, LZ4} {
		s, err := NewCompressed(backend, c)
		require.NoError(t, err)
		require.NoError(t, s.Put(ctx, c.String(), data))

		raw, err := backend.Get(ctx, c.String())
		require.NoError(t, err)
		assert.Equal(t, byte(c), raw[0])
		if c != None {
			assert.Less(t, len(raw), len(data))
		}

		got, err := s.Get(ctx, c.String())
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}

	// blobs put with one algorithm are readable through any other
	s, err := NewCompressed(backend, None)
	require.NoError(t, err)
	got, err := s.Get(ctx, "zstd")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseCompression(t *testing.T) {
	c, err := ParseCompression("LZ4")
	require.NoError(t, err)
	assert.Equal(t, LZ4, c)
	_, err = ParseCompression("gzip")
	assert.Error(t, err)
}
