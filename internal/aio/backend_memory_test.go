package aio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackendReadWriteRoundTrip(t *testing.T) {
	b := NewMemoryBackend(1024)

	payload := []byte("some sector bytes")
	require.NoError(t, b.WriteAt(payload, 256))

	out := make([]byte, len(payload))
	require.NoError(t, b.ReadAt(out, 256))
	assert.Equal(t, payload, out)

	size, err := b.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(1024), size)
}

func TestMemoryBackendRejectsOutOfRangeAccess(t *testing.T) {
	b := NewMemoryBackend(16)
	assert.Error(t, b.WriteAt([]byte{1, 2, 3}, 15))
	assert.Error(t, b.ReadAt(make([]byte, 3), 15))
}

func TestMemoryBackendTruncateGrowsAndPreservesPrefix(t *testing.T) {
	b := NewMemoryBackend(8)
	require.NoError(t, b.WriteAt([]byte("abcd"), 0))
	require.NoError(t, b.Truncate(64))

	out := make([]byte, 4)
	require.NoError(t, b.ReadAt(out, 0))
	assert.Equal(t, []byte("abcd"), out)

	size, err := b.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(64), size)
}
