package vhd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestPoolAllocExhaustion(t *testing.T) {
	p := newRequestPool(2)
	a := p.alloc()
	b := p.alloc()
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.Nil(t, p.alloc(), "pool of size 2 is exhausted after two allocations")
	require.Equal(t, 0, p.available())
}

func TestRequestPoolReleaseReturnsSlotForReuse(t *testing.T) {
	p := newRequestPool(1)
	a := p.alloc()
	require.NotNil(t, a)
	require.Nil(t, p.alloc())

	a.buf = []byte{1, 2, 3}
	p.release(a)
	require.Equal(t, 1, p.available())

	b := p.alloc()
	require.NotNil(t, b)
	require.Nil(t, b.buf, "released descriptors come back zeroed")
}

func TestRequestPoolAssignsDistinctIDs(t *testing.T) {
	p := newRequestPool(2)
	a := p.alloc()
	b := p.alloc()
	require.NotEqual(t, a.id, b.id)
}

func TestOpKindString(t *testing.T) {
	require.Equal(t, "DATA_READ", OpDataRead.String())
	require.Equal(t, "BAT_WRITE", OpBATWrite.String())
	require.Equal(t, "UNKNOWN", OpKind(99).String())
}
