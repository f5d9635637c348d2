package aio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFaultBackendInjectsOnTheNumberedCall(t *testing.T) {
	mem := NewMemoryBackend(512)
	f := NewFaultBackend(mem)
	injected := errors.New("injected write failure")
	f.FailOnCall("write", 2, injected)

	buf := make([]byte, 512)
	require.NoError(t, f.WriteAt(buf, 0), "first call passes through")
	require.ErrorIs(t, f.WriteAt(buf, 0), injected, "second call is the armed one")
	require.NoError(t, f.WriteAt(buf, 0), "third call passes through again")
}

func TestFaultBackendLeavesOtherOpsUnaffected(t *testing.T) {
	mem := NewMemoryBackend(512)
	f := NewFaultBackend(mem)
	f.FailOnCall("write", 1, errors.New("boom"))

	buf := make([]byte, 512)
	require.NoError(t, f.ReadAt(buf, 0))
	require.NoError(t, f.Sync())
}
