package aio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAndPollRoundTrip(t *testing.T) {
	backend := NewMemoryBackend(4096)
	ctx := NewContext(backend, 2, 16, nil)
	defer ctx.Close()

	write := []byte("hello-world-payload")
	wbuf := make([]byte, len(write))
	copy(wbuf, write)

	require.NoError(t, ctx.Submit([]*IOCB{{Op: OpWrite, Offset: 128, Buffer: wbuf, UserData: "write-1"}}))

	var writeComp Completion
	waitForCompletion(t, ctx, func(c Completion) bool {
		if c.IOCB.UserData == "write-1" {
			writeComp = c
			return true
		}
		return false
	})
	require.NoError(t, writeComp.Err)
	assert.Equal(t, len(write), writeComp.N)

	rbuf := make([]byte, len(write))
	require.NoError(t, ctx.Submit([]*IOCB{{Op: OpRead, Offset: 128, Buffer: rbuf, UserData: "read-1"}}))

	var readComp Completion
	waitForCompletion(t, ctx, func(c Completion) bool {
		if c.IOCB.UserData == "read-1" {
			readComp = c
			return true
		}
		return false
	})
	require.NoError(t, readComp.Err)
	assert.Equal(t, write, rbuf)
}

func TestSubmitBeyondCapacitySynthesizesFailureCompletion(t *testing.T) {
	backend := NewMemoryBackend(4096)
	ctx := NewContext(backend, 1, 1, nil)
	defer ctx.Close()

	jobs := make([]*IOCB, 4)
	for i := range jobs {
		jobs[i] = &IOCB{Op: OpWrite, Offset: int64(i), Buffer: []byte{1}, UserData: i}
	}
	require.NoError(t, ctx.Submit(jobs))

	var sawQueueFull bool
	deadline := time.Now().Add(time.Second)
	seen := 0
	for seen < len(jobs) && time.Now().Before(deadline) {
		for _, c := range ctx.Poll() {
			seen++
			if c.Err == ErrQueueFull {
				sawQueueFull = true
			}
		}
	}
	assert.True(t, sawQueueFull, "expected at least one completion to be synthesized as queue-full")
}

func waitForCompletion(t *testing.T, ctx *Context, match func(Completion) bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range ctx.Poll() {
			if match(c) {
				return
			}
		}
	}
	t.Fatal("timed out waiting for completion")
}
