package batch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchAccumulator_EnqueueAssignsIncreasingSeq(t *testing.T) {
	acc := NewBatchAccumulator()
	c1, err := acc.Enqueue(1, true, []byte("GET"), [][]byte{[]byte("a")})
	require.NoError(t, err)
	c2, err := acc.Enqueue(1, true, []byte("GET"), [][]byte{[]byte("b")})
	require.NoError(t, err)
	assert.Less(t, c1.Seq, c2.Seq)
}

func TestBatchAccumulator_EnqueueGroupsBySlot(t *testing.T) {
	acc := NewBatchAccumulator()
	_, _ = acc.Enqueue(1, true, []byte("GET"), nil)
	_, _ = acc.Enqueue(2, true, []byte("GET"), nil)
	_, _ = acc.Enqueue(1, true, []byte("GET"), nil)

	buckets := acc.snapshotBuckets()
	assert.Len(t, buckets, 2)
}

func TestBatchAccumulator_EnqueueFailsAfterExecuted(t *testing.T) {
	acc := NewBatchAccumulator()
	require.True(t, acc.markExecuted())
	_, err := acc.Enqueue(1, true, []byte("GET"), nil)
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
}

func TestBatchAccumulator_MarkExecutedOnlyOnce(t *testing.T) {
	acc := NewBatchAccumulator()
	assert.True(t, acc.markExecuted())
	assert.False(t, acc.markExecuted())
}

func TestBatchAccumulator_ConcurrentEnqueueIsSafe(t *testing.T) {
	acc := NewBatchAccumulator()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, _ = acc.Enqueue(slot%8, true, []byte("GET"), nil)
		}(i)
	}
	wg.Wait()
	assert.Len(t, acc.snapshotBuckets(), 8)
}
