package batch

import (
	"sync/atomic"

	"github.com/lithammer/shortuuid/v4"
	"github.com/puzpuzpuz/xsync/v3"
)

// BatchAccumulator partitions queued commands by destination slot. Multiple
// producers may enqueue concurrently until Execute transitions it to the
// executed state; each slot's bucket is itself safe for concurrent
// append.
type BatchAccumulator struct {
	ID string

	buckets  *xsync.MapOf[int, *SlotBucket]
	seq      atomic.Uint64
	executed atomic.Bool
}

func NewBatchAccumulator() *BatchAccumulator {
	return &BatchAccumulator{
		ID:      shortuuid.New(),
		buckets: xsync.NewMapOf[int, *SlotBucket](),
	}
}

// Enqueue assigns the command a sequence number and appends it to its slot's
// bucket, creating the bucket on first use. Fails once the batch has
// executed.
func (a *BatchAccumulator) Enqueue(slot int, readOnly bool, opcode []byte, args [][]byte) (*Command, error) {
	if a.executed.Load() {
		return nil, ErrAlreadyExecuted
	}
	bucket, _ := a.buckets.Compute(slot, func(oldValue *SlotBucket, loaded bool) (*SlotBucket, bool) {
		if loaded {
			return oldValue, false
		}
		return newSlotBucket(slot), false
	})
	seq := a.seq.Add(1)
	cmd := newCommand(seq, slot, opcode, args)
	bucket.append(cmd, readOnly)
	return cmd, nil
}

// markExecuted is the single CAS gate guarding the executed transition;
// only the first caller proceeds to dispatch.
func (a *BatchAccumulator) markExecuted() bool {
	return a.executed.CompareAndSwap(false, true)
}

// snapshotBuckets snapshots the current slot set. Called once, at the start of
// execution, after the executed flag is already set - no further enqueue
// can add a bucket from this point on.
func (a *BatchAccumulator) snapshotBuckets() []*SlotBucket {
	out := make([]*SlotBucket, 0)
	a.buckets.Range(func(_ int, b *SlotBucket) bool {
		out = append(out, b)
		return true
	})
	return out
}
