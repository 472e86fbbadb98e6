package batch

import (
	"sync"
	"sync/atomic"

	"github.com/elikakv/client/pkg/respio"
)

// Command is one enqueued operation: its wire frame, its destination slot,
// the sequence number that fixes its place in the final result list, and
// the promise its caller waits on.
type Command struct {
	Seq     uint64
	Slot    int
	Frame   *respio.RespPacket
	Promise *Promise[*respio.RespPacket]
}

func newCommand(seq uint64, slot int, opcode []byte, args [][]byte) *Command {
	elems := make([]*respio.RespPacket, 0, 1+len(args))
	elems = append(elems, &respio.RespPacket{Type: respio.RespString, Data: opcode})
	for _, a := range args {
		elems = append(elems, &respio.RespPacket{Type: respio.RespString, Data: a})
	}
	return &Command{
		Seq:     seq,
		Slot:    slot,
		Frame:   &respio.RespPacket{Type: respio.RespArray, Array: elems},
		Promise: NewPromise[*respio.RespPacket](),
	}
}

// SlotBucket is the per-slot queue of commands accumulated during a batch.
// readOnly starts true and latches false the first time a write command
// joins the bucket; appends are safe from multiple producers, the drain
// (snapshot) is single-consumer at execute time.
type SlotBucket struct {
	Slot int

	readOnly atomic.Bool
	mu       sync.Mutex
	commands []*Command
}

func newSlotBucket(slot int) *SlotBucket {
	b := &SlotBucket{Slot: slot}
	b.readOnly.Store(true)
	return b
}

func (b *SlotBucket) append(cmd *Command, readOnly bool) {
	if !readOnly {
		b.readOnly.Store(false)
	}
	b.mu.Lock()
	b.commands = append(b.commands, cmd)
	b.mu.Unlock()
}

func (b *SlotBucket) ReadOnly() bool {
	return b.readOnly.Load()
}

// Snapshot returns the bucket's commands in enqueue order. Safe to call
// repeatedly across retries; the underlying slice only grows during
// accumulation, which has already finished by the time execution reads it.
func (b *SlotBucket) Snapshot() []*Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Command, len(b.commands))
	copy(out, b.commands)
	return out
}
