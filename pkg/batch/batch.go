package batch

import "context"

// Batch ties one BatchAccumulator to the executor that will run it,
// matching the lifecycle: accumulating -> executed ->
// terminal(success | failure | cancelled).
type Batch struct {
	acc      *BatchAccumulator
	executor *BatchExecutor
}

func NewBatch(executor *BatchExecutor) *Batch {
	return &Batch{acc: NewBatchAccumulator(), executor: executor}
}

func (b *Batch) ID() string { return b.acc.ID }

// Enqueue adds one command to the batch. slot is the destination cluster
// slot; readOnly marks the command as safe to serve from a replica.
func (b *Batch) Enqueue(slot int, readOnly bool, opcode []byte, args [][]byte) (*Command, error) {
	return b.acc.Enqueue(slot, readOnly, opcode, args)
}

// Execute runs every accumulated slot to completion and returns the
// commands in enqueue order. A Batch may only be executed once.
func (b *Batch) Execute(ctx context.Context) ([]*Command, error) {
	return b.executor.Execute(ctx, b.acc)
}
