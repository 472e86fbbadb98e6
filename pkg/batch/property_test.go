package batch

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elikakv/client/pkg/cluster"
	"github.com/elikakv/client/pkg/respio"
)

// These tests drive the executor with a randomized workload instead of one
// fixed scripted sequence - the teacher's dependency graph carries no
// property-testing library, so this is stdlib math/rand plus testify
// assertions, the same tools the rest of this package's tests already use.

// P1: order-preservation under redirects - a random number of commands
// spread across random slots, every one of which gets redirected away from
// its initial node, must still come back sorted by enqueue order with every
// command settled successfully.
func TestProperty_OrderPreservedAcrossRedirects(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for trial := 0; trial < 10; trial++ {
		var nodeBAddr atomic.Value
		nodeB := newScriptedNode(t, alwaysOK)
		nodeBAddr.Store(nodeB.addr())

		nodeA := newScriptedNode(t, func(_ int64, _ []byte) *respio.RespPacket {
			return &respio.RespPacket{Type: respio.RespError, Data: []byte("MOVED 0 " + nodeBAddr.Load().(string))}
		})

		router := cluster.NewSlotMapRouter(cluster.PoolConfig{MaxConnectionsPerEntry: 8, DialTimeout: time.Second}, nil)
		router.UpdateShard(context.Background(), cluster.ShardAssignment{SlotStart: 0, SlotEnd: 16383, Master: nodeA.addr()})

		exec := NewBatchExecutor(router, execConfig())
		b := NewBatch(exec)

		n := 5 + rng.Intn(25)
		for i := 0; i < n; i++ {
			_, err := b.Enqueue(rng.Intn(16384), false, []byte("SET"), [][]byte{[]byte(fmt.Sprintf("k%d", i)), []byte("v")})
			require.NoError(t, err)
		}

		results, err := b.Execute(context.Background())
		require.NoError(t, err, "trial %d", trial)
		require.Len(t, results, n, "trial %d", trial)
		for i, cmd := range results {
			if i > 0 {
				assert.Less(t, results[i-1].Seq, cmd.Seq, "trial %d: results must stay sorted by enqueue order", trial)
			}
			v, rerr := cmd.Promise.Result()
			require.NoError(t, rerr, "trial %d", trial)
			assert.Equal(t, "OK", string(v.Data))
		}
	}
}

// P5: a redirect never consumes retry budget, regardless of how many times
// a slot bounces before it lands. RetryAttempts is pinned to 1, so if a
// redirect were mistakenly charged against the budget, any randomized
// redirect count K above 1 would exhaust it and fail the operation; instead
// every trial must succeed regardless of K.
func TestProperty_RedirectDoesNotConsumeRetryBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for trial := 0; trial < 15; trial++ {
		k := int64(rng.Intn(20) + 2) // always exceeds the RetryAttempts budget below

		var addr atomic.Value
		node := newScriptedNode(t, func(n int64, _ []byte) *respio.RespPacket {
			if n < k {
				return &respio.RespPacket{Type: respio.RespError, Data: []byte("MOVED 1 " + addr.Load().(string))}
			}
			return &respio.RespPacket{Type: respio.RespStatus, Data: []byte("OK")}
		})
		addr.Store(node.addr())

		router := cluster.NewSlotMapRouter(cluster.PoolConfig{MaxConnectionsPerEntry: 4, DialTimeout: time.Second}, nil)
		router.UpdateShard(context.Background(), cluster.ShardAssignment{SlotStart: 0, SlotEnd: 16383, Master: node.addr()})

		exec := NewBatchExecutor(router, ExecutorConfig{RetryAttempts: 1, RetryIntervalMs: 1, ResponseTimeout: time.Second})
		b := NewBatch(exec)
		_, err := b.Enqueue(1, false, []byte("GET"), [][]byte{[]byte("k")})
		require.NoError(t, err)

		results, err := b.Execute(context.Background())
		require.NoError(t, err, "trial %d: k=%d redirects must never exhaust a RetryAttempts=1 budget", trial, k)
		require.Len(t, results, 1)
		v, rerr := results[0].Promise.Result()
		require.NoError(t, rerr)
		assert.Equal(t, "OK", string(v.Data))
	}
}

// countingRouter always fails resolution and counts how many times it was
// asked to, isolating exactly how many acquisition windows the executor
// opens before giving up.
type countingRouter struct {
	calls *atomic.Int64
}

func (r countingRouter) Resolve(context.Context, cluster.NodeSource, bool, []byte) (*cluster.ConnectionPool, error) {
	r.calls.Add(1)
	return nil, cluster.ErrUnknownSlot
}

// P6: retry exhaustion happens after exactly RetryAttempts+1 acquisition
// windows, for any randomized RetryAttempts budget.
func TestProperty_ExhaustionAfterExactlyRetryAttemptsPlusOneWindows(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for trial := 0; trial < 20; trial++ {
		r := rng.Intn(5)
		var calls atomic.Int64
		exec := NewBatchExecutor(countingRouter{calls: &calls}, ExecutorConfig{RetryAttempts: r, RetryIntervalMs: 1, ResponseTimeout: time.Second})
		b := NewBatch(exec)
		_, err := b.Enqueue(1, false, []byte("GET"), [][]byte{[]byte("k")})
		require.NoError(t, err)

		_, execErr := b.Execute(context.Background())
		require.Error(t, execErr, "trial %d", trial)
		assert.ErrorIs(t, execErr, ErrOperationTimeout, "trial %d", trial)
		assert.Equal(t, int64(r+1), calls.Load(), "trial %d: RetryAttempts=%d must allow exactly r+1 acquisition windows", trial, r)
	}
}
