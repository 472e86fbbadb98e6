package batch

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elikakv/client/pkg/cluster"
	"github.com/elikakv/client/pkg/respio"
)

// scriptedNode is a minimal RESP server whose reply to each command is
// produced by a caller-supplied function, keyed by how many commands this
// node has answered so far - enough to script a MOVED-then-success sequence
// without a full cluster simulator.
type scriptedNode struct {
	ln    net.Listener
	count atomic.Int64
	reply func(n int64, cmd []byte) *respio.RespPacket
}

func newScriptedNode(t *testing.T, reply func(n int64, cmd []byte) *respio.RespPacket) *scriptedNode {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	n := &scriptedNode{ln: ln, reply: reply}
	go n.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return n
}

func (n *scriptedNode) addr() string { return n.ln.Addr().String() }

func (n *scriptedNode) serve() {
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			return
		}
		go n.handle(conn)
	}
}

func (n *scriptedNode) handle(conn net.Conn) {
	defer conn.Close()
	r := respio.NewRespReader(conn)
	w := respio.NewRespWriter(conn)
	for {
		pkt, err := r.Read()
		if err != nil {
			return
		}
		cmd := pkt.GetCommand()
		idx := n.count.Add(1) - 1
		if err := w.Write(n.reply(idx, cmd)); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func alwaysOK(_ int64, _ []byte) *respio.RespPacket {
	return &respio.RespPacket{Type: respio.RespStatus, Data: []byte("OK")}
}

func execConfig() ExecutorConfig {
	return ExecutorConfig{RetryAttempts: 3, RetryIntervalMs: 2, ResponseTimeout: time.Second}
}

func TestBatchExecutor_Success(t *testing.T) {
	node := newScriptedNode(t, alwaysOK)
	router := cluster.NewSlotMapRouter(cluster.PoolConfig{MaxConnectionsPerEntry: 4, DialTimeout: time.Second}, nil)
	router.UpdateShard(context.Background(), cluster.ShardAssignment{SlotStart: 0, SlotEnd: 16383, Master: node.addr()})

	exec := NewBatchExecutor(router, execConfig())
	b := NewBatch(exec)
	_, err := b.Enqueue(5, false, []byte("SET"), [][]byte{[]byte("k"), []byte("v")})
	require.NoError(t, err)
	_, err = b.Enqueue(5, false, []byte("SET"), [][]byte{[]byte("k2"), []byte("v2")})
	require.NoError(t, err)

	results, err := b.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Less(t, results[0].Seq, results[1].Seq)
	for _, cmd := range results {
		v, err := cmd.Promise.Result()
		require.NoError(t, err)
		assert.Equal(t, "OK", string(v.Data))
	}
}

func TestBatchExecutor_ExecuteTwiceFails(t *testing.T) {
	node := newScriptedNode(t, alwaysOK)
	router := cluster.NewSlotMapRouter(cluster.PoolConfig{MaxConnectionsPerEntry: 4, DialTimeout: time.Second}, nil)
	router.UpdateShard(context.Background(), cluster.ShardAssignment{SlotStart: 0, SlotEnd: 16383, Master: node.addr()})

	exec := NewBatchExecutor(router, execConfig())
	b := NewBatch(exec)
	_, _ = b.Enqueue(1, false, []byte("PING"), nil)

	_, err := b.Execute(context.Background())
	require.NoError(t, err)
	_, err = b.Execute(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyExecuted)
}

func TestBatchExecutor_FollowsMovedRedirect(t *testing.T) {
	var targetAddr atomic.Value

	nodeB := newScriptedNode(t, alwaysOK)
	targetAddr.Store(nodeB.addr())

	nodeA := newScriptedNode(t, func(n int64, _ []byte) *respio.RespPacket {
		addr := targetAddr.Load().(string)
		return &respio.RespPacket{Type: respio.RespError, Data: []byte("MOVED 200 " + addr)}
	})

	router := cluster.NewSlotMapRouter(cluster.PoolConfig{MaxConnectionsPerEntry: 4, DialTimeout: time.Second}, nil)
	router.UpdateShard(context.Background(), cluster.ShardAssignment{SlotStart: 0, SlotEnd: 16383, Master: nodeA.addr()})

	exec := NewBatchExecutor(router, execConfig())
	b := NewBatch(exec)
	_, _ = b.Enqueue(200, false, []byte("GET"), [][]byte{[]byte("k")})

	results, err := b.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	v, err := results[0].Promise.Result()
	require.NoError(t, err)
	assert.Equal(t, "OK", string(v.Data))
}

func TestBatchExecutor_ServerErrorIsFatal(t *testing.T) {
	node := newScriptedNode(t, func(_ int64, _ []byte) *respio.RespPacket {
		return &respio.RespPacket{Type: respio.RespError, Data: []byte("WRONGTYPE bad")}
	})
	router := cluster.NewSlotMapRouter(cluster.PoolConfig{MaxConnectionsPerEntry: 4, DialTimeout: time.Second}, nil)
	router.UpdateShard(context.Background(), cluster.ShardAssignment{SlotStart: 0, SlotEnd: 16383, Master: node.addr()})

	exec := NewBatchExecutor(router, execConfig())
	b := NewBatch(exec)
	cmd, _ := b.Enqueue(1, false, []byte("GET"), [][]byte{[]byte("k")})

	_, err := b.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, cmd.Promise.Settled())
	assert.False(t, cmd.Promise.IsSuccess())
}

// stubRouter always fails to resolve, used to exercise retry exhaustion
// without needing a real unreachable address per attempt.
type stubRouter struct{}

func (stubRouter) Resolve(context.Context, cluster.NodeSource, bool, []byte) (*cluster.ConnectionPool, error) {
	return nil, cluster.ErrUnknownSlot
}

func TestBatchExecutor_RetryExhaustionReturnsOperationTimeout(t *testing.T) {
	exec := NewBatchExecutor(stubRouter{}, ExecutorConfig{RetryAttempts: 2, RetryIntervalMs: 1, ResponseTimeout: time.Second})
	b := NewBatch(exec)
	_, _ = b.Enqueue(1, false, []byte("GET"), [][]byte{[]byte("k")})

	_, err := b.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOperationTimeout)
}
