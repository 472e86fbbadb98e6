package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionPool_AcquireAndRelease(t *testing.T) {
	node, err := newFakeNode()
	require.NoError(t, err)
	defer node.close()

	pool := NewConnectionPool(PoolConfig{MaxConnectionsPerEntry: 2, DialTimeout: time.Second}, nil)
	entry := pool.AddEntry(context.Background(), node.addr(), RoleMaster)
	require.NotNil(t, entry)

	conn, gotEntry, err := pool.AcquireWrite(context.Background())
	require.NoError(t, err)
	assert.Same(t, entry, gotEntry)
	assert.True(t, conn.Healthy())

	gotEntry.ReleaseConnection(conn, true)
	assert.Equal(t, 1, entry.Stats().Idle)
	assert.Equal(t, 0, entry.Stats().InUse)
}

func TestConnectionPool_AcquireReadFallsBackToMaster(t *testing.T) {
	node, err := newFakeNode()
	require.NoError(t, err)
	defer node.close()

	pool := NewConnectionPool(PoolConfig{MaxConnectionsPerEntry: 2, DialTimeout: time.Second}, nil)
	pool.AddEntry(context.Background(), node.addr(), RoleMaster)

	conn, entry, err := pool.AcquireRead(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RoleMaster, entry.Role)
	entry.ReleaseConnection(conn, true)
}

func TestConnectionPool_ExhaustedReportsSaturatedHosts(t *testing.T) {
	node, err := newFakeNode()
	require.NoError(t, err)
	defer node.close()

	pool := NewConnectionPool(PoolConfig{MaxConnectionsPerEntry: 1, DialTimeout: time.Second}, nil)
	pool.AddEntry(context.Background(), node.addr(), RoleMaster)

	conn, entry, err := pool.AcquireWrite(context.Background())
	require.NoError(t, err)

	_, _, err = pool.AcquireWrite(context.Background())
	require.Error(t, err)
	var exhausted *PoolExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Contains(t, exhausted.Saturated, node.addr())

	entry.ReleaseConnection(conn, true)
}

func TestConnectionPool_QuarantineAndReconnect(t *testing.T) {
	addr, err := freePort()
	require.NoError(t, err)

	pool := NewConnectionPool(PoolConfig{
		MaxConnectionsPerEntry:  2,
		MinIdlePerEntry:         1,
		DialTimeout:             200 * time.Millisecond,
		FailedAttemptsThreshold: 1,
		ReconnectTimeout:        50 * time.Millisecond,
	}, nil)
	entry := pool.AddEntry(context.Background(), addr, RoleMaster)

	assert.Eventually(t, func() bool {
		return entry.Frozen() && entry.FreezeReason() == FreezeReconnect
	}, 2*time.Second, 10*time.Millisecond, "entry should quarantine once dialing fails")

	ln, err := listenOn(addr)
	require.NoError(t, err)
	node := &fakeNode{ln: ln}
	defer node.close()
	go node.serve()

	assert.Eventually(t, func() bool {
		return !entry.Frozen()
	}, 5*time.Second, 20*time.Millisecond, "the background probe should reconnect and unfreeze the entry")
}

func TestConnectionPool_ForceUnfreeze(t *testing.T) {
	node, err := newFakeNode()
	require.NoError(t, err)
	defer node.close()

	pool := NewConnectionPool(PoolConfig{MaxConnectionsPerEntry: 2, DialTimeout: time.Second}, nil)
	entry := pool.AddEntry(context.Background(), node.addr(), RoleMaster)
	entry.Freeze(FreezeManual)

	assert.True(t, pool.ForceUnfreeze(node.addr()))
	assert.False(t, entry.Frozen())
	assert.False(t, pool.ForceUnfreeze("127.0.0.1:1"), "unknown address returns false")
}

func TestConnectionPool_CloseFreezesEverySystemShutdown(t *testing.T) {
	node, err := newFakeNode()
	require.NoError(t, err)
	defer node.close()

	pool := NewConnectionPool(PoolConfig{MaxConnectionsPerEntry: 2, DialTimeout: time.Second}, nil)
	entry := pool.AddEntry(context.Background(), node.addr(), RoleMaster)

	require.NoError(t, pool.Close())
	assert.True(t, entry.Frozen())
	assert.Equal(t, FreezeSystemShutdown, entry.FreezeReason())
	assert.ErrorIs(t, pool.Close(), ErrShutdown)

	_, _, err = pool.AcquireWrite(context.Background())
	assert.ErrorIs(t, err, ErrShutdown)
}
