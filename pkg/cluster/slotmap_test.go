package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSlotRouter(t *testing.T) (*SlotMapRouter, *fakeNode, *fakeNode) {
	t.Helper()
	a, err := newFakeNode()
	require.NoError(t, err)
	b, err := newFakeNode()
	require.NoError(t, err)
	t.Cleanup(func() { a.close(); b.close() })

	r := NewSlotMapRouter(PoolConfig{MaxConnectionsPerEntry: 2, DialTimeout: time.Second}, nil)
	r.UpdateShard(context.Background(), ShardAssignment{SlotStart: 0, SlotEnd: 100, Master: a.addr()})
	return r, a, b
}

func TestSlotMapRouter_ResolvesOwningShard(t *testing.T) {
	r, a, _ := newTestSlotRouter(t)

	pool, err := r.Resolve(context.Background(), NodeSource{Slot: 50}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, a.addr(), pool.addrHint)
}

func TestSlotMapRouter_UnknownSlotErrors(t *testing.T) {
	r, _, _ := newTestSlotRouter(t)
	_, err := r.Resolve(context.Background(), NodeSource{Slot: 9000}, false, nil)
	assert.ErrorIs(t, err, ErrUnknownSlot)
}

func TestSlotMapRouter_MovedPermanentlyReassignsSlot(t *testing.T) {
	r, _, b := newTestSlotRouter(t)

	pool, err := r.Resolve(context.Background(), NodeSource{Slot: 50, Addr: b.addr(), Redirect: RedirectMoved}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, b.addr(), pool.addrHint)

	// A fresh lookup with no redirect now lands on the reassigned address.
	pool2, err := r.Resolve(context.Background(), NodeSource{Slot: 50}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, b.addr(), pool2.addrHint)
}

func TestSlotMapRouter_AskNeverTouchesSlotOwnership(t *testing.T) {
	r, a, b := newTestSlotRouter(t)

	pool, err := r.Resolve(context.Background(), NodeSource{Slot: 50, Addr: b.addr(), Redirect: RedirectAsk}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, b.addr(), pool.addrHint)

	// Slot 50's permanent owner is still a, unaffected by the one-shot ASK.
	pool2, err := r.Resolve(context.Background(), NodeSource{Slot: 50}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, a.addr(), pool2.addrHint)
}

func TestStaticRouter_AlwaysResolvesToItsPool(t *testing.T) {
	pool := NewConnectionPool(PoolConfig{}, nil)
	r := NewStaticRouter(pool)

	got, err := r.Resolve(context.Background(), NodeSource{Slot: 1234}, true, nil)
	require.NoError(t, err)
	assert.Same(t, pool, got)
}
