package cluster

import (
	"context"
	"sync"

	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
)

const slotCount = 16384

type replicaMember string

func (m replicaMember) String() string { return string(m) }

type hasher struct{}

func (hasher) Sum64(key []byte) uint64 { return xxhash.Sum64(key) }

var replicaHashCfg = consistent.Config{
	PartitionCount: 256,
	Load:           1.25,
	Hasher:         hasher{},
}

// shard groups the pools that own a contiguous slot range: one master, zero
// or more replicas. replicaRing is built by newShard, and only when there are
// at least two replicas - a single replica needs no balancing.
type shard struct {
	master      *ConnectionPool
	replicas    []*ConnectionPool
	replicaRing *consistent.Consistent
}

func newShard(master *ConnectionPool, replicas []*ConnectionPool) *shard {
	s := &shard{master: master, replicas: replicas}
	if len(replicas) > 1 {
		members := make([]consistent.Member, len(replicas))
		for i, p := range replicas {
			members[i] = replicaMember(p.addrHint)
		}
		s.replicaRing = consistent.New(members, replicaHashCfg)
	}
	return s
}

func (s *shard) pickReplica(routingKey []byte) *ConnectionPool {
	switch {
	case len(s.replicas) == 0:
		return s.master
	case len(s.replicas) == 1:
		return s.replicas[0]
	default:
		member := s.replicaRing.LocateKey(routingKey)
		for _, p := range s.replicas {
			if p.addrHint == member.String() {
				return p
			}
		}
		return s.replicas[0]
	}
}

// SlotMapRouter is the default Router: a direct slot-indexed array of shards
// plus an address-keyed lookup for ad hoc MOVED/ASK targets that fall
// outside the slot owner currently on file.
type SlotMapRouter struct {
	poolCfg PoolConfig
	hub     *EventHub

	mu     sync.RWMutex
	slots  [slotCount]*shard
	byAddr map[string]*ConnectionPool
}

func NewSlotMapRouter(poolCfg PoolConfig, hub *EventHub) *SlotMapRouter {
	if hub == nil {
		hub = NewEventHub()
	}
	return &SlotMapRouter{
		poolCfg: poolCfg,
		hub:     hub,
		byAddr:  make(map[string]*ConnectionPool),
	}
}

// UpdateShard installs or replaces the topology assignment for a slot range.
// Pools for addresses already on file are reused; new ones are created and
// warmed up.
func (r *SlotMapRouter) UpdateShard(ctx context.Context, a ShardAssignment) {
	master := r.poolForAddr(ctx, a.Master, RoleMaster)
	replicaPools := make([]*ConnectionPool, 0, len(a.Replicas))
	for _, addr := range a.Replicas {
		replicaPools = append(replicaPools, r.poolForAddr(ctx, addr, RoleReplica))
	}
	s := newShard(master, replicaPools)

	r.mu.Lock()
	defer r.mu.Unlock()
	for slot := a.SlotStart; slot <= a.SlotEnd && slot < slotCount; slot++ {
		r.slots[slot] = s
	}
}

// poolForAddr returns the existing pool for addr or creates a single-entry
// one. Each such pool is a ConnectionPool with exactly one ConnectionEntry,
// matching how a shard's master/replica each get their own entry.
func (r *SlotMapRouter) poolForAddr(ctx context.Context, addr string, role Role) *ConnectionPool {
	r.mu.RLock()
	pool, ok := r.byAddr[addr]
	r.mu.RUnlock()
	if ok {
		return pool
	}

	r.mu.Lock()
	if pool, ok = r.byAddr[addr]; ok {
		r.mu.Unlock()
		return pool
	}
	pool = NewConnectionPool(r.poolCfg, r.hub)
	pool.addrHint = addr
	r.byAddr[addr] = pool
	r.mu.Unlock()

	pool.AddEntry(ctx, addr, role)
	return pool
}

// Resolve implements Router. A MOVED reply permanently reassigns the slot
// (the next lookup for that slot also lands on the new address); ASK only
// affects this one dispatch and never touches slot ownership.
func (r *SlotMapRouter) Resolve(ctx context.Context, src NodeSource, readOnly bool, routingKey []byte) (*ConnectionPool, error) {
	switch src.Redirect {
	case RedirectMoved:
		pool := r.poolForAddr(ctx, src.Addr, RoleMaster)
		r.reassignSlot(src.Slot, pool)
		return pool, nil
	case RedirectAsk:
		return r.poolForAddr(ctx, src.Addr, RoleMaster), nil
	}

	r.mu.RLock()
	s := r.slots[src.Slot]
	r.mu.RUnlock()
	if s == nil {
		return nil, ErrUnknownSlot
	}
	if readOnly {
		return s.pickReplica(routingKey), nil
	}
	return s.master, nil
}

func (r *SlotMapRouter) reassignSlot(slot int, pool *ConnectionPool) {
	if slot < 0 || slot >= slotCount {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[slot] = newShard(pool, nil)
}

// Shards returns every pool currently on file, one per node address, used by
// the admin listing endpoint.
func (r *SlotMapRouter) Shards() []*ConnectionPool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pools := make([]*ConnectionPool, 0, len(r.byAddr))
	for _, p := range r.byAddr {
		pools = append(pools, p)
	}
	return lo.UniqBy(pools, func(p *ConnectionPool) string { return p.addrHint })
}
