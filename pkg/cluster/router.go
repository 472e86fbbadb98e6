package cluster

import (
	"context"
	"errors"
)

// ErrUnknownSlot is returned when a slot has no owning shard yet - the
// topology manager has not reported an assignment for it.
var ErrUnknownSlot = errors.New("elika cluster: no shard owns this slot")

// Router is the external contract the batch executor depends on: it
// resolves a NodeSource to the pool that should serve it, honoring MOVED/ASK
// address overrides, and it is where read-only requests get balanced across
// a shard's replicas. Discovering topology is out of scope here; Router only
// consumes assignments pushed to it.
type Router interface {
	// Resolve returns the pool a command should be sent to. readOnly picks
	// between master and replica candidates when src carries no redirect;
	// routingKey seeds the replica balancer when a shard has more than one
	// replica pool.
	Resolve(ctx context.Context, src NodeSource, readOnly bool, routingKey []byte) (*ConnectionPool, error)
}

// ShardAssignment is how a topology manager describes one shard's current
// ownership. SlotStart/SlotEnd are inclusive.
type ShardAssignment struct {
	SlotStart int
	SlotEnd   int
	Master    string
	Replicas  []string
}

// StaticRouter is the degenerate single-pool case: every slot, and every
// redirect, resolves to the same pool. Useful for a non-cluster deployment
// or for tests that don't care about slot topology.
type StaticRouter struct {
	pool *ConnectionPool
}

func NewStaticRouter(pool *ConnectionPool) *StaticRouter {
	return &StaticRouter{pool: pool}
}

func (s *StaticRouter) Resolve(_ context.Context, _ NodeSource, _ bool, _ []byte) (*ConnectionPool, error) {
	return s.pool, nil
}
