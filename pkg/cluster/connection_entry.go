package cluster

import (
	"sync"
	"sync/atomic"

	"github.com/lithammer/shortuuid/v4"
)

// Role distinguishes a node that accepts writes from one that only serves
// reads. A read-only batch may target either; a write batch only a master.
type Role int32

const (
	RoleMaster Role = iota
	RoleReplica
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "replica"
}

// FreezeReason records why an entry was pulled out of acquisition. Frozen
// always implies a non-none reason.
type FreezeReason int32

const (
	FreezeNone FreezeReason = iota
	FreezeSystemShutdown
	FreezeReconnect
	FreezeManual
)

// ConnectionEntry tracks one remote endpoint: its live connection set, its
// in-flight count, its failed-attempt counter and its freeze state. All
// counter mutations below are linearizable with respect to the entry's own
// mutex; the entry never takes the owning pool's lock.
type ConnectionEntry struct {
	ID   string
	Addr string
	Role Role

	threshold     uint32
	maxConns      int
	mu            sync.Mutex
	available     []*Connection
	inUse         int
	failedAttempts uint32

	frozen       atomic.Bool
	freezeReason atomic.Int32

	// probeInFlight caps an entry to one in-flight reconnection probe.
	probeInFlight atomic.Bool
}

func NewConnectionEntry(addr string, role Role, maxConns int, threshold uint32) *ConnectionEntry {
	return &ConnectionEntry{
		ID:        shortuuid.New(),
		Addr:      addr,
		Role:      role,
		threshold: threshold,
		maxConns:  maxConns,
		available: make([]*Connection, 0, maxConns),
	}
}

// TryAcquire atomically checks AcquisitionEligible, failed-attempts <
// threshold, and pool headroom, then reserves a slot by incrementing
// in-use-count. No state changes on failure. Consulting AcquisitionEligible
// rather than the raw Frozen bit is what lets a system-shutdown-frozen
// master still take writes - see AcquisitionEligible.
func (e *ConnectionEntry) TryAcquire() bool {
	if !e.AcquisitionEligible() {
		return false
	}
	if atomic.LoadUint32(&e.failedAttempts) >= e.threshold {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inUse+len(e.available) >= e.maxConns {
		return false
	}
	e.inUse++
	return true
}

// Poll removes one connection from the idle set. It does not touch
// in-use-count: TryAcquire already reserved the slot.
func (e *ConnectionEntry) Poll() *Connection {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.available)
	if n == 0 {
		return nil
	}
	conn := e.available[n-1]
	e.available = e.available[:n-1]
	return conn
}

// Release returns conn to the idle set if it is still healthy; otherwise the
// caller is expected to have already closed it and Release just drops the
// reference. Release does not touch in-use-count - call ReleaseSlot too.
func (e *ConnectionEntry) Release(conn *Connection, healthy bool) {
	if !healthy {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.available) >= e.maxConns {
		return
	}
	e.available = append(e.available, conn)
}

// ReleaseSlot decrements in-use-count. Every TryAcquire success must be
// matched by exactly one ReleaseSlot, on every exit path.
func (e *ConnectionEntry) ReleaseSlot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inUse > 0 {
		e.inUse--
	}
}

// ReleaseConnection is the common happy-path helper: return conn to idle and
// free the reservation in one call.
func (e *ConnectionEntry) ReleaseConnection(conn *Connection, healthy bool) {
	e.Release(conn, healthy)
	e.ReleaseSlot()
}

// AddIdle registers a freshly-opened connection as idle without changing
// in-use-count - used by warm-up, which opens connections nobody has
// reserved yet.
func (e *ConnectionEntry) AddIdle(conn *Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.available = append(e.available, conn)
}

func (e *ConnectionEntry) IncFailed() uint32 {
	return atomic.AddUint32(&e.failedAttempts, 1)
}

func (e *ConnectionEntry) ResetFailed() {
	atomic.StoreUint32(&e.failedAttempts, 0)
}

func (e *ConnectionEntry) FailedAttempts() uint32 {
	return atomic.LoadUint32(&e.failedAttempts)
}

// Freeze sets frozen iff not already; idempotent per reason.
func (e *ConnectionEntry) Freeze(reason FreezeReason) bool {
	if !e.frozen.CompareAndSwap(false, true) {
		return false
	}
	e.freezeReason.Store(int32(reason))
	return true
}

// Unfreeze clears the freeze state. Only the reconnect probe or an explicit
// force-unfreeze may call this.
func (e *ConnectionEntry) Unfreeze() {
	e.freezeReason.Store(int32(FreezeNone))
	e.frozen.Store(false)
}

func (e *ConnectionEntry) Frozen() bool {
	return e.frozen.Load()
}

func (e *ConnectionEntry) FreezeReason() FreezeReason {
	return FreezeReason(e.freezeReason.Load())
}

// AcquisitionEligible implements the master-specific rule: a master frozen
// for administrative (system) reasons must still accept routed writes until
// topology change completes, so it is treated as eligible for acquisition
// even while frozen. Every other frozen entry is excluded. Release paths do
// not re-check freeze, so this is a known possible resource leak on a
// shutdown race: acceptable since system shutdown is terminal anyway.
func (e *ConnectionEntry) AcquisitionEligible() bool {
	if !e.Frozen() {
		return true
	}
	return e.Role == RoleMaster && e.FreezeReason() == FreezeSystemShutdown
}

func (e *ConnectionEntry) markProbeStart() bool {
	return e.probeInFlight.CompareAndSwap(false, true)
}

func (e *ConnectionEntry) markProbeDone() {
	e.probeInFlight.Store(false)
}

// EntryStats is a point-in-time snapshot used by tests and the admin API.
type EntryStats struct {
	Addr           string
	Role           Role
	InUse          int
	Idle           int
	FailedAttempts uint32
	Frozen         bool
	FreezeReason   FreezeReason
}

func (e *ConnectionEntry) Stats() EntryStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EntryStats{
		Addr:           e.Addr,
		Role:           e.Role,
		InUse:          e.inUse,
		Idle:           len(e.available),
		FailedAttempts: e.FailedAttempts(),
		Frozen:         e.Frozen(),
		FreezeReason:   e.FreezeReason(),
	}
}
