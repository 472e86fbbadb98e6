package cluster

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/elikakv/client/pkg/metrics"
)

// PoolConfig carries the configuration options that are this pool's
// concern (retry/response timeouts belong to the batch executor instead).
type PoolConfig struct {
	MaxConnectionsPerEntry int
	MinIdlePerEntry        int
	DialTimeout            time.Duration
	FailedAttemptsThreshold uint32
	ReconnectTimeout        time.Duration
	Username                []byte
	Password                []byte
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConnectionsPerEntry <= 0 {
		c.MaxConnectionsPerEntry = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.ReconnectTimeout <= 0 {
		c.ReconnectTimeout = 5 * time.Second
	}
	if c.FailedAttemptsThreshold == 0 {
		c.FailedAttemptsThreshold = 3
	}
	return c
}

// ConnectionPool is a per-shard collection of ConnectionEntry, one per
// master/replica endpoint. It load-balances acquisition across entries of
// the requested role, runs health probes, and reconnects quarantined
// entries.
type ConnectionPool struct {
	cfg    PoolConfig
	hub    *EventHub
	mu     sync.RWMutex
	byAddr map[string]*ConnectionEntry
	order  []*ConnectionEntry
	rr     atomic.Uint64
	closed atomic.Bool

	// addrHint is set by SlotMapRouter for the common cluster-mode case of
	// one pool per node address; it is this pool's identity in Router.byAddr
	// and in consistent-hash ring membership. Unused by multi-entry pools.
	addrHint string

	metrics metrics.ProxyMetricsCollector
}

// SetMetrics wires an optional collector for freeze-transition counters.
// Safe to call once, before the pool serves any traffic.
func (p *ConnectionPool) SetMetrics(m metrics.ProxyMetricsCollector) {
	p.metrics = m
}

func NewConnectionPool(cfg PoolConfig, hub *EventHub) *ConnectionPool {
	if hub == nil {
		hub = NewEventHub()
	}
	return &ConnectionPool{
		cfg:    cfg.withDefaults(),
		hub:    hub,
		byAddr: make(map[string]*ConnectionEntry),
	}
}

// AddEntry registers a new endpoint and warms it up. Safe to call multiple
// times for the same address; repeats are no-ops.
func (p *ConnectionPool) AddEntry(ctx context.Context, addr string, role Role) *ConnectionEntry {
	p.mu.Lock()
	if entry, ok := p.byAddr[addr]; ok {
		p.mu.Unlock()
		return entry
	}
	entry := NewConnectionEntry(addr, role, p.cfg.MaxConnectionsPerEntry, p.cfg.FailedAttemptsThreshold)
	p.byAddr[addr] = entry
	p.order = append(p.order, entry)
	p.mu.Unlock()

	if err := p.warmUp(ctx, entry, false); err != nil {
		logger.Error(err, "warm-up failed for new entry", "addr", addr)
	}
	return entry
}

// RemoveEntry evicts and closes an endpoint, e.g. when topology removes a
// replica.
func (p *ConnectionPool) RemoveEntry(addr string) {
	p.mu.Lock()
	entry, ok := p.byAddr[addr]
	if ok {
		delete(p.byAddr, addr)
		for i, e := range p.order {
			if e.Addr == addr {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
	p.mu.Unlock()
	if ok {
		entry.mu.Lock()
		conns := entry.available
		entry.available = nil
		entry.mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	}
}

func (p *ConnectionPool) entriesByRole(role Role) []*ConnectionEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ConnectionEntry, 0, len(p.order))
	for _, e := range p.order {
		if e.Role == role {
			out = append(out, e)
		}
	}
	return out
}

func (p *ConnectionPool) allEntries() []*ConnectionEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ConnectionEntry, len(p.order))
	copy(out, p.order)
	return out
}

// AcquireWrite returns a connection to a master entry.
func (p *ConnectionPool) AcquireWrite(ctx context.Context) (*Connection, *ConnectionEntry, error) {
	return p.acquireFrom(ctx, p.entriesByRole(RoleMaster))
}

// AcquireRead returns a connection to a replica entry, falling back to the
// master set when no replica is registered (a single-node shard has no
// replicas at all, and a read-only batch still needs somewhere to go).
func (p *ConnectionPool) AcquireRead(ctx context.Context) (*Connection, *ConnectionEntry, error) {
	replicas := p.entriesByRole(RoleReplica)
	if len(replicas) == 0 {
		return p.AcquireWrite(ctx)
	}
	return p.acquireFrom(ctx, replicas)
}

// acquireFrom implements the round-robin acquisition algorithm against a
// candidate set already filtered by role.
func (p *ConnectionPool) acquireFrom(ctx context.Context, candidates []*ConnectionEntry) (*Connection, *ConnectionEntry, error) {
	if p.closed.Load() {
		return nil, nil, ErrShutdown
	}
	n := len(candidates)
	if n == 0 {
		return nil, nil, newPoolExhausted(nil, nil)
	}
	start := int(p.rr.Add(1))
	var frozenHosts, saturatedHosts []string
	for i := 0; i < n; i++ {
		entry := candidates[(start+i)%n]
		if !entry.AcquisitionEligible() {
			frozenHosts = append(frozenHosts, entry.Addr)
			continue
		}
		if !entry.TryAcquire() {
			if entry.Frozen() {
				frozenHosts = append(frozenHosts, entry.Addr)
			} else {
				saturatedHosts = append(saturatedHosts, entry.Addr)
			}
			continue
		}
		if conn := entry.Poll(); conn != nil {
			if conn.Healthy() {
				return conn, entry, nil
			}
			_ = conn.Close()
		}
		conn, err := p.dial(ctx, entry)
		if err != nil {
			entry.ReleaseSlot()
			continue
		}
		return conn, entry, nil
	}
	return nil, nil, newPoolExhausted(frozenHosts, saturatedHosts)
}

func (p *ConnectionPool) dial(ctx context.Context, entry *ConnectionEntry) (*Connection, error) {
	conn, err := Dial(ctx, entry.Addr, p.cfg.DialTimeout)
	if err != nil {
		p.onDialFailure(entry, err)
		return nil, err
	}
	if len(p.cfg.Password) > 0 {
		if err := authenticate(conn, p.cfg.Username, p.cfg.Password); err != nil {
			_ = conn.Close()
			p.onDialFailure(entry, err)
			return nil, err
		}
	}
	entry.ResetFailed()
	return conn, nil
}

// onDialFailure bumps the failure counter and, once it crosses the
// threshold, quarantines the entry.
func (p *ConnectionPool) onDialFailure(entry *ConnectionEntry, err error) {
	n := entry.IncFailed()
	if n >= p.cfg.FailedAttemptsThreshold {
		p.quarantine(entry)
	}
}

func (p *ConnectionPool) quarantine(entry *ConnectionEntry) {
	if !entry.Freeze(FreezeReconnect) {
		return
	}
	if p.metrics != nil {
		p.metrics.RecordFreezeTransition("reconnect")
	}
	if entry.Role == RoleReplica {
		p.hub.fireSlaveDown(entry.Addr)
	}
	p.hub.fireDisconnect(entry.Addr)
	p.scheduleProbe(entry)
}

// scheduleProbe launches the self-pacing reconnect loop for a quarantined
// entry. Only one runs per entry at a time, enforced by markProbeStart.
func (p *ConnectionPool) scheduleProbe(entry *ConnectionEntry) {
	go p.probe(entry)
}

// probeBackoff builds the reconnect pacing schedule: exponential with jitter,
// seeded from the configured reconnect interval, capped at 10x that interval.
// Shaped like a bounded startup retry stretched out for a long-lived
// background probe instead.
func (p *ConnectionPool) probeBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.ReconnectTimeout
	b.MaxInterval = 10 * p.cfg.ReconnectTimeout
	b.Multiplier = 2
	return b
}

// probe drives the reconnection sequence through backoff.Retry, which owns
// the inter-attempt pacing; each attempt re-checks frozen/reason=reconnect so
// a concurrent unfreeze or shutdown stops the loop via backoff.Permanent
// instead of waiting for the next scheduled try. No elapsed-time limit is
// set, so the loop ends only on a successful reconnect or that stop.
func (p *ConnectionPool) probe(entry *ConnectionEntry) {
	if !entry.markProbeStart() {
		return
	}
	defer entry.markProbeDone()

	_, err := backoff.Retry[struct{}](context.Background(), func() (struct{}, error) {
		if p.closed.Load() || !p.stillReconnecting(entry) {
			return struct{}{}, backoff.Permanent(ErrShutdown)
		}
		if rerr := p.reconnectOnce(entry); rerr != nil {
			return struct{}{}, rerr
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(p.probeBackoff()), backoff.WithMaxElapsedTime(0))

	if err != nil {
		return
	}

	entry.ResetFailed()
	_ = p.warmUp(context.Background(), entry, true)
	entry.Unfreeze()
	if entry.Role == RoleReplica {
		p.hub.fireSlaveUp(entry.Addr)
	}
}

// reconnectOnce is a single open-authenticate-ping attempt, re-checking
// eligibility between each step so a force-unfreeze or shutdown observed
// mid-attempt aborts without leaking the dialed connection.
func (p *ConnectionPool) reconnectOnce(entry *ConnectionEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DialTimeout)
	conn, err := Dial(ctx, entry.Addr, p.cfg.DialTimeout)
	cancel()
	if err != nil {
		return err
	}
	if !p.stillReconnecting(entry) {
		_ = conn.Close()
		return ErrShutdown
	}
	if len(p.cfg.Password) > 0 {
		if err := authenticate(conn, p.cfg.Username, p.cfg.Password); err != nil {
			_ = conn.Close()
			return err
		}
	}
	if !p.stillReconnecting(entry) {
		_ = conn.Close()
		return ErrShutdown
	}
	if err := ping(conn); err != nil {
		_ = conn.Close()
		return err
	}
	_ = conn.Close()
	return nil
}

func (p *ConnectionPool) stillReconnecting(entry *ConnectionEntry) bool {
	return entry.Frozen() && entry.FreezeReason() == FreezeReconnect
}

// warmUp opens up to MinIdlePerEntry connections concurrently, capped at 50
// outstanding dials; the first failure cancels the rest and is returned.
// bypassFreeze lets the post-probe warm-up run on an entry that is still
// marked frozen until the caller clears it.
func (p *ConnectionPool) warmUp(parent context.Context, entry *ConnectionEntry, bypassFreeze bool) error {
	if !bypassFreeze && !entry.AcquisitionEligible() {
		return ErrEntryFrozen
	}
	target := p.cfg.MinIdlePerEntry
	if target <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	const maxOutstanding = 50
	sem := make(chan struct{}, maxOutstanding)
	var wg sync.WaitGroup
	var once sync.Once
	var firstErr error

	for i := 0; i < target; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			conn, err := p.dial(ctx, entry)
			if err != nil {
				once.Do(func() { firstErr = err; cancel() })
				return
			}
			entry.AddIdle(conn)
		}()
	}
	wg.Wait()
	return firstErr
}

// ForceUnfreeze lets an operator clear a manual or reconnect freeze without
// waiting for the probe loop.
func (p *ConnectionPool) ForceUnfreeze(addr string) bool {
	p.mu.RLock()
	entry, ok := p.byAddr[addr]
	p.mu.RUnlock()
	if !ok {
		return false
	}
	entry.Unfreeze()
	return true
}

func (p *ConnectionPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrShutdown
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range p.order {
		entry.Freeze(FreezeSystemShutdown)
		entry.mu.Lock()
		conns := entry.available
		entry.available = nil
		entry.mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	}
	return nil
}

// Snapshot reports every entry's stats, used by tests (P2/P3) and the admin
// API.
func (p *ConnectionPool) Snapshot() []EntryStats {
	entries := p.allEntries()
	out := make([]EntryStats, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Stats())
	}
	return out
}
