package batch

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elikakv/client/pkg/cluster"
	"github.com/elikakv/client/pkg/common"
	"github.com/elikakv/client/pkg/metrics"
)

var logger = common.InitLogger().WithName("batch")

// ExecutorConfig carries the executor's tunables. RetryIntervalMs is a
// configurable multiplier; the effective pre-response timeout is
// RetryIntervalMs * 100ms.
type ExecutorConfig struct {
	RetryAttempts   int
	RetryIntervalMs int
	ResponseTimeout time.Duration
}

func (c ExecutorConfig) retryInterval() time.Duration {
	ms := c.RetryIntervalMs
	if ms <= 0 {
		ms = 1
	}
	return time.Duration(ms) * 100 * time.Millisecond
}

// BatchExecutor is component E: for each slot bucket it acquires a
// connection, writes the pipeline, awaits responses, and handles retries
// and redirects, finally joining every slot's outcome into one ordered
// result list.
type BatchExecutor struct {
	router  cluster.Router
	cfg     ExecutorConfig
	metrics metrics.ProxyMetricsCollector
}

func NewBatchExecutor(router cluster.Router, cfg ExecutorConfig) *BatchExecutor {
	return &BatchExecutor{router: router, cfg: cfg}
}

func (e *BatchExecutor) SetMetrics(m metrics.ProxyMetricsCollector) {
	e.metrics = m
}

// joinState implements the "shared completion counter + joined-void promise"
// from: N slots count down to zero on success, or the first failure
// completes the join immediately regardless of how many slots remain.
type joinState struct {
	remaining atomic.Int64
	once      sync.Once
	result    chan error
}

func newJoin(n int) *joinState {
	j := &joinState{result: make(chan error, 1)}
	j.remaining.Store(int64(n))
	return j
}

func (j *joinState) succeed() {
	if j.remaining.Add(-1) == 0 {
		j.once.Do(func() { j.result <- nil })
	}
}

func (j *joinState) fail(err error) {
	j.once.Do(func() { j.result <- err })
}

// Execute transitions the accumulator to executed and dispatches every slot
// bucket concurrently, returning the batch's commands ordered by sequence
// number once every slot has succeeded, or the first fatal cause otherwise.
func (e *BatchExecutor) Execute(parent context.Context, acc *BatchAccumulator) ([]*Command, error) {
	if !acc.markExecuted() {
		return nil, ErrAlreadyExecuted
	}
	buckets := acc.snapshotBuckets()
	if len(buckets) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	join := newJoin(len(buckets))
	for _, b := range buckets {
		bucket := b
		go e.executeSlot(ctx, bucket, cluster.NodeSource{Slot: bucket.Slot}, 0, join)
	}

	var err error
	select {
	case err = <-join.result:
	case <-parent.Done():
		err = ErrCancelled
	}
	cancel()
	if err != nil {
		return nil, err
	}

	all := make([]*Command, 0, len(buckets))
	for _, b := range buckets {
		all = append(all, b.Snapshot()...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })
	return all, nil
}

// executeSlot is the per-slot state machine, expressed as an
// explicit loop with attempt as a counter rather than as re-entrant calls.
func (e *BatchExecutor) executeSlot(ctx context.Context, bucket *SlotBucket, source cluster.NodeSource, attempt int, join *joinState) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res := e.attemptOnce(ctx, bucket, source, attempt)

		switch res.outcome {
		case outcomeSuccess:
			join.succeed()
			return

		case outcomeRedirectMoved:
			if e.metrics != nil {
				e.metrics.RecordRedirect("moved")
			}
			source = cluster.NodeSource{Slot: bucket.Slot, Addr: res.addr, Redirect: cluster.RedirectMoved}
			// A redirect never consumes retry budget.

		case outcomeRedirectAsk:
			if e.metrics != nil {
				e.metrics.RecordRedirect("ask")
			}
			source = cluster.NodeSource{Slot: bucket.Slot, Addr: res.addr, Redirect: cluster.RedirectAsk}

		case outcomeLoading:
			// Same source, same attempt: the server is warming up.

		case outcomeRetry:
			if attempt >= e.cfg.RetryAttempts {
				if e.metrics != nil {
					e.metrics.RecordRetryExhausted()
				}
				join.fail(fmt.Errorf("%w: %v", ErrOperationTimeout, res.cause))
				return
			}
			attempt++

		case outcomeFatal:
			join.fail(res.cause)
			return
		}
	}
}

type slotOutcome int

const (
	outcomeSuccess slotOutcome = iota
	outcomeRedirectMoved
	outcomeRedirectAsk
	outcomeLoading
	outcomeRetry
	outcomeFatal
)

type slotResult struct {
	outcome slotOutcome
	addr    string
	cause   error
}

func retryResult(cause error) slotResult {
	return slotResult{outcome: outcomeRetry, cause: cause}
}

// attemptOnce runs one (acquire, write, await) triple. The retry timer
// covers acquisition and the write: acquisition observes it through
// attemptCtx, so a timer firing mid-acquire aborts the in-flight dial
// without leaking a connection, and the same interval is passed to
// conn.Send as a write deadline, so a stalled flush can't block past the
// retry budget either. Once the write has flushed successfully the
// connection is released immediately and a separate response timer takes
// over for the await phase.
func (e *BatchExecutor) attemptOnce(parent context.Context, bucket *SlotBucket, source cluster.NodeSource, attempt int) slotResult {
	attemptCtx, cancelAttempt := context.WithCancel(parent)
	defer cancelAttempt()

	retryTimer := time.NewTimer(e.cfg.retryInterval())
	defer retryTimer.Stop()
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-retryTimer.C:
			cancelAttempt()
		case <-stopWatch:
		}
	}()

	readOnly := bucket.ReadOnly()
	pool, err := e.router.Resolve(attemptCtx, source, readOnly, routingKeyFor(bucket))
	if err != nil {
		return classifyAcquireFailure(parent, err)
	}

	conn, entry, err := e.acquireConn(attemptCtx, pool, readOnly)
	if err != nil {
		return classifyAcquireFailure(parent, err)
	}

	frames, pending, askPrefixed := buildPipeline(bucket.Snapshot(), source)
	if len(frames) == 0 {
		entry.ReleaseConnection(conn, true)
		return slotResult{outcome: outcomeSuccess}
	}

	chans, werr := conn.Send(frames, e.cfg.retryInterval())
	if werr != nil {
		entry.ReleaseConnection(conn, false)
		return retryResult(fmt.Errorf("%w: %v", ErrWriteFailed, werr))
	}
	// Write flushed: release now, await responses independent of pool occupancy.
	entry.ReleaseConnection(conn, true)

	return e.awaitResponses(chans, pending, askPrefixed)
}

func classifyAcquireFailure(parent context.Context, err error) slotResult {
	if parent.Err() != nil {
		return slotResult{outcome: outcomeFatal, cause: ErrCancelled}
	}
	return retryResult(fmt.Errorf("%w: %v", ErrConnectionFailed, err))
}

func (e *BatchExecutor) acquireConn(ctx context.Context, pool *cluster.ConnectionPool, readOnly bool) (*cluster.Connection, *cluster.ConnectionEntry, error) {
	if readOnly {
		return pool.AcquireRead(ctx)
	}
	return pool.AcquireWrite(ctx)
}

func (e *BatchExecutor) awaitResponses(chans []<-chan cluster.CommandResult, pending []*Command, askPrefixed bool) slotResult {
	responseTimer := time.NewTimer(e.cfg.ResponseTimeout)
	defer responseTimer.Stop()

	cmdIdx := 0
	for i, ch := range chans {
		select {
		case res := <-ch:
			if askPrefixed && i == 0 {
				if res.Err != nil {
					return retryResult(fmt.Errorf("%w: %v", ErrWriteFailed, res.Err))
				}
				continue
			}
			cmd := pending[cmdIdx]
			cmdIdx++
			if res.Err != nil {
				return retryResult(fmt.Errorf("%w: %v", ErrWriteFailed, res.Err))
			}
			cls := classify(res.Packet)
			switch {
			case cls.redirect == cluster.RedirectMoved:
				return slotResult{outcome: outcomeRedirectMoved, addr: cls.addr}
			case cls.redirect == cluster.RedirectAsk:
				return slotResult{outcome: outcomeRedirectAsk, addr: cls.addr}
			case cls.loading:
				return slotResult{outcome: outcomeLoading}
			case cls.srvErr != nil:
				cmd.Promise.Fail(cls.srvErr)
				return slotResult{outcome: outcomeFatal, cause: cls.srvErr}
			default:
				cmd.Promise.Complete(res.Packet)
			}
		case <-responseTimer.C:
			return retryResult(ErrResponseTimeout)
		}
	}
	return slotResult{outcome: outcomeSuccess}
}

// routingKeyFor seeds the replica consistent-hash balancer with the slot
// number; every command in a bucket shares one slot, so this is stable and
// cheap without inspecting command arguments.
func routingKeyFor(bucket *SlotBucket) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(bucket.Slot))
	return b[:]
}
