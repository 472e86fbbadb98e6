package cluster

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/elikakv/client/pkg/common"
	"github.com/elikakv/client/pkg/respio"
)

const pendingQueueSize = 128

var (
	logger = common.InitLogger().WithName("cluster")

	// ErrPendingQueueFull is returned when a connection's in-flight pipeline
	// is already as deep as pendingQueueSize - the caller should treat this
	// like a write failure and let the retry timer handle it.
	ErrPendingQueueFull = errors.New("elika cluster: connection pipeline is full")
)

// CommandResult is delivered to the caller of Send for every frame it wrote,
// in the same order, once the matching response arrives on the wire.
type CommandResult struct {
	Packet *respio.RespPacket
	Err    error
}

type pendingEntry struct {
	resultCh chan CommandResult
}

// Connection is one live TCP connection to a cluster node. Writes and reads
// run independently: Send enqueues a write and a FIFO marker, ReadLoop
// matches every packet it reads off the wire to the oldest outstanding
// marker. This lets a caller release the connection back to its entry right
// after the write flushes, while the response is still in flight - exactly
// the behavior the executor's write-completion step requires.
type Connection struct {
	id       string
	conn     net.Conn
	reader   *respio.RespReader
	writer   *respio.RespWriter
	writeMu  sync.Mutex
	pendingQ chan *pendingEntry
	quit     chan struct{}
	closed   atomic.Bool
	created  time.Time
	usedAt   atomic.Int64
	wg       sync.WaitGroup
}

// Dial opens a new connection to addr with the given per-attempt timeout.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Connection, error) {
	dialer := &net.Dialer{Timeout: timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		id:       shortuuid.New(),
		conn:     netConn,
		reader:   respio.NewRespReader(netConn),
		writer:   respio.NewRespWriter(netConn),
		pendingQ: make(chan *pendingEntry, pendingQueueSize),
		quit:     make(chan struct{}),
		created:  time.Now(),
	}
	c.usedAt.Store(time.Now().Unix())
	c.wg.Add(1)
	go c.readLoop()
	return c, nil
}

func (c *Connection) ID() string          { return c.id }
func (c *Connection) RemoteAddr() string  { return c.conn.RemoteAddr().String() }
func (c *Connection) Buffered() int       { return c.reader.Buffered() }
func (c *Connection) CreatedAt() time.Time { return c.created }

func (c *Connection) UsedAt() time.Time {
	return time.Unix(c.usedAt.Load(), 0)
}

func (c *Connection) touch() {
	c.usedAt.Store(time.Now().Unix())
}

// Send writes frames as a single flushed pipeline and returns one channel
// per frame; each channel receives exactly one CommandResult once its
// response is read off the wire. Send itself only blocks for the
// write+flush, never for the response - callers arm their own response
// timer. writeTimeout bounds the write+flush with a socket deadline (the
// same technique the pack's pascaldekloe-redis client uses around its own
// write path) so a stalled peer cannot hang the caller past its retry
// budget; the deadline is cleared again before Send returns, successfully
// or not, so it never leaks onto the connection's next use.
func (c *Connection) Send(frames []*respio.RespPacket, writeTimeout time.Duration) ([]<-chan CommandResult, error) {
	if c.closed.Load() {
		return nil, net.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	// Markers are only ever pushed here, under writeMu, so the free space seen
	// now can only grow before the pushes below: a pipeline that does not fit
	// is refused whole and never leaves a partial set of markers behind.
	if cap(c.pendingQ)-len(c.pendingQ) < len(frames) {
		return nil, ErrPendingQueueFull
	}

	chans := make([]chan CommandResult, len(frames))
	for i := range frames {
		chans[i] = make(chan CommandResult, 1)
		entry := &pendingEntry{resultCh: chans[i]}
		select {
		case c.pendingQ <- entry:
		default:
			// Not reached after the capacity check above; if it were, every
			// queued marker is failed so none is left waiting on a reply.
			c.drainAndFailFrom(i)
			return nil, ErrPendingQueueFull
		}
	}
	if writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	for _, f := range frames {
		if err := c.writer.Write(f); err != nil {
			c.failAllPending(err)
			return nil, err
		}
	}
	if err := c.writer.Flush(); err != nil {
		c.failAllPending(err)
		return nil, err
	}
	c.touch()
	out := make([]<-chan CommandResult, len(chans))
	for i, ch := range chans {
		out[i] = ch
	}
	return out, nil
}

// drainAndFailFrom empties pendingQ, failing every queued marker with
// ErrPendingQueueFull - including markers of earlier Sends still awaiting
// their replies, not only this pipeline's first i.
func (c *Connection) drainAndFailFrom(_ int) {
	for {
		select {
		case entry := <-c.pendingQ:
			entry.resultCh <- CommandResult{Err: ErrPendingQueueFull}
		default:
			return
		}
	}
}

func (c *Connection) failAllPending(err error) {
	for {
		select {
		case entry := <-c.pendingQ:
			entry.resultCh <- CommandResult{Err: err}
		default:
			return
		}
	}
}

func (c *Connection) readLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.quit:
			return
		default:
		}
		pkt, err := c.reader.Read()
		if err != nil {
			c.failAllPending(err)
			if common.IsBackendUnavailable(err) {
				c.Clear()
			}
			return
		}
		select {
		case entry := <-c.pendingQ:
			entry.resultCh <- CommandResult{Packet: pkt}
		case <-c.quit:
			return
		}
	}
}

// Clear tears down the connection idempotently, draining any callers still
// waiting on a response so they never block forever.
func (c *Connection) Clear() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.quit)
		c.failAllPending(net.ErrClosed)
		_ = c.conn.Close()
	}
}

// Close is the public, blocking form of Clear: it waits (briefly) for the
// read loop to exit.
func (c *Connection) Close() error {
	c.Clear()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

// Healthy probes the raw socket for EOF/errors without blocking, the same
// technique backconn_check.go uses: a non-blocking read on the fd.
func (c *Connection) Healthy() bool {
	if c.closed.Load() {
		return false
	}
	return checkConn(c.conn) == nil
}

var errIllegalState = errors.New("elika cluster: unexpected bytes on an idle connection")

func checkConn(conn net.Conn) error {
	_ = conn.SetDeadline(time.Time{})
	sysConn, ok := conn.(syscall.Conn)
	if !ok {
		return nil
	}
	rawConn, err := sysConn.SyscallConn()
	if err != nil {
		return err
	}
	var sysErr error
	if err := rawConn.Read(func(fd uintptr) bool {
		var buf [1]byte
		n, readErr := syscall.Read(int(fd), buf[:])
		switch {
		case n == 0 && readErr == nil:
			sysErr = net.ErrClosed
		case n > 0:
			sysErr = errIllegalState
		case errors.Is(readErr, syscall.EAGAIN) || errors.Is(readErr, syscall.EWOULDBLOCK):
			sysErr = nil
		default:
			sysErr = readErr
		}
		return true
	}); err != nil {
		return err
	}
	return sysErr
}
