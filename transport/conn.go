package transport

import (
	"bufio"
	"context"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/cifrazia/cats-go/cmn/cos"
	"github.com/cifrazia/cats-go/cmn/mono"
	"github.com/cifrazia/cats-go/cmn/nlog"
	"github.com/cifrazia/cats-go/config"
)

// State is a Conn's position in its connection lifecycle:
// New -> Handshaking -> Running (== "open", optionally signed-in) -> Closed.
type State int32

const (
	StateNew State = iota
	StateHandshaking
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHandshaking:
		return "handshaking"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats holds the per-connection counters surfaced by the original
// implementation's connection object.
type Stats struct {
	BytesSent atomic.Int64
	BytesRecv atomic.Int64
	MsgsSent  atomic.Int64
	MsgsRecv  atomic.Int64
}

// PendingInput is a future awaiting the peer's answer to an Input-Request.
type PendingInput struct {
	MessageID uint16
	done      chan *InputRequestFrame
	bypass    bool // bypass inputs are never auto-evicted by INPUT_LIMIT pressure
}

// Done returns the channel that receives the peer's Input-Request answer,
// or is closed without a value if the input was evicted or canceled.
func (p *PendingInput) Done() <-chan *InputRequestFrame { return p.done }

// Conn is one live CATS connection: the reader/writer goroutines, the
// message-id pool, the pending-input table, and the download-speed
// throttle, wired together the way a transport.streamBase ties together a
// stream's send queue, completion queue, and idle timer.
type Conn struct {
	nc         net.Conn
	br         *bufio.Reader
	bw         *bufio.Writer
	writeMu    sync.Mutex // serializes frame writes: one writer at a time
	cfg        *config.Config
	id         string
	apiVersion int

	state atomic.Int32

	identity   atomic.Pointer[string] // identity id once signed in; nil until then
	remoteAddr string

	inFlightMu sync.Mutex
	inFlight   map[uint16]struct{}

	pendingMu  sync.Mutex
	pending    map[uint16]*PendingInput
	inputSem   *semaphore.Weighted
	inputOrder []uint16 // FIFO of non-bypass message ids, oldest first, for eviction

	limiterMu sync.Mutex
	limiter   *rate.Limiter

	Stats Stats

	ic        *idleCollector
	idleTicks int

	closeOnce sync.Once
	closed    chan struct{}
	started   int64
}

// NewConn wraps an accepted net.Conn. The caller is expected to drive the
// handshake, then call Serve.
func NewConn(nc net.Conn, cfg *config.Config, ic *idleCollector) *Conn {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Conn{
		nc:         nc,
		br:         bufio.NewReader(nc),
		bw:         bufio.NewWriter(nc),
		cfg:        cfg,
		id:         cos.GenConnID(),
		remoteAddr: nc.RemoteAddr().String(),
		inFlight:   make(map[uint16]struct{}),
		pending:    make(map[uint16]*PendingInput),
		inputSem:   semaphore.NewWeighted(int64(cfg.InputLimit)),
		ic:         ic,
		closed:     make(chan struct{}),
		started:    mono.NanoTime(),
	}
	c.idleTicks = int(cfg.IdleTimeout / idleTickUnit)
	if c.idleTicks < 1 {
		c.idleTicks = 1
	}
	c.state.Store(int32(StateNew))
	return c
}

const idleTickUnit = time.Second

func (c *Conn) ID() string { return c.id }
func (c *Conn) State() State { return State(c.state.Load()) }
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

func (c *Conn) setState(s State) { c.state.Store(int32(s)) }

// Identity returns the signed-in identity id, or "" if none.
func (c *Conn) Identity() string {
	if p := c.identity.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Conn) SetIdentity(id string) { c.identity.Store(&id) }

// SetAPIVersion records the version negotiated during handshake, used by
// Server.handle to resolve versioned routes.
func (c *Conn) SetAPIVersion(v int) { c.apiVersion = v }

func (c *Conn) APIVersion() int { return c.apiVersion }

// Reader and Writer expose the connection's buffered I/O for use by a
// Handshaker, which runs before Serve starts consuming frames and so must
// share the same bufio.Reader rather than read the raw net.Conn directly
// (anything buffered-but-unread would otherwise be skipped).
func (c *Conn) Reader() *bufio.Reader { return c.br }
func (c *Conn) Writer() *bufio.Writer { return c.bw }

// touch resets this connection's idle countdown; called on every frame
// received or sent.
func (c *Conn) touch() {
	if c.ic != nil {
		c.ic.reset(c, c.idleTicks)
	}
}

// startIdleTracking registers this connection with the shared idle
// collector. Call once the connection reaches StateRunning. A non-positive
// IdleTimeout leaves the connection untracked, so it never idles out.
func (c *Conn) startIdleTracking() {
	if c.ic != nil && c.cfg.IdleTimeout > 0 {
		c.ic.track(c, c.idleTicks)
	}
}

func (c *Conn) closeIdle() {
	_ = c.Close(context.Background())
}

// AllocMessageID draws a message id uniformly from [17783, 35565] and
// rejection-resamples against ids already in flight.
func (c *Conn) AllocMessageID() uint16 {
	const lo, hi = 17783, 35565
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()
	for {
		id := uint16(lo + rand.Intn(hi-lo+1))
		if _, taken := c.inFlight[id]; !taken {
			c.inFlight[id] = struct{}{}
			return id
		}
	}
}

func (c *Conn) ReleaseMessageID(id uint16) {
	c.inFlightMu.Lock()
	delete(c.inFlight, id)
	c.inFlightMu.Unlock()
}

// AdmitInbound records an inbound Request/Stream-Request's message id as
// in-flight, sharing the same table AllocMessageID draws from. A message id
// already in flight (whether allocated locally or admitted from a prior
// inbound frame) is a protocol violation: the caller must close the
// connection rather than dispatch the duplicate.
func (c *Conn) AdmitInbound(id uint16) error {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()
	if _, taken := c.inFlight[id]; taken {
		return cos.NewProtocolError("duplicate message_id %d", id)
	}
	c.inFlight[id] = struct{}{}
	return nil
}

// AwaitInput registers a pending Input-Request and returns a future that
// resolves when the matching frame arrives (or ctx is done). When the
// connection is already at INPUT_LIMIT and bypass is false, the oldest
// non-bypass pending input is canceled to make room.
func (c *Conn) AwaitInput(ctx context.Context, messageID uint16, bypass bool) (*PendingInput, error) {
	pi := &PendingInput{MessageID: messageID, done: make(chan *InputRequestFrame, 1), bypass: bypass}

	if !bypass {
		if !c.inputSem.TryAcquire(1) {
			c.evictOldestInput()
			if err := c.inputSem.Acquire(ctx, 1); err != nil {
				return nil, err
			}
		}
	}

	c.pendingMu.Lock()
	c.pending[messageID] = pi
	if !bypass {
		c.inputOrder = append(c.inputOrder, messageID)
	}
	c.pendingMu.Unlock()
	return pi, nil
}

func (c *Conn) evictOldestInput() {
	c.pendingMu.Lock()
	if len(c.inputOrder) == 0 {
		c.pendingMu.Unlock()
		return
	}
	oldest := c.inputOrder[0]
	c.inputOrder = c.inputOrder[1:]
	pi, ok := c.pending[oldest]
	delete(c.pending, oldest)
	c.pendingMu.Unlock()
	if ok {
		close(pi.done)
		c.inputSem.Release(1)
	}
}

// ResolveInput delivers an arrived Input-Request frame to its waiting
// future, if any is still pending.
func (c *Conn) ResolveInput(f *InputRequestFrame) bool {
	c.pendingMu.Lock()
	pi, ok := c.pending[f.MessageID]
	if ok {
		delete(c.pending, f.MessageID)
		for i, id := range c.inputOrder {
			if id == f.MessageID {
				c.inputOrder = append(c.inputOrder[:i], c.inputOrder[i+1:]...)
				break
			}
		}
	}
	c.pendingMu.Unlock()
	if !ok {
		return false
	}
	pi.done <- f
	if !pi.bypass {
		c.inputSem.Release(1)
	}
	return true
}

// CancelInput handles an incoming CancelInput frame: drop the pending
// future without delivering a result.
func (c *Conn) CancelInput(messageID uint16) {
	c.pendingMu.Lock()
	pi, ok := c.pending[messageID]
	if ok {
		delete(c.pending, messageID)
		for i, id := range c.inputOrder {
			if id == messageID {
				c.inputOrder = append(c.inputOrder[:i], c.inputOrder[i+1:]...)
				break
			}
		}
	}
	c.pendingMu.Unlock()
	if ok {
		close(pi.done)
		if !pi.bypass {
			c.inputSem.Release(1)
		}
	}
}

// minDownloadSpeed and maxDownloadSpeed bound a non-zero DownloadSpeed
// directive's bytes-per-second value; 0 means unlimited and skips the
// range check entirely.
const (
	minDownloadSpeed = 1024
	maxDownloadSpeed = 1 << 25
)

// SetDownloadSpeed applies a DownloadSpeed directive: 0 clears the limiter
// (unlimited), otherwise values outside [minDownloadSpeed, maxDownloadSpeed]
// are logged and ignored so a malformed directive can't wedge the
// connection's throttle into an unusable state.
func (c *Conn) SetDownloadSpeed(bytesPerSec uint32) {
	if bytesPerSec != 0 && (bytesPerSec < minDownloadSpeed || bytesPerSec > maxDownloadSpeed) {
		nlog.Warningf("conn %s: ignoring out-of-range download_speed %d", c.id, bytesPerSec)
		return
	}
	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()
	if bytesPerSec == 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), int(config.MaxSendChunkSize))
}

// throttle blocks until n bytes may be sent under the current
// download-speed limiter, implemented with golang.org/x/time/rate instead
// of a manual sleep loop.
func (c *Conn) throttle(ctx context.Context, n int) error {
	c.limiterMu.Lock()
	lim := c.limiter
	c.limiterMu.Unlock()
	if lim == nil {
		return nil
	}
	return lim.WaitN(ctx, n)
}

// WriteLocked serializes one frame write against concurrent senders on the
// same connection writes never interleave.
func (c *Conn) WriteLocked(fn func(bw *bufio.Writer) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := fn(c.bw)
	c.touch()
	if err == nil {
		c.Stats.MsgsSent.Add(1)
	}
	return err
}

// Close tears the connection down at once: it cancels every pending input
// and closes the socket. It does not wait for in-flight handlers to finish;
// ctx is not consulted.
func (c *Conn) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		if c.ic != nil {
			c.ic.untrack(c)
		}
		close(c.closed)
		c.drainPending()
		err = c.nc.Close()
		nlog.Infof("conn %s closed after %s", c.id, mono.Since(c.started))
	})
	return err
}

func (c *Conn) drainPending() {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[uint16]*PendingInput)
	c.inputOrder = nil
	c.pendingMu.Unlock()
	for _, pi := range pending {
		close(pi.done)
	}
}

// Done reports a channel closed once the connection is fully closed.
func (c *Conn) Done() <-chan struct{} { return c.closed }
