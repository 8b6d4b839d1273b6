// Package transport maintains the persistent websocket connection to the
// chat server: reconnection with bounded backoff and a FIFO queue for
// commands issued while not connected.
package transport

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/parley/internal/clock"
	"github.com/matheus3301/parley/internal/protocol"
	"github.com/matheus3301/parley/internal/status"
)

const (
	DefaultDialTimeout  = 10 * time.Second
	DefaultWriteTimeout = 5 * time.Second
)

// StatusFunc observes connection status changes, in the order they happen.
type StatusFunc func(status.State)

// Options configures a Transport. Zero values fall back to defaults.
type Options struct {
	Dialer       Dialer
	Clock        clock.Clock
	Backoff      Backoff
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *zap.Logger

	// OnEnvelope receives every well-formed inbound frame on the
	// connection's reader goroutine.
	OnEnvelope func(protocol.Envelope)
}

type notice struct {
	fn    StatusFunc
	state status.State
}

// Transport owns at most one logical connection at a time.
type Transport struct {
	dialer       Dialer
	clock        clock.Clock
	backoff      Backoff
	dialTimeout  time.Duration
	writeTimeout time.Duration
	log          *zap.Logger
	onEnvelope   func(protocol.Envelope)

	mu       sync.Mutex
	url      string
	onStatus StatusFunc
	state    status.State
	epoch    uint64
	ctx      context.Context
	cancel   context.CancelFunc
	conn     Conn
	queue    []protocol.Command
	failures int
	retries  int
	retry    *clock.Timer
	pending  []notice

	notifyMu sync.Mutex
}

func New(opts Options) *Transport {
	t := &Transport{
		dialer:       opts.Dialer,
		clock:        opts.Clock,
		backoff:      opts.Backoff,
		dialTimeout:  opts.DialTimeout,
		writeTimeout: opts.WriteTimeout,
		log:          opts.Logger,
		onEnvelope:   opts.OnEnvelope,
		state:        status.Disconnected,
	}
	if t.dialer == nil {
		t.dialer = WebsocketDialer{}
	}
	if t.clock == nil {
		t.clock = clock.Real()
	}
	if t.backoff == (Backoff{}) {
		t.backoff = DefaultBackoff()
	}
	if t.dialTimeout <= 0 {
		t.dialTimeout = DefaultDialTimeout
	}
	if t.writeTimeout <= 0 {
		t.writeTimeout = DefaultWriteTimeout
	}
	if t.log == nil {
		t.log = zap.NewNop()
	}
	return t
}

// SetEnvelopeHandler replaces the inbound frame handler. It must be called
// before Connect.
func (t *Transport) SetEnvelopeHandler(fn func(protocol.Envelope)) {
	t.mu.Lock()
	t.onEnvelope = fn
	t.mu.Unlock()
}

// Connect starts connecting to url in the background. Failures surface only
// as status changes. An active connection is hard reset first.
func (t *Transport) Connect(url string, onStatus StatusFunc) {
	t.mu.Lock()
	if t.state != status.Disconnected {
		t.log.Info("resetting active connection")
		t.teardownLocked()
		t.queue = nil
		t.setStatusLocked(status.Disconnected)
	}
	t.url = url
	t.onStatus = onStatus
	t.failures = 0
	t.retries = 0
	t.startDialLocked()
	t.mu.Unlock()
	t.deliver()
}

// Send writes cmd if connected, otherwise queues it. It never fails; a
// command whose write fails is re-queued and the connection is dropped.
func (t *Transport) Send(cmd protocol.Command) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != status.Connected || t.conn == nil {
		t.queue = append(t.queue, cmd)
		return
	}
	if err := t.writeLocked(t.ctx, t.conn, cmd); err != nil {
		t.log.Warn("write failed, requeueing", zap.String("command", string(cmd.Kind)), zap.Error(err))
		t.queue = append(t.queue, cmd)
		closeAsync(t.conn)
	}
}

// Disconnect closes the connection, drops queued commands and cancels any
// pending retry.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	t.teardownLocked()
	t.queue = nil
	t.setStatusLocked(status.Disconnected)
	t.mu.Unlock()
	t.deliver()
}

func (t *Transport) Status() status.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// QueueLen returns the number of commands waiting for a connection.
func (t *Transport) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

func (t *Transport) teardownLocked() {
	t.epoch++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if t.retry != nil {
		t.retry.Stop()
		t.retry = nil
	}
	if t.conn != nil {
		closeAsync(t.conn)
		t.conn = nil
	}
	t.failures = 0
	t.retries = 0
}

func (t *Transport) startDialLocked() {
	t.epoch++
	epoch := t.epoch
	if t.cancel != nil {
		t.cancel()
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.setStatusLocked(status.Connecting)
	go t.run(t.ctx, epoch, t.url)
}

// run dials, flushes the queue and then reads until the connection closes.
func (t *Transport) run(ctx context.Context, epoch uint64, url string) {
	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	conn, err := t.dialer.Dial(dialCtx, url)
	cancel()

	t.mu.Lock()
	if epoch != t.epoch {
		t.mu.Unlock()
		if conn != nil {
			closeAsync(conn)
		}
		return
	}
	if err != nil {
		t.failures++
		t.log.Warn("connect failed", zap.String("url", url), zap.Int("failures", t.failures), zap.Error(err))
		t.scheduleRetryLocked()
		t.mu.Unlock()
		t.deliver()
		return
	}

	t.log.Info("connected", zap.String("url", url))
	t.conn = conn
	t.failures = 0
	t.retries = 0
	t.setStatusLocked(status.Connected)
	t.flushLocked(ctx, conn)
	onEnvelope := t.onEnvelope
	t.mu.Unlock()
	t.deliver()

	t.readLoop(ctx, epoch, conn, onEnvelope)
}

// flushLocked writes queued commands strictly in order. Holding mu keeps
// newly sent commands behind the backlog.
func (t *Transport) flushLocked(ctx context.Context, conn Conn) {
	for len(t.queue) > 0 {
		if err := t.writeLocked(ctx, conn, t.queue[0]); err != nil {
			t.log.Warn("flush interrupted", zap.Int("remaining", len(t.queue)), zap.Error(err))
			closeAsync(conn)
			return
		}
		t.queue = t.queue[1:]
	}
	t.queue = nil
}

func (t *Transport) writeLocked(ctx context.Context, conn Conn, cmd protocol.Command) error {
	data, err := protocol.EncodeCommand(cmd)
	if err != nil {
		t.log.Error("dropping unencodable command", zap.String("command", string(cmd.Kind)), zap.Error(err))
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, t.writeTimeout)
	defer cancel()
	return conn.Write(wctx, data)
}

func (t *Transport) readLoop(ctx context.Context, epoch uint64, conn Conn, onEnvelope func(protocol.Envelope)) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			t.handleClose(epoch, conn, err)
			return
		}
		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			t.log.Warn("dropping malformed frame", zap.Int("bytes", len(data)), zap.Error(err))
			continue
		}
		if onEnvelope != nil {
			onEnvelope(env)
		}
	}
}

func (t *Transport) handleClose(epoch uint64, conn Conn, err error) {
	t.mu.Lock()
	if epoch != t.epoch {
		t.mu.Unlock()
		return
	}
	t.log.Info("connection closed", zap.Error(err))
	if t.conn == conn {
		t.conn = nil
	}
	closeAsync(conn)
	t.scheduleRetryLocked()
	t.mu.Unlock()
	t.deliver()
}

// scheduleRetryLocked arms the backoff timer, or gives up once failures
// reaches MaxRetries. The delay grows with every retry since the last
// successful connect, so a drop followed by failed redials waits 1s, 1.5s,
// 2.25s and so on.
func (t *Transport) scheduleRetryLocked() {
	if t.failures >= t.backoff.MaxRetries {
		t.log.Warn("giving up reconnecting", zap.Int("attempts", t.failures))
		if t.cancel != nil {
			t.cancel()
			t.cancel = nil
		}
		t.setStatusLocked(status.Disconnected)
		return
	}
	t.retries++
	delay := t.backoff.Delay(t.retries)
	epoch := t.epoch
	t.setStatusLocked(status.Reconnecting)
	t.log.Debug("scheduling reconnect", zap.Duration("delay", delay))
	t.retry = t.clock.AfterFunc(delay, func() { t.retryDial(epoch) })
}

func (t *Transport) retryDial(epoch uint64) {
	t.mu.Lock()
	if epoch != t.epoch || t.state != status.Reconnecting {
		t.mu.Unlock()
		return
	}
	t.retry = nil
	t.startDialLocked()
	t.mu.Unlock()
	t.deliver()
}

func (t *Transport) setStatusLocked(s status.State) {
	if t.state == s {
		return
	}
	t.state = s
	t.pending = append(t.pending, notice{fn: t.onStatus, state: s})
}

// deliver runs queued status callbacks outside mu. Only one goroutine
// delivers at a time, so callbacks observe changes in order.
func (t *Transport) deliver() {
	for {
		if !t.notifyMu.TryLock() {
			return
		}
		for {
			t.mu.Lock()
			batch := t.pending
			t.pending = nil
			t.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, n := range batch {
				if n.fn != nil {
					n.fn(n.state)
				}
			}
		}
		t.notifyMu.Unlock()

		t.mu.Lock()
		more := len(t.pending) > 0
		t.mu.Unlock()
		if !more {
			return
		}
	}
}

func closeAsync(c Conn) {
	go func() { _ = c.Close() }()
}
