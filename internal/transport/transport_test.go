package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/parley/internal/clock"
	"github.com/matheus3301/parley/internal/protocol"
	"github.com/matheus3301/parley/internal/status"
)

var errRefused = errors.New("connection refused")

type fakeConn struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return nil, errors.New("closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	c.mu.Lock()
	c.written = append(c.written, string(data))
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// fakeDialer hands out queued conns and fails when none is queued.
type fakeDialer struct {
	clk      clock.Clock
	conns    chan *fakeConn
	attempts chan time.Time
}

func newFakeDialer(clk clock.Clock) *fakeDialer {
	return &fakeDialer{clk: clk, conns: make(chan *fakeConn, 4), attempts: make(chan time.Time, 64)}
}

func (d *fakeDialer) Dial(context.Context, string) (Conn, error) {
	d.attempts <- d.clk.Now()
	select {
	case c := <-d.conns:
		return c, nil
	default:
		return nil, errRefused
	}
}

type statusRecorder struct {
	ch chan status.State
}

func newRecorder() *statusRecorder {
	return &statusRecorder{ch: make(chan status.State, 128)}
}

func (r *statusRecorder) fn(s status.State) { r.ch <- s }

func (r *statusRecorder) expect(t *testing.T, want ...status.State) {
	t.Helper()
	for _, w := range want {
		select {
		case got := <-r.ch:
			require.Equal(t, w, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for status %s", w)
		}
	}
}

func waitAttempt(t *testing.T, d *fakeDialer) time.Time {
	t.Helper()
	select {
	case at := <-d.attempts:
		return at
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial attempt")
		return time.Time{}
	}
}

func TestBackoffTerminatesAfterMaxRetries(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	d := newFakeDialer(clk)
	rec := newRecorder()
	tr := New(Options{Dialer: d, Clock: clk})

	tr.Connect("ws://unreachable", rec.fn)

	var times []time.Time
	for i := 1; i <= 10; i++ {
		times = append(times, waitAttempt(t, d))
		if i < 10 {
			rec.expect(t, status.Connecting, status.Reconnecting)
			clk.WaitForTimers(1)
			clk.Advance(tr.backoff.Delay(i))
		}
	}
	rec.expect(t, status.Connecting, status.Disconnected)

	assert.Equal(t, status.Disconnected, tr.Status())
	assert.Equal(t, 0, clk.Pending(), "no retry may be scheduled after giving up")
	select {
	case <-d.attempts:
		t.Fatal("unexpected 11th attempt")
	default:
	}

	b := DefaultBackoff()
	for i := 1; i < len(times); i++ {
		assert.Equal(t, b.Delay(i), times[i].Sub(times[i-1]), "gap before attempt %d", i+1)
	}
}

func TestDropSchedulesRetryAtMinDelay(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	d := newFakeDialer(clk)
	rec := newRecorder()
	tr := New(Options{Dialer: d, Clock: clk})

	first := newFakeConn()
	d.conns <- first
	tr.Connect("ws://server", rec.fn)
	dropped := waitAttempt(t, d)
	rec.expect(t, status.Connecting, status.Connected)

	first.Close()
	rec.expect(t, status.Reconnecting)

	// the first two redials fail, the third succeeds
	b := DefaultBackoff()
	var times []time.Time
	for i := 1; i <= 3; i++ {
		if i == 3 {
			d.conns <- newFakeConn()
		}
		clk.WaitForTimers(1)
		clk.Advance(b.Delay(i))
		times = append(times, waitAttempt(t, d))
		if i < 3 {
			rec.expect(t, status.Connecting, status.Reconnecting)
		}
	}
	rec.expect(t, status.Connecting, status.Connected)

	assert.Equal(t, time.Second, times[0].Sub(dropped))
	assert.Equal(t, 1500*time.Millisecond, times[1].Sub(times[0]))
	assert.Equal(t, 2250*time.Millisecond, times[2].Sub(times[1]))
}

func TestDropResetsGrowthAfterReconnect(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	d := newFakeDialer(clk)
	rec := newRecorder()
	tr := New(Options{Dialer: d, Clock: clk})

	first := newFakeConn()
	d.conns <- first
	tr.Connect("ws://server", rec.fn)
	waitAttempt(t, d)
	rec.expect(t, status.Connecting, status.Connected)

	first.Close()
	rec.expect(t, status.Reconnecting)
	clk.WaitForTimers(1)
	clk.Advance(time.Second)
	waitAttempt(t, d)
	rec.expect(t, status.Connecting, status.Reconnecting)

	second := newFakeConn()
	d.conns <- second
	clk.WaitForTimers(1)
	clk.Advance(1500 * time.Millisecond)
	waitAttempt(t, d)
	rec.expect(t, status.Connecting, status.Connected)

	second.Close()
	rec.expect(t, status.Reconnecting)
	start := clk.Now()
	d.conns <- newFakeConn()
	clk.WaitForTimers(1)
	clk.Advance(time.Second)
	at := waitAttempt(t, d)
	rec.expect(t, status.Connecting, status.Connected)
	assert.Equal(t, time.Second, at.Sub(start))
}

func TestQueueFlushedInOrderOnOpen(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	d := newFakeDialer(clk)
	rec := newRecorder()
	tr := New(Options{Dialer: d, Clock: clk})

	tr.Send(protocol.Subscribe("a"))
	tr.Send(protocol.Typing("a"))
	tr.Send(protocol.StopTyping("a"))
	require.Equal(t, 3, tr.QueueLen())

	conn := newFakeConn()
	d.conns <- conn
	tr.Connect("ws://server", rec.fn)
	rec.expect(t, status.Connecting, status.Connected)

	tr.Send(protocol.Unsubscribe("a"))
	got := conn.Written()
	require.Len(t, got, 4)
	assert.Contains(t, got[0], `"subscribe"`)
	assert.Contains(t, got[1], `"typing"`)
	assert.Contains(t, got[2], `"stop_typing"`)
	assert.Contains(t, got[3], `"unsubscribe"`)
	assert.Equal(t, 0, tr.QueueLen())
}

func TestDisconnectClearsQueueAndCancelsRetry(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	d := newFakeDialer(clk)
	rec := newRecorder()
	tr := New(Options{Dialer: d, Clock: clk})

	tr.Connect("ws://unreachable", rec.fn)
	waitAttempt(t, d)
	rec.expect(t, status.Connecting, status.Reconnecting)
	clk.WaitForTimers(1)

	tr.Send(protocol.Subscribe("a"))
	tr.Disconnect()
	rec.expect(t, status.Disconnected)

	assert.Equal(t, 0, tr.QueueLen())
	assert.Equal(t, 0, clk.Pending())
	clk.Advance(time.Minute)
	select {
	case <-d.attempts:
		t.Fatal("retry fired after Disconnect")
	default:
	}
}

func TestConnectWhileActiveResets(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	d := newFakeDialer(clk)
	rec := newRecorder()
	tr := New(Options{Dialer: d, Clock: clk})

	first := newFakeConn()
	d.conns <- first
	tr.Connect("ws://one", rec.fn)
	rec.expect(t, status.Connecting, status.Connected)

	second := newFakeConn()
	d.conns <- second
	tr.Connect("ws://two", rec.fn)
	rec.expect(t, status.Disconnected, status.Connecting, status.Connected)

	select {
	case <-first.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("first connection not closed")
	}
	// the old reader exits without touching the new connection's status
	assert.Equal(t, status.Connected, tr.Status())
}

func TestMalformedFrameDropped(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	d := newFakeDialer(clk)
	rec := newRecorder()
	got := make(chan protocol.Envelope, 4)
	tr := New(Options{Dialer: d, Clock: clk, OnEnvelope: func(e protocol.Envelope) { got <- e }})

	conn := newFakeConn()
	d.conns <- conn
	tr.Connect("ws://server", rec.fn)
	rec.expect(t, status.Connecting, status.Connected)

	conn.frames <- []byte("not json")
	conn.frames <- []byte(`{"type":"typing","payload":{"chatId":"c1","userId":"u1"}}`)

	select {
	case env := <-got:
		assert.Equal(t, protocol.TypeTyping, env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame not delivered")
	}
	assert.Equal(t, status.Connected, tr.Status())
}

func TestWebsocketRoundTrip(t *testing.T) {
	received := make(chan string, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		if err := c.Write(ctx, websocket.MessageText, []byte(`{"type":"presence","payload":{"status":"connected","subscribedChats":[]}}`)); err != nil {
			return
		}
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			received <- string(data)
		}
	}))
	defer srv.Close()

	envs := make(chan protocol.Envelope, 4)
	rec := newRecorder()
	tr := New(Options{OnEnvelope: func(e protocol.Envelope) { envs <- e }})
	defer tr.Disconnect()

	tr.Send(protocol.Subscribe("a"))
	tr.Send(protocol.Subscribe("b"))
	tr.Connect("ws"+strings.TrimPrefix(srv.URL, "http"), rec.fn)
	rec.expect(t, status.Connecting, status.Connected)

	for _, want := range []string{`"chatId":"a"`, `"chatId":"b"`} {
		select {
		case msg := <-received:
			assert.Contains(t, msg, want)
		case <-time.After(5 * time.Second):
			t.Fatalf("server did not receive %s", want)
		}
	}
	select {
	case env := <-envs:
		assert.Equal(t, protocol.TypePresence, env.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("presence frame not delivered")
	}
}
