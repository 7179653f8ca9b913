package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/inventory-portal/internal/realtime"
)

type dialRequest struct {
	url    string
	result chan dialResult
}

type dialResult struct {
	conn realtime.Conn
	err  error
}

func (r *dialRequest) accept(conn realtime.Conn) { r.result <- dialResult{conn: conn} }
func (r *dialRequest) fail(err error)            { r.result <- dialResult{err: err} }

type fakeDialer struct {
	calls chan *dialRequest
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{calls: make(chan *dialRequest, 64)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (realtime.Conn, error) {
	req := &dialRequest{url: url, result: make(chan dialResult, 1)}
	d.calls <- req
	select {
	case res := <-req.result:
		return res.conn, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) next(t *testing.T) *dialRequest {
	t.Helper()
	select {
	case req := <-d.calls:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("expected a dial")
		return nil
	}
}

func (d *fakeDialer) requireIdle(t *testing.T) {
	t.Helper()
	select {
	case <-d.calls:
		t.Fatal("unexpected dial")
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	written   [][]byte
	closeCode int
	readErr   error
	writeErr  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.readErr != nil {
			return nil, c.readErr
		}
		return nil, &realtime.CloseError{Code: c.closeCode}
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close(code int, _ string) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.mu.Unlock()
		close(c.closed)
	})
	return nil
}

// drop simulates the peer going away with the given close code.
func (c *fakeConn) drop(code int) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode = code
		c.mu.Unlock()
		close(c.closed)
	})
}

// breakWith simulates a transport failure.
func (c *fakeConn) breakWith(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()
		close(c.closed)
	})
}

func (c *fakeConn) frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.written))
	for i, w := range c.written {
		out[i] = string(w)
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeTimer struct {
	clock   *fakeClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) realtime.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, delay: d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) active() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t.delay)
		}
	}
	return out
}

func (c *fakeClock) hasActive(d time.Duration) bool {
	for _, delay := range c.active() {
		if delay == d {
			return true
		}
	}
	return false
}

// fire runs the first pending timer with delay d.
func (c *fakeClock) fire(t *testing.T, d time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool { return c.hasActive(d) }, 2*time.Second, 5*time.Millisecond, "no pending %s timer", d)
	c.mu.Lock()
	var target *fakeTimer
	for _, tm := range c.timers {
		if !tm.stopped && !tm.fired && tm.delay == d {
			target = tm
			break
		}
	}
	target.fired = true
	c.now = c.now.Add(d)
	c.mu.Unlock()
	target.fn()
}

type staticIdentity struct {
	id realtime.Identity
	ok bool
}

func (s staticIdentity) Identity() (realtime.Identity, bool) { return s.id, s.ok }

type countingObserver struct {
	mu         sync.Mutex
	states     []realtime.State
	reconnects []time.Duration
	queued     int
	dropped    map[string]int
}

func (o *countingObserver) StateChanged(s realtime.State) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func (o *countingObserver) ReconnectScheduled(_ int, d time.Duration) {
	o.mu.Lock()
	o.reconnects = append(o.reconnects, d)
	o.mu.Unlock()
}

func (o *countingObserver) MessageQueued() {
	o.mu.Lock()
	o.queued++
	o.mu.Unlock()
}

func (o *countingObserver) MessageDropped(reason string) {
	o.mu.Lock()
	if o.dropped == nil {
		o.dropped = map[string]int{}
	}
	o.dropped[reason]++
	o.mu.Unlock()
}

func (o *countingObserver) droppedCount(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped[reason]
}

func (o *countingObserver) reconnectDelays() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.reconnects...)
}

var errRefused = errors.New("connection refused")

type harness struct {
	client   *realtime.Client
	dialer   *fakeDialer
	clock    *fakeClock
	observer *countingObserver
}

func newHarness(t *testing.T, cfg realtime.Config, opts ...realtime.Option) *harness {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = "ws://hub.test/ws"
	}
	h := &harness{dialer: newFakeDialer(), clock: newFakeClock(), observer: &countingObserver{}}
	all := append([]realtime.Option{
		realtime.WithDialer(h.dialer),
		realtime.WithClock(h.clock),
		realtime.WithObserver(h.observer),
	}, opts...)
	h.client = realtime.New(cfg, nil, all...)
	t.Cleanup(h.client.Disconnect)
	return h
}

// open connects the client and hands it conn.
func (h *harness) open(t *testing.T, conn *fakeConn) {
	t.Helper()
	h.client.Connect()
	h.dialer.next(t).accept(conn)
	h.waitState(t, realtime.StateConnected)
}

func (h *harness) waitState(t *testing.T, want realtime.State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.client.State() == want }, 2*time.Second, 5*time.Millisecond, "state %s", want)
}
