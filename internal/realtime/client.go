package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueued is returned by Send when the message was buffered instead of
// transmitted. It is not a failure.
var ErrQueued = errors.New("realtime: message queued")

// State is the connection lifecycle position.
type State int

// Connection states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

func (s State) open() bool {
	return s == StateConnected || s == StateAuthenticated
}

// Identity is what the AUTH frame announces.
type Identity struct {
	UserID string
	Role   string
}

// IdentitySource reports the signed-in identity, if any. Implementations must
// not call back into the Client while holding their own locks.
type IdentitySource interface {
	Identity() (Identity, bool)
}

// Observer receives lifecycle signals, typically for metrics. Methods are
// called with the client lock held and must not call back into the Client.
type Observer interface {
	StateChanged(state State)
	ReconnectScheduled(attempt int, delay time.Duration)
	MessageQueued()
	MessageDropped(reason string)
}

type noopObserver struct{}

func (noopObserver) StateChanged(State)                    {}
func (noopObserver) ReconnectScheduled(int, time.Duration) {}
func (noopObserver) MessageQueued()                        {}
func (noopObserver) MessageDropped(string)                 {}

// Config tunes connection behaviour. Zero values take the defaults.
type Config struct {
	URL            string
	ConnectTimeout time.Duration
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
	// MaxQueue bounds the outbound buffer; 0 means unbounded. When full the
	// oldest message is dropped.
	MaxQueue int
}

// Defaults.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultBaseDelay      = 2 * time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultMaxAttempts    = 10
)

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.MaxQueue < 0 {
		c.MaxQueue = 0
	}
	return c
}

// Option customises a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithClock replaces the timer source.
func WithClock(clock Clock) Option { return func(c *Client) { c.clock = clock } }

// WithObserver installs a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithIdentity sets the identity source used by Authenticate.
func WithIdentity(src IdentitySource) Option { return func(c *Client) { c.identity = src } }

type subscriber struct {
	id int
	fn func(Message)
}

type stateWatcher struct {
	id int
	fn func(State)
}

// Client maintains a single connection to the notification endpoint.
type Client struct {
	cfg      Config
	dialer   Dialer
	clock    Clock
	logger   *slog.Logger
	observer Observer

	mu           sync.Mutex
	identity     IdentitySource
	state        State
	conn         Conn
	gen          uint64
	attempts     int
	exhausted    bool
	closing      bool
	reconnect    Timer
	reconnectSeq uint64
	connectTimer Timer
	cancelDial   context.CancelFunc
	queue        [][]byte
	subscribers  []subscriber
	watchers     []stateWatcher
	nextID       int
	pending      []State
	draining     bool
}

// New constructs a disconnected client. Nothing is dialed until Connect or
// Send.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		clock:    systemClock{},
		logger:   logger.With(slog.String("component", "realtime")),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NewWebsocketDialer(cfg.ConnectTimeout)
	}
	return c
}

// SetIdentitySource installs the identity source after construction.
func (c *Client) SetIdentitySource(src IdentitySource) {
	c.mu.Lock()
	c.identity = src
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Exhausted reports whether automatic reconnection has given up.
func (c *Client) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

// Attempts returns the consecutive reconnect attempts since the last
// successful open.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// QueueLen returns the number of buffered outbound messages.
func (c *Client) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Connect opens the connection. It cancels a pending reconnection and resets
// an exhausted attempt counter. It does nothing while a connection is being
// opened or is already open.
func (c *Client) Connect() {
	c.mu.Lock()
	c.closing = false
	c.stopReconnectLocked()
	if c.exhausted {
		c.exhausted = false
		c.attempts = 0
	}
	c.connectLocked()
	c.mu.Unlock()
	c.drainStates()
}

// Disconnect closes the connection with a normal closure. No reconnection is
// scheduled afterwards. Buffered messages are kept for the next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	c.stopReconnectLocked()
	c.stopConnectAttemptLocked()
	conn := c.conn
	c.conn = nil
	c.gen++
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(CloseNormalClosure, "client disconnect"); err != nil {
			c.logger.Debug("close connection", slog.Any("error", err))
		}
	}
	c.drainStates()
}

// Send transmits msg when the connection is open and returns nil. Otherwise
// msg is buffered, a connection attempt is started unless a reconnection is
// already scheduled, and ErrQueued is returned.
func (c *Client) Send(msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.state.open() && c.conn != nil {
		err := c.conn.WriteMessage(data)
		if err == nil {
			c.mu.Unlock()
			return nil
		}
		c.logger.Warn("send failed, buffering", slog.Any("error", err))
		c.abortConnLocked()
	}
	c.enqueueLocked(data)
	if c.reconnect == nil {
		c.connectLocked()
	}
	c.mu.Unlock()
	c.drainStates()
	return ErrQueued
}

// Authenticate sends an AUTH frame for the current identity. It does nothing
// without an open connection or without a signed-in identity.
func (c *Client) Authenticate() {
	c.mu.Lock()
	src := c.identity
	c.mu.Unlock()
	if src == nil {
		return
	}
	id, ok := src.Identity()
	if !ok || id.UserID == "" {
		return
	}
	data, err := Encode(Auth{UserID: id.UserID, Role: id.Role, Timestamp: c.clock.Now().UnixMilli()})
	if err != nil {
		c.logger.Error("encode auth", slog.Any("error", err))
		return
	}

	c.mu.Lock()
	if !c.state.open() || c.conn == nil {
		c.mu.Unlock()
		return
	}
	if err := c.conn.WriteMessage(data); err != nil {
		c.logger.Warn("auth send failed", slog.Any("error", err))
		c.abortConnLocked()
	}
	c.mu.Unlock()
	c.drainStates()
}

// Subscribe registers fn for every forwarded inbound message. Handlers run in
// registration order; a panicking handler is logged and skipped.
func (c *Client) Subscribe(fn func(Message)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subscribers = append(c.subscribers, subscriber{id: id, fn: fn})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, s := range c.subscribers {
			if s.id == id {
				c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
				return
			}
		}
	}
}

// WatchState registers fn for state transitions.
func (c *Client) WatchState(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.watchers = append(c.watchers, stateWatcher{id: id, fn: fn})
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, w := range c.watchers {
			if w.id == id {
				c.watchers = append(c.watchers[:i:i], c.watchers[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) connectLocked() {
	if c.exhausted || c.state != StateDisconnected {
		return
	}
	c.closing = false
	c.gen++
	gen := c.gen
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	c.setStateLocked(StateConnecting)
	c.connectTimer = c.clock.AfterFunc(c.cfg.ConnectTimeout, func() { c.onConnectTimeout(gen) })
	go c.dial(ctx, gen)
}

func (c *Client) dial(ctx context.Context, gen uint64) {
	conn, err := c.dialer.Dial(ctx, c.cfg.URL)

	c.mu.Lock()
	if gen != c.gen || c.state != StateConnecting {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close(CloseNormalClosure, "superseded")
		}
		return
	}
	c.stopConnectAttemptLocked()
	if err != nil {
		c.logger.Warn("connect failed", slog.String("url", c.cfg.URL), slog.Any("error", err))
		c.dropLocked(CloseAbnormalClosure)
		c.mu.Unlock()
		c.drainStates()
		return
	}
	c.conn = conn
	c.attempts = 0
	c.setStateLocked(StateConnected)
	c.logger.Info("connected", slog.String("url", c.cfg.URL))
	c.flushLocked()
	live := c.conn == conn
	gen = c.gen
	c.mu.Unlock()
	c.drainStates()

	if live {
		go c.readLoop(conn, gen)
	}
}

func (c *Client) onConnectTimeout(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.logger.Warn("connect timed out", slog.Duration("timeout", c.cfg.ConnectTimeout))
	c.connectTimer = nil
	c.stopConnectAttemptLocked()
	c.dropLocked(CloseAbnormalClosure)
	c.mu.Unlock()
	c.drainStates()
}

func (c *Client) readLoop(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.onClosed(gen, err)
			return
		}
		if !c.current(gen) {
			return
		}
		c.onFrame(gen, data)
	}
}

func (c *Client) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Client) onClosed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	code := closeCodeOf(err)
	c.logger.Info("connection closed", slog.Int("code", code), slog.Any("error", err))
	c.dropLocked(code)
	c.mu.Unlock()
	c.drainStates()
}

func (c *Client) onFrame(gen uint64, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		c.logger.Warn("dropping inbound frame", slog.Any("error", err))
		c.mu.Lock()
		c.observer.MessageDropped("malformed")
		c.mu.Unlock()
		return
	}
	switch msg.(type) {
	case ConnectionEstablished:
		c.Authenticate()
	case AuthSuccess:
		c.mu.Lock()
		if gen == c.gen && c.state == StateConnected {
			c.setStateLocked(StateAuthenticated)
		}
		c.mu.Unlock()
		c.drainStates()
	default:
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	c.mu.Lock()
	subs := make([]subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()
	for _, s := range subs {
		c.deliver(s.fn, msg)
	}
}

func (c *Client) deliver(fn func(Message), msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message handler panicked", slog.String("type", string(msg.MessageType())), slog.Any("panic", r))
		}
	}()
	fn(msg)
}

// dropLocked moves to disconnected and schedules a reconnection unless the
// close was clean.
func (c *Client) dropLocked(code int) {
	c.gen++
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	if c.closing || code == CloseNormalClosure {
		return
	}
	c.scheduleReconnectLocked()
}

// abortConnLocked tears down a connection whose write failed.
func (c *Client) abortConnLocked() {
	conn := c.conn
	c.dropLocked(CloseAbnormalClosure)
	if conn != nil {
		go func() { _ = conn.Close(CloseAbnormalClosure, "") }()
	}
}

func (c *Client) scheduleReconnectLocked() {
	if c.reconnect != nil {
		return
	}
	if c.attempts >= c.cfg.MaxAttempts {
		if !c.exhausted {
			c.exhausted = true
			c.logger.Error("reconnect attempts exhausted", slog.Int("attempts", c.attempts))
		}
		return
	}
	delay := Backoff(c.attempts, c.cfg.BaseDelay, c.cfg.MaxDelay)
	c.attempts++
	c.reconnectSeq++
	seq := c.reconnectSeq
	c.observer.ReconnectScheduled(c.attempts, delay)
	c.logger.Info("reconnect scheduled", slog.Int("attempt", c.attempts), slog.Duration("delay", delay))
	c.reconnect = c.clock.AfterFunc(delay, func() { c.onReconnect(seq) })
}

func (c *Client) onReconnect(seq uint64) {
	c.mu.Lock()
	if c.reconnect == nil || seq != c.reconnectSeq {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.connectLocked()
	c.mu.Unlock()
	c.drainStates()
}

func (c *Client) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.reconnectSeq++
}

func (c *Client) stopConnectAttemptLocked() {
	if c.connectTimer != nil {
		c.connectTimer.Stop()
		c.connectTimer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
}

func (c *Client) enqueueLocked(data []byte) {
	if c.cfg.MaxQueue > 0 && len(c.queue) >= c.cfg.MaxQueue {
		c.queue = c.queue[1:]
		c.observer.MessageDropped("queue_full")
		c.logger.Warn("outbound queue full, dropping oldest", slog.Int("max", c.cfg.MaxQueue))
	}
	c.queue = append(c.queue, data)
	c.observer.MessageQueued()
}

// flushLocked writes buffered messages in order. On a write failure the
// unsent remainder stays queued and the connection is torn down.
func (c *Client) flushLocked() {
	for len(c.queue) > 0 {
		if err := c.conn.WriteMessage(c.queue[0]); err != nil {
			c.logger.Warn("queue flush failed", slog.Int("remaining", len(c.queue)), slog.Any("error", err))
			c.abortConnLocked()
			return
		}
		c.queue[0] = nil
		c.queue = c.queue[1:]
	}
	c.queue = nil
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.pending = append(c.pending, s)
	c.observer.StateChanged(s)
}

// drainStates delivers queued transitions to watchers outside the lock.
// Transitions raised by a watcher are delivered by the outermost call.
func (c *Client) drainStates() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.pending) > 0 {
		s := c.pending[0]
		c.pending = c.pending[1:]
		watchers := make([]stateWatcher, len(c.watchers))
		copy(watchers, c.watchers)
		c.mu.Unlock()
		for _, w := range watchers {
			c.notifyWatcher(w.fn, s)
		}
		c.mu.Lock()
	}
	c.draining = false
	c.mu.Unlock()
}

func (c *Client) notifyWatcher(fn func(State), s State) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("state watcher panicked", slog.String("state", s.String()), slog.Any("panic", r))
		}
	}()
	fn(s)
}
