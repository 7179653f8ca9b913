package realtime_test

import (
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/inventory-portal/internal/realtime"
)

func TestBackoff(t *testing.T) {
	base, max := 2*time.Second, 30*time.Second
	cases := map[int]time.Duration{
		0:  2 * time.Second,
		1:  4 * time.Second,
		2:  8 * time.Second,
		3:  16 * time.Second,
		4:  30 * time.Second,
		9:  30 * time.Second,
		80: 30 * time.Second,
	}
	for attempt, want := range cases {
		require.Equal(t, want, realtime.Backoff(attempt, base, max), "attempt %d", attempt)
	}
	require.Zero(t, realtime.Backoff(3, 0, max))
}

func TestSendQueuesUntilConnectedThenFlushesInOrder(t *testing.T) {
	h := newHarness(t, realtime.Config{})

	first := realtime.Unknown{Type: "PING", Raw: []byte(`{"type":"PING","n":1}`)}
	second := realtime.Unknown{Type: "PING", Raw: []byte(`{"type":"PING","n":2}`)}
	require.ErrorIs(t, h.client.Send(first), realtime.ErrQueued)
	require.Equal(t, realtime.StateConnecting, h.client.State())
	require.ErrorIs(t, h.client.Send(second), realtime.ErrQueued)
	require.Equal(t, 2, h.client.QueueLen())

	req := h.dialer.next(t)
	require.Equal(t, "ws://hub.test/ws", req.url)
	h.dialer.requireIdle(t)

	conn := newFakeConn()
	req.accept(conn)
	h.waitState(t, realtime.StateConnected)

	third := realtime.Unknown{Type: "PING", Raw: []byte(`{"type":"PING","n":3}`)}
	require.NoError(t, h.client.Send(third))
	require.Equal(t, []string{
		`{"type":"PING","n":1}`,
		`{"type":"PING","n":2}`,
		`{"type":"PING","n":3}`,
	}, conn.frames())
	require.Zero(t, h.client.QueueLen())
}

func TestConnectionEstablishedAuthenticates(t *testing.T) {
	identity := staticIdentity{id: realtime.Identity{UserID: "u-1", Role: "admin"}, ok: true}
	h := newHarness(t, realtime.Config{}, realtime.WithIdentity(identity))

	var forwarded []realtime.Message
	var mu sync.Mutex
	h.client.Subscribe(func(m realtime.Message) {
		mu.Lock()
		forwarded = append(forwarded, m)
		mu.Unlock()
	})

	conn := newFakeConn()
	h.open(t, conn)
	conn.in <- []byte(`{"type":"CONNECTION_ESTABLISHED","clientId":"c-9"}`)

	require.Eventually(t, func() bool { return len(conn.frames()) == 1 }, 2*time.Second, 5*time.Millisecond)
	var auth map[string]any
	require.NoError(t, json.Unmarshal([]byte(conn.frames()[0]), &auth))
	require.Equal(t, "AUTH", auth["type"])
	require.Equal(t, "u-1", auth["userId"])
	require.Equal(t, "admin", auth["role"])
	require.EqualValues(t, h.clock.Now().UnixMilli(), auth["timestamp"])

	conn.in <- []byte(`{"type":"AUTH_SUCCESS","userId":"u-1"}`)
	h.waitState(t, realtime.StateAuthenticated)

	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, forwarded)
}

func TestAuthenticateRequiresIdentityAndOpenConnection(t *testing.T) {
	src := &switchableIdentity{}
	h := newHarness(t, realtime.Config{}, realtime.WithIdentity(src))

	h.client.Authenticate()
	h.dialer.requireIdle(t)

	conn := newFakeConn()
	h.open(t, conn)
	h.client.Authenticate()
	require.Empty(t, conn.frames())

	src.set(realtime.Identity{UserID: "u-2", Role: "staff"})
	h.client.Authenticate()
	require.Len(t, conn.frames(), 1)
}

type switchableIdentity struct {
	mu sync.Mutex
	id *realtime.Identity
}

func (s *switchableIdentity) set(id realtime.Identity) {
	s.mu.Lock()
	s.id = &id
	s.mu.Unlock()
}

func (s *switchableIdentity) Identity() (realtime.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == nil {
		return realtime.Identity{}, false
	}
	return *s.id, true
}

func TestSubscribersIsolatedFromPanics(t *testing.T) {
	h := newHarness(t, realtime.Config{})

	received := make(chan realtime.Message, 4)
	h.client.Subscribe(func(realtime.Message) { panic("boom") })
	h.client.Subscribe(func(m realtime.Message) { received <- m })
	unsubscribe := h.client.Subscribe(func(m realtime.Message) { received <- m })
	unsubscribe()

	conn := newFakeConn()
	h.open(t, conn)
	conn.in <- []byte(`{"type":"AUTH_UPDATE","userId":"u-1","action":"PERMISSIONS_UPDATED","permissions":["products_view"]}`)
	conn.in <- []byte(`{"type":"STOCK_LOW","sku":"A-1"}`)

	msg := <-received
	update, ok := msg.(realtime.AuthUpdate)
	require.True(t, ok)
	require.Equal(t, realtime.ActionPermissionsUpdated, update.Action)
	require.Equal(t, []string{"products_view"}, update.Permissions)

	msg = <-received
	unknown, ok := msg.(realtime.Unknown)
	require.True(t, ok)
	require.Equal(t, realtime.MessageType("STOCK_LOW"), unknown.Type)
	require.JSONEq(t, `{"type":"STOCK_LOW","sku":"A-1"}`, string(unknown.Raw))

	select {
	case extra := <-received:
		t.Fatalf("unsubscribed handler received %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMalformedFramesDropped(t *testing.T) {
	h := newHarness(t, realtime.Config{})
	received := make(chan realtime.Message, 2)
	h.client.Subscribe(func(m realtime.Message) { received <- m })

	conn := newFakeConn()
	h.open(t, conn)
	conn.in <- []byte(`not json`)
	conn.in <- []byte(`{"type":"AUTH_UPDATE","action":"SESSION_EXPIRED"}`)
	conn.in <- []byte(`{"type":"STOCK_LOW"}`)

	<-received
	require.Equal(t, 2, h.observer.droppedCount("malformed"))
	require.Equal(t, realtime.StateConnected, h.client.State())
}

func TestAbnormalCloseReconnectsAndResetsAttempts(t *testing.T) {
	h := newHarness(t, realtime.Config{})
	conn := newFakeConn()
	h.open(t, conn)

	conn.drop(realtime.CloseAbnormalClosure)
	h.waitState(t, realtime.StateDisconnected)
	require.Eventually(t, func() bool { return h.clock.hasActive(2 * time.Second) }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, h.client.Attempts())

	h.clock.fire(t, 2*time.Second)
	h.dialer.next(t).fail(errRefused)
	require.Eventually(t, func() bool { return h.clock.hasActive(4 * time.Second) }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 2, h.client.Attempts())

	h.clock.fire(t, 4*time.Second)
	h.dialer.next(t).accept(newFakeConn())
	h.waitState(t, realtime.StateConnected)
	require.Zero(t, h.client.Attempts())
}

func TestTransportErrorReconnects(t *testing.T) {
	h := newHarness(t, realtime.Config{})
	conn := newFakeConn()
	h.open(t, conn)

	conn.breakWith(realtime.ErrTransport)
	require.Eventually(t, func() bool { return h.clock.hasActive(2 * time.Second) }, 2*time.Second, 5*time.Millisecond)
}

func TestCleanClosesNeverReconnect(t *testing.T) {
	h := newHarness(t, realtime.Config{})
	conn := newFakeConn()
	h.open(t, conn)

	conn.drop(realtime.CloseNormalClosure)
	h.waitState(t, realtime.StateDisconnected)
	h.dialer.requireIdle(t)
	require.Empty(t, h.clock.active())

	second := newFakeConn()
	h.open(t, second)
	h.client.Disconnect()
	require.Equal(t, realtime.StateDisconnected, h.client.State())
	require.True(t, second.isClosed())
	h.dialer.requireIdle(t)
	require.Empty(t, h.clock.active())
	require.Empty(t, h.observer.reconnectDelays())
}

func TestConnectTimeoutSchedulesReconnect(t *testing.T) {
	h := newHarness(t, realtime.Config{ConnectTimeout: 5 * time.Second})
	h.client.Connect()
	h.dialer.next(t)

	h.clock.fire(t, 5*time.Second)
	require.Equal(t, realtime.StateDisconnected, h.client.State())
	require.True(t, h.clock.hasActive(2*time.Second))
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, realtime.Config{})
	h.client.Connect()
	h.dialer.next(t).fail(errRefused)

	want := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
		30 * time.Second, 30 * time.Second,
	}
	for _, delay := range want {
		h.clock.fire(t, delay)
		h.dialer.next(t).fail(errRefused)
	}
	require.Eventually(t, h.client.Exhausted, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, want, h.observer.reconnectDelays())
	require.Equal(t, 10, h.client.Attempts())

	require.ErrorIs(t, h.client.Send(realtime.Unknown{Type: "PING"}), realtime.ErrQueued)
	h.dialer.requireIdle(t)

	h.client.Connect()
	require.False(t, h.client.Exhausted())
	require.Zero(t, h.client.Attempts())
	h.dialer.next(t).accept(newFakeConn())
	h.waitState(t, realtime.StateConnected)
}

func TestConnectCancelsPendingReconnect(t *testing.T) {
	h := newHarness(t, realtime.Config{})
	h.client.Connect()
	h.dialer.next(t).fail(errRefused)
	require.Eventually(t, func() bool { return h.clock.hasActive(2 * time.Second) }, 2*time.Second, 5*time.Millisecond)

	h.client.Connect()
	require.False(t, h.clock.hasActive(2*time.Second))
	h.dialer.next(t).accept(newFakeConn())
	h.waitState(t, realtime.StateConnected)
}

func TestBoundedQueueDropsOldest(t *testing.T) {
	h := newHarness(t, realtime.Config{MaxQueue: 2})
	for i := 1; i <= 3; i++ {
		raw, err := json.Marshal(map[string]any{"type": "PING", "n": i})
		require.NoError(t, err)
		require.ErrorIs(t, h.client.Send(realtime.Unknown{Type: "PING", Raw: raw}), realtime.ErrQueued)
	}
	require.Equal(t, 2, h.client.QueueLen())
	require.Equal(t, 1, h.observer.droppedCount("queue_full"))

	conn := newFakeConn()
	h.dialer.next(t).accept(conn)
	h.waitState(t, realtime.StateConnected)
	require.Equal(t, []string{`{"n":2,"type":"PING"}`, `{"n":3,"type":"PING"}`}, conn.frames())
}

func TestFailedWriteRequeues(t *testing.T) {
	h := newHarness(t, realtime.Config{})
	conn := newFakeConn()
	h.open(t, conn)

	conn.mu.Lock()
	conn.writeErr = realtime.ErrTransport
	conn.mu.Unlock()

	require.ErrorIs(t, h.client.Send(realtime.Unknown{Type: "PING"}), realtime.ErrQueued)
	require.Equal(t, 1, h.client.QueueLen())
	require.Equal(t, realtime.StateDisconnected, h.client.State())
	require.True(t, h.clock.hasActive(2*time.Second))
}

func TestWatchStateSeesTransitionsInOrder(t *testing.T) {
	identity := staticIdentity{id: realtime.Identity{UserID: "u-1", Role: "admin"}, ok: true}
	h := newHarness(t, realtime.Config{}, realtime.WithIdentity(identity))

	var mu sync.Mutex
	var seen []realtime.State
	stop := h.client.WatchState(func(s realtime.State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	conn := newFakeConn()
	h.open(t, conn)
	conn.in <- []byte(`{"type":"AUTH_SUCCESS"}`)
	h.waitState(t, realtime.StateAuthenticated)
	h.client.Disconnect()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	}, 2*time.Second, 5*time.Millisecond)
	stop()
	h.client.Connect()
	h.dialer.next(t)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []realtime.State{
		realtime.StateConnecting,
		realtime.StateConnected,
		realtime.StateAuthenticated,
		realtime.StateDisconnected,
	}, seen)
	require.Equal(t, "authenticated", realtime.StateAuthenticated.String())
}
