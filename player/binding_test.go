package player

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacewars/galaxy"
	"spacewars/game"
	"spacewars/protocol"
)

var upgrader = websocket.Upgrader{}

func testRegistry() *galaxy.Registry {
	return galaxy.NewRegistry(
		galaxy.WithPeriod(10*time.Millisecond),
		galaxy.WithGalaxyFactory(func() *game.Galaxy { return game.New(game.WithStars(0)) }),
	)
}

// startBinding joins a binding to r over a live WebSocket and returns it with
// the client end of the connection.
func startBinding(t *testing.T, r *galaxy.Registry, clock func() time.Time) (*Binding, *websocket.Conn) {
	t.Helper()
	bindings := make(chan *Binding, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		b := New(conn, req.RemoteAddr)
		if clock != nil {
			b.now = clock
		}
		if _, err := r.Join(b); err != nil {
			t.Errorf("join: %v", err)
			return
		}
		b.Start()
		bindings <- b
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	select {
	case b := <-bindings:
		return b, conn
	case <-time.After(2 * time.Second):
		t.Fatal("binding never joined")
	}
	return nil, nil
}

func readSnapshot(t *testing.T, conn *websocket.Conn) *protocol.Snapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, msgType)
	snap, err := protocol.DecodeSnapshot(msg)
	require.NoError(t, err)
	return snap
}

func sendInput(t *testing.T, conn *websocket.Conn, in protocol.Input) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, in.Encode()))
}

// waitFor reads snapshots until cond holds
func waitFor(t *testing.T, conn *websocket.Conn, cond func(*protocol.Snapshot) bool) *protocol.Snapshot {
	t.Helper()
	for i := 0; i < 200; i++ {
		if snap := readSnapshot(t, conn); cond(snap) {
			return snap
		}
	}
	t.Fatal("condition never met")
	return nil
}

func waitDone(t *testing.T, b *Binding) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("binding did not finish")
	}
}

func TestBindingReceivesSnapshots(t *testing.T) {
	r := testRegistry()
	defer r.Shutdown()
	b, conn := startBinding(t, r, nil)

	snap := readSnapshot(t, conn)
	assert.Equal(t, b.Craft().ID, snap.Viewer)
	assert.Equal(t, b.Galaxy().ID, snap.Galaxy)
	craft, ok := snap.Find(snap.Viewer)
	require.True(t, ok)
	assert.Equal(t, uint8(game.KindCraft), craft.Kind)
	assert.Equal(t, game.DefaultShields, craft.Shields)
	assert.Equal(t, StateActive, b.State())
}

func TestBindingAppliesInput(t *testing.T) {
	r := testRegistry()
	defer r.Shutdown()
	_, conn := startBinding(t, r, nil)

	readSnapshot(t, conn)
	sendInput(t, conn, protocol.Input{Forward: true, Left: true})
	waitFor(t, conn, func(s *protocol.Snapshot) bool {
		c, ok := s.Find(s.Viewer)
		return ok && c.Fuel == game.DefaultFuel-game.ThrustFuel-1
	})
}

func TestBindingFires(t *testing.T) {
	r := testRegistry()
	defer r.Shutdown()
	clock := func() time.Time { return time.Now().Add(time.Second) }
	_, conn := startBinding(t, r, clock)

	readSnapshot(t, conn)
	sendInput(t, conn, protocol.Input{Fire: true})
	waitFor(t, conn, func(s *protocol.Snapshot) bool {
		for _, e := range s.Entities {
			if e.Kind == uint8(game.KindMissile) {
				return true
			}
		}
		return false
	})
}

func TestBindingExit(t *testing.T) {
	r := testRegistry()
	b, conn := startBinding(t, r, nil)
	m := b.Galaxy()

	readSnapshot(t, conn)
	sendInput(t, conn, protocol.Input{Exit: true})
	waitDone(t, b)

	assert.False(t, m.Has(b))
	assert.Equal(t, galaxy.StateDestroyed, m.State())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, StateDisconnected, b.State())
}

func TestBindingClientDisconnect(t *testing.T) {
	r := testRegistry()
	b, conn := startBinding(t, r, nil)
	m := b.Galaxy()

	readSnapshot(t, conn)
	conn.Close()
	waitDone(t, b)

	assert.False(t, m.Has(b))
	assert.Equal(t, 0, r.Len())
}

func TestBindingRateLimit(t *testing.T) {
	r := testRegistry()
	defer r.Shutdown()
	b, conn := startBinding(t, r, nil)

	frame := protocol.Input{}.Encode()
	for i := 0; i < 3*maxMessagesPerSec; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			break
		}
	}
	waitDone(t, b)
	assert.Nil(t, b.Galaxy())
}

func TestBindingHyperspace(t *testing.T) {
	r := testRegistry()
	defer r.Shutdown()
	clock := func() time.Time { return time.Now().Add(2 * game.HyperspacePeriod) }
	b, conn := startBinding(t, r, clock)

	first := readSnapshot(t, conn)
	sendInput(t, conn, protocol.Input{Jump: true})
	snap := waitFor(t, conn, func(s *protocol.Snapshot) bool {
		return s.Galaxy != first.Galaxy
	})
	c, ok := snap.Find(snap.Viewer)
	require.True(t, ok)
	assert.Equal(t, game.DefaultFuel-game.HyperspaceFuel, c.Fuel)
	assert.Equal(t, snap.Galaxy, b.Galaxy().ID)
}

func TestBindingRestart(t *testing.T) {
	r := testRegistry()
	defer r.Shutdown()
	b, conn := startBinding(t, r, nil)

	first := readSnapshot(t, conn)
	require.True(t, b.current().Do(func(*game.Galaxy) { b.Craft().Destroy() }))

	// Wreckage replaces the craft on the next tick
	waitFor(t, conn, func(s *protocol.Snapshot) bool {
		for _, e := range s.Entities {
			if e.Kind == uint8(game.KindDebris) && e.Source == first.Viewer {
				return true
			}
		}
		return false
	})
	assert.Equal(t, StateAwaitingRestart, b.State())

	// Steering a dead craft does nothing
	sendInput(t, conn, protocol.Input{Forward: true, Jump: true})
	readSnapshot(t, conn)
	assert.Equal(t, StateAwaitingRestart, b.State())

	sendInput(t, conn, protocol.Input{Restart: true})
	snap := waitFor(t, conn, func(s *protocol.Snapshot) bool {
		_, ok := s.Find(s.Viewer)
		return ok && s.Galaxy != first.Galaxy
	})
	c, _ := snap.Find(snap.Viewer)
	assert.Equal(t, game.DefaultShields, c.Shields)
	assert.Equal(t, game.DefaultFuel, c.Fuel)
	assert.Equal(t, StateActive, b.State())
}

func TestSendSnapshotAfterClose(t *testing.T) {
	r := testRegistry()
	defer r.Shutdown()
	b, _ := startBinding(t, r, nil)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.SendSnapshot(&protocol.Snapshot{}), ErrClosed)
	waitDone(t, b)
}

// stubConn is a Conn whose writes either succeed or hang until it is closed
type stubConn struct {
	stall bool

	mu     sync.Mutex
	writes int
	once   sync.Once
	closed chan struct{}
}

func newStubConn(stall bool) *stubConn {
	return &stubConn{stall: stall, closed: make(chan struct{})}
}

func (c *stubConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, net.ErrClosed
}

func (c *stubConn) WriteMessage(int, []byte) error {
	if c.stall {
		<-c.closed
		return net.ErrClosed
	}
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return nil
}

func (c *stubConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *stubConn) SetReadDeadline(time.Time) error  { return nil }
func (c *stubConn) SetWriteDeadline(time.Time) error { return nil }
func (c *stubConn) SetReadLimit(int64)               {}

func (c *stubConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestSendSnapshotNeverBlocks(t *testing.T) {
	b := New(newStubConn(true), "stalled")
	defer b.Close()

	done := make(chan error, 1)
	go func() {
		var err error
		for i := 0; i <= sendBufSize && err == nil; i++ {
			err = b.SendSnapshot(&protocol.Snapshot{})
		}
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSlowClient)
	case <-time.After(time.Second):
		t.Fatal("SendSnapshot blocked")
	}
}

func TestStalledClientKeepsTickRate(t *testing.T) {
	r := testRegistry()
	defer r.Shutdown()
	m, err := r.Create()
	require.NoError(t, err)

	fastConn := newStubConn(false)
	fast := New(fastConn, "fast")
	slow := New(newStubConn(true), "slow")
	for _, b := range []*Binding{fast, slow} {
		require.NoError(t, m.AddSession(b))
		b.Start()
	}

	// The stalled client is dropped once its queue fills
	require.Eventually(t, func() bool { return !m.Has(slow) }, 2*time.Second, 10*time.Millisecond)
	waitDone(t, slow)
	assert.True(t, m.Has(fast))

	// At a 10ms period the fast client keeps receiving every tick
	start := fastConn.count()
	time.Sleep(300 * time.Millisecond)
	assert.GreaterOrEqual(t, fastConn.count()-start, 15)
}
