// Package player binds one gameplay connection to the craft it steers.
package player

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"spacewars/galaxy"
	"spacewars/game"
	"spacewars/protocol"
)

const (
	writeWait         = time.Second
	readWait          = 10 * time.Second
	maxMessageSize    = 512
	maxMessagesPerSec = 40
	sendBufSize       = 16 // snapshots queued before the client counts as stalled
)

var (
	// ErrClosed is returned when sending on a closed binding
	ErrClosed = errors.New("player: binding closed")
	// ErrSlowClient is returned when the client has fallen a full buffer behind
	ErrSlowClient = errors.New("player: client too slow")
)

// Conn is the part of *websocket.Conn a binding uses
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// State is where a binding is in its life
type State int

const (
	StateConnected State = iota // handshake done, not yet in a galaxy
	StateActive
	StateAwaitingRestart
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateAwaitingRestart:
		return "awaiting-restart"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Binding pairs a gameplay connection with its craft. It implements
// galaxy.Session.
type Binding struct {
	conn    Conn
	remote  string
	craft   *game.Entity
	limiter *rate.Limiter
	now     func() time.Time

	mu   sync.Mutex
	link *galaxy.Link

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// New creates a binding with a fresh craft
func New(conn Conn, remote string) *Binding {
	return &Binding{
		conn:    conn,
		remote:  remote,
		craft:   game.NewCraft(time.Now()),
		limiter: rate.NewLimiter(rate.Limit(maxMessagesPerSec), maxMessagesPerSec),
		now:     time.Now,
		send:    make(chan []byte, sendBufSize),
		closed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Remote returns the peer address
func (b *Binding) Remote() string {
	return b.remote
}

// Craft returns the craft this binding steers
func (b *Binding) Craft() *game.Entity {
	return b.craft
}

// Attach records the binding's current galaxy link
func (b *Binding) Attach(l *galaxy.Link) {
	b.mu.Lock()
	b.link = l
	b.mu.Unlock()
}

func (b *Binding) current() *galaxy.Link {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.link
}

// Galaxy returns the manager the binding is attached to, or nil
func (b *Binding) Galaxy() *galaxy.Manager {
	if l := b.current(); l != nil {
		return l.Manager()
	}
	return nil
}

// State reports the binding's lifecycle state
func (b *Binding) State() State {
	select {
	case <-b.closed:
		return StateDisconnected
	default:
	}
	l := b.current()
	if l == nil {
		return StateConnected
	}
	alive := true
	if !l.Do(func(*game.Galaxy) { alive = b.craft.Alive() }) {
		return StateConnected
	}
	if !alive {
		return StateAwaitingRestart
	}
	return StateActive
}

// Start runs the read and write loops in their own goroutines
func (b *Binding) Start() {
	go b.writeLoop()
	go b.readLoop()
}

// Done is closed once the read loop has exited and the binding has left
// its galaxy
func (b *Binding) Done() <-chan struct{} {
	return b.done
}

func (b *Binding) readLoop() {
	defer func() {
		if l := b.current(); l != nil {
			l.Leave()
		}
		b.Close()
		close(b.done)
	}()

	b.conn.SetReadLimit(maxMessageSize)
	for {
		b.conn.SetReadDeadline(time.Now().Add(readWait))
		msgType, message, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("player %s: read error: %v", b.remote, err)
			}
			return
		}
		if !b.limiter.Allow() {
			log.Printf("player %s: rate limit exceeded, disconnecting", b.remote)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		in, ok := protocol.DecodeInput(message)
		if !ok {
			continue
		}
		if !b.handleInput(in) {
			return
		}
	}
}

// handleInput applies one input record. It returns false when the player
// asked to leave.
func (b *Binding) handleInput(in protocol.Input) bool {
	l := b.current()
	if l == nil {
		return !in.Exit
	}
	if in.Exit {
		l.Leave()
		return false
	}

	now := b.now()
	var restart, jump bool
	l.Do(func(g *game.Galaxy) {
		c := b.craft
		if !c.Alive() {
			if in.Restart {
				c.Reset(g.Bounds())
				restart = true
			}
			return
		}
		if in.Fire {
			g.Launch(c, now)
		}
		if in.Forward {
			c.Thrust()
		}
		if in.Left {
			c.TurnLeft()
		}
		if in.Right {
			c.TurnRight()
		}
		if in.Jump {
			jump = c.Hyperspace(now)
		}
	})

	switch {
	case restart:
		// A restarted craft always re-enters somewhere, in place if no
		// other galaxy took it.
		if !l.Hyperspace() {
			l.Do(func(g *game.Galaxy) {
				if !g.Contains(b.craft) {
					g.Place(b.craft)
				}
			})
		}
	case jump:
		l.Hyperspace()
	}
	return true
}

// SendSnapshot queues one snapshot for the write loop without blocking. A
// full queue means the client is not keeping up and is reported as an error.
func (b *Binding) SendSnapshot(snap *protocol.Snapshot) error {
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	data, err := protocol.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	select {
	case b.send <- data:
		return nil
	default:
		return ErrSlowClient
	}
}

// writeLoop writes queued snapshots as binary frames
func (b *Binding) writeLoop() {
	for {
		select {
		case data := <-b.send:
			b.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := b.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Printf("player %s: write error: %v", b.remote, err)
				b.Close()
				return
			}
		case <-b.closed:
			return
		}
	}
}

// Close shuts the connection. The read loop then detaches the binding.
func (b *Binding) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closed)
		err = b.conn.Close()
	})
	return err
}
