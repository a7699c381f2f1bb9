package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/ipv4"

	"spacewars/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client finds servers on the LAN and connects to them
type Client struct {
	Target     string // where queries go, host:port; the group by default
	GamePort   int    // local port the server dials back to
	ListenHost string // local host for the gameplay listener, all by default
}

// NewClient returns a client for the standard group and ports
func NewClient() *Client {
	return &Client{
		Target:   net.JoinHostPort(protocol.GroupAddress, strconv.Itoa(protocol.DiscoveryPort)),
		GamePort: protocol.GamePort,
	}
}

func (c *Client) send(ctx context.Context, payload []byte) (net.PacketConn, error) {
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("discovery: open socket: %w", err)
	}
	to, err := net.ResolveUDPAddr("udp4", c.Target)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("discovery: resolve %s: %w", c.Target, err)
	}
	if to.IP.IsMulticast() {
		p := ipv4.NewPacketConn(conn)
		p.SetMulticastLoopback(true)
		p.SetMulticastTTL(1)
	}
	if _, err := conn.WriteTo(payload, to); err != nil {
		conn.Close()
		return nil, fmt.Errorf("discovery: send to %s: %w", to, err)
	}
	return conn, nil
}

// ListServers queries the LAN and collects address to name replies until
// timeout. An empty result is not an error.
func (c *Client) ListServers(ctx context.Context, timeout time.Duration) (map[string]string, error) {
	conn, err := c.send(ctx, protocol.Datagram(protocol.QueryToken))
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	servers := make(map[string]string)
	buf := make([]byte, protocol.BufferSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if (errors.As(err, &ne) && ne.Timeout()) || ctx.Err() != nil {
				return servers, nil
			}
			return servers, fmt.Errorf("discovery: receive: %w", err)
		}
		kind, name := protocol.ParseDatagram(buf[:n])
		if kind != protocol.KindName {
			continue
		}
		if ua, ok := from.(*net.UDPAddr); ok {
			servers[ua.IP.String()] = name
		}
	}
}

// ConnectTo asks the server at address to dial back and waits up to timeout
// for it. A timeout returns a nil session and nil error.
func (c *Client) ConnectTo(ctx context.Context, address string, timeout time.Duration) (*Session, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(c.ListenHost, strconv.Itoa(c.GamePort)))
	if err != nil {
		return nil, fmt.Errorf("discovery: game listener: %w", err)
	}

	conns := make(chan *websocket.Conn, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(protocol.GamePath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("discovery: upgrade error: %v", err)
			return
		}
		select {
		case conns <- conn:
		default:
			conn.Close()
		}
	})
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	defer srv.Close()

	udp, err := c.send(ctx, protocol.ConnectRequest(address))
	if err != nil {
		return nil, err
	}
	udp.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case conn := <-conns:
		return newSession(conn), nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Session is the client end of a gameplay connection. After each snapshot
// it answers with the current input record.
type Session struct {
	conn   *websocket.Conn
	latest atomic.Pointer[protocol.Snapshot]

	inMu  sync.Mutex
	input protocol.Input

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

func newSession(conn *websocket.Conn) *Session {
	s := &Session{conn: conn, done: make(chan struct{})}
	go s.readLoop()
	return s
}

// LatestSnapshot returns the most recent snapshot, or nil before the first
func (s *Session) LatestSnapshot() *protocol.Snapshot {
	return s.latest.Load()
}

// SendInput sets the input record sent after the next snapshot
func (s *Session) SendInput(in protocol.Input) {
	s.inMu.Lock()
	s.input = in
	s.inMu.Unlock()
}

// Done is closed when the connection ends
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, once Done is closed
func (s *Session) Err() error {
	<-s.done
	return s.err
}

// Close ends the session
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.conn.Close() })
	return err
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer s.Close()
	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.err = err
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		snap, err := protocol.DecodeSnapshot(msg)
		if err != nil {
			log.Printf("discovery: %v", err)
			continue
		}
		s.latest.Store(snap)

		s.inMu.Lock()
		in := s.input
		s.inMu.Unlock()
		if err := s.conn.WriteMessage(websocket.BinaryMessage, in.Encode()); err != nil {
			s.err = err
			return
		}
	}
}
