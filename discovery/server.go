// Package discovery implements the LAN discovery and reverse-connect
// handshake on both ends.
//
// A server listens on a UDP group. It answers a query with its name and, on
// a connect-request naming one of its own addresses, dials a WebSocket back
// to the requester and hands the connection to the galaxy registry.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/ipv4"

	"spacewars/galaxy"
	"spacewars/player"
	"spacewars/protocol"
)

const dialTimeout = 5 * time.Second

// ErrReservedName is returned by SetName for names a client would parse
// as a control message
var ErrReservedName = errors.New("discovery: name starts with a control token")

// Config describes the listener sockets
type Config struct {
	Name     string
	Addr     string // UDP listen address
	Group    string // multicast group to join, empty for unicast only
	GamePort int    // port the dial-back targets on the requester
}

// Server is the discovery listener
type Server struct {
	cfg      Config
	registry *galaxy.Registry
	dialer   *websocket.Dialer
	limits   *limits

	nameMu sync.RWMutex
	name   string

	mu   sync.Mutex
	conn net.PacketConn

	wg sync.WaitGroup
}

// NewServer creates a listener that places sessions through reg
func NewServer(cfg Config, reg *galaxy.Registry) *Server {
	if cfg.Name == "" {
		cfg.Name = protocol.DefaultName
	}
	if cfg.GamePort == 0 {
		cfg.GamePort = protocol.GamePort
	}
	return &Server{
		cfg:      cfg,
		registry: reg,
		dialer:   &websocket.Dialer{HandshakeTimeout: dialTimeout},
		limits:   newLimits(),
		name:     cfg.Name,
	}
}

// Name returns the advertised server name
func (s *Server) Name() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.name
}

// SetName changes the advertised name
func (s *Server) SetName(name string) error {
	if protocol.IsReserved(name) {
		return ErrReservedName
	}
	s.nameMu.Lock()
	s.name = name
	s.nameMu.Unlock()
	return nil
}

// Listen binds the discovery socket and joins the group. A port that is
// already taken is reported as an error.
func (s *Server) Listen() error {
	conn, err := net.ListenPacket("udp4", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("discovery: listen %s: %w", s.cfg.Addr, err)
	}
	if s.cfg.Group != "" {
		if err := joinGroup(conn, s.cfg.Group); err != nil {
			conn.Close()
			return err
		}
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	log.Printf("discovery: listening on %s (group %q) as %q", conn.LocalAddr(), s.cfg.Group, s.Name())
	return nil
}

func joinGroup(conn net.PacketConn, group string) error {
	ip := net.ParseIP(group)
	if ip == nil || !ip.IsMulticast() {
		return fmt.Errorf("discovery: %q is not a multicast group", group)
	}
	p := ipv4.NewPacketConn(conn)
	gaddr := &net.UDPAddr{IP: ip}

	joined := 0
	ifaces, _ := net.Interfaces()
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := p.JoinGroup(ifi, gaddr); err == nil {
			joined++
		}
	}
	if joined == 0 {
		if err := p.JoinGroup(nil, gaddr); err != nil {
			return fmt.Errorf("discovery: join group %s: %w", group, err)
		}
	}
	p.SetMulticastLoopback(true)
	return nil
}

// LocalAddr returns the bound discovery address, or nil before Listen
func (s *Server) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve runs the receive loop until ctx is cancelled or the socket fails.
// On return every galaxy has been shut down.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("discovery: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer s.shutdown()

	buf := make([]byte, protocol.BufferSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("discovery: receive: %w", err)
		}
		s.handle(conn, buf[:n], from)
	}
}

// ListenAndServe binds the socket then serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Close stops the receive loop
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Server) shutdown() {
	s.wg.Wait()
	s.registry.Shutdown()
	log.Printf("discovery: listener stopped")
}

func (s *Server) handle(conn net.PacketConn, buf []byte, from net.Addr) {
	kind, payload := protocol.ParseDatagram(buf)
	switch kind {
	case protocol.KindQuery:
		if _, err := conn.WriteTo(protocol.Datagram(s.Name()), from); err != nil {
			log.Printf("discovery: reply to %s: %v", from, err)
		}
	case protocol.KindConnect:
		if !isLocal(payload) {
			return
		}
		ua, ok := from.(*net.UDPAddr)
		if !ok {
			return
		}
		ip := ua.IP.String()
		if !s.limits.acquire(ip) {
			log.Printf("discovery: too many sessions from %s, dropping connect-request", ip)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.accept(ip)
		}()
	}
}

// accept dials the requester's gameplay listener and places the session
func (s *Server) accept(ip string) {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(ip, strconv.Itoa(s.cfg.GamePort)),
		Path:   protocol.GamePath,
	}
	conn, _, err := s.dialer.Dial(u.String(), nil)
	if err != nil {
		log.Printf("discovery: dial back %s: %v", u.String(), err)
		s.limits.release(ip)
		return
	}

	b := player.New(conn, ip)
	m, err := s.registry.Join(b)
	if err != nil {
		log.Printf("discovery: place session from %s: %v", ip, err)
		conn.Close()
		s.limits.release(ip)
		return
	}
	log.Printf("discovery: %s joined galaxy %s", ip, m.ID)
	b.Start()
	go func() {
		<-b.Done()
		s.limits.release(ip)
	}()
}

// isLocal reports whether addr names this host
func isLocal(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok && n.IP.Equal(ip) {
			return true
		}
	}
	return false
}
