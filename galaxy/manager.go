package galaxy

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"spacewars/analytics"
	"spacewars/game"
	"spacewars/protocol"
)

const (
	UpdatePeriod        = 50 * time.Millisecond
	MaxClientsPerGalaxy = 4
	maxMigrateAttempts  = 8
)

var (
	// ErrClosed is returned by a destroyed manager or a shut-down registry
	ErrClosed = errors.New("galaxy: closed")
	// ErrFull is returned when a manager already holds its session limit
	ErrFull = errors.New("galaxy: manager full")
)

// Session is a connected player as seen by a manager
type Session interface {
	// Craft returns the entity the session controls. It never changes.
	Craft() *game.Entity
	// SendSnapshot pushes one tick's state. An error detaches the session.
	SendSnapshot(snap *protocol.Snapshot) error
	// Attach is called with the session's new link, or nil when detached.
	Attach(link *Link)
	Close() error
}

// State is the lifecycle of a Manager
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Link is the handle a manager gives a session when attaching it. It is
// valid until the session is detached from that manager.
type Link struct {
	m *Manager
	s Session
}

// Manager returns the manager that issued the link
func (l *Link) Manager() *Manager {
	return l.m
}

// Do runs fn on the galaxy under the manager's lock. It returns false
// without calling fn if the link is no longer current.
func (l *Link) Do(fn func(g *game.Galaxy)) bool {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.m.sessions[l.s] != l {
		return false
	}
	fn(l.m.galaxy)
	return true
}

// Hyperspace moves the session to another galaxy picked by the registry
func (l *Link) Hyperspace() bool {
	return l.m.migrate(l)
}

// Leave detaches the session from the manager
func (l *Link) Leave() {
	l.m.removeLink(l)
}

// Manager owns one galaxy, its tick loop and the sessions attached to it
type Manager struct {
	ID       string
	registry *Registry

	mu       sync.Mutex
	galaxy   *game.Galaxy
	sessions map[Session]*Link
	state    State
	stop     chan struct{}
	done     chan struct{}
}

func newManager(r *Registry) *Manager {
	return &Manager{
		ID:       uuid.NewString(),
		registry: r,
		galaxy:   r.newGalaxy(),
		sessions: make(map[Session]*Link),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// start arms the tick loop
func (m *Manager) start() {
	m.mu.Lock()
	m.state = StateRunning
	m.mu.Unlock()
	go m.run()
}

func (m *Manager) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.registry.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-m.stop:
			return
		}
	}
}

// Done is closed once the tick loop has exited
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// State returns the lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionCount returns the number of attached sessions
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Has reports whether s is attached
func (m *Manager) Has(s Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[s]
	return ok
}

// Snapshot returns the current galaxy state as seen by viewer
func (m *Manager) Snapshot(viewer uint32) protocol.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.galaxy.Snapshot(viewer)
	snap.Galaxy = m.ID
	return snap
}

// Info returns a summary for listings
func (m *Manager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Info{ID: m.ID, Sessions: len(m.sessions), Entities: m.galaxy.Len()}
}

// AddSession places the session's craft at a safe spawn point and attaches it
func (m *Manager) AddSession(s Session) error {
	return m.addSession(s, 0)
}

// addSession attaches s unless the manager is closed or already holds limit
// sessions. A limit of zero means no limit.
func (m *Manager) addSession(s Session, limit int) error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return ErrClosed
	}
	if limit > 0 && len(m.sessions) >= limit {
		m.mu.Unlock()
		return ErrFull
	}
	m.attachLocked(s)
	id := s.Craft().ID
	m.mu.Unlock()

	log.Printf("galaxy %s: session added (craft %d)", short(m.ID), id)
	m.registry.track(analytics.EvtSessionJoined, m.ID, id, "")
	return nil
}

// RemoveSession detaches s. When the last session leaves, the manager is
// torn down.
func (m *Manager) RemoveSession(s Session) {
	m.mu.Lock()
	l := m.sessions[s]
	m.mu.Unlock()
	if l != nil {
		m.removeLink(l)
	}
}

func (m *Manager) removeLink(l *Link) {
	m.mu.Lock()
	if m.sessions[l.s] != l {
		m.mu.Unlock()
		return
	}
	id := l.s.Craft().ID
	m.detachLocked(l.s)
	empty := m.teardownIfEmptyLocked()
	m.mu.Unlock()

	log.Printf("galaxy %s: session removed (craft %d)", short(m.ID), id)
	m.registry.track(analytics.EvtSessionLeft, m.ID, id, "")
	if empty {
		m.registry.remove(m)
	}
}

func (m *Manager) attachLocked(s Session) {
	if c := s.Craft(); c.Alive() {
		m.galaxy.Place(c)
	}
	l := &Link{m: m, s: s}
	m.sessions[s] = l
	s.Attach(l)
}

func (m *Manager) detachLocked(s Session) bool {
	if _, ok := m.sessions[s]; !ok {
		return false
	}
	delete(m.sessions, s)
	m.galaxy.Remove(s.Craft())
	s.Attach(nil)
	return true
}

// teardownIfEmptyLocked cancels the tick loop once no session is left
func (m *Manager) teardownIfEmptyLocked() bool {
	if len(m.sessions) > 0 || m.state != StateRunning {
		return false
	}
	m.state = StateDestroyed
	close(m.stop)
	return true
}

// tick advances the galaxy and pushes a snapshot to every session while
// holding the lock, so no session is mid-migration during a send.
func (m *Manager) tick() {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return
	}
	destroyed := m.galaxy.Update()

	base := m.galaxy.Snapshot(0)
	base.Galaxy = m.ID
	var failed []Session
	for s := range m.sessions {
		snap := base
		snap.Viewer = s.Craft().ID
		if err := s.SendSnapshot(&snap); err != nil {
			log.Printf("galaxy %s: removing session (craft %d): %v", short(m.ID), snap.Viewer, err)
			failed = append(failed, s)
		}
	}
	var failedIDs []uint32
	for _, s := range failed {
		failedIDs = append(failedIDs, s.Craft().ID)
		m.detachLocked(s)
	}
	empty := len(failed) > 0 && m.teardownIfEmptyLocked()
	m.mu.Unlock()

	for _, c := range destroyed {
		m.registry.track(analytics.EvtCraftDestroyed, m.ID, c.ID, "")
	}
	for i, s := range failed {
		s.Close()
		m.registry.track(analytics.EvtSessionLeft, m.ID, failedIDs[i], "io")
	}
	if empty {
		m.registry.remove(m)
	}
}

// migrate moves the session behind l to another manager. Both locks are
// taken in id order and held across the removal and the attachment.
func (m *Manager) migrate(l *Link) bool {
	for attempt := 0; attempt < maxMigrateAttempts; attempt++ {
		dest, err := m.registry.PickNot(m)
		if err != nil {
			return false
		}
		moved, retry, empty := m.transfer(l, dest)
		if !moved {
			dest.releaseIfIdle()
		}
		if empty {
			m.registry.remove(m)
		}
		if moved {
			id := l.s.Craft().ID
			log.Printf("galaxy %s: craft %d jumped to %s", short(m.ID), id, short(dest.ID))
			m.registry.track(analytics.EvtHyperspace, m.ID, id, dest.ID)
			return true
		}
		if !retry {
			return false
		}
	}
	log.Printf("galaxy %s: hyperspace gave up after %d attempts", short(m.ID), maxMigrateAttempts)
	return false
}

func (m *Manager) transfer(l *Link, dest *Manager) (moved, retry, empty bool) {
	first, second := m, dest
	if dest.ID < m.ID {
		first, second = dest, m
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if m.sessions[l.s] != l {
		return false, false, false
	}
	if dest.state != StateRunning || len(dest.sessions) >= m.registry.capacity {
		return false, true, false
	}
	m.detachLocked(l.s)
	dest.attachLocked(l.s)
	return true, false, m.teardownIfEmptyLocked()
}

// releaseIfIdle tears down a manager that never received a session
func (m *Manager) releaseIfIdle() {
	m.mu.Lock()
	empty := m.teardownIfEmptyLocked()
	m.mu.Unlock()
	if empty {
		m.registry.remove(m)
	}
}

// kill stops the manager and disconnects every session
func (m *Manager) kill() {
	m.mu.Lock()
	if m.state == StateRunning {
		close(m.stop)
	}
	m.state = StateDestroyed
	sessions := make([]Session, 0, len(m.sessions))
	for s := range m.sessions {
		sessions = append(sessions, s)
	}
	for _, s := range sessions {
		m.detachLocked(s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	log.Printf("galaxy %s: updater stopped", short(m.ID))
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
