package galaxy

import (
	"errors"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"spacewars/analytics"
	"spacewars/game"
)

// ErrNoGalaxy is returned when no manager would take a session
var ErrNoGalaxy = errors.New("galaxy: no manager accepted the session")

// Tracker receives lifecycle events
type Tracker interface {
	Track(evtType, galaxyID string, entityID uint32, data string)
}

// Info is a manager summary
type Info struct {
	ID       string `json:"id"`
	Sessions int    `json:"sessions"`
	Entities int    `json:"entities"`
}

// Registry tracks every live manager and chooses where sessions go
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager
	closed   bool

	period    time.Duration
	capacity  int
	newGalaxy func() *game.Galaxy
	tracker   Tracker
}

// Option configures a Registry
type Option func(*Registry)

// WithPeriod sets the tick period of new managers
func WithPeriod(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.period = d
		}
	}
}

// WithCapacity sets the session cap per manager
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithGalaxyFactory sets how new managers build their galaxy
func WithGalaxyFactory(fn func() *game.Galaxy) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newGalaxy = fn
		}
	}
}

// WithTracker sets the lifecycle event sink
func WithTracker(t Tracker) Option {
	return func(r *Registry) { r.tracker = t }
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		managers: make(map[string]*Manager),
		period:   UpdatePeriod,
		capacity: MaxClientsPerGalaxy,
		newGalaxy: func() *game.Galaxy {
			return game.New()
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Capacity returns the session cap per manager
func (r *Registry) Capacity() int {
	return r.capacity
}

// Create registers and starts a new manager. It returns ErrClosed once the
// registry has been shut down.
func (r *Registry) Create() (*Manager, error) {
	m := newManager(r)
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.managers[m.ID] = m
	r.mu.Unlock()
	m.start()

	log.Printf("galaxy %s: updater started", short(m.ID))
	r.track(analytics.EvtGalaxyCreated, m.ID, 0, "")
	return m, nil
}

// Closed reports whether Shutdown has been called
func (r *Registry) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// Get returns a manager by ID
func (r *Registry) Get(id string) *Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.managers[id]
}

// Len returns the number of live managers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.managers)
}

// List returns info about all live managers
func (r *Registry) List() []Info {
	out := make([]Info, 0)
	for _, m := range r.all() {
		out = append(out, m.Info())
	}
	return out
}

func (r *Registry) all() []*Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		out = append(out, m)
	}
	return out
}

// Join places a new session in a random running manager that has room,
// creating one when none does.
func (r *Registry) Join(s Session) (*Manager, error) {
	for attempt := 0; attempt < maxMigrateAttempts; attempt++ {
		if r.Closed() {
			return nil, ErrClosed
		}
		var open []*Manager
		for _, m := range r.all() {
			if m.State() == StateRunning && m.SessionCount() < r.capacity {
				open = append(open, m)
			}
		}
		var m *Manager
		if len(open) > 0 {
			m = open[rand.IntN(len(open))]
		} else {
			var err error
			if m, err = r.Create(); err != nil {
				return nil, err
			}
		}
		if err := m.addSession(s, r.capacity); err == nil {
			return m, nil
		}
	}
	return nil, ErrNoGalaxy
}

// PickNot chooses a hyperspace destination other than current. A random
// candidate that is already full is passed over for a brand-new manager.
func (r *Registry) PickNot(current *Manager) (*Manager, error) {
	if r.Closed() {
		return nil, ErrClosed
	}
	var others []*Manager
	for _, m := range r.all() {
		if m != current {
			others = append(others, m)
		}
	}
	if len(others) == 0 {
		return r.Create()
	}
	m := others[rand.IntN(len(others))]
	if m.SessionCount() >= r.capacity || m.State() != StateRunning {
		return r.Create()
	}
	return m, nil
}

// Shutdown destroys every manager and disconnects their sessions. No manager
// can be created afterwards.
func (r *Registry) Shutdown() {
	log.Printf("galaxy: killing all galaxy managers")
	r.mu.Lock()
	r.closed = true
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()

	for _, m := range managers {
		m.kill()
		r.track(analytics.EvtGalaxyDestroyed, m.ID, 0, "shutdown")
	}
}

func (r *Registry) remove(m *Manager) {
	r.mu.Lock()
	_, ok := r.managers[m.ID]
	if ok {
		delete(r.managers, m.ID)
	}
	r.mu.Unlock()
	if ok {
		log.Printf("galaxy %s: galaxy has been killed", short(m.ID))
		r.track(analytics.EvtGalaxyDestroyed, m.ID, 0, "")
	}
}

func (r *Registry) track(evtType, galaxyID string, entityID uint32, data string) {
	if r.tracker != nil {
		r.tracker.Track(evtType, galaxyID, entityID, data)
	}
}
