package game

import (
	"math/rand/v2"
	"time"

	"spacewars/protocol"
)

const (
	MaxStars      = 4
	SpawnAttempts = 100
	Backgrounds   = 7
)

// Size is the default galaxy size
var Size = Bounds{W: 1024, H: 768}

type options struct {
	bounds Bounds
	stars  int // -1 picks a random count
	seed   *uint64
}

// Option configures a new Galaxy
type Option func(*options)

// WithStars places exactly n stars instead of a random number
func WithStars(n int) Option {
	return func(o *options) { o.stars = n }
}

// WithSeed makes the galaxy's random source deterministic
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithBounds overrides the galaxy size
func WithBounds(b Bounds) Option {
	return func(o *options) { o.bounds = b }
}

// Galaxy is one simulated arena. It is not safe for concurrent use; the
// owning manager serializes every access.
type Galaxy struct {
	bounds     Bounds
	entities   []*Entity
	ids        map[uint32]*Entity
	color      uint32
	background int
	rng        *rand.Rand
	tick       uint64
}

// New creates a galaxy with a random accent color, background and up to
// MaxStars non-overlapping stars.
func New(opts ...Option) *Galaxy {
	o := options{bounds: Size, stars: -1}
	for _, opt := range opts {
		opt(&o)
	}
	var src rand.Source
	if o.seed != nil {
		src = rand.NewPCG(*o.seed, *o.seed^0x9e3779b97f4a7c15)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	g := &Galaxy{
		bounds: o.bounds,
		ids:    make(map[uint32]*Entity),
		rng:    rand.New(src),
	}
	g.color = hsbToRGB(g.rng.Float64())
	g.background = g.rng.IntN(Backgrounds)

	stars := o.stars
	if stars < 0 {
		stars = g.rng.IntN(MaxStars + 1)
	}
	for i := 0; i < stars; i++ {
		radius := g.rng.IntN(StarRadiusRange) + MinStarRadius
		g.Add(NewStar(radius, g.SafeSpawn(radius)))
	}
	return g
}

// Bounds returns the galaxy size
func (g *Galaxy) Bounds() Bounds {
	return g.bounds
}

// Color returns the accent color as 0xRRGGBB
func (g *Galaxy) Color() uint32 {
	return g.color
}

// Background returns the background index
func (g *Galaxy) Background() int {
	return g.background
}

// Tick returns the number of updates run so far
func (g *Galaxy) Tick() uint64 {
	return g.tick
}

// Len returns the number of entities
func (g *Galaxy) Len() int {
	return len(g.entities)
}

// Add inserts e and returns its id. An id of zero, or one already used in
// this galaxy, is replaced by a freshly allocated one.
func (g *Galaxy) Add(e *Entity) uint32 {
	if _, taken := g.ids[e.ID]; e.ID == 0 || taken {
		e.ID = g.allocID()
	}
	g.ids[e.ID] = e
	g.entities = append(g.entities, e)
	return e.ID
}

func (g *Galaxy) allocID() uint32 {
	for {
		id := g.rng.Uint32()
		if _, taken := g.ids[id]; id != 0 && !taken {
			return id
		}
	}
}

// Remove takes e out of the galaxy, returning false if it was not present
func (g *Galaxy) Remove(e *Entity) bool {
	if g.ids[e.ID] != e {
		return false
	}
	delete(g.ids, e.ID)
	for i, other := range g.entities {
		if other == e {
			g.entities = append(g.entities[:i], g.entities[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the entity with the given id
func (g *Galaxy) Get(id uint32) *Entity {
	return g.ids[id]
}

// Contains reports whether e is in the galaxy
func (g *Galaxy) Contains(e *Entity) bool {
	return g.ids[e.ID] == e
}

// Entities returns a copy of the entity list
func (g *Galaxy) Entities() []*Entity {
	out := make([]*Entity, len(g.entities))
	copy(out, g.entities)
	return out
}

// Place moves e to a safe spawn point and adds it
func (g *Galaxy) Place(e *Entity) uint32 {
	e.SetPosition(g.SafeSpawn(e.Radius), g.bounds)
	return g.Add(e)
}

// Launch fires a missile from craft c if its cooldown and ammo allow
func (g *Galaxy) Launch(c *Entity, now time.Time) bool {
	if !c.CanFire(now) {
		return false
	}
	c.lastFire = now
	c.Missiles--
	m := NewMissile(c)
	m.SetPosition(m.Pos, g.bounds)
	g.Add(m)
	return true
}

// Update advances the galaxy one tick: gravity, motion, collisions, then
// removal of everything that died. It returns the crafts destroyed this tick;
// each has been replaced by debris tagged with its id.
//
// Gravity is applied once per unordered pair, so each side of a pair gains
// exactly the other's GM/r^2 per tick. Visiting both orderings would double
// that pull.
func (g *Galaxy) Update() []*Entity {
	g.tick++

	// Gravity, once per pair
	for i := 0; i < len(g.entities); i++ {
		for j := i + 1; j < len(g.entities); j++ {
			g.entities[i].Gravitate(g.entities[j])
		}
	}

	for _, e := range g.entities {
		e.Step(g.bounds)
	}

	// Collisions use post-motion positions and skip anything already dead
	live := make([]*Entity, 0, len(g.entities))
	for _, e := range g.entities {
		if collides(e) {
			live = append(live, e)
		}
	}
	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			if Overlaps(live[i], live[j]) {
				live[i].Damage()
				live[j].Damage()
			}
		}
	}

	var destroyed []*Entity
	kept := make([]*Entity, 0, len(g.entities))
	for _, e := range g.entities {
		if e.alive {
			kept = append(kept, e)
			continue
		}
		delete(g.ids, e.ID)
		if e.Kind == KindCraft {
			destroyed = append(destroyed, e)
		}
	}
	g.entities = kept
	for _, c := range destroyed {
		g.Add(NewDebris(c.Pos, c.Vel, c.ID))
	}
	return destroyed
}

// SafeSpawn picks a random point where a circle of radius overlaps nothing.
// After SpawnAttempts misses it returns the last point tried.
func (g *Galaxy) SafeSpawn(radius int) Vec {
	r := float64(radius)
	var p Vec
	for i := 0; i < SpawnAttempts; i++ {
		p = Vec{
			X: r + g.rng.Float64()*(g.bounds.W-2*r),
			Y: r + g.rng.Float64()*(g.bounds.H-2*r),
		}
		if g.clearAt(p, r) {
			return p
		}
	}
	return p
}

func (g *Galaxy) clearAt(p Vec, r float64) bool {
	for _, e := range g.entities {
		if CheckCollision(p, r, e.Pos, float64(e.Radius)) {
			return false
		}
	}
	return true
}

// Snapshot captures the galaxy as seen by the craft with id viewer
func (g *Galaxy) Snapshot(viewer uint32) protocol.Snapshot {
	snap := protocol.Snapshot{
		Entities:   make([]protocol.EntityState, 0, len(g.entities)),
		Color:      g.color,
		Background: g.background,
		Viewer:     viewer,
		Tick:       g.tick,
	}
	for _, e := range g.entities {
		snap.Entities = append(snap.Entities, e.State())
	}
	return snap
}

// hsbToRGB converts a hue in [0,1) at full saturation and brightness
func hsbToRGB(hue float64) uint32 {
	h := (hue - float64(int(hue))) * 6
	f := h - float64(int(h))
	q := uint32((1 - f) * 255)
	t := uint32(f * 255)
	var r, g, b uint32
	switch int(h) {
	case 0:
		r, g, b = 255, t, 0
	case 1:
		r, g, b = q, 255, 0
	case 2:
		r, g, b = 0, 255, t
	case 3:
		r, g, b = 0, q, 255
	case 4:
		r, g, b = t, 0, 255
	default:
		r, g, b = 255, 0, q
	}
	return r<<16 | g<<8 | b
}
