package game

import (
	"math"
	"time"

	"spacewars/protocol"
)

// Kind tags which variant of Entity a value is
type Kind uint8

const (
	KindStar Kind = iota + 1
	KindCraft
	KindMissile
	KindDebris
)

func (k Kind) String() string {
	switch k {
	case KindStar:
		return "star"
	case KindCraft:
		return "craft"
	case KindMissile:
		return "missile"
	case KindDebris:
		return "debris"
	}
	return "unknown"
}

// Entity is a gravitating circle living in a galaxy. The shared fields apply
// to every kind; the per-kind fields are only meaningful for their Kind.
type Entity struct {
	ID      uint32
	Kind    Kind
	Pos     Vec
	Vel     Vec
	Heading float64 // radians, [0, 2PI)
	Radius  int
	Gravity float64 // roughly GM of this object
	alive   bool

	// Craft
	Shields  int
	Fuel     int
	Missiles int
	lastFire time.Time
	lastJump time.Time

	// Missile
	Life     int // also used by debris
	traveled float64

	// Debris
	Health    int
	Tumble    float64
	Explosion int
	Source    uint32 // id of the craft the debris came from
}

// behavior is the per-kind capability table entry
type behavior struct {
	step       func(e *Entity, b Bounds)
	damage     func(e *Entity)
	destroy    func(e *Entity)
	accelerate func(e *Entity, dv Vec)
}

var behaviors = [...]behavior{
	KindStar: {
		step:       stepStar,
		damage:     func(*Entity) {},
		destroy:    func(*Entity) {},
		accelerate: func(*Entity, Vec) {},
	},
	KindCraft: {
		step:       stepDefault,
		damage:     damageCraft,
		destroy:    destroyDefault,
		accelerate: accelerateDefault,
	},
	KindMissile: {
		step:       stepMissile,
		damage:     destroyDefault,
		destroy:    destroyDefault,
		accelerate: accelerateDefault,
	},
	KindDebris: {
		step:       stepDebris,
		damage:     damageDebris,
		destroy:    destroyDefault,
		accelerate: accelerateDefault,
	},
}

func (e *Entity) behavior() behavior {
	if int(e.Kind) >= len(behaviors) || behaviors[e.Kind].step == nil {
		return behavior{
			step:       stepDefault,
			damage:     destroyDefault,
			destroy:    destroyDefault,
			accelerate: accelerateDefault,
		}
	}
	return behaviors[e.Kind]
}

// Alive reports whether the entity is still active
func (e *Entity) Alive() bool {
	return e.alive
}

// Step advances the entity by one tick
func (e *Entity) Step(b Bounds) {
	e.behavior().step(e, b)
}

// Damage moves the entity towards an inactive state
func (e *Entity) Damage() {
	e.behavior().damage(e)
}

// Destroy makes the entity inactive. Stars ignore it.
func (e *Entity) Destroy() {
	e.behavior().destroy(e)
}

// Accelerate changes the velocity by dv
func (e *Entity) Accelerate(dv Vec) {
	e.behavior().accelerate(e, dv)
}

// AccelerateHeading changes the velocity by magnitude along the current heading
func (e *Entity) AccelerateHeading(magnitude float64) {
	e.Accelerate(Polar(e.Heading).Scale(magnitude))
}

// Rotate turns the heading by angle radians
func (e *Entity) Rotate(angle float64) {
	e.Heading = WrapAngle(e.Heading + angle)
}

// SetPosition moves the entity, snapping it to the opposite edge when it
// leaves the galaxy on either axis.
func (e *Entity) SetPosition(p Vec, b Bounds) {
	r := float64(e.Radius)
	if p.X+r > b.W {
		p.X = r
	}
	if p.Y+r > b.H {
		p.Y = r
	}
	if p.X-r < 0 {
		p.X = b.W - r
	}
	if p.Y-r < 0 {
		p.Y = b.H - r
	}
	e.Pos = p
}

// Gravitate applies the mutual inverse-square acceleration a = GM/r^2
// between e and o. Each side is pulled by the other's gravity constant.
func (e *Entity) Gravitate(o *Entity) {
	d := e.Pos.Sub(o.Pos)
	r2 := d.LenSq()
	if r2 == 0 {
		return
	}
	dir := d.Scale(1 / math.Sqrt(r2))
	e.Accelerate(dir.Scale(-o.Gravity / r2))
	o.Accelerate(dir.Scale(e.Gravity / r2))
}

// State converts to protocol state
func (e *Entity) State() protocol.EntityState {
	s := protocol.EntityState{
		ID:      e.ID,
		Kind:    uint8(e.Kind),
		X:       e.Pos.X,
		Y:       e.Pos.Y,
		VX:      e.Vel.X,
		VY:      e.Vel.Y,
		Heading: e.Heading,
		Radius:  e.Radius,
	}
	switch e.Kind {
	case KindCraft:
		s.Shields = e.Shields
		s.Fuel = e.Fuel
		s.Missiles = e.Missiles
	case KindMissile:
		s.Life = e.Life
	case KindDebris:
		s.Life = e.Life
		s.Tumble = e.Tumble
		s.Explosion = e.Explosion
		s.Source = e.Source
	}
	return s
}

func stepDefault(e *Entity, b Bounds) {
	e.SetPosition(e.Pos.Add(e.Vel), b)
}

func destroyDefault(e *Entity) {
	e.alive = false
}

func accelerateDefault(e *Entity, dv Vec) {
	e.Vel = e.Vel.Add(dv)
}
