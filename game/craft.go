package game

import "time"

const (
	CraftRadius      = 40
	CraftMaxSpeed    = 20.0
	CraftImpulse     = 2.0 // delta-V of one thrust
	CraftTurn        = 0.2 // radians per turn command
	ThrustFuel       = 10
	HyperspaceFuel   = 100
	DefaultShields   = 5
	DefaultFuel      = 2000
	DefaultMissiles  = 50
	FirePeriod       = 200 * time.Millisecond
	HyperspacePeriod = time.Second
)

// NewCraft creates a player craft with full shields, fuel and missiles.
// Both cooldowns start at now.
func NewCraft(now time.Time) *Entity {
	c := &Entity{
		Kind:     KindCraft,
		Radius:   CraftRadius,
		lastFire: now,
		lastJump: now,
	}
	c.Reset(Size)
	return c
}

// Reset restores shields, fuel, missiles, velocity and position to the
// starting values and revives the craft.
func (e *Entity) Reset(b Bounds) {
	if e.Kind != KindCraft {
		return
	}
	e.Shields = DefaultShields
	e.Fuel = DefaultFuel
	e.Missiles = DefaultMissiles
	e.Vel = Vec{}
	e.SetPosition(Vec{}, b)
	e.alive = true
}

// Thrust fires the thrusters along the heading. The burn is refunded when it
// would take the craft past its maximum speed.
func (e *Entity) Thrust() {
	if e.Kind != KindCraft || e.Fuel < ThrustFuel {
		return
	}
	e.AccelerateHeading(CraftImpulse)
	if e.Vel.Len() > CraftMaxSpeed {
		e.AccelerateHeading(-CraftImpulse)
		return
	}
	e.Fuel -= ThrustFuel
}

// TurnLeft rotates counter-clockwise for one fuel
func (e *Entity) TurnLeft() {
	if e.Kind != KindCraft || e.Fuel <= 0 {
		return
	}
	e.Rotate(CraftTurn)
	e.Fuel--
}

// TurnRight rotates clockwise for one fuel
func (e *Entity) TurnRight() {
	if e.Kind != KindCraft || e.Fuel <= 0 {
		return
	}
	e.Rotate(-CraftTurn)
	e.Fuel--
}

// CanFire returns true if the craft may launch a missile at now
func (e *Entity) CanFire(now time.Time) bool {
	return e.Kind == KindCraft && e.alive && e.Missiles > 0 && now.Sub(e.lastFire) > FirePeriod
}

// Hyperspace consumes fuel for a jump and returns true when the cooldown has
// expired and enough fuel is left.
func (e *Entity) Hyperspace(now time.Time) bool {
	if e.Kind != KindCraft || now.Sub(e.lastJump) <= HyperspacePeriod || e.Fuel < HyperspaceFuel {
		return false
	}
	e.lastJump = now
	e.Fuel -= HyperspaceFuel
	return true
}

func damageCraft(e *Entity) {
	e.Shields--
	if e.Shields < 1 {
		e.alive = false
	}
}
