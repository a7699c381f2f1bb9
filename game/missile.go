package game

import "math"

const (
	MissileRadius  = 5
	MissileImpulse = 10.0
	LaunchOffset   = 40.0 // spawn distance from the launcher's centre
	ArmingDistance = 10.0 // path length before the missile can hit anything
	MissileLife    = 1000 // ticks
)

// NewMissile launches a missile from a craft along its heading. The missile
// inherits the launcher's velocity.
func NewMissile(launcher *Entity) *Entity {
	dir := Polar(launcher.Heading)
	return &Entity{
		Kind:    KindMissile,
		Radius:  MissileRadius,
		Pos:     launcher.Pos.Add(dir.Scale(LaunchOffset)),
		Vel:     launcher.Vel.Add(dir.Scale(MissileImpulse)),
		Heading: launcher.Heading,
		Life:    MissileLife,
		alive:   true,
	}
}

// Armed reports whether the missile has travelled far enough to cause damage
func (e *Entity) Armed() bool {
	return e.Kind == KindMissile && e.traveled >= ArmingDistance
}

func stepMissile(e *Entity, b Bounds) {
	stepDefault(e, b)
	e.traveled += e.Vel.Len()
	if e.Vel.LenSq() > 0 {
		e.Heading = WrapAngle(math.Atan2(e.Vel.Y, e.Vel.X))
	}
	e.Life--
	if e.Life <= 0 {
		e.alive = false
	}
}
