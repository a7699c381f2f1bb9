package game

import "math"

const (
	DebrisRadius    = 20
	DebrisHealth    = 5
	DebrisLife      = 1000 // ticks
	DebrisTumble    = 0.1
	DebrisSpin      = 0.2
	ExplosionFrames = 16
)

// NewDebris creates the wreckage of the craft with id source
func NewDebris(pos, vel Vec, source uint32) *Entity {
	return &Entity{
		Kind:   KindDebris,
		Radius: DebrisRadius,
		Pos:    pos,
		Vel:    vel,
		Health: DebrisHealth,
		Life:   DebrisLife,
		Source: source,
		alive:  true,
	}
}

func stepDebris(e *Entity, b Bounds) {
	stepDefault(e, b)
	e.Tumble += DebrisTumble
	for e.Tumble >= 2*math.Pi {
		e.Tumble -= 2 * math.Pi
	}
	e.Heading = WrapAngle(e.Heading + DebrisSpin)
	if e.Explosion <= ExplosionFrames {
		e.Explosion++
	}
	e.Life--
	if e.Life <= 0 {
		e.alive = false
	}
}

func damageDebris(e *Entity) {
	e.Health--
	if e.Health < 1 {
		e.alive = false
	}
}
