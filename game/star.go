package game

import "math"

const (
	MinStarRadius   = 20
	StarRadiusRange = 50
	StarSpin        = math.Pi / 40
)

// NewStar creates a fixed, spinning star whose gravity grows with radius cubed
func NewStar(radius int, pos Vec) *Entity {
	return &Entity{
		Kind:    KindStar,
		Pos:     pos,
		Radius:  radius,
		Gravity: float64(int(0.01 * math.Pow(float64(radius), 3))),
		alive:   true,
	}
}

// stars revolve but never move, even when something accelerates them
func stepStar(e *Entity, _ Bounds) {
	e.Rotate(StarSpin)
}
