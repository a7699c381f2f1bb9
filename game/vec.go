package game

import "math"

// Vec is a 2D vector used for positions and velocities
type Vec struct {
	X, Y float64
}

// Add returns v+o
func (v Vec) Add(o Vec) Vec {
	return Vec{v.X + o.X, v.Y + o.Y}
}

// Sub returns v-o
func (v Vec) Sub(o Vec) Vec {
	return Vec{v.X - o.X, v.Y - o.Y}
}

// Scale returns v*k
func (v Vec) Scale(k float64) Vec {
	return Vec{v.X * k, v.Y * k}
}

// LenSq returns the squared length of v
func (v Vec) LenSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Len returns the length of v
func (v Vec) Len() float64 {
	return math.Sqrt(v.LenSq())
}

// Distance returns the distance between two points
func Distance(a, b Vec) float64 {
	return a.Sub(b).Len()
}

// Polar returns the unit vector pointing along angle
func Polar(angle float64) Vec {
	return Vec{math.Cos(angle), math.Sin(angle)}
}

// WrapAngle wraps angle to [0, 2PI)
func WrapAngle(a float64) float64 {
	for a < 0 {
		a += 2 * math.Pi
	}
	for a >= 2*math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// Bounds is the size of a galaxy in game units
type Bounds struct {
	W, H float64
}
