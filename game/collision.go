package game

// CheckCollision checks if two circles overlap. Touching circles do not.
func CheckCollision(a Vec, ra float64, b Vec, rb float64) bool {
	d := a.Sub(b)
	radSum := ra + rb
	return d.LenSq() < radSum*radSum
}

// Overlaps reports whether two entities' circles intersect
func Overlaps(a, b *Entity) bool {
	return CheckCollision(a.Pos, float64(a.Radius), b.Pos, float64(b.Radius))
}

// collides reports whether e takes part in the collision pass
func collides(e *Entity) bool {
	if !e.alive {
		return false
	}
	if e.Kind == KindMissile && !e.Armed() {
		return false
	}
	return true
}
