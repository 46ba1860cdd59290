package types

// EntityState is the authoritative per-cycle simulation state. Owned
// exclusively by the simulation engine; everything that leaves the engine
// (snapshots, status endpoints) is a copy.
type EntityState struct {
	PlayerID uint32
	Position Vec2
	Dir      Direction
	Speed    float64
	Alive    bool
	// Trail holds the corner points of the light trail in the order they
	// were laid down, starting at the spawn point. The segment from the
	// last corner to Position is the head segment.
	Trail []Vec2
}

// Copy returns a deep copy of the entity state.
func (e *EntityState) Copy() *EntityState {
	c := *e
	c.Trail = make([]Vec2, len(e.Trail))
	copy(c.Trail, e.Trail)
	return &c
}

// Equal reports bit-exact equality with another entity state. Used by the
// client to decide whether a predicted state diverged from the
// authoritative one.
func (e *EntityState) Equal(o *EntityState) bool {
	if e.PlayerID != o.PlayerID ||
		e.Position != o.Position ||
		e.Dir != o.Dir ||
		e.Speed != o.Speed ||
		e.Alive != o.Alive ||
		len(e.Trail) != len(o.Trail) {
		return false
	}
	for i := range e.Trail {
		if e.Trail[i] != o.Trail[i] {
			return false
		}
	}
	return true
}
