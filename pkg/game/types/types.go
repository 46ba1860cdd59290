package types

// Vec2 is a 2D point or vector in arena space.
type Vec2 struct {
	X float64
	Y float64
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec2) Scale(f float64) Vec2 {
	return Vec2{X: v.X * f, Y: v.Y * f}
}

// Lerp linearly interpolates between v and o by factor.
func (v Vec2) Lerp(o Vec2, factor float64) Vec2 {
	return Vec2{
		X: v.X + (o.X-v.X)*factor,
		Y: v.Y + (o.Y-v.Y)*factor,
	}
}

// Direction is one of the four cardinal headings a cycle can travel in.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// Vector returns the unit vector for the heading.
func (d Direction) Vector() Vec2 {
	switch d {
	case North:
		return Vec2{X: 0, Y: 1}
	case East:
		return Vec2{X: 1, Y: 0}
	case South:
		return Vec2{X: 0, Y: -1}
	default:
		return Vec2{X: -1, Y: 0}
	}
}

// Left returns the heading after a 90 degree left turn.
func (d Direction) Left() Direction {
	return (d + 3) % 4
}

// Right returns the heading after a 90 degree right turn.
func (d Direction) Right() Direction {
	return (d + 1) % 4
}

// Turn is a player's steering intent for one tick.
type Turn uint8

const (
	TurnNone Turn = iota
	TurnLeft
	TurnRight
)

// InputCommand is one player's intent for exactly one simulation tick.
// The server applies at most one command per (player, tick); a duplicate
// for the same slot replaces the earlier one and is never double-applied.
type InputCommand struct {
	PlayerID uint32
	Tick     uint64
	Turn     Turn
	Brake    bool
	Boost    bool
}
