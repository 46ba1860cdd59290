package game

import (
	"math"

	"github.com/voltgrid/voltgrid/pkg/game/types"
	"github.com/voltgrid/voltgrid/pkg/random"
)

// StartMatch spawns a cycle for each given player and moves the match into
// the running phase. Spawn points sit evenly spaced on a ring whose rotation
// comes from the seeded generator, so two matches with the same seed and the
// same player set spawn identically.
func StartMatch(s *types.MatchState, playerIDs []uint32, p Params, rng *random.PCG32) {
	s.Entities = make(map[uint32]*types.EntityState)
	s.Phase = types.PhaseRunning
	s.WinnerID = 0

	if len(playerIDs) == 0 {
		return
	}

	radius := p.ArenaHalfSize * 0.6
	phase := rng.Float64() * 2 * math.Pi
	step := 2 * math.Pi / float64(len(playerIDs))

	for i, id := range playerIDs {
		angle := phase + float64(i)*step
		pos := types.Vec2{
			X: radius * math.Cos(angle),
			Y: radius * math.Sin(angle),
		}
		s.Entities[id] = &types.EntityState{
			PlayerID: id,
			Position: pos,
			Dir:      inwardDirection(pos),
			Speed:    p.CycleSpeed,
			Alive:    true,
			Trail:    []types.Vec2{pos},
		}
	}
}

// inwardDirection picks the cardinal direction pointing most directly at the
// arena center from pos.
func inwardDirection(pos types.Vec2) types.Direction {
	if math.Abs(pos.X) >= math.Abs(pos.Y) {
		if pos.X > 0 {
			return types.West
		}
		return types.East
	}
	if pos.Y > 0 {
		return types.South
	}
	return types.North
}

// Advance runs one fixed-timestep tick: apply at most one input per player,
// move every living cycle, then resolve eliminations simultaneously. It is a
// pure function of its arguments, which is what lets the client run the same
// step for prediction. When two inputs name the same player the later one in
// the slice wins.
func Advance(s *types.MatchState, inputs []types.InputCommand, p Params) {
	s.Tick++
	if s.Phase != types.PhaseRunning {
		return
	}

	latest := make(map[uint32]types.InputCommand, len(inputs))
	for _, cmd := range inputs {
		latest[cmd.PlayerID] = cmd
	}

	ids := s.PlayerIDs()

	for _, id := range ids {
		e := s.Entities[id]
		if !e.Alive {
			continue
		}
		e.Speed = p.CycleSpeed
		cmd, ok := latest[id]
		if !ok {
			continue
		}
		switch cmd.Turn {
		case types.TurnLeft:
			e.Dir = e.Dir.Left()
			e.Trail = append(e.Trail, e.Position)
		case types.TurnRight:
			e.Dir = e.Dir.Right()
			e.Trail = append(e.Trail, e.Position)
		}
		if cmd.Brake {
			e.Speed *= p.BrakeFactor
		} else if cmd.Boost {
			e.Speed *= p.BoostFactor
		}
	}

	for _, id := range ids {
		e := s.Entities[id]
		if !e.Alive {
			continue
		}
		e.Position = e.Position.Add(e.Dir.Vector().Scale(e.Speed * p.Dt()))
	}

	// Deaths are collected against the post-move world and applied in one
	// batch, so two cycles meeting head-on both die.
	world := newCollisionWorld(s, p)
	var dead []uint32
	for _, id := range ids {
		e := s.Entities[id]
		if !e.Alive {
			continue
		}
		if outOfBounds(e, p) || world.cycleHits(id) {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		e := s.Entities[id]
		e.Alive = false
		e.Speed = 0
		e.Trail = nil
	}

	// No living cycles always ends the match, so a solo arena does not run
	// forever after its only cycle dies. With two or more cycles a single
	// survivor wins; nobody left alive is a draw.
	alive := s.AliveCount()
	if alive == 0 || (len(s.Entities) >= 2 && alive <= 1) {
		s.Phase = types.PhaseEnded
		s.WinnerID = 0
		for _, id := range ids {
			if s.Entities[id].Alive {
				s.WinnerID = id
			}
		}
	}
}

// RemovePlayer drops a player's entity from the match, trail included.
func RemovePlayer(s *types.MatchState, id uint32) {
	delete(s.Entities, id)
}

// ResetToLobby clears the arena and returns the match to the lobby phase.
// The tick counter keeps counting; it never rewinds.
func ResetToLobby(s *types.MatchState) {
	s.Entities = make(map[uint32]*types.EntityState)
	s.Phase = types.PhaseLobby
	s.WinnerID = 0
}
