package types

import "sort"

// Phase is the match lifecycle state.
type Phase uint8

const (
	PhaseLobby Phase = iota
	PhaseRunning
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseRunning:
		return "running"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MatchState is the full simulation state for one match at one tick.
type MatchState struct {
	Tick     uint64
	Phase    Phase
	Entities map[uint32]*EntityState
	// WinnerID is the surviving player when Phase is PhaseEnded,
	// or 0 for a draw (simultaneous elimination) or an aborted match.
	WinnerID uint32
}

// NewMatchState returns an empty lobby-phase state at tick zero.
func NewMatchState() *MatchState {
	return &MatchState{
		Phase:    PhaseLobby,
		Entities: make(map[uint32]*EntityState),
	}
}

// Copy returns a deep copy of the match state.
func (s *MatchState) Copy() *MatchState {
	c := &MatchState{
		Tick:     s.Tick,
		Phase:    s.Phase,
		WinnerID: s.WinnerID,
		Entities: make(map[uint32]*EntityState, len(s.Entities)),
	}
	for id, e := range s.Entities {
		c.Entities[id] = e.Copy()
	}
	return c
}

// PlayerIDs returns the entity owners in ascending order. Iterating
// entities through this keeps every float operation in a fixed order,
// which the determinism guarantee depends on.
func (s *MatchState) PlayerIDs() []uint32 {
	ids := make([]uint32, 0, len(s.Entities))
	for id := range s.Entities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AliveCount returns the number of living cycles.
func (s *MatchState) AliveCount() int {
	n := 0
	for _, e := range s.Entities {
		if e.Alive {
			n++
		}
	}
	return n
}
