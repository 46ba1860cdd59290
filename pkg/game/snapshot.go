package game

import (
	"fmt"
	"sort"

	"github.com/voltgrid/voltgrid/pkg/game/types"
	"github.com/voltgrid/voltgrid/pkg/messages"
)

// ErrTickRegression means a snapshot was recorded for a tick at or before one
// already in the history. The tick counter is strictly monotonic, so this can
// only happen through a simulation bug and the server treats it as fatal.
type ErrTickRegression struct {
	Tick uint64
	Last uint64
}

func (e *ErrTickRegression) Error() string {
	return fmt.Sprintf("snapshot for tick %d recorded after tick %d", e.Tick, e.Last)
}

// BuildFull captures the complete match state as a wire snapshot, entities
// sorted by player id.
func BuildFull(s *types.MatchState) *messages.SnapshotFull {
	full := &messages.SnapshotFull{
		Tick:     s.Tick,
		Phase:    s.Phase,
		WinnerID: s.WinnerID,
		Entities: make([]types.EntityState, 0, len(s.Entities)),
	}
	for _, id := range s.PlayerIDs() {
		full.Entities = append(full.Entities, *s.Entities[id].Copy())
	}
	return full
}

// StateFromSnapshot rebuilds match state from a full snapshot.
func StateFromSnapshot(full *messages.SnapshotFull) *types.MatchState {
	s := types.NewMatchState()
	s.Tick = full.Tick
	s.Phase = full.Phase
	s.WinnerID = full.WinnerID
	for i := range full.Entities {
		e := full.Entities[i]
		s.Entities[e.PlayerID] = e.Copy()
	}
	return s
}

// BuildDelta encodes full relative to baseline: entities that changed or
// appeared go in Changed, ids present in the baseline but gone now go in
// Removed.
func BuildDelta(full, baseline *messages.SnapshotFull) *messages.SnapshotDelta {
	delta := &messages.SnapshotDelta{
		Tick:         full.Tick,
		BaselineTick: baseline.Tick,
		Phase:        full.Phase,
		WinnerID:     full.WinnerID,
	}

	base := make(map[uint32]*types.EntityState, len(baseline.Entities))
	for i := range baseline.Entities {
		base[baseline.Entities[i].PlayerID] = &baseline.Entities[i]
	}

	for i := range full.Entities {
		e := &full.Entities[i]
		prev, ok := base[e.PlayerID]
		if ok && e.Equal(prev) {
			continue
		}
		delta.Changed = append(delta.Changed, *e.Copy())
	}

	current := make(map[uint32]struct{}, len(full.Entities))
	for i := range full.Entities {
		current[full.Entities[i].PlayerID] = struct{}{}
	}
	for i := range baseline.Entities {
		id := baseline.Entities[i].PlayerID
		if _, ok := current[id]; !ok {
			delta.Removed = append(delta.Removed, id)
		}
	}
	sort.Slice(delta.Removed, func(i, j int) bool { return delta.Removed[i] < delta.Removed[j] })

	return delta
}

// ErrBaselineMismatch means a delta referenced a baseline tick the receiver
// does not hold, so it cannot be applied.
type ErrBaselineMismatch struct {
	Want uint64
	Have uint64
}

func (e *ErrBaselineMismatch) Error() string {
	return fmt.Sprintf("delta baseline tick %d does not match held snapshot tick %d", e.Want, e.Have)
}

// ApplyDelta reconstructs the full snapshot a delta describes on top of its
// baseline.
func ApplyDelta(baseline *messages.SnapshotFull, delta *messages.SnapshotDelta) (*messages.SnapshotFull, error) {
	if baseline.Tick != delta.BaselineTick {
		return nil, &ErrBaselineMismatch{Want: delta.BaselineTick, Have: baseline.Tick}
	}

	merged := make(map[uint32]types.EntityState, len(baseline.Entities))
	for i := range baseline.Entities {
		merged[baseline.Entities[i].PlayerID] = *baseline.Entities[i].Copy()
	}
	for i := range delta.Changed {
		merged[delta.Changed[i].PlayerID] = *delta.Changed[i].Copy()
	}
	for _, id := range delta.Removed {
		delete(merged, id)
	}

	ids := make([]uint32, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	full := &messages.SnapshotFull{
		Tick:     delta.Tick,
		Phase:    delta.Phase,
		WinnerID: delta.WinnerID,
		Entities: make([]types.EntityState, 0, len(ids)),
	}
	for _, id := range ids {
		full.Entities = append(full.Entities, merged[id])
	}
	return full, nil
}

// SnapshotHistory is a bounded ring of recent full snapshots, newest last.
// The server keeps one to serve delta baselines; the client keeps one to
// apply deltas against.
type SnapshotHistory struct {
	capacity int
	snaps    []*messages.SnapshotFull
}

func NewSnapshotHistory(capacity int) *SnapshotHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &SnapshotHistory{capacity: capacity}
}

// Record captures the state as a full snapshot and appends it, evicting the
// oldest entry once the ring is at capacity.
func (h *SnapshotHistory) Record(s *types.MatchState) (*messages.SnapshotFull, error) {
	if n := len(h.snaps); n > 0 && s.Tick <= h.snaps[n-1].Tick {
		return nil, &ErrTickRegression{Tick: s.Tick, Last: h.snaps[n-1].Tick}
	}
	full := BuildFull(s)
	h.Put(full)
	return full, nil
}

// Put inserts an already-built snapshot, dropping it if it is not newer than
// the newest held one.
func (h *SnapshotHistory) Put(full *messages.SnapshotFull) {
	if n := len(h.snaps); n > 0 && full.Tick <= h.snaps[n-1].Tick {
		return
	}
	h.snaps = append(h.snaps, full)
	if len(h.snaps) > h.capacity {
		h.snaps = h.snaps[1:]
	}
}

// Get returns the snapshot recorded at exactly the given tick.
func (h *SnapshotHistory) Get(tick uint64) (*messages.SnapshotFull, bool) {
	i := sort.Search(len(h.snaps), func(i int) bool { return h.snaps[i].Tick >= tick })
	if i < len(h.snaps) && h.snaps[i].Tick == tick {
		return h.snaps[i], true
	}
	return nil, false
}

// Around returns the newest snapshot at or before tick and the oldest one
// after it. Either may be nil when the ring does not cover that side.
func (h *SnapshotHistory) Around(tick uint64) (lo, hi *messages.SnapshotFull) {
	i := sort.Search(len(h.snaps), func(i int) bool { return h.snaps[i].Tick > tick })
	if i > 0 {
		lo = h.snaps[i-1]
	}
	if i < len(h.snaps) {
		hi = h.snaps[i]
	}
	return lo, hi
}

// Latest returns the newest held snapshot.
func (h *SnapshotHistory) Latest() (*messages.SnapshotFull, bool) {
	if len(h.snaps) == 0 {
		return nil, false
	}
	return h.snaps[len(h.snaps)-1], true
}

// Resize adjusts the capacity, evicting oldest entries if needed.
func (h *SnapshotHistory) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	h.capacity = capacity
	if len(h.snaps) > capacity {
		h.snaps = h.snaps[len(h.snaps)-capacity:]
	}
}
