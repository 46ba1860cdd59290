package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/voltgrid/pkg/game/types"
	"github.com/voltgrid/voltgrid/pkg/messages"
	"github.com/voltgrid/voltgrid/pkg/random"
)

func snapshotFixture(t *testing.T, ticks int) (*types.MatchState, *SnapshotHistory) {
	t.Helper()
	p := testParams()
	s := types.NewMatchState()
	StartMatch(s, []uint32{1, 2, 3}, p, random.NewPCG32Seeded(9, 1))
	h := NewSnapshotHistory(16)
	for i := 0; i < ticks; i++ {
		Advance(s, nil, p)
		_, err := h.Record(s)
		require.NoError(t, err)
	}
	return s, h
}

func TestBuildFullRoundTrip(t *testing.T) {
	s, _ := snapshotFixture(t, 5)

	full := BuildFull(s)
	got := StateFromSnapshot(full)

	require.Equal(t, s, got)
}

func TestBuildFullIsACopy(t *testing.T) {
	s, _ := snapshotFixture(t, 1)

	full := BuildFull(s)
	s.Entities[1].Position.X += 100
	s.Entities[1].Trail[0].X += 100

	rebuilt := StateFromSnapshot(full)
	assert.NotEqual(t, s.Entities[1].Position, rebuilt.Entities[1].Position)
	assert.NotEqual(t, s.Entities[1].Trail[0], rebuilt.Entities[1].Trail[0])
}

func TestDeltaRoundTrip(t *testing.T) {
	p := testParams()
	s := types.NewMatchState()
	StartMatch(s, []uint32{1, 2, 3}, p, random.NewPCG32Seeded(9, 1))
	Advance(s, nil, p)
	baseline := BuildFull(s)

	// Player 3 leaves, the others keep moving.
	RemovePlayer(s, 3)
	Advance(s, []types.InputCommand{{PlayerID: 1, Tick: s.Tick + 1, Turn: types.TurnLeft}}, p)
	full := BuildFull(s)

	delta := BuildDelta(full, baseline)
	assert.Equal(t, []uint32{3}, delta.Removed)
	assert.Len(t, delta.Changed, 2)

	got, err := ApplyDelta(baseline, delta)
	require.NoError(t, err)
	require.Equal(t, full, got)
}

func TestDeltaOmitsUnchangedEntities(t *testing.T) {
	still := types.EntityState{PlayerID: 2, Alive: false}
	baseline := &messages.SnapshotFull{
		Tick:  10,
		Phase: types.PhaseRunning,
		Entities: []types.EntityState{
			{PlayerID: 1, Position: types.Vec2{X: 1}, Alive: true, Trail: []types.Vec2{{}}},
			still,
		},
	}
	full := &messages.SnapshotFull{
		Tick:  11,
		Phase: types.PhaseRunning,
		Entities: []types.EntityState{
			{PlayerID: 1, Position: types.Vec2{X: 3}, Alive: true, Trail: []types.Vec2{{}}},
			still,
		},
	}

	delta := BuildDelta(full, baseline)

	require.Len(t, delta.Changed, 1)
	assert.Equal(t, uint32(1), delta.Changed[0].PlayerID)
	assert.Empty(t, delta.Removed)
}

func TestApplyDeltaWrongBaseline(t *testing.T) {
	s, h := snapshotFixture(t, 3)

	full := BuildFull(s)
	older, ok := h.Get(1)
	require.True(t, ok)
	newer, ok := h.Get(3)
	require.True(t, ok)

	delta := BuildDelta(full, newer)
	_, err := ApplyDelta(older, delta)

	var mismatch *ErrBaselineMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint64(3), mismatch.Want)
	assert.Equal(t, uint64(1), mismatch.Have)
}

func TestHistoryEvictsOldest(t *testing.T) {
	p := testParams()
	s := types.NewMatchState()
	StartMatch(s, []uint32{1, 2}, p, random.NewPCG32Seeded(9, 1))
	h := NewSnapshotHistory(4)

	for i := 0; i < 10; i++ {
		Advance(s, nil, p)
		_, err := h.Record(s)
		require.NoError(t, err)
	}

	_, ok := h.Get(6)
	assert.False(t, ok)
	_, ok = h.Get(7)
	assert.True(t, ok)
	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, uint64(10), latest.Tick)
}

func TestHistoryRejectsTickRegression(t *testing.T) {
	s, h := snapshotFixture(t, 2)

	s.Tick = 1
	_, err := h.Record(s)

	var regression *ErrTickRegression
	require.ErrorAs(t, err, &regression)
	assert.Equal(t, uint64(1), regression.Tick)
	assert.Equal(t, uint64(2), regression.Last)
}

func TestHistoryAround(t *testing.T) {
	_, h := snapshotFixture(t, 5)

	lo, hi := h.Around(3)
	require.NotNil(t, lo)
	require.NotNil(t, hi)
	assert.Equal(t, uint64(3), lo.Tick)
	assert.Equal(t, uint64(4), hi.Tick)

	lo, hi = h.Around(0)
	assert.Nil(t, lo)
	require.NotNil(t, hi)
	assert.Equal(t, uint64(1), hi.Tick)

	lo, hi = h.Around(99)
	require.NotNil(t, lo)
	assert.Equal(t, uint64(5), lo.Tick)
	assert.Nil(t, hi)
}

func TestHistoryResize(t *testing.T) {
	_, h := snapshotFixture(t, 8)

	h.Resize(2)

	_, ok := h.Get(6)
	assert.False(t, ok)
	_, ok = h.Get(7)
	assert.True(t, ok)
	_, ok = h.Get(8)
	assert.True(t, ok)
}
