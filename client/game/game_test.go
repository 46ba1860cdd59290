package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/voltgrid/client/frontend"
	"github.com/voltgrid/voltgrid/pkg/cvars"
	"github.com/voltgrid/voltgrid/pkg/game"
	"github.com/voltgrid/voltgrid/pkg/game/types"
	"github.com/voltgrid/voltgrid/pkg/messages"
	"github.com/voltgrid/voltgrid/pkg/queue"
	"github.com/voltgrid/voltgrid/pkg/random"
)

type fakeNetwork struct {
	playerID  uint32
	connected bool
	sent      []types.InputCommand
	reliable  []messages.Payload
	ackTick   uint64
}

func (f *fakeNetwork) IsConnected() bool { return f.connected }

func (f *fakeNetwork) PlayerID() uint32 { return f.playerID }

func (f *fakeNetwork) SendInput(cmd types.InputCommand) error {
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeNetwork) SendReliable(p messages.Payload) error {
	f.reliable = append(f.reliable, p)
	return nil
}

func (f *fakeNetwork) SetAckTick(tick uint64) {
	if tick > f.ackTick {
		f.ackTick = tick
	}
}

type testHarness struct {
	game     *Game
	network  *fakeNetwork
	queue    queue.Queue
	frontend *frontend.Headless

	// The authoritative side, driven by the test.
	params game.Params
	server *types.MatchState
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	registry := cvars.NewRegistry()
	require.NoError(t, cvars.RegisterDefaults(registry))

	q := queue.NewInMemoryQueue(64)
	network := &fakeNetwork{playerID: 1, connected: true}
	fe := frontend.NewHeadless()

	h := &testHarness{
		network:  network,
		queue:    q,
		frontend: fe,
		params:   game.DefaultParams(),
		server:   types.NewMatchState(),
	}
	h.game = NewGame(NewGameOptions{
		Registry:       registry,
		NetworkManager: network,
		MessageQueue:   q,
		Frontend:       fe,
	})

	game.StartMatch(h.server, []uint32{1, 2}, h.params, random.NewPCG32Seeded(5, 1))
	game.Advance(h.server, nil, h.params)
	h.sendFull(t)
	return h
}

func (h *testHarness) sendFull(t *testing.T) {
	t.Helper()
	require.NoError(t, h.queue.Enqueue(game.BuildFull(h.server)))
}

// serverAdvance applies the inputs the fake network captured for each tick,
// exactly as the real server would.
func (h *testHarness) serverAdvance(t *testing.T, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		target := h.server.Tick + 1
		var inputs []types.InputCommand
		for _, cmd := range h.network.sent {
			if cmd.Tick == target {
				inputs = append(inputs, cmd)
			}
		}
		game.Advance(h.server, inputs, h.params)
	}
}

func TestPredictionAdvancesLocalState(t *testing.T) {
	h := newTestHarness(t)

	require.NoError(t, h.game.Update())

	assert.Equal(t, uint64(2), h.game.state.Tick)
	require.Len(t, h.network.sent, 1)
	assert.Equal(t, uint64(2), h.network.sent[0].Tick)
	assert.Equal(t, uint64(1), h.network.ackTick)
}

func TestReconciliationIsNoOpWhenPredictionCorrect(t *testing.T) {
	h := newTestHarness(t)

	// Predict five ticks ahead of the last snapshot.
	for i := 0; i < 5; i++ {
		require.NoError(t, h.game.Update())
	}
	require.Len(t, h.network.sent, 5)

	// The server catches up through tick 4 using the very inputs the
	// client predicted with, then snapshots.
	h.serverAdvance(t, 3)
	h.sendFull(t)

	before := h.game.state.Copy()
	h.game.processServerMessages()

	// Authoritative adoption plus replay reproduces the predicted world
	// bit for bit.
	require.Equal(t, before, h.game.state)
	assert.Equal(t, uint64(4), h.network.ackTick)
}

func TestReconciliationCorrectsMisprediction(t *testing.T) {
	h := newTestHarness(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.game.Update())
	}

	// The server saw a turn the client never predicted.
	target := h.server.Tick + 1
	game.Advance(h.server, []types.InputCommand{{PlayerID: 1, Tick: target, Turn: types.TurnLeft}}, h.params)
	h.serverAdvance(t, 2)
	h.sendFull(t)

	h.game.processServerMessages()

	// After replaying the straight pending inputs on top of the turned
	// authoritative state, the local cycle carries the server's heading.
	local := h.game.state.Entities[1]
	require.NotNil(t, local)
	assert.Equal(t, h.server.Entities[1].Dir, local.Dir)
	assert.Len(t, local.Trail, len(h.server.Entities[1].Trail))
}

func TestStaleSnapshotIgnored(t *testing.T) {
	h := newTestHarness(t)
	require.NoError(t, h.game.Update())

	h.serverAdvance(t, 2)
	h.sendFull(t)
	h.game.processServerMessages()
	tick := h.game.latestServerTick

	// A duplicate of an older snapshot arrives late.
	stale := game.BuildFull(h.server)
	stale.Tick = 1
	require.NoError(t, h.queue.Enqueue(stale))
	h.game.processServerMessages()

	assert.Equal(t, tick, h.game.latestServerTick)
}

func TestSnapshotDeltaApplied(t *testing.T) {
	h := newTestHarness(t)
	require.NoError(t, h.game.Update())
	baseline := game.BuildFull(h.server)

	h.serverAdvance(t, 1)
	full := game.BuildFull(h.server)
	require.NoError(t, h.queue.Enqueue(game.BuildDelta(full, baseline)))

	h.game.processServerMessages()

	assert.Equal(t, full.Tick, h.game.latestServerTick)
	got, ok := h.game.history.Get(full.Tick)
	require.True(t, ok)
	assert.Equal(t, full, got)
}

func TestSnapshotDeltaWithoutBaselineSkipped(t *testing.T) {
	h := newTestHarness(t)
	require.NoError(t, h.game.Update())

	h.serverAdvance(t, 1)
	full := game.BuildFull(h.server)
	orphan := game.BuildDelta(full, full)
	orphan.BaselineTick = 999
	require.NoError(t, h.queue.Enqueue(orphan))

	h.game.processServerMessages()

	assert.NotEqual(t, full.Tick, h.game.latestServerTick)
}

func TestCvarDeltaUpdatesRegistry(t *testing.T) {
	h := newTestHarness(t)

	require.NoError(t, h.queue.Enqueue(&messages.CvarDelta{Name: cvars.GCycleSpeed, Value: "90"}))
	h.game.processServerMessages()

	v, err := h.game.registry.GetFloat(cvars.GCycleSpeed)
	require.NoError(t, err)
	assert.Equal(t, 90.0, v)
}

func TestNoPredictionWhilePhaseNotRunning(t *testing.T) {
	registry := cvars.NewRegistry()
	require.NoError(t, cvars.RegisterDefaults(registry))
	network := &fakeNetwork{playerID: 1, connected: true}
	g := NewGame(NewGameOptions{
		Registry:       registry,
		NetworkManager: network,
		MessageQueue:   queue.NewInMemoryQueue(8),
		Frontend:       frontend.NewHeadless(),
	})

	require.NoError(t, g.Update())

	assert.Empty(t, network.sent)
	assert.Equal(t, uint64(0), g.state.Tick)
}

func TestJoinObserveChatGoReliable(t *testing.T) {
	h := newTestHarness(t)

	require.NoError(t, h.game.Join())
	require.NoError(t, h.game.Observe())
	require.NoError(t, h.game.SendChat("gg"))

	require.Len(t, h.network.reliable, 3)
	assert.IsType(t, &messages.Join{}, h.network.reliable[0])
	assert.IsType(t, &messages.Observe{}, h.network.reliable[1])
	chat, ok := h.network.reliable[2].(*messages.Chat)
	require.True(t, ok)
	assert.Equal(t, "gg", chat.Text)
}
