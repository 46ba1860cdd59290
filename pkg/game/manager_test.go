package game

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/voltgrid/pkg/clients"
	"github.com/voltgrid/voltgrid/pkg/cvars"
	"github.com/voltgrid/voltgrid/pkg/game/types"
	"github.com/voltgrid/voltgrid/pkg/messages"
	"github.com/voltgrid/voltgrid/pkg/metrics"
	"github.com/voltgrid/voltgrid/pkg/queue"
)

type captureConn struct {
	written [][]byte
}

func (c *captureConn) WriteMessage(b []byte) error {
	c.written = append(c.written, b)
	return nil
}

func (c *captureConn) Close() error { return nil }

// decoded returns every captured message as a payload.
func (c *captureConn) decoded(t *testing.T) []messages.Payload {
	t.Helper()
	var out []messages.Payload
	for _, b := range c.written {
		p, err := messages.Decode(b)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func lastSnapshot(t *testing.T, c *captureConn) *messages.SnapshotFull {
	t.Helper()
	var snap *messages.SnapshotFull
	for _, p := range c.decoded(t) {
		if full, ok := p.(*messages.SnapshotFull); ok {
			snap = full
		}
	}
	return snap
}

type managerFixture struct {
	registry       *cvars.Registry
	sessionManager *clients.SessionManager
	messageQueue   queue.Queue
	eventQueue     queue.Queue
	manager        *GameManager
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	registry := cvars.NewRegistry()
	require.NoError(t, cvars.RegisterDefaults(registry))

	f := &managerFixture{
		registry:       registry,
		sessionManager: clients.NewSessionManager(clients.NewSessionManagerOptions{MessageRate: 240}),
		messageQueue:   queue.NewInMemoryQueue(256),
		eventQueue:     queue.NewInMemoryQueue(256),
	}
	f.manager = NewGameManager(NewGameManagerOptions{
		Registry:       registry,
		SessionManager: f.sessionManager,
		MessageQueue:   f.messageQueue,
		EventQueue:     f.eventQueue,
		Metrics:        metrics.NewMetrics(),
		Seed:           11,
	})
	return f
}

func (f *managerFixture) connect(t *testing.T, name string) (*clients.Session, *captureConn) {
	t.Helper()
	conn := &captureConn{}
	s, err := f.sessionManager.AddSession(conn, name, true)
	require.NoError(t, err)
	require.NoError(t, f.eventQueue.Enqueue(&types.ConnectPlayerEvent{SessionID: s.ID, Name: name}))
	return s, conn
}

func (f *managerFixture) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.gameTick(context.Background()))
}

func TestGameTickStartsMatchAtMinPlayers(t *testing.T) {
	f := newManagerFixture(t)
	f.connect(t, "alice")

	f.tick(t)
	assert.Equal(t, types.PhaseLobby, f.manager.state.Phase)

	f.connect(t, "bob")
	f.tick(t)

	assert.Equal(t, types.PhaseRunning, f.manager.state.Phase)
	assert.Len(t, f.manager.state.Entities, 2)
}

func TestGameTickSoloMatchEndsWhenCycleDies(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, f.registry.SetString(cvars.GMinPlayers, "1"))
	a, _ := f.connect(t, "alice")

	f.tick(t)
	require.Equal(t, types.PhaseRunning, f.manager.state.Phase)

	// The lone cycle eventually rides into a wall. The match must end
	// then, not idle in the running phase with an empty arena.
	for i := 0; i < 2000 && f.manager.state.Phase == types.PhaseRunning; i++ {
		f.sessionManager.Touch(a.ID, f.manager.state.Tick)
		f.tick(t)
	}

	require.Equal(t, types.PhaseEnded, f.manager.state.Phase)
	assert.Equal(t, uint32(0), f.manager.state.WinnerID)
	assert.False(t, f.manager.state.Entities[a.ID].Alive)
}

func TestGameTickSendsSnapshots(t *testing.T) {
	f := newManagerFixture(t)
	_, connA := f.connect(t, "alice")
	f.connect(t, "bob")

	f.tick(t)
	f.tick(t)

	snap := lastSnapshot(t, connA)
	require.NotNil(t, snap)
	assert.Equal(t, f.manager.state.Tick, snap.Tick)
	assert.Len(t, snap.Entities, 2)
}

func TestGameTickSyncsReplicatedCvarsOnConnect(t *testing.T) {
	f := newManagerFixture(t)
	_, conn := f.connect(t, "alice")

	f.tick(t)

	names := make(map[string]string)
	for _, p := range conn.decoded(t) {
		if d, ok := p.(*messages.CvarDelta); ok {
			names[d.Name] = d.Value
		}
	}
	assert.Contains(t, names, cvars.SvTickRate)
	assert.Contains(t, names, cvars.GCycleSpeed)
	assert.NotContains(t, names, cvars.DDbg)
}

func TestGameTickBroadcastsCvarChange(t *testing.T) {
	f := newManagerFixture(t)
	_, conn := f.connect(t, "alice")
	f.tick(t)
	before := len(conn.written)

	require.NoError(t, f.registry.SetString(cvars.GCycleSpeed, "150"))
	f.tick(t)

	var got *messages.CvarDelta
	for _, p := range conn.decoded(t)[before:] {
		if d, ok := p.(*messages.CvarDelta); ok && d.Name == cvars.GCycleSpeed {
			got = d
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, "150", got.Value)
}

func TestGameTickAppliesInputOnce(t *testing.T) {
	f := newManagerFixture(t)
	a, _ := f.connect(t, "alice")
	f.connect(t, "bob")
	f.tick(t) // connect events
	f.tick(t) // match starts

	dirBefore := f.manager.state.Entities[a.ID].Dir
	cmd := types.InputCommand{PlayerID: a.ID, Tick: f.manager.state.Tick + 1, Turn: types.TurnLeft}
	// The same command arrives twice, e.g. a client retry.
	require.NoError(t, f.messageQueue.Enqueue(&clients.InboundMessage{SessionID: a.ID, Payload: &messages.Input{Cmd: cmd}}))
	require.NoError(t, f.messageQueue.Enqueue(&clients.InboundMessage{SessionID: a.ID, Payload: &messages.Input{Cmd: cmd}}))
	f.tick(t)

	e := f.manager.state.Entities[a.ID]
	assert.Equal(t, dirBefore.Left(), e.Dir)
	assert.Len(t, e.Trail, 2)
}

func TestGameTickRejectsSpoofedInput(t *testing.T) {
	f := newManagerFixture(t)
	a, _ := f.connect(t, "alice")
	b, _ := f.connect(t, "bob")
	f.tick(t)
	f.tick(t)

	dirBefore := f.manager.state.Entities[b.ID].Dir
	cmd := types.InputCommand{PlayerID: b.ID, Tick: f.manager.state.Tick + 1, Turn: types.TurnLeft}
	require.NoError(t, f.messageQueue.Enqueue(&clients.InboundMessage{SessionID: a.ID, Payload: &messages.Input{Cmd: cmd}}))
	f.tick(t)

	assert.Equal(t, dirBefore, f.manager.state.Entities[b.ID].Dir)
}

func TestGameTickTimesOutSilentSession(t *testing.T) {
	f := newManagerFixture(t)
	a, _ := f.connect(t, "alice")
	b, _ := f.connect(t, "bob")
	require.NoError(t, f.registry.SetString(cvars.SvTimeoutTicks, "2"))
	f.tick(t)
	f.tick(t)
	require.Equal(t, types.PhaseRunning, f.manager.state.Phase)

	// Bob keeps talking, alice goes silent.
	for i := 0; i < 4; i++ {
		f.sessionManager.Touch(b.ID, f.manager.state.Tick)
		f.tick(t)
	}

	assert.False(t, f.sessionManager.Exists(a.ID))
	assert.True(t, f.sessionManager.Exists(b.ID))
	assert.NotContains(t, f.manager.state.Entities, a.ID)

	// Bob wins by forfeit once alice is gone.
	assert.Equal(t, types.PhaseEnded, f.manager.state.Phase)
	assert.Equal(t, b.ID, f.manager.state.WinnerID)
}

func TestGameTickIgnoresCvarWriteWithoutDebug(t *testing.T) {
	f := newManagerFixture(t)
	a, _ := f.connect(t, "alice")
	f.tick(t)

	require.NoError(t, f.messageQueue.Enqueue(&clients.InboundMessage{
		SessionID: a.ID,
		Payload:   &messages.CvarDelta{Name: cvars.GCycleSpeed, Value: "999"},
	}))
	f.tick(t)

	v, err := f.registry.GetFloat(cvars.GCycleSpeed)
	require.NoError(t, err)
	assert.NotEqual(t, 999.0, v)

	require.NoError(t, f.registry.SetString(cvars.DDbg, "true"))
	require.NoError(t, f.messageQueue.Enqueue(&clients.InboundMessage{
		SessionID: a.ID,
		Payload:   &messages.CvarDelta{Name: cvars.GCycleSpeed, Value: "999"},
	}))
	f.tick(t)
	f.tick(t)

	v, err = f.registry.GetFloat(cvars.GCycleSpeed)
	require.NoError(t, err)
	assert.Equal(t, 999.0, v)
}

func TestGameTickRelaysChat(t *testing.T) {
	f := newManagerFixture(t)
	a, _ := f.connect(t, "alice")
	_, connB := f.connect(t, "bob")
	f.tick(t)
	before := len(connB.written)

	require.NoError(t, f.messageQueue.Enqueue(&clients.InboundMessage{
		SessionID: a.ID,
		Payload:   &messages.Chat{PlayerID: 999, Text: "hello"},
	}))
	f.tick(t)

	var chat *messages.Chat
	for _, p := range connB.decoded(t)[before:] {
		if c, ok := p.(*messages.Chat); ok {
			chat = c
		}
	}
	require.NotNil(t, chat)
	assert.Equal(t, "hello", chat.Text)
	// The server stamps the real sender, whatever the client claimed.
	assert.Equal(t, a.ID, chat.PlayerID)
}

func TestStartExitsAfterOneFrame(t *testing.T) {
	f := newManagerFixture(t)
	require.NoError(t, f.registry.SetString(cvars.DExitAfterOneFrame, "true"))

	err := f.manager.Start(context.Background())

	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.manager.state.Tick)
}

func TestStatusReflectsState(t *testing.T) {
	f := newManagerFixture(t)
	f.connect(t, "alice")
	f.connect(t, "bob")
	f.tick(t)
	f.tick(t)

	status := f.manager.Status()
	assert.Equal(t, f.manager.state.Tick, status.Tick)
	assert.Equal(t, "running", status.Phase)
	assert.Equal(t, 2, status.Sessions)
	assert.Equal(t, 2, status.Alive)
	assert.Equal(t, uint64(11), status.Seed)
}
