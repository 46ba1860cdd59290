package game

import (
	"fmt"

	"github.com/voltgrid/voltgrid/client/frontend"
	"github.com/voltgrid/voltgrid/pkg/cvars"
	"github.com/voltgrid/voltgrid/pkg/game"
	"github.com/voltgrid/voltgrid/pkg/game/types"
	"github.com/voltgrid/voltgrid/pkg/log"
	"github.com/voltgrid/voltgrid/pkg/messages"
	"github.com/voltgrid/voltgrid/pkg/queue"
)

// NetworkClient is the slice of the network manager the engine needs.
type NetworkClient interface {
	IsConnected() bool
	PlayerID() uint32
	SendInput(cmd types.InputCommand) error
	SendReliable(p messages.Payload) error
	SetAckTick(tick uint64)
}

// Game is the client-side engine: it drains server messages once per frame,
// predicts the local cycle forward, reconciles against authoritative
// snapshots, and hands the frontend a smoothed view.
type Game struct {
	registry       *cvars.Registry
	networkManager NetworkClient
	messageQueue   queue.Queue
	frontend       frontend.Frontend

	params game.Params

	// state is the predicted world: the last authoritative snapshot with
	// all unacknowledged local inputs replayed on top.
	state            *types.MatchState
	history          *game.SnapshotHistory
	pendingInputs    []types.InputCommand
	predictedLocal   map[uint64]*types.EntityState
	latestServerTick uint64
	lastPhase        types.Phase
}

type NewGameOptions struct {
	Registry       *cvars.Registry
	NetworkManager NetworkClient
	// MessageQueue is where the network manager parks decoded server
	// messages between frames.
	MessageQueue queue.Queue
	Frontend     frontend.Frontend
}

func NewGame(opts NewGameOptions) *Game {
	return &Game{
		registry:       opts.Registry,
		networkManager: opts.NetworkManager,
		messageQueue:   opts.MessageQueue,
		frontend:       opts.Frontend,
		params:         game.DefaultParams(),
		state:          types.NewMatchState(),
		history:        game.NewSnapshotHistory(int(game.DefaultParams().SnapshotHistory)),
		predictedLocal: make(map[uint64]*types.EntityState),
	}
}

// Update runs one client frame: apply server messages, send and predict
// this frame's input, render.
func (g *Game) Update() error {
	g.params = game.ParamsFromRegistry(g.registry, g.params)
	g.history.Resize(int(g.params.SnapshotHistory))

	g.processServerMessages()

	intent := g.frontend.PollIntent()
	g.stepPrediction(intent)

	g.frontend.Render(g.buildView())
	return nil
}

// Join asks the server for a cycle at the next match start.
func (g *Game) Join() error {
	return g.networkManager.SendReliable(&messages.Join{})
}

// Observe gives up the cycle and watches.
func (g *Game) Observe() error {
	return g.networkManager.SendReliable(&messages.Observe{})
}

// SendChat sends a chat line to everyone.
func (g *Game) SendChat(text string) error {
	return g.networkManager.SendReliable(&messages.Chat{Text: text})
}

func (g *Game) processServerMessages() {
	items, err := g.messageQueue.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read from message queue: %v", err)
		return
	}
	for _, item := range items {
		switch msg := item.(type) {
		case *messages.SnapshotFull:
			g.handleSnapshot(msg)
		case *messages.SnapshotDelta:
			g.handleSnapshotDelta(msg)
		case *messages.CvarDelta:
			if err := g.registry.SetString(msg.Name, msg.Value); err != nil {
				log.Warn("Failed to apply replicated cvar %s: %v", msg.Name, err)
			}
		case *messages.Chat:
			g.frontend.Print(fmt.Sprintf("[player %d] %s", msg.PlayerID, msg.Text))
		default:
			log.Debug("Ignoring unexpected message type: %T", item)
		}
	}
}

func (g *Game) handleSnapshotDelta(delta *messages.SnapshotDelta) {
	baseline, ok := g.history.Get(delta.BaselineTick)
	if !ok {
		// Nothing to apply it to. The server falls back to a full
		// snapshot once our ack goes stale, so just wait.
		log.Debug("No baseline for delta at tick %d", delta.Tick)
		return
	}
	full, err := game.ApplyDelta(baseline, delta)
	if err != nil {
		log.Warn("Failed to apply snapshot delta: %v", err)
		return
	}
	g.handleSnapshot(full)
}

// handleSnapshot adopts an authoritative snapshot and replays the inputs
// the server has not seen yet, which is what keeps the local cycle
// responsive without drifting from the server.
func (g *Game) handleSnapshot(full *messages.SnapshotFull) {
	if full.Tick <= g.latestServerTick && g.latestServerTick != 0 {
		return
	}
	g.history.Put(full)
	g.latestServerTick = full.Tick
	g.networkManager.SetAckTick(full.Tick)

	auth := game.StateFromSnapshot(full)

	if predicted, ok := g.predictedLocal[full.Tick]; ok {
		authLocal, present := auth.Entities[g.networkManager.PlayerID()]
		if present && !predicted.Equal(authLocal) {
			log.Debug("Misprediction at tick %d", full.Tick)
		}
	}

	remaining := g.pendingInputs[:0]
	for _, cmd := range g.pendingInputs {
		if cmd.Tick > full.Tick {
			remaining = append(remaining, cmd)
		}
	}
	g.pendingInputs = remaining
	for tick := range g.predictedLocal {
		if tick <= full.Tick {
			delete(g.predictedLocal, tick)
		}
	}

	for _, cmd := range g.pendingInputs {
		game.Advance(auth, []types.InputCommand{cmd}, g.params)
		g.recordPrediction(auth)
	}
	g.state = auth

	g.announcePhase()
}

func (g *Game) announcePhase() {
	if g.state.Phase == g.lastPhase {
		return
	}
	g.lastPhase = g.state.Phase
	switch g.state.Phase {
	case types.PhaseRunning:
		g.frontend.Print("Match started")
	case types.PhaseEnded:
		if g.state.WinnerID == 0 {
			g.frontend.Print("Match over: draw")
		} else {
			g.frontend.Print(fmt.Sprintf("Match over: player %d wins", g.state.WinnerID))
		}
	}
}

// stepPrediction sends this frame's input and advances the predicted world
// by one tick with it applied.
func (g *Game) stepPrediction(intent frontend.Intent) {
	if !g.networkManager.IsConnected() || g.state.Phase != types.PhaseRunning {
		return
	}
	predict, err := g.registry.GetBool(cvars.ClPredict)
	if err != nil {
		predict = true
	}
	if !predict {
		return
	}
	local, ok := g.state.Entities[g.networkManager.PlayerID()]
	if !ok || !local.Alive {
		return
	}

	cmd := types.InputCommand{
		PlayerID: g.networkManager.PlayerID(),
		Tick:     g.state.Tick + 1,
		Turn:     intent.Turn,
		Brake:    intent.Brake,
		Boost:    intent.Boost,
	}
	if err := g.networkManager.SendInput(cmd); err != nil {
		log.Warn("Failed to send input: %v", err)
	}
	g.pendingInputs = append(g.pendingInputs, cmd)

	game.Advance(g.state, []types.InputCommand{cmd}, g.params)
	g.recordPrediction(g.state)
}

func (g *Game) recordPrediction(s *types.MatchState) {
	local, ok := s.Entities[g.networkManager.PlayerID()]
	if !ok {
		return
	}
	g.predictedLocal[s.Tick] = local.Copy()
	horizon := uint64(2 * g.params.SnapshotHistory)
	for tick := range g.predictedLocal {
		if s.Tick > horizon && tick < s.Tick-horizon {
			delete(g.predictedLocal, tick)
		}
	}
}

// buildView assembles the frame. The local cycle comes from prediction;
// everyone else is interpolated a few ticks in the past, where the snapshot
// stream has data on both sides.
func (g *Game) buildView() *frontend.View {
	localID := g.networkManager.PlayerID()
	view := &frontend.View{
		Tick:          g.state.Tick,
		Phase:         g.state.Phase,
		WinnerID:      g.state.WinnerID,
		LocalPlayerID: localID,
	}

	if local, ok := g.state.Entities[localID]; ok {
		view.Entities = append(view.Entities, *local.Copy())
	}
	view.Entities = append(view.Entities, g.interpolatedRemotes(localID)...)
	return view
}

func (g *Game) interpolatedRemotes(localID uint32) []types.EntityState {
	offset, err := g.registry.GetInt(cvars.ClInterpolationOffsetTicks)
	if err != nil {
		offset = 0
	}
	var renderTick uint64
	if g.latestServerTick > uint64(offset) {
		renderTick = g.latestServerTick - uint64(offset)
	}

	lo, hi := g.history.Around(renderTick)
	if lo == nil {
		lo = hi
	}
	if lo == nil {
		return nil
	}

	var out []types.EntityState
	for i := range lo.Entities {
		e := lo.Entities[i]
		if e.PlayerID == localID {
			continue
		}
		if hi != nil && hi.Tick > lo.Tick {
			if next := findEntity(hi.Entities, e.PlayerID); next != nil && next.Alive == e.Alive {
				alpha := float64(renderTick-lo.Tick) / float64(hi.Tick-lo.Tick)
				e.Position = e.Position.Lerp(next.Position, alpha)
			}
		} else if e.Alive && renderTick > lo.Tick {
			// No newer snapshot to blend toward; carry the cycle forward
			// on its last known heading.
			ahead := float64(renderTick-lo.Tick) * e.Speed * g.params.Dt()
			e.Position = e.Position.Add(e.Dir.Vector().Scale(ahead))
		}
		out = append(out, *e.Copy())
	}
	return out
}

func findEntity(entities []types.EntityState, id uint32) *types.EntityState {
	for i := range entities {
		if entities[i].PlayerID == id {
			return &entities[i]
		}
	}
	return nil
}
