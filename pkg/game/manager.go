package game

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/voltgrid/pkg/clients"
	"github.com/voltgrid/voltgrid/pkg/cvars"
	"github.com/voltgrid/voltgrid/pkg/game/types"
	"github.com/voltgrid/voltgrid/pkg/log"
	"github.com/voltgrid/voltgrid/pkg/messages"
	"github.com/voltgrid/voltgrid/pkg/metrics"
	"github.com/voltgrid/voltgrid/pkg/queue"
	"github.com/voltgrid/voltgrid/pkg/random"
	"github.com/voltgrid/voltgrid/pkg/repositories"
)

// How long a finished match lingers before the arena resets to the lobby,
// in seconds of simulation time.
const restartDelaySeconds = 3

// GameManager runs the authoritative simulation. Everything it owns is
// touched only from its own goroutine; the queues and the session manager
// are the boundaries to the transport goroutines.
type GameManager struct {
	registry       *cvars.Registry
	sessionManager *clients.SessionManager
	messageQueue   queue.Queue
	eventQueue     queue.Queue
	repository     repositories.Repository
	metrics        *metrics.Metrics

	seed uint64
	rng  *random.PCG32

	state       *types.MatchState
	params      Params
	history     *SnapshotHistory
	inputBuffer *InputBuffer

	lastReplicated map[string]string
	lastFullSent   map[uint32]uint64
	endedAtTick    uint64
	resultSaved    bool

	statusLock sync.RWMutex
	status     Status
}

// Status is a point-in-time summary of the server for the debug endpoint.
type Status struct {
	Tick     uint64 `json:"tick"`
	Phase    string `json:"phase"`
	Sessions int    `json:"sessions"`
	Players  int    `json:"players"`
	Alive    int    `json:"alive"`
	Seed     uint64 `json:"seed"`
}

type NewGameManagerOptions struct {
	Registry       *cvars.Registry
	SessionManager *clients.SessionManager
	MessageQueue   queue.Queue
	EventQueue     queue.Queue
	// Repository may be nil, in which case match results are not persisted.
	Repository repositories.Repository
	Metrics    *metrics.Metrics
	Seed       uint64
}

func NewGameManager(opts NewGameManagerOptions) *GameManager {
	return &GameManager{
		registry:       opts.Registry,
		sessionManager: opts.SessionManager,
		messageQueue:   opts.MessageQueue,
		eventQueue:     opts.EventQueue,
		repository:     opts.Repository,
		metrics:        opts.Metrics,
		seed:           opts.Seed,
		rng:            random.NewPCG32Seeded(opts.Seed, 1),
		state:          types.NewMatchState(),
		params:         DefaultParams(),
		history:        NewSnapshotHistory(int(DefaultParams().SnapshotHistory)),
		inputBuffer:    NewInputBuffer(),
		lastReplicated: make(map[string]string),
		lastFullSent:   make(map[uint32]uint64),
	}
}

// Start runs the fixed-timestep loop until the context is cancelled, the
// exit-after-one-frame cvar stops it, or a tick fails fatally.
func (gm *GameManager) Start(ctx context.Context) error {
	gm.params = ParamsFromRegistry(gm.registry, gm.params)
	tickRate := gm.params.TickRate
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	log.Info("Starting game loop at %d ticks per second (seed %d)", tickRate, gm.seed)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := gm.gameTick(ctx); err != nil {
				return fmt.Errorf("failed to process game tick: %v", err)
			}
			gm.metrics.TickDuration.Observe(time.Since(start).Seconds())
			gm.metrics.TicksTotal.Inc()

			if exit, err := gm.registry.GetBool(cvars.DExitAfterOneFrame); err == nil && exit {
				log.Info("Exiting after one frame")
				return nil
			}

			if gm.params.TickRate != tickRate {
				tickRate = gm.params.TickRate
				ticker.Reset(time.Second / time.Duration(tickRate))
				log.Info("Tick rate changed to %d", tickRate)
			}
		}
	}
}

// gameTick advances the world by one tick. Cvar reads happen first, so any
// write that landed since the last tick takes effect here and not mid-step.
func (gm *GameManager) gameTick(ctx context.Context) error {
	gm.params = ParamsFromRegistry(gm.registry, gm.params)
	gm.history.Resize(int(gm.params.SnapshotHistory))

	gm.processEvents()
	gm.processMessages()
	gm.broadcastCvarChanges()
	gm.updateMatchPhase(ctx)

	inputs := gm.inputBuffer.Take(gm.state.Tick + 1)
	Advance(gm.state, inputs, gm.params)
	gm.sessionManager.SetCurrentTick(gm.state.Tick)

	gm.disconnectTimedOut()

	if err := gm.broadcastState(); err != nil {
		return err
	}

	gm.updateStatus()
	return nil
}

func (gm *GameManager) processEvents() {
	items, err := gm.eventQueue.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read from event queue: %v", err)
		return
	}
	for _, item := range items {
		switch event := item.(type) {
		case *types.ConnectPlayerEvent:
			log.Info("Session %d connected as %q", event.SessionID, event.Name)
			gm.sendReplicatedCvars(event.SessionID)
		case *types.DisconnectPlayerEvent:
			gm.disconnectSession(event.SessionID, event.TimedOut)
		case *types.JoinPlayerEvent:
			if err := gm.sessionManager.SetPlaying(event.SessionID, true); err != nil {
				log.Debug("Failed to mark session %d playing: %v", event.SessionID, err)
			}
		case *types.ObservePlayerEvent:
			if err := gm.sessionManager.SetPlaying(event.SessionID, false); err != nil {
				log.Debug("Failed to mark session %d observing: %v", event.SessionID, err)
			}
			RemovePlayer(gm.state, event.SessionID)
		default:
			log.Error("Unhandled event type: %T", item)
		}
	}
}

func (gm *GameManager) processMessages() {
	items, err := gm.messageQueue.ReadAllMessages()
	if err != nil {
		log.Error("Failed to read from message queue: %v", err)
		return
	}
	for _, item := range items {
		inbound, ok := item.(*clients.InboundMessage)
		if !ok {
			log.Error("Unhandled message type: %T", item)
			continue
		}
		if !gm.sessionManager.Exists(inbound.SessionID) {
			continue
		}
		gm.metrics.MessagesReceived.WithLabelValues(inbound.Payload.Tag().String()).Inc()
		gm.sessionManager.Touch(inbound.SessionID, gm.state.Tick)

		switch msg := inbound.Payload.(type) {
		case *messages.Input:
			gm.handleInput(inbound.SessionID, msg)
		case *messages.CvarDelta:
			gm.handleCvarDelta(inbound.SessionID, msg)
		case *messages.Chat:
			gm.handleChat(inbound.SessionID, msg)
		default:
			log.Debug("Ignoring unexpected %s from session %d", inbound.Payload.Tag(), inbound.SessionID)
		}
	}
}

func (gm *GameManager) handleInput(sessionID uint32, msg *messages.Input) {
	if msg.Cmd.PlayerID != sessionID {
		log.Warn("Session %d sent input for player %d, dropping", sessionID, msg.Cmd.PlayerID)
		return
	}
	gm.sessionManager.Ack(sessionID, msg.AckTick)
	if err := gm.inputBuffer.Put(msg.Cmd, gm.state.Tick, gm.params.InputToleranceTicks); err != nil {
		gm.metrics.InputsDropped.Inc()
		log.Debug("Dropped input: %v", err)
	}
}

// handleCvarDelta applies a cvar write from a client. Remote writes are a
// debugging convenience and only honored while d_dbg is set.
func (gm *GameManager) handleCvarDelta(sessionID uint32, msg *messages.CvarDelta) {
	dbg, err := gm.registry.GetBool(cvars.DDbg)
	if err != nil || !dbg {
		log.Warn("Ignoring cvar write %s from session %d", msg.Name, sessionID)
		return
	}
	if err := gm.registry.SetString(msg.Name, msg.Value); err != nil {
		log.Warn("Failed to set cvar %s from session %d: %v", msg.Name, sessionID, err)
	}
}

func (gm *GameManager) handleChat(sessionID uint32, msg *messages.Chat) {
	b, err := messages.Encode(&messages.Chat{PlayerID: sessionID, Text: msg.Text})
	if err != nil {
		log.Error("Failed to encode chat message: %v", err)
		return
	}
	gm.sessionManager.Broadcast(b)
}

// broadcastCvarChanges diffs the replicated cvars against what clients were
// last told and sends deltas for anything that moved, whatever the source of
// the write (console, launch args, or a debug client).
func (gm *GameManager) broadcastCvarChanges() {
	for _, info := range gm.registry.List() {
		if !info.Replicated {
			continue
		}
		value, err := gm.registry.String(info.Name)
		if err != nil {
			continue
		}
		if gm.lastReplicated[info.Name] == value {
			continue
		}
		gm.lastReplicated[info.Name] = value
		b, err := messages.Encode(&messages.CvarDelta{Name: info.Name, Value: value})
		if err != nil {
			log.Error("Failed to encode cvar delta for %s: %v", info.Name, err)
			continue
		}
		gm.sessionManager.Broadcast(b)
	}
}

// sendReplicatedCvars syncs a freshly connected session with every
// replicated cvar's current value.
func (gm *GameManager) sendReplicatedCvars(sessionID uint32) {
	s, err := gm.sessionManager.GetSession(sessionID)
	if err != nil {
		return
	}
	for _, info := range gm.registry.List() {
		if !info.Replicated {
			continue
		}
		value, err := gm.registry.String(info.Name)
		if err != nil {
			continue
		}
		gm.lastReplicated[info.Name] = value
		b, err := messages.Encode(&messages.CvarDelta{Name: info.Name, Value: value})
		if err != nil {
			continue
		}
		if err := gm.sessionManager.SendReliable(s, b); err != nil {
			log.Warn("Failed to sync cvar %s to session %d: %v", info.Name, sessionID, err)
			return
		}
	}
}

func (gm *GameManager) updateMatchPhase(ctx context.Context) {
	switch gm.state.Phase {
	case types.PhaseLobby:
		playing := gm.sessionManager.PlayingIDs()
		if int64(len(playing)) >= gm.params.MinPlayers {
			StartMatch(gm.state, playing, gm.params, gm.rng)
			gm.resultSaved = false
			log.Info("Match started at tick %d with %d players", gm.state.Tick, len(playing))
		}
	case types.PhaseEnded:
		if !gm.resultSaved {
			gm.resultSaved = true
			gm.endedAtTick = gm.state.Tick
			log.Info("Match ended at tick %d, winner %d", gm.state.Tick, gm.state.WinnerID)
			gm.saveMatchResult(ctx)
		}
		delay := uint64(restartDelaySeconds * gm.params.TickRate)
		if gm.state.Tick-gm.endedAtTick >= delay {
			ResetToLobby(gm.state)
		}
	}
}

func (gm *GameManager) saveMatchResult(ctx context.Context) {
	if gm.repository == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	result := repositories.MatchResult{
		ID:       uuid.New(),
		WinnerID: gm.state.WinnerID,
		Players:  len(gm.state.Entities),
		Ticks:    gm.state.Tick,
		Seed:     gm.seed,
		EndedAt:  time.Now().UnixMilli(),
	}
	if err := gm.repository.SaveMatchResult(saveCtx, result); err != nil {
		log.Error("Failed to save match result: %v", err)
	}
}

func (gm *GameManager) disconnectTimedOut() {
	for _, s := range gm.sessionManager.TimedOut(gm.state.Tick, gm.params.TimeoutTicks) {
		gm.disconnectSession(s.ID, true)
	}
}

func (gm *GameManager) disconnectSession(sessionID uint32, timedOut bool) {
	if timedOut {
		log.Info("Session %d timed out", sessionID)
	} else {
		log.Info("Session %d disconnected", sessionID)
	}
	gm.sessionManager.RemoveSession(sessionID)
	gm.inputBuffer.Drop(sessionID)
	RemovePlayer(gm.state, sessionID)
	delete(gm.lastFullSent, sessionID)

	// A running match cannot continue with fewer than two cycles. The lone
	// remaining player wins by forfeit; an empty arena ends as a draw.
	if gm.state.Phase == types.PhaseRunning && len(gm.state.Entities) <= 1 {
		gm.state.Phase = types.PhaseEnded
		gm.state.WinnerID = 0
		for id, e := range gm.state.Entities {
			if e.Alive {
				gm.state.WinnerID = id
			}
		}
	}
}

// broadcastState records this tick's snapshot and sends each session either
// a delta against its acked baseline or a periodic full snapshot.
func (gm *GameManager) broadcastState() error {
	full, err := gm.history.Record(gm.state)
	if err != nil {
		// A tick regression means the simulation state is corrupt.
		return err
	}

	var fullEncoded []byte
	deltaEncoded := make(map[uint64][]byte)

	for _, s := range gm.sessionManager.GetSessions() {
		ackTick := gm.sessionManager.AckedTick(s.ID)
		baseline, ok := gm.history.Get(ackTick)
		fullDue := full.Tick-gm.lastFullSent[s.ID] >= gm.params.FullSnapshotInterval

		var b []byte
		var kind string
		if ok && ackTick > 0 && !fullDue {
			kind = "delta"
			b = deltaEncoded[baseline.Tick]
			if b == nil {
				b, err = messages.Encode(BuildDelta(full, baseline))
				if err != nil {
					return fmt.Errorf("failed to encode snapshot delta: %v", err)
				}
				deltaEncoded[baseline.Tick] = b
			}
		} else {
			kind = "full"
			if fullEncoded == nil {
				fullEncoded, err = messages.Encode(full)
				if err != nil {
					return fmt.Errorf("failed to encode snapshot: %v", err)
				}
			}
			b = fullEncoded
			gm.lastFullSent[s.ID] = full.Tick
		}

		if err := gm.sessionManager.SendUnreliable(s, b); err != nil {
			log.Warn("Failed to send snapshot to session %d: %v", s.ID, err)
			continue
		}
		gm.metrics.SnapshotsSent.WithLabelValues(kind).Inc()
	}
	return nil
}

func (gm *GameManager) updateStatus() {
	gm.metrics.Sessions.Set(float64(gm.sessionManager.Count()))
	gm.metrics.EntitiesAlive.Set(float64(gm.state.AliveCount()))

	gm.statusLock.Lock()
	gm.status = Status{
		Tick:     gm.state.Tick,
		Phase:    gm.state.Phase.String(),
		Sessions: gm.sessionManager.Count(),
		Players:  len(gm.state.Entities),
		Alive:    gm.state.AliveCount(),
		Seed:     gm.seed,
	}
	gm.statusLock.Unlock()
}

// Status returns the latest end-of-tick summary. Safe from any goroutine.
func (gm *GameManager) Status() Status {
	gm.statusLock.RLock()
	defer gm.statusLock.RUnlock()
	return gm.status
}
