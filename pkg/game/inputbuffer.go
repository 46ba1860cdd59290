package game

import (
	"fmt"
	"sort"

	"github.com/voltgrid/voltgrid/pkg/game/types"
)

// ErrLateInput means a command targeted a tick too far in the past to be
// rescheduled. The command is dropped.
type ErrLateInput struct {
	PlayerID uint32
	Tick     uint64
	Current  uint64
}

func (e *ErrLateInput) Error() string {
	return fmt.Sprintf("input from player %d for tick %d arrived at tick %d", e.PlayerID, e.Tick, e.Current)
}

// InputBuffer holds commands until the tick they target. Out-of-order
// arrivals are released in tick order; a command for a tick that has already
// run is shifted to the next tick if it is within the lateness tolerance, or
// dropped if not. At most one command per player per tick survives, last
// write wins.
type InputBuffer struct {
	pending map[uint32]map[uint64]types.InputCommand
}

func NewInputBuffer() *InputBuffer {
	return &InputBuffer{
		pending: make(map[uint32]map[uint64]types.InputCommand),
	}
}

// Put buffers cmd. currentTick is the last tick the simulation has completed.
func (b *InputBuffer) Put(cmd types.InputCommand, currentTick, tolerance uint64) error {
	target := cmd.Tick
	if target <= currentTick {
		if currentTick+1-target > tolerance {
			return &ErrLateInput{PlayerID: cmd.PlayerID, Tick: cmd.Tick, Current: currentTick}
		}
		target = currentTick + 1
	}

	byTick, ok := b.pending[cmd.PlayerID]
	if !ok {
		byTick = make(map[uint64]types.InputCommand)
		b.pending[cmd.PlayerID] = byTick
	}
	byTick[target] = cmd
	return nil
}

// Take removes and returns every command targeting the given tick, sorted by
// player id. Commands buffered for earlier ticks are discarded; their window
// has passed.
func (b *InputBuffer) Take(tick uint64) []types.InputCommand {
	var out []types.InputCommand
	for id, byTick := range b.pending {
		for t, cmd := range byTick {
			if t < tick {
				delete(byTick, t)
				continue
			}
			if t == tick {
				out = append(out, cmd)
				delete(byTick, t)
			}
		}
		if len(byTick) == 0 {
			delete(b.pending, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// Drop discards everything buffered for a player.
func (b *InputBuffer) Drop(playerID uint32) {
	delete(b.pending, playerID)
}

// Pending reports how many commands are buffered for a player.
func (b *InputBuffer) Pending(playerID uint32) int {
	return len(b.pending[playerID])
}
