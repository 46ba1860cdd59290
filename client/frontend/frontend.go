package frontend

import (
	"github.com/voltgrid/voltgrid/pkg/game/types"
	"github.com/voltgrid/voltgrid/pkg/log"
)

// Intent is what the local player wants this frame.
type Intent struct {
	Turn  types.Turn
	Brake bool
	Boost bool
}

// View is everything a frontend needs to draw one frame. Entities are
// already smoothed: the local cycle is the predicted one, remote cycles are
// interpolated toward the past.
type View struct {
	Tick          uint64
	Phase         types.Phase
	WinnerID      uint32
	LocalPlayerID uint32
	Entities      []types.EntityState
}

// Frontend is the presentation half of the client. The engine calls it once
// per frame and never blocks on it.
type Frontend interface {
	PollIntent() Intent
	Render(view *View)
	Print(line string)
}

// Headless is a frontend that draws nothing. It backs the -headless flag
// and engine tests; it remembers the last view so a host can inspect it.
type Headless struct {
	frames   uint64
	lastView *View
}

func NewHeadless() *Headless {
	return &Headless{}
}

func (h *Headless) PollIntent() Intent {
	return Intent{}
}

func (h *Headless) Render(view *View) {
	h.frames++
	h.lastView = view
}

func (h *Headless) Print(line string) {
	log.Info("%s", line)
}

// Frames reports how many views have been rendered.
func (h *Headless) Frames() uint64 {
	return h.frames
}

// LastView returns the most recently rendered view, or nil.
func (h *Headless) LastView() *View {
	return h.lastView
}
