package game

import (
	"github.com/voltgrid/voltgrid/pkg/cvars"
	"github.com/voltgrid/voltgrid/pkg/log"
)

// Params is one tick's worth of simulation tuning, read from the cvar
// registry at the tick boundary. The simulation only ever sees a Params
// value, never the registry, so a cvar can't change mid-tick.
type Params struct {
	TickRate      int64
	CycleSpeed    float64
	CycleSize     float64
	TrailWidth    float64
	BoostFactor   float64
	BrakeFactor   float64
	ArenaHalfSize float64
	MinPlayers    int64

	InputToleranceTicks  uint64
	TimeoutTicks         uint64
	SnapshotHistory      int64
	FullSnapshotInterval uint64
}

// Dt returns the fixed timestep in seconds.
func (p Params) Dt() float64 {
	return 1.0 / float64(p.TickRate)
}

// DefaultParams returns the compiled-in defaults, used as the fallback
// before the first successful registry read.
func DefaultParams() Params {
	return Params{
		TickRate:             60,
		CycleSpeed:           120,
		CycleSize:            4,
		TrailWidth:           2,
		BoostFactor:          1.6,
		BrakeFactor:          0.5,
		ArenaHalfSize:        400,
		MinPlayers:           2,
		InputToleranceTicks:  3,
		TimeoutTicks:         300,
		SnapshotHistory:      64,
		FullSnapshotInterval: 30,
	}
}

// ParamsFromRegistry reads the tick's Params. A cvar that fails to read
// keeps its value from prev, so a registry problem degrades to stale
// tuning instead of corrupting the tick.
func ParamsFromRegistry(r *cvars.Registry, prev Params) Params {
	p := prev

	readInt := func(name string, dst *int64) {
		v, err := r.GetInt(name)
		if err != nil {
			log.Warn("Failed to read cvar %s, keeping %d: %v", name, *dst, err)
			return
		}
		*dst = v
	}
	readFloat := func(name string, dst *float64) {
		v, err := r.GetFloat(name)
		if err != nil {
			log.Warn("Failed to read cvar %s, keeping %v: %v", name, *dst, err)
			return
		}
		*dst = v
	}
	readUint := func(name string, dst *uint64) {
		v, err := r.GetInt(name)
		if err != nil {
			log.Warn("Failed to read cvar %s, keeping %d: %v", name, *dst, err)
			return
		}
		*dst = uint64(v)
	}

	readInt(cvars.SvTickRate, &p.TickRate)
	readFloat(cvars.GCycleSpeed, &p.CycleSpeed)
	readFloat(cvars.GCycleSize, &p.CycleSize)
	readFloat(cvars.GTrailWidth, &p.TrailWidth)
	readFloat(cvars.GBoostFactor, &p.BoostFactor)
	readFloat(cvars.GBrakeFactor, &p.BrakeFactor)
	readFloat(cvars.GArenaHalfSize, &p.ArenaHalfSize)
	readInt(cvars.GMinPlayers, &p.MinPlayers)
	readUint(cvars.SvInputToleranceTicks, &p.InputToleranceTicks)
	readUint(cvars.SvTimeoutTicks, &p.TimeoutTicks)
	readInt(cvars.SvSnapshotHistory, &p.SnapshotHistory)
	readUint(cvars.SvFullSnapshotInterval, &p.FullSnapshotInterval)

	return p
}
