package cvars

// Cvar names used across the engine. Declared here so the simulation, the
// console and the command line agree on spelling.
const (
	// Gameplay (replicated)
	GCycleSpeed    = "g_cycle_speed"
	GCycleSize     = "g_cycle_size"
	GTrailWidth    = "g_trail_width"
	GBoostFactor   = "g_boost_factor"
	GBrakeFactor   = "g_brake_factor"
	GArenaHalfSize = "g_arena_half_size"
	GMinPlayers    = "g_min_players"

	// Server administration + performance
	SvTickRate             = "sv_tick_rate"
	SvInputToleranceTicks  = "sv_input_tolerance_ticks"
	SvTimeoutTicks         = "sv_timeout_ticks"
	SvSnapshotHistory      = "sv_snapshot_history"
	SvFullSnapshotInterval = "sv_full_snapshot_interval"
	SvMessageRate          = "sv_message_rate"

	// Client
	ClInterpolationOffsetTicks = "cl_interpolation_offset_ticks"
	ClPredict                  = "cl_predict"

	// Debug
	DDbg               = "d_dbg"
	DExitAfterOneFrame = "d_exit_after_one_frame"
)

// RegisterDefaults registers every engine cvar with its default value,
// range and replication flag. Called once per process before the tick loop
// starts.
func RegisterDefaults(r *Registry) error {
	type entry struct {
		name string
		def  interface{}
		opts []RegisterOption
	}

	entries := []entry{
		{GCycleSpeed, 120.0, []RegisterOption{WithRange(1, 10000), Replicated()}},
		{GCycleSize, 4.0, []RegisterOption{WithRange(0.5, 64), Replicated()}},
		{GTrailWidth, 2.0, []RegisterOption{WithRange(0.5, 64), Replicated()}},
		{GBoostFactor, 1.6, []RegisterOption{WithRange(1, 10), Replicated()}},
		{GBrakeFactor, 0.5, []RegisterOption{WithRange(0.1, 1), Replicated()}},
		{GArenaHalfSize, 400.0, []RegisterOption{WithRange(16, 100000), Replicated()}},
		{GMinPlayers, 2, []RegisterOption{WithRange(1, 64), Replicated()}},

		{SvTickRate, 60, []RegisterOption{WithRange(1, 240), Replicated()}},
		{SvInputToleranceTicks, 3, []RegisterOption{WithRange(0, 600)}},
		{SvTimeoutTicks, 300, []RegisterOption{WithRange(1, 100000)}},
		{SvSnapshotHistory, 64, []RegisterOption{WithRange(2, 1024)}},
		{SvFullSnapshotInterval, 30, []RegisterOption{WithRange(1, 1000)}},
		{SvMessageRate, 240.0, []RegisterOption{WithRange(1, 100000)}},

		{ClInterpolationOffsetTicks, 6, []RegisterOption{WithRange(0, 60)}},
		{ClPredict, true, nil},

		// "Temporary" cvar for quick testing, kept registered so a quick
		// toggle never requires adding a new one.
		{DDbg, false, nil},
		{DExitAfterOneFrame, false, nil},
	}

	for _, e := range entries {
		if err := r.Register(e.name, e.def, e.opts...); err != nil {
			return err
		}
	}
	return nil
}
