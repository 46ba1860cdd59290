package types

// ConnectPlayerEvent is enqueued by the session layer when a handshake
// completes and drained by the game loop at the next tick boundary.
type ConnectPlayerEvent struct {
	SessionID uint32
	Name      string
}

// DisconnectPlayerEvent is enqueued when a session closes or times out.
type DisconnectPlayerEvent struct {
	SessionID uint32
	TimedOut  bool
}

// JoinPlayerEvent marks an observing session as wanting to play from the
// next match start.
type JoinPlayerEvent struct {
	SessionID uint32
}

// ObservePlayerEvent marks a session as observing; its cycle is removed
// at the next match reset.
type ObservePlayerEvent struct {
	SessionID uint32
}
