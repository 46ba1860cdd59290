// Package messages defines the wire protocol: a compact, versioned binary
// framing where every message is [type tag][schema version][payload].
// Decoding rejects unknown tags and foreign versions instead of guessing
// at bytes.
package messages

import (
	"github.com/google/uuid"
	"github.com/voltgrid/voltgrid/pkg/game/types"
)

const (
	// ProtocolVersion is the schema version stamped into every message.
	// Bump on any wire-incompatible change.
	ProtocolVersion uint8 = 1

	// MessageBufferSize is the read buffer for a single datagram or frame.
	MessageBufferSize = 65536
)

// Tag identifies a message kind on the wire.
type Tag uint8

const (
	TagHello Tag = iota + 1
	TagWelcome
	TagPing
	TagPong
	TagInput
	TagSnapshotFull
	TagSnapshotDelta
	TagCvarDelta
	TagChat
	TagJoin
	TagObserve
)

func (t Tag) String() string {
	switch t {
	case TagHello:
		return "hello"
	case TagWelcome:
		return "welcome"
	case TagPing:
		return "ping"
	case TagPong:
		return "pong"
	case TagInput:
		return "input"
	case TagSnapshotFull:
		return "snapshot-full"
	case TagSnapshotDelta:
		return "snapshot-delta"
	case TagCvarDelta:
		return "cvar-delta"
	case TagChat:
		return "chat"
	case TagJoin:
		return "join"
	case TagObserve:
		return "observe"
	default:
		return "unknown"
	}
}

// Payload is any message that can be framed by Encode.
type Payload interface {
	Tag() Tag
}

// Hello is the first message a client sends on its reliable channel.
type Hello struct {
	Name     string
	Observer bool
}

func (Hello) Tag() Tag { return TagHello }

// Welcome is the server's handshake response carrying the assigned
// player id and session token.
type Welcome struct {
	PlayerID    uint32
	Token       uuid.UUID
	CurrentTick uint64
}

func (Welcome) Tag() Tag { return TagWelcome }

// Ping is a client keepalive on the unreliable channel. It registers the
// client's datagram address with the server and carries the latest
// snapshot tick the client has applied.
type Ping struct {
	PlayerID uint32
	AckTick  uint64
}

func (Ping) Tag() Tag { return TagPing }

// Pong is the server's reply to a Ping.
type Pong struct {
	Tick uint64
}

func (Pong) Tag() Tag { return TagPong }

// Input carries one InputCommand plus the client's snapshot ack.
type Input struct {
	Cmd     types.InputCommand
	AckTick uint64
}

func (Input) Tag() Tag { return TagInput }

// SnapshotFull is a self-contained serialization of every entity at one
// tick; it reconstructs state without any prior history.
type SnapshotFull struct {
	Tick     uint64
	Phase    types.Phase
	WinnerID uint32
	Entities []types.EntityState
}

func (SnapshotFull) Tag() Tag { return TagSnapshotFull }

// SnapshotDelta carries only entities that changed since BaselineTick,
// plus the ids removed since then. It is only decodable against a state
// the receiver still holds for BaselineTick.
type SnapshotDelta struct {
	Tick         uint64
	BaselineTick uint64
	Phase        types.Phase
	WinnerID     uint32
	Changed      []types.EntityState
	Removed      []uint32
}

func (SnapshotDelta) Tag() Tag { return TagSnapshotDelta }

// CvarDelta propagates a single cvar mutation. Server to client it is
// authoritative tuning; client to server it is a set request subject to
// validation.
type CvarDelta struct {
	Name  string
	Value string
}

func (CvarDelta) Tag() Tag { return TagCvarDelta }

// Chat is a text line relayed by the server to all sessions.
type Chat struct {
	PlayerID uint32
	Text     string
}

func (Chat) Tag() Tag { return TagChat }

// Join asks the server to field a cycle for this session at the next
// match start.
type Join struct{}

func (Join) Tag() Tag { return TagJoin }

// Observe asks the server to treat this session as a spectator.
type Observe struct{}

func (Observe) Tag() Tag { return TagObserve }
