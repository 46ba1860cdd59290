package messages

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voltgrid/voltgrid/pkg/game/types"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Payload
	}{
		{
			name: "hello",
			msg:  &Hello{Name: "rider-1", Observer: false},
		},
		{
			name: "welcome",
			msg: &Welcome{
				PlayerID:    7,
				Token:       uuid.MustParse("9b7dfa12-6b62-4e1e-8a6f-2f41c1f2b111"),
				CurrentTick: 1234,
			},
		},
		{
			name: "ping",
			msg:  &Ping{PlayerID: 3, AckTick: 99},
		},
		{
			name: "pong",
			msg:  &Pong{Tick: 100},
		},
		{
			name: "input",
			msg: &Input{
				Cmd: types.InputCommand{
					PlayerID: 2,
					Tick:     100,
					Turn:     types.TurnLeft,
					Brake:    true,
					Boost:    false,
				},
				AckTick: 95,
			},
		},
		{
			name: "snapshot full",
			msg: &SnapshotFull{
				Tick:     456,
				Phase:    types.PhaseRunning,
				WinnerID: 0,
				Entities: []types.EntityState{
					{
						PlayerID: 1,
						Position: types.Vec2{X: 12.5, Y: -3.25},
						Dir:      types.East,
						Speed:    120,
						Alive:    true,
						Trail:    []types.Vec2{{X: 0, Y: 0}, {X: 12.5, Y: 0}},
					},
					{
						PlayerID: 2,
						Position: types.Vec2{X: -40, Y: 80},
						Dir:      types.South,
						Speed:    120,
						Alive:    false,
						Trail:    []types.Vec2{{X: -40, Y: 100}},
					},
				},
			},
		},
		{
			name: "snapshot delta",
			msg: &SnapshotDelta{
				Tick:         460,
				BaselineTick: 456,
				Phase:        types.PhaseRunning,
				Changed: []types.EntityState{
					{
						PlayerID: 1,
						Position: types.Vec2{X: 20.5, Y: -3.25},
						Dir:      types.East,
						Speed:    120,
						Alive:    true,
						Trail:    []types.Vec2{{X: 0, Y: 0}},
					},
				},
				Removed: []uint32{2},
			},
		},
		{
			name: "cvar delta",
			msg:  &CvarDelta{Name: "g_cycle_speed", Value: "150"},
		},
		{
			name: "chat",
			msg:  &Chat{PlayerID: 4, Text: "gg"},
		},
		{
			name: "join",
			msg:  &Join{},
		},
		{
			name: "observe",
			msg:  &Observe{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.msg)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(b), 2)
			assert.Equal(t, uint8(tt.msg.Tag()), b[0])
			assert.Equal(t, ProtocolVersion, b[1])

			decoded, err := Decode(b)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
		})
	}
}

func TestDecode_Truncated(t *testing.T) {
	_, err := Decode(nil)
	assert.IsType(t, &ErrTruncated{}, err)

	_, err = Decode([]byte{byte(TagWelcome)})
	assert.IsType(t, &ErrTruncated{}, err)

	// A welcome payload cut short mid-field.
	full, err := Encode(&Welcome{PlayerID: 1, CurrentTick: 50})
	require.NoError(t, err)
	_, err = Decode(full[:len(full)-3])
	assert.IsType(t, &ErrTruncated{}, err)

	// A snapshot whose compressed payload is mangled.
	snap, err := Encode(&SnapshotFull{Tick: 1})
	require.NoError(t, err)
	snap = snap[:len(snap)-2]
	_, err = Decode(snap)
	assert.IsType(t, &ErrTruncated{}, err)
}

func TestDecode_InvalidTag(t *testing.T) {
	_, err := Decode([]byte{0xEE, ProtocolVersion})
	require.Error(t, err)
	invalidTag, ok := err.(*ErrInvalidTag)
	require.True(t, ok)
	assert.Equal(t, uint8(0xEE), invalidTag.Tag)
}

func TestDecode_VersionMismatch(t *testing.T) {
	b, err := Encode(&Pong{Tick: 1})
	require.NoError(t, err)
	b[1] = ProtocolVersion + 1

	_, err = Decode(b)
	require.Error(t, err)
	mismatch, ok := err.(*ErrVersionMismatch)
	require.True(t, ok)
	assert.Equal(t, ProtocolVersion+1, mismatch.Got)
}

func TestDecode_InputInvalidTurn(t *testing.T) {
	b, err := Encode(&Input{Cmd: types.InputCommand{PlayerID: 1, Tick: 5}})
	require.NoError(t, err)
	// The turn byte sits after tag, version, player id and tick.
	b[2+4+8] = 0x7F
	_, err = Decode(b)
	assert.Error(t, err)
}

func TestDecode_EmptySlicesNormalizeToNil(t *testing.T) {
	// The wire format length-prefixes slices, so it cannot preserve the
	// difference between nil and non-nil empty. Decoding always yields
	// nil for empty, matching what the engine produces for dead cycles.
	snap := &SnapshotFull{
		Tick:     9,
		Entities: []types.EntityState{{PlayerID: 1, Trail: []types.Vec2{}}},
	}
	b, err := Encode(snap)
	require.NoError(t, err)
	decoded, err := Decode(b)
	require.NoError(t, err)
	assert.Nil(t, decoded.(*SnapshotFull).Entities[0].Trail)

	empty := &SnapshotFull{Tick: 10, Entities: []types.EntityState{}}
	b, err = Encode(empty)
	require.NoError(t, err)
	decoded, err = Decode(b)
	require.NoError(t, err)
	assert.Nil(t, decoded.(*SnapshotFull).Entities)
}

func TestEncode_SnapshotCompresses(t *testing.T) {
	// A long straight trail is highly compressible; the framed message
	// should come out smaller than the raw payload it carries.
	trail := make([]types.Vec2, 512)
	for i := range trail {
		trail[i] = types.Vec2{X: float64(i), Y: 0}
	}
	snap := &SnapshotFull{
		Tick: 1,
		Entities: []types.EntityState{
			{PlayerID: 1, Alive: true, Trail: trail},
		},
	}

	b, err := Encode(snap)
	require.NoError(t, err)
	assert.Less(t, len(b), len(trail)*16)

	decoded, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}
