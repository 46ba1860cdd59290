package messages

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/voltgrid/voltgrid/pkg/game/types"
)

// Encode frames a payload as [tag][version][payload bytes]. Snapshot
// payloads are zstd-compressed; everything else is small enough that
// compression would only add overhead.
func Encode(p Payload) ([]byte, error) {
	w := &writer{}
	w.uint8(uint8(p.Tag()))
	w.uint8(ProtocolVersion)

	switch m := p.(type) {
	case Hello:
		w.str(m.Name)
		w.bool(m.Observer)
	case *Hello:
		w.str(m.Name)
		w.bool(m.Observer)
	case Welcome:
		writeWelcome(w, &m)
	case *Welcome:
		writeWelcome(w, m)
	case Ping:
		w.uint32(m.PlayerID)
		w.uint64(m.AckTick)
	case *Ping:
		w.uint32(m.PlayerID)
		w.uint64(m.AckTick)
	case Pong:
		w.uint64(m.Tick)
	case *Pong:
		w.uint64(m.Tick)
	case Input:
		writeInput(w, &m)
	case *Input:
		writeInput(w, m)
	case SnapshotFull:
		return appendCompressed(w, encodeSnapshotFull(&m))
	case *SnapshotFull:
		return appendCompressed(w, encodeSnapshotFull(m))
	case SnapshotDelta:
		return appendCompressed(w, encodeSnapshotDelta(&m))
	case *SnapshotDelta:
		return appendCompressed(w, encodeSnapshotDelta(m))
	case CvarDelta:
		w.str(m.Name)
		w.str(m.Value)
	case *CvarDelta:
		w.str(m.Name)
		w.str(m.Value)
	case Chat:
		w.uint32(m.PlayerID)
		w.str(m.Text)
	case *Chat:
		w.uint32(m.PlayerID)
		w.str(m.Text)
	case Join, *Join, Observe, *Observe:
		// no payload
	default:
		return nil, fmt.Errorf("cannot encode message type %T", p)
	}

	return w.buf, nil
}

// Decode parses a framed message. It fails with ErrTruncated,
// ErrInvalidTag or ErrVersionMismatch; it never guesses at bytes.
func Decode(b []byte) (Payload, error) {
	if len(b) < 2 {
		return nil, &ErrTruncated{}
	}
	tag := Tag(b[0])
	if b[1] != ProtocolVersion {
		return nil, &ErrVersionMismatch{Got: b[1]}
	}
	payload := b[2:]

	switch tag {
	case TagHello:
		r := &reader{buf: payload}
		m := &Hello{}
		m.Name = r.str()
		m.Observer = r.bool()
		return m, r.finish()
	case TagWelcome:
		r := &reader{buf: payload}
		m := &Welcome{}
		m.PlayerID = r.uint32()
		copy(m.Token[:], r.bytes(16))
		m.CurrentTick = r.uint64()
		return m, r.finish()
	case TagPing:
		r := &reader{buf: payload}
		m := &Ping{}
		m.PlayerID = r.uint32()
		m.AckTick = r.uint64()
		return m, r.finish()
	case TagPong:
		r := &reader{buf: payload}
		m := &Pong{}
		m.Tick = r.uint64()
		return m, r.finish()
	case TagInput:
		r := &reader{buf: payload}
		m := &Input{}
		m.Cmd.PlayerID = r.uint32()
		m.Cmd.Tick = r.uint64()
		m.Cmd.Turn = types.Turn(r.uint8())
		flags := r.uint8()
		m.Cmd.Brake = flags&1 != 0
		m.Cmd.Boost = flags&2 != 0
		m.AckTick = r.uint64()
		if err := r.finish(); err != nil {
			return nil, err
		}
		if m.Cmd.Turn > types.TurnRight {
			return nil, fmt.Errorf("input command has invalid turn %d", m.Cmd.Turn)
		}
		return m, nil
	case TagSnapshotFull:
		raw, err := decompress(payload)
		if err != nil {
			return nil, err
		}
		return decodeSnapshotFull(raw)
	case TagSnapshotDelta:
		raw, err := decompress(payload)
		if err != nil {
			return nil, err
		}
		return decodeSnapshotDelta(raw)
	case TagCvarDelta:
		r := &reader{buf: payload}
		m := &CvarDelta{}
		m.Name = r.str()
		m.Value = r.str()
		return m, r.finish()
	case TagChat:
		r := &reader{buf: payload}
		m := &Chat{}
		m.PlayerID = r.uint32()
		m.Text = r.str()
		return m, r.finish()
	case TagJoin:
		return &Join{}, nil
	case TagObserve:
		return &Observe{}, nil
	default:
		return nil, &ErrInvalidTag{Tag: uint8(tag)}
	}
}

func writeWelcome(w *writer, m *Welcome) {
	w.uint32(m.PlayerID)
	w.raw(m.Token[:])
	w.uint64(m.CurrentTick)
}

func writeInput(w *writer, m *Input) {
	w.uint32(m.Cmd.PlayerID)
	w.uint64(m.Cmd.Tick)
	w.uint8(uint8(m.Cmd.Turn))
	var flags uint8
	if m.Cmd.Brake {
		flags |= 1
	}
	if m.Cmd.Boost {
		flags |= 2
	}
	w.uint8(flags)
	w.uint64(m.AckTick)
}

func encodeSnapshotFull(m *SnapshotFull) []byte {
	w := &writer{}
	w.uint64(m.Tick)
	w.uint8(uint8(m.Phase))
	w.uint32(m.WinnerID)
	w.uvarint(uint64(len(m.Entities)))
	for i := range m.Entities {
		writeEntity(w, &m.Entities[i])
	}
	return w.buf
}

func decodeSnapshotFull(b []byte) (*SnapshotFull, error) {
	r := &reader{buf: b}
	m := &SnapshotFull{}
	m.Tick = r.uint64()
	m.Phase = types.Phase(r.uint8())
	m.WinnerID = r.uint32()
	n := r.uvarint()
	if err := r.finish(); err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		e, err := readEntity(r)
		if err != nil {
			return nil, err
		}
		m.Entities = append(m.Entities, e)
	}
	return m, r.finish()
}

func encodeSnapshotDelta(m *SnapshotDelta) []byte {
	w := &writer{}
	w.uint64(m.Tick)
	w.uint64(m.BaselineTick)
	w.uint8(uint8(m.Phase))
	w.uint32(m.WinnerID)
	w.uvarint(uint64(len(m.Changed)))
	for i := range m.Changed {
		writeEntity(w, &m.Changed[i])
	}
	w.uvarint(uint64(len(m.Removed)))
	for _, id := range m.Removed {
		w.uint32(id)
	}
	return w.buf
}

func decodeSnapshotDelta(b []byte) (*SnapshotDelta, error) {
	r := &reader{buf: b}
	m := &SnapshotDelta{}
	m.Tick = r.uint64()
	m.BaselineTick = r.uint64()
	m.Phase = types.Phase(r.uint8())
	m.WinnerID = r.uint32()
	n := r.uvarint()
	if err := r.finish(); err != nil {
		return nil, err
	}
	for i := uint64(0); i < n; i++ {
		e, err := readEntity(r)
		if err != nil {
			return nil, err
		}
		m.Changed = append(m.Changed, e)
	}
	rn := r.uvarint()
	for i := uint64(0); i < rn; i++ {
		m.Removed = append(m.Removed, r.uint32())
	}
	return m, r.finish()
}

func writeEntity(w *writer, e *types.EntityState) {
	w.uint32(e.PlayerID)
	w.float64(e.Position.X)
	w.float64(e.Position.Y)
	w.uint8(uint8(e.Dir))
	w.float64(e.Speed)
	w.bool(e.Alive)
	w.uvarint(uint64(len(e.Trail)))
	for _, p := range e.Trail {
		w.float64(p.X)
		w.float64(p.Y)
	}
}

// readEntity decodes one entity. Slices are length-prefixed and carry no
// nil/empty distinction on the wire, so an empty trail decodes to nil; the
// same normalization applies to the snapshot entity lists above.
func readEntity(r *reader) (types.EntityState, error) {
	var e types.EntityState
	e.PlayerID = r.uint32()
	e.Position.X = r.float64()
	e.Position.Y = r.float64()
	e.Dir = types.Direction(r.uint8())
	e.Speed = r.float64()
	e.Alive = r.bool()
	n := r.uvarint()
	if err := r.finish(); err != nil {
		return e, err
	}
	for i := uint64(0); i < n; i++ {
		var p types.Vec2
		p.X = r.float64()
		p.Y = r.float64()
		if err := r.finish(); err != nil {
			return e, err
		}
		e.Trail = append(e.Trail, p)
	}
	return e, nil
}

func appendCompressed(w *writer, payload []byte) ([]byte, error) {
	compressed := bytes.NewBuffer(nil)
	compWriter, err := zstd.NewWriter(compressed, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %v", err)
	}
	if _, err := compWriter.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress payload: %v", err)
	}
	if err := compWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %v", err)
	}
	w.raw(compressed.Bytes())
	return w.buf, nil
}

func decompress(payload []byte) ([]byte, error) {
	compReader, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &ErrTruncated{}
	}
	defer compReader.Close()
	raw, err := io.ReadAll(compReader)
	if err != nil {
		return nil, &ErrTruncated{}
	}
	return raw, nil
}

// writer appends little-endian primitives to a buffer.
type writer struct {
	buf []byte
}

func (w *writer) uint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *writer) bool(v bool) {
	if v {
		w.uint8(1)
	} else {
		w.uint8(0)
	}
}

func (w *writer) uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) float64(v float64) {
	w.uint64(math.Float64bits(v))
}

func (w *writer) uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *writer) str(s string) {
	w.uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// reader consumes little-endian primitives from a buffer. The first short
// read poisons the reader; finish surfaces it as ErrTruncated.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) finish() error {
	return r.err
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = &ErrTruncated{}
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool {
	return r.uint8() != 0
}

func (r *reader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) float64() float64 {
	return math.Float64frombits(r.uint64())
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		r.err = &ErrTruncated{}
		return 0
	}
	r.off += n
	return v
}

func (r *reader) bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return make([]byte, n)
	}
	return b
}

func (r *reader) str() string {
	n := r.uvarint()
	if r.err != nil {
		return ""
	}
	if n > uint64(len(r.buf)-r.off) {
		r.err = &ErrTruncated{}
		return ""
	}
	return string(r.take(int(n)))
}
