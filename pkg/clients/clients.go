package clients

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/voltgrid/voltgrid/pkg/log"
)

// MessageWriter is the reliable send side of a session, backed by a framed
// TCP connection or a websocket.
type MessageWriter interface {
	WriteMessage(b []byte) error
	Close() error
}

// Session is one connected client. Transports create it on handshake and the
// game loop reads and updates it afterwards, so mutable fields go through the
// manager's lock.
type Session struct {
	ID       uint32
	Token    uuid.UUID
	Name     string
	Conn     MessageWriter
	Limiter  *rate.Limiter
	Playing  bool
	UDPAddr  *net.UDPAddr
	AckTick  uint64
	SeenTick uint64
}

// ErrSessionNotFound is returned when a session id has no live session,
// typically because it already disconnected.
type ErrSessionNotFound struct {
	ID uint32
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session %d not found", e.ID)
}

const MaxSessions = 64

// SessionManager tracks connected sessions and owns the server's UDP socket
// for unreliable sends.
type SessionManager struct {
	lock        sync.RWMutex
	sessions    map[uint32]*Session
	nextID      uint32
	messageRate float64
	udpConn     *net.UDPConn
	currentTick atomic.Uint64
}

type NewSessionManagerOptions struct {
	// MessageRate caps inbound messages per second per session.
	MessageRate float64
}

func NewSessionManager(opts NewSessionManagerOptions) *SessionManager {
	return &SessionManager{
		sessions:    make(map[uint32]*Session),
		messageRate: opts.MessageRate,
	}
}

// SetUDPConn hands the manager the socket unreliable messages go out on.
func (m *SessionManager) SetUDPConn(conn *net.UDPConn) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.udpConn = conn
}

// SetCurrentTick is called by the game loop once per tick so transports can
// stamp session activity without reaching into the loop.
func (m *SessionManager) SetCurrentTick(tick uint64) {
	m.currentTick.Store(tick)
}

func (m *SessionManager) CurrentTick() uint64 {
	return m.currentTick.Load()
}

// AddSession registers a new session for a handshaken connection.
func (m *SessionManager) AddSession(conn MessageWriter, name string, playing bool) (*Session, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if len(m.sessions) >= MaxSessions {
		return nil, fmt.Errorf("server full: %d sessions", len(m.sessions))
	}

	m.nextID++
	s := &Session{
		ID:       m.nextID,
		Token:    uuid.New(),
		Name:     name,
		Conn:     conn,
		Limiter:  rate.NewLimiter(rate.Limit(m.messageRate), int(m.messageRate)),
		Playing:  playing,
		SeenTick: m.currentTick.Load(),
	}
	m.sessions[s.ID] = s
	return s, nil
}

// RemoveSession closes and forgets a session.
func (m *SessionManager) RemoveSession(id uint32) {
	m.lock.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.lock.Unlock()

	if ok && s.Conn != nil {
		if err := s.Conn.Close(); err != nil {
			log.Debug("Failed to close connection for session %d: %v", id, err)
		}
	}
}

func (m *SessionManager) GetSession(id uint32) (*Session, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &ErrSessionNotFound{ID: id}
	}
	return s, nil
}

func (m *SessionManager) Exists(id uint32) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.sessions[id]
	return ok
}

// GetSessions returns all sessions sorted by id.
func (m *SessionManager) GetSessions() []*Session {
	m.lock.RLock()
	defer m.lock.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *SessionManager) Count() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.sessions)
}

// PlayingIDs returns the ids of sessions that want a cycle, sorted.
func (m *SessionManager) PlayingIDs() []uint32 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	var out []uint32
	for id, s := range m.sessions {
		if s.Playing {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetPlaying flips a session between playing and observing.
func (m *SessionManager) SetPlaying(id uint32, playing bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return &ErrSessionNotFound{ID: id}
	}
	s.Playing = playing
	return nil
}

// SetUDPAddress records where a session's unreliable messages come from, and
// therefore where its snapshots go.
func (m *SessionManager) SetUDPAddress(id uint32, addr *net.UDPAddr) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return &ErrSessionNotFound{ID: id}
	}
	s.UDPAddr = addr
	return nil
}

// Touch marks a session as seen at the given tick.
func (m *SessionManager) Touch(id uint32, tick uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if tick > s.SeenTick {
		s.SeenTick = tick
	}
}

// Ack records the newest snapshot tick a session has confirmed receiving.
// Acks only move forward.
func (m *SessionManager) Ack(id uint32, tick uint64) {
	m.lock.Lock()
	defer m.lock.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if tick > s.AckTick {
		s.AckTick = tick
	}
}

// AckedTick returns the newest snapshot tick a session has acknowledged.
func (m *SessionManager) AckedTick(id uint32) uint64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return 0
	}
	return s.AckTick
}

// TimedOut returns sessions not seen for more than timeout ticks.
func (m *SessionManager) TimedOut(current, timeout uint64) []*Session {
	m.lock.RLock()
	defer m.lock.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if current > s.SeenTick && current-s.SeenTick > timeout {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SendReliable writes an encoded message on a session's ordered channel.
func (m *SessionManager) SendReliable(s *Session, b []byte) error {
	if s.Conn == nil {
		return &ErrSessionNotFound{ID: s.ID}
	}
	return s.Conn.WriteMessage(b)
}

// SendUnreliable writes an encoded message over UDP when the session has
// registered an address, falling back to the reliable channel so clients
// behind a broken UDP path still receive state.
func (m *SessionManager) SendUnreliable(s *Session, b []byte) error {
	m.lock.RLock()
	conn := m.udpConn
	addr := s.UDPAddr
	m.lock.RUnlock()

	if conn == nil || addr == nil {
		return m.SendReliable(s, b)
	}
	if _, err := conn.WriteToUDP(b, addr); err != nil {
		return fmt.Errorf("failed to write to %s: %v", addr, err)
	}
	return nil
}

// Broadcast sends an encoded message reliably to every session.
func (m *SessionManager) Broadcast(b []byte) {
	for _, s := range m.GetSessions() {
		if err := m.SendReliable(s, b); err != nil {
			log.Warn("Failed to send to session %d: %v", s.ID, err)
		}
	}
}
