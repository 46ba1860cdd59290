package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/voltgrid/voltgrid/pkg/game/types"
	"github.com/voltgrid/voltgrid/pkg/log"
	"github.com/voltgrid/voltgrid/pkg/messages"
	"github.com/voltgrid/voltgrid/pkg/queue"
)

const (
	dialTimeout      = 5 * time.Second
	handshakeTimeout = 10 * time.Second
	pingInterval     = 500 * time.Millisecond
)

// Manager owns the client's two connections to the server: framed TCP for
// reliable messages and UDP for inputs, pings, and inbound snapshots.
// Everything the server sends lands on the message queue for the game to
// drain once per frame.
type Manager struct {
	tcpAddr      string
	udpAddr      string
	messageQueue queue.Queue

	lock      sync.RWMutex
	connected bool
	tcpConn   net.Conn
	udpConn   *net.UDPConn
	playerID  uint32
	token     uuid.UUID
	cancel    context.CancelFunc

	ackTick    atomic.Uint64
	serverTick atomic.Uint64
	writeLock  sync.Mutex
}

type NewManagerOptions struct {
	// TCPAddr and UDPAddr are host:port for the server's two listeners.
	TCPAddr      string
	UDPAddr      string
	MessageQueue queue.Queue
}

func NewManager(opts NewManagerOptions) *Manager {
	return &Manager{
		tcpAddr:      opts.TCPAddr,
		udpAddr:      opts.UDPAddr,
		messageQueue: opts.MessageQueue,
	}
}

// Connect dials the server and completes the hello/welcome handshake. On
// return the manager knows its assigned player id and the reader and ping
// goroutines are running.
func (m *Manager) Connect(ctx context.Context, name string, observer bool) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.connected {
		return fmt.Errorf("already connected")
	}

	tcpConn, err := net.DialTimeout("tcp", m.tcpAddr, dialTimeout)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return &ErrTimeout{}
		}
		return &ErrRefused{Err: err}
	}

	welcome, err := m.handshake(tcpConn, name, observer)
	if err != nil {
		tcpConn.Close()
		return err
	}

	udpRemote, err := net.ResolveUDPAddr("udp", m.udpAddr)
	if err != nil {
		tcpConn.Close()
		return fmt.Errorf("failed to resolve udp address: %v", err)
	}
	udpConn, err := net.DialUDP("udp", nil, udpRemote)
	if err != nil {
		tcpConn.Close()
		return &ErrRefused{Err: err}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.connected = true
	m.tcpConn = tcpConn
	m.udpConn = udpConn
	m.playerID = welcome.PlayerID
	m.token = welcome.Token
	m.cancel = cancel
	m.serverTick.Store(welcome.CurrentTick)

	go m.readTCP(loopCtx, tcpConn)
	go m.readUDP(loopCtx, udpConn)
	go m.pingLoop(loopCtx)

	log.Info("Connected to %s as player %d", m.tcpAddr, welcome.PlayerID)
	return nil
}

func (m *Manager) handshake(conn net.Conn, name string, observer bool) (*messages.Welcome, error) {
	hello, err := messages.Encode(&messages.Hello{Name: name, Observer: observer})
	if err != nil {
		return nil, fmt.Errorf("failed to encode hello: %v", err)
	}
	if err := writeFramed(conn, hello); err != nil {
		return nil, &ErrRefused{Err: err}
	}

	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %v", err)
	}
	b, err := readFramed(conn)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, &ErrTimeout{}
		}
		return nil, &ErrRefused{Err: err}
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("failed to clear deadline: %v", err)
	}

	payload, err := messages.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("failed to decode welcome: %v", err)
	}
	welcome, ok := payload.(*messages.Welcome)
	if !ok {
		return nil, fmt.Errorf("expected welcome, got %s", payload.Tag())
	}
	return welcome, nil
}

// Disconnect tears down both connections and stops the loops. Safe to call
// when not connected.
func (m *Manager) Disconnect() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.connected {
		return
	}
	m.connected = false
	m.cancel()
	m.tcpConn.Close()
	m.udpConn.Close()
	log.Info("Disconnected from %s", m.tcpAddr)
}

func (m *Manager) IsConnected() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.connected
}

// PlayerID returns the id the server assigned in its welcome.
func (m *Manager) PlayerID() uint32 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.playerID
}

// ServerTick returns the newest tick heard from the server, from the
// welcome or the latest pong.
func (m *Manager) ServerTick() uint64 {
	return m.serverTick.Load()
}

// SetAckTick records the newest snapshot tick the client has applied; pings
// carry it back to the server as the delta baseline ack.
func (m *Manager) SetAckTick(tick uint64) {
	for {
		cur := m.ackTick.Load()
		if tick <= cur || m.ackTick.CompareAndSwap(cur, tick) {
			return
		}
	}
}

// SendReliable encodes and sends a payload on the TCP connection.
func (m *Manager) SendReliable(p messages.Payload) error {
	m.lock.RLock()
	conn := m.tcpConn
	connected := m.connected
	m.lock.RUnlock()
	if !connected {
		return &ErrConnectionClosed{}
	}
	b, err := messages.Encode(p)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %v", p.Tag(), err)
	}
	m.writeLock.Lock()
	defer m.writeLock.Unlock()
	return writeFramed(conn, b)
}

// SendInput sends an input command over UDP, piggybacking the snapshot ack.
func (m *Manager) SendInput(cmd types.InputCommand) error {
	return m.sendUnreliable(&messages.Input{Cmd: cmd, AckTick: m.ackTick.Load()})
}

func (m *Manager) sendUnreliable(p messages.Payload) error {
	m.lock.RLock()
	conn := m.udpConn
	connected := m.connected
	m.lock.RUnlock()
	if !connected {
		return &ErrConnectionClosed{}
	}
	b, err := messages.Encode(p)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %v", p.Tag(), err)
	}
	_, err = conn.Write(b)
	return err
}

func (m *Manager) readTCP(ctx context.Context, conn net.Conn) {
	for {
		b, err := readFramed(conn)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("TCP read loop ended: %v", err)
			}
			return
		}
		m.enqueue(b)
	}
}

func (m *Manager) readUDP(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, messages.MessageBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("UDP read loop ended: %v", err)
			}
			return
		}
		b := make([]byte, n)
		copy(b, buf[:n])
		m.enqueue(b)
	}
}

func (m *Manager) enqueue(b []byte) {
	payload, err := messages.Decode(b)
	if err != nil {
		log.Warn("Failed to decode server message: %v", err)
		return
	}
	if pong, ok := payload.(*messages.Pong); ok {
		if tick := pong.Tick; tick > m.serverTick.Load() {
			m.serverTick.Store(tick)
		}
		return
	}
	if err := m.messageQueue.Enqueue(payload); err != nil {
		log.Warn("Failed to enqueue server message: %v", err)
	}
}

// pingLoop keeps the session alive and the server's view of our snapshot
// ack fresh even when no inputs are flowing.
func (m *Manager) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping := &messages.Ping{PlayerID: m.PlayerID(), AckTick: m.ackTick.Load()}
			if err := m.sendUnreliable(ping); err != nil {
				log.Debug("Failed to send ping: %v", err)
			}
		}
	}
}

// The framed stream protocol: a 4-byte little-endian length before each
// message, matching the server's TCP transport.

func writeFramed(conn net.Conn, b []byte) error {
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(b)))
	if _, err := conn.Write(header[:]); err != nil {
		return err
	}
	_, err := conn.Write(b)
	return err
}

func readFramed(conn net.Conn) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > messages.MessageBufferSize {
		return nil, fmt.Errorf("message length %d exceeds limit", length)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(conn, b); err != nil {
		return nil, err
	}
	return b, nil
}
