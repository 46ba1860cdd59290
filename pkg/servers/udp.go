package servers

import (
	"context"
	"fmt"
	"net"

	"github.com/voltgrid/voltgrid/pkg/clients"
	"github.com/voltgrid/voltgrid/pkg/log"
	"github.com/voltgrid/voltgrid/pkg/messages"
	"github.com/voltgrid/voltgrid/pkg/queue"
)

// UDPServer receives the high-rate unreliable traffic: pings that register a
// session's return address and input commands. Snapshots go back out on the
// same socket via the session manager.
type UDPServer struct {
	sessionManager *clients.SessionManager
	messageQueue   queue.Queue
	port           int
}

type NewUDPServerOptions struct {
	SessionManager *clients.SessionManager
	MessageQueue   queue.Queue
	Port           int
}

func NewUDPServer(opts NewUDPServerOptions) *UDPServer {
	return &UDPServer{
		sessionManager: opts.SessionManager,
		messageQueue:   opts.MessageQueue,
		port:           opts.Port,
	}
}

func (s *UDPServer) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.port})
	if err != nil {
		return fmt.Errorf("failed to listen on udp port %d: %v", s.port, err)
	}
	defer conn.Close()
	log.Info("UDP server listening on %s", conn.LocalAddr())

	s.sessionManager.SetUDPConn(conn)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, messages.MessageBufferSize)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("Failed to read from udp: %v", err)
			continue
		}
		s.handleDatagram(conn, addr, buf[:n])
	}
}

func (s *UDPServer) handleDatagram(conn *net.UDPConn, addr *net.UDPAddr, b []byte) {
	payload, err := messages.Decode(b)
	if err != nil {
		log.Debug("Failed to decode datagram from %s: %v", addr, err)
		return
	}

	switch msg := payload.(type) {
	case *messages.Ping:
		s.handlePing(conn, addr, msg)
	case *messages.Input:
		s.handleInput(addr, msg)
	default:
		log.Debug("Ignoring unexpected %s datagram from %s", payload.Tag(), addr)
	}
}

// handlePing both keeps the session alive and teaches the server where to
// send this session's unreliable traffic.
func (s *UDPServer) handlePing(conn *net.UDPConn, addr *net.UDPAddr, msg *messages.Ping) {
	session, err := s.sessionManager.GetSession(msg.PlayerID)
	if err != nil {
		log.Debug("Ping from unknown session %d at %s", msg.PlayerID, addr)
		return
	}
	if !session.Limiter.Allow() {
		return
	}
	if err := s.sessionManager.SetUDPAddress(session.ID, addr); err != nil {
		log.Debug("Failed to set udp address for session %d: %v", session.ID, err)
		return
	}
	tick := s.sessionManager.CurrentTick()
	s.sessionManager.Touch(session.ID, tick)
	s.sessionManager.Ack(session.ID, msg.AckTick)

	pong, err := messages.Encode(&messages.Pong{Tick: tick})
	if err != nil {
		log.Error("Failed to encode pong: %v", err)
		return
	}
	if _, err := conn.WriteToUDP(pong, addr); err != nil {
		log.Debug("Failed to send pong to %s: %v", addr, err)
	}
}

func (s *UDPServer) handleInput(addr *net.UDPAddr, msg *messages.Input) {
	session, err := s.sessionManager.GetSession(msg.Cmd.PlayerID)
	if err != nil {
		log.Debug("Input from unknown session %d at %s", msg.Cmd.PlayerID, addr)
		return
	}
	if !session.Limiter.Allow() {
		log.Debug("Rate limiting session %d", session.ID)
		return
	}
	if err := s.messageQueue.Enqueue(&clients.InboundMessage{SessionID: session.ID, Payload: msg}); err != nil {
		log.Error("Failed to enqueue input from session %d: %v", session.ID, err)
	}
}
