package servers

import (
	"fmt"
	"time"

	"github.com/voltgrid/voltgrid/pkg/clients"
	"github.com/voltgrid/voltgrid/pkg/game/types"
	"github.com/voltgrid/voltgrid/pkg/log"
	"github.com/voltgrid/voltgrid/pkg/messages"
	"github.com/voltgrid/voltgrid/pkg/queue"
)

const handshakeTimeout = 10 * time.Second

// messageConn is a reliable, message-oriented connection. The TCP transport
// gets there with length framing; websockets are already framed.
type messageConn interface {
	clients.MessageWriter
	ReadMessage() ([]byte, error)
	SetReadDeadline(t time.Time) error
	RemoteAddr() string
}

// sessionHandler runs the handshake and read loop shared by the TCP and
// websocket transports.
type sessionHandler struct {
	sessionManager *clients.SessionManager
	messageQueue   queue.Queue
	eventQueue     queue.Queue
}

// serve owns conn for its lifetime. It blocks until the peer disconnects or
// misbehaves fatally, then enqueues the disconnect for the game loop.
func (h *sessionHandler) serve(conn messageConn) {
	session, err := h.handshake(conn)
	if err != nil {
		log.Warn("Handshake with %s failed: %v", conn.RemoteAddr(), err)
		if err := conn.Close(); err != nil {
			log.Debug("Failed to close connection: %v", err)
		}
		return
	}

	if err := h.eventQueue.Enqueue(&types.ConnectPlayerEvent{SessionID: session.ID, Name: session.Name}); err != nil {
		log.Error("Failed to enqueue connect event: %v", err)
	}
	defer func() {
		if err := h.eventQueue.Enqueue(&types.DisconnectPlayerEvent{SessionID: session.ID}); err != nil {
			log.Error("Failed to enqueue disconnect event: %v", err)
		}
	}()

	for {
		b, err := conn.ReadMessage()
		if err != nil {
			log.Debug("Read loop for session %d ended: %v", session.ID, err)
			return
		}
		if !session.Limiter.Allow() {
			log.Debug("Rate limiting session %d", session.ID)
			continue
		}
		payload, err := messages.Decode(b)
		if err != nil {
			log.Warn("Failed to decode message from session %d: %v", session.ID, err)
			continue
		}
		h.sessionManager.Touch(session.ID, h.sessionManager.CurrentTick())

		switch payload.(type) {
		case *messages.Join:
			err = h.eventQueue.Enqueue(&types.JoinPlayerEvent{SessionID: session.ID})
		case *messages.Observe:
			err = h.eventQueue.Enqueue(&types.ObservePlayerEvent{SessionID: session.ID})
		default:
			err = h.messageQueue.Enqueue(&clients.InboundMessage{SessionID: session.ID, Payload: payload})
		}
		if err != nil {
			log.Error("Failed to enqueue %s from session %d: %v", payload.Tag(), session.ID, err)
		}
	}
}

// handshake expects a Hello as the first message and answers with a Welcome
// carrying the assigned player id.
func (h *sessionHandler) handshake(conn messageConn) (*clients.Session, error) {
	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %v", err)
	}
	b, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read hello: %v", err)
	}
	payload, err := messages.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hello: %v", err)
	}
	hello, ok := payload.(*messages.Hello)
	if !ok {
		return nil, fmt.Errorf("expected hello, got %s", payload.Tag())
	}

	session, err := h.sessionManager.AddSession(conn, hello.Name, !hello.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to add session: %v", err)
	}

	welcome, err := messages.Encode(&messages.Welcome{
		PlayerID:    session.ID,
		Token:       session.Token,
		CurrentTick: h.sessionManager.CurrentTick(),
	})
	if err != nil {
		h.sessionManager.RemoveSession(session.ID)
		return nil, fmt.Errorf("failed to encode welcome: %v", err)
	}
	if err := conn.WriteMessage(welcome); err != nil {
		h.sessionManager.RemoveSession(session.ID)
		return nil, fmt.Errorf("failed to send welcome: %v", err)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		h.sessionManager.RemoveSession(session.ID)
		return nil, fmt.Errorf("failed to clear deadline: %v", err)
	}
	return session, nil
}
