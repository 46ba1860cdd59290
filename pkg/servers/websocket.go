package servers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/voltgrid/voltgrid/pkg/clients"
	"github.com/voltgrid/voltgrid/pkg/log"
	"github.com/voltgrid/voltgrid/pkg/messages"
	"github.com/voltgrid/voltgrid/pkg/queue"
)

// WSServer serves the same session protocol as the TCP transport over a
// websocket, for clients that cannot open raw sockets. It mounts on the
// debug HTTP server's router rather than owning a listener.
type WSServer struct {
	handler  *sessionHandler
	upgrader websocket.Upgrader
}

type NewWSServerOptions struct {
	SessionManager *clients.SessionManager
	MessageQueue   queue.Queue
	EventQueue     queue.Queue
}

func NewWSServer(opts NewWSServerOptions) *WSServer {
	return &WSServer{
		handler: &sessionHandler{
			sessionManager: opts.SessionManager,
			messageQueue:   opts.MessageQueue,
			eventQueue:     opts.EventQueue,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  messages.MessageBufferSize,
			WriteBufferSize: messages.MessageBufferSize,
		},
	}
}

func (s *WSServer) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", s.handleWebSocket)
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Failed to upgrade websocket from %s: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(messages.MessageBufferSize)
	s.handler.serve(newWSMessageConn(conn))
}

type wsMessageConn struct {
	conn      *websocket.Conn
	writeLock sync.Mutex
}

func newWSMessageConn(conn *websocket.Conn) *wsMessageConn {
	return &wsMessageConn{conn: conn}
}

func (c *wsMessageConn) ReadMessage() ([]byte, error) {
	_, b, err := c.conn.ReadMessage()
	return b, err
}

func (c *wsMessageConn) WriteMessage(b []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}

func (c *wsMessageConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsMessageConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *wsMessageConn) Close() error {
	return c.conn.Close()
}
