package servers

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/voltgrid/voltgrid/pkg/clients"
	"github.com/voltgrid/voltgrid/pkg/log"
	"github.com/voltgrid/voltgrid/pkg/messages"
	"github.com/voltgrid/voltgrid/pkg/queue"
)

// TCPServer accepts the reliable, ordered connections clients use for
// handshake, control messages, and replicated cvar sync.
type TCPServer struct {
	handler *sessionHandler
	port    int
}

type NewTCPServerOptions struct {
	SessionManager *clients.SessionManager
	MessageQueue   queue.Queue
	EventQueue     queue.Queue
	Port           int
}

func NewTCPServer(opts NewTCPServerOptions) *TCPServer {
	return &TCPServer{
		handler: &sessionHandler{
			sessionManager: opts.SessionManager,
			messageQueue:   opts.MessageQueue,
			eventQueue:     opts.EventQueue,
		},
		port: opts.Port,
	}
}

func (s *TCPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on tcp port %d: %v", s.port, err)
	}
	defer listener.Close()
	log.Info("TCP server listening on %s", listener.Addr())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("Failed to accept connection: %v", err)
			continue
		}
		go s.handler.serve(newTCPMessageConn(conn))
	}
}

// tcpMessageConn frames messages on a stream with a 4-byte little-endian
// length prefix.
type tcpMessageConn struct {
	conn      net.Conn
	writeLock sync.Mutex
}

func newTCPMessageConn(conn net.Conn) *tcpMessageConn {
	return &tcpMessageConn{conn: conn}
}

func (c *tcpMessageConn) ReadMessage() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > messages.MessageBufferSize {
		return nil, fmt.Errorf("message length %d exceeds limit", length)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(c.conn, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *tcpMessageConn) WriteMessage(b []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(b)))
	if _, err := c.conn.Write(header[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(b)
	return err
}

func (c *tcpMessageConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *tcpMessageConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpMessageConn) Close() error {
	return c.conn.Close()
}
