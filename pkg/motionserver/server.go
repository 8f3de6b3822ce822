// Package motionserver serves the sensor side of the motion stream.
//
// It accepts WebSocket clients, reads each client's ready message
//
//	{"types": ["BodyFrameData"]}
//
// and forwards every broadcast message whose type the client asked for, in
// broadcast order. Messages come from a Source: a recorded JSON-lines file
// or a synthetic skeleton.
package motionserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haivivi/kinectmotion/pkg/kinectmotion"
)

// ErrClosed is returned by Broadcast after Close.
var ErrClosed = errors.New("motionserver: closed")

const (
	defaultQueueSize    = 64
	defaultReadyTimeout = 5 * time.Second
	writeTimeout        = 5 * time.Second
)

// Server is an http.Handler serving the motion stream.
type Server struct {
	// Protocol is the subprotocol sent in the handshake response.
	// Default is kinectmotion.Subprotocol.
	Protocol string

	// QueueSize bounds the per-client send queue. A client whose queue is
	// full is disconnected. Default is 64.
	QueueSize int

	// ReadyTimeout bounds the wait for the client ready message.
	// Default is 5s.
	ReadyTimeout time.Duration

	// OnConnect is called when a client has sent its ready message.
	OnConnect func(clientID string, types []string)

	// OnDisconnect is called when a registered client goes away.
	OnDisconnect func(clientID string)

	mu      sync.Mutex
	clients map[string]*client
	closed  bool

	connections atomic.Int64
}

type client struct {
	id    string
	conn  *websocket.Conn
	types map[string]bool
	queue chan []byte
	done  chan struct{}
	once  sync.Once
}

func (c *client) wants(typ string) bool {
	return c.types[typ]
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Connections returns the number of clients accepted since the server
// started, including the ones that already left.
func (s *Server) Connections() int64 {
	return s.connections.Load()
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	protocol := s.Protocol
	if protocol == "" {
		protocol = kinectmotion.Subprotocol
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, http.Header{"Sec-Websocket-Protocol": {protocol}})
	if err != nil {
		slog.Debug("motionserver: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.connections.Add(1)

	ready, err := s.readReady(conn)
	if err != nil {
		slog.Warn("motionserver: bad ready message", "remote", r.RemoteAddr, "error", err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "bad ready message"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	c := &client{
		id:    uuid.NewString(),
		conn:  conn,
		types: make(map[string]bool, len(ready.Types)),
		queue: make(chan []byte, s.queueSize()),
		done:  make(chan struct{}),
	}
	for _, t := range ready.Types {
		c.types[t] = true
	}
	if !s.register(c) {
		c.close()
		return
	}
	slog.Info("motionserver: client connected", "id", c.id, "remote", r.RemoteAddr, "types", ready.Types)
	if s.OnConnect != nil {
		s.OnConnect(c.id, ready.Types)
	}

	go s.writeLoop(c)
	s.readLoop(c)

	s.unregister(c)
	c.close()
	slog.Info("motionserver: client disconnected", "id", c.id)
	if s.OnDisconnect != nil {
		s.OnDisconnect(c.id)
	}
}

func (s *Server) queueSize() int {
	if s.QueueSize > 0 {
		return s.QueueSize
	}
	return defaultQueueSize
}

func (s *Server) readReady(conn *websocket.Conn) (*kinectmotion.ClientReady, error) {
	timeout := s.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})

	var ready kinectmotion.ClientReady
	if err := json.Unmarshal(data, &ready); err != nil {
		return nil, fmt.Errorf("motionserver: decode ready message: %w", err)
	}
	return &ready, nil
}

func (s *Server) register(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.clients == nil {
		s.clients = make(map[string]*client)
	}
	s.clients[c.id] = c
	return true
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
}

// readLoop discards client messages until the connection fails.
func (s *Server) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("motionserver: write failed", "id", c.id, "error", err)
				c.close()
				return
			}
		}
	}
}

// Broadcast queues msg for every client that asked for its type. A client
// whose queue is full is disconnected.
func (s *Server) Broadcast(msg kinectmotion.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("motionserver: encode %s: %w", msg.Type, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, c := range s.clients {
		if !c.wants(msg.Type) {
			continue
		}
		select {
		case c.queue <- data:
		case <-c.done:
		default:
			slog.Warn("motionserver: client too slow, dropping", "id", c.id)
			c.close()
		}
	}
	return nil
}

// Close disconnects every client. Later connections are refused.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}
