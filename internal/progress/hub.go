package progress

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrBufferFull is returned when a connection's send buffer is full.
	ErrBufferFull = errors.New("send buffer full")
	// ErrConnectionClosed is returned when sending to an unregistered connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Connection represents a single WebSocket subscriber.
//
// Send is never closed. Done is closed once the hub drops the connection,
// and writers must stop when it is.
type Connection struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	mu   sync.Mutex

	// clientID is guarded by the owning hub's mu.
	clientID string

	doneOnce sync.Once
	done     chan struct{}
	stopOnce sync.Once
}

// Hub fans progress messages out to the connections of each client id.
type Hub struct {
	connections map[string]*Connection
	// clients maps client_id to the set of connection IDs
	clients map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *clientMessage
	stopped    chan struct{}

	mu sync.RWMutex
}

type clientMessage struct {
	clientID string
	data     []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		clients:     make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *clientMessage, 256),
		stopped:     make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.bindLocked(conn)
			clientID := conn.clientID
			h.mu.Unlock()
			log.Printf("Progress subscriber registered: %s (client: %s)", conn.ID, clientID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				h.unbindLocked(conn)
			}
			conn.shutdown()
			h.mu.Unlock()
			log.Printf("Progress subscriber unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.clients[msg.clientID] {
				conn, exists := h.connections[connID]
				if !exists {
					continue
				}
				select {
				case <-conn.Done():
				case conn.Send <- msg.data:
				default:
					log.Printf("Progress subscriber %s buffer full, closing", connID)
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection wraps a websocket for the given client id.
func (h *Hub) NewConnection(ws *websocket.Conn, clientID string) *Connection {
	return &Connection{
		ID:       uuid.New().String(),
		clientID: clientID,
		Conn:     ws,
		Send:     make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.stopped:
		conn.shutdown()
	}
}

// Unregister unregisters a connection from the hub. It is safe to call more
// than once and after the hub has stopped.
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.stopped:
		conn.shutdown()
	}
}

// ClientID returns the client id conn is currently bound to.
func (h *Hub) ClientID(conn *Connection) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return conn.clientID
}

// BindClient moves a connection to another client id.
func (h *Hub) BindClient(conn *Connection, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unbindLocked(conn)
	conn.clientID = clientID
	h.bindLocked(conn)
}

func (h *Hub) bindLocked(conn *Connection) {
	clientID := conn.clientID
	if clientID == "" {
		return
	}
	if h.clients[clientID] == nil {
		h.clients[clientID] = make(map[string]bool)
	}
	h.clients[clientID][conn.ID] = true
}

func (h *Hub) unbindLocked(conn *Connection) {
	if conn.clientID == "" || h.clients[conn.clientID] == nil {
		return
	}
	delete(h.clients[conn.clientID], conn.ID)
	if len(h.clients[conn.clientID]) == 0 {
		delete(h.clients, conn.clientID)
	}
}

// Publish sends msg to every connection of clientID. It never blocks: when
// the hub is backed up the message is dropped.
func (h *Hub) Publish(clientID string, msg *Message) {
	if clientID == "" {
		return
	}
	msg.ClientID = clientID
	if msg.Ts == 0 {
		msg.Ts = time.Now().UnixMilli()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- &clientMessage{clientID: clientID, data: data}:
	default:
		log.Printf("WARN: progress hub backlog full, dropping %s for client %s", msg.Type, clientID)
	}
}

// SendJSON sends v to one connection.
func (h *Hub) SendJSON(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-conn.Done():
		return ErrConnectionClosed
	default:
	}
	select {
	case <-conn.Done():
		return ErrConnectionClosed
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// HasSubscribers reports whether clientID has any active connection.
func (h *Hub) HasSubscribers(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[clientID]) > 0
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Done is closed once the hub has dropped the connection.
func (c *Connection) Done() <-chan struct{} {
	c.doneOnce.Do(func() {
		if c.done == nil {
			c.done = make(chan struct{})
		}
	})
	return c.done
}

func (c *Connection) shutdown() {
	c.Done()
	c.stopOnce.Do(func() { close(c.done) })
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}
