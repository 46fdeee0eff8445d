package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/notifications"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Manager handles WebSocket connections and fans out notifications.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan notifications.Message
	ConnectedAt time.Time
	RemoteAddr  string
	projectIDs  map[string]bool
	mu          sync.Mutex
}

// wants reports whether the connection subscribed to projectID. Connections
// without a subscription receive everything.
func (c *Connection) wants(projectID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.projectIDs) == 0 || projectID == "" {
		return true
	}
	return c.projectIDs[projectID]
}

func (c *Connection) subscribe(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projectIDs = make(map[string]bool, len(ids))
	for _, id := range ids {
		c.projectIDs[id] = true
	}
}

// Hub owns the Send channels; only it closes them.
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan notifications.Message
	register    chan *Connection
	unregister  chan *Connection
	direct      chan directMessage
	stop        chan struct{}
	done        chan struct{}
	logger      *zap.Logger
}

type directMessage struct {
	conn *Connection
	msg  notifications.Message
}

// NewManager creates a new WebSocket manager
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan notifications.Message, sendBuffer),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		direct:      make(chan directMessage),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger,
	}

	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and starts the connection pumps.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan notifications.Message, sendBuffer),
		ConnectedAt: time.Now(),
		RemoteAddr:  r.RemoteAddr,
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.done:
		conn.Close()
		return nil, fmt.Errorf("websocket manager closed")
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()

		select {
		case m.hub.unregister <- conn:
		case <-m.hub.done:
		}
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(maxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		return conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req notifications.SubscribeRequest
		if err := conn.Conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				m.logger.Warn("WebSocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		m.handleMessage(conn, &req)
	}
}

func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) handleMessage(conn *Connection, req *notifications.SubscribeRequest) {
	switch req.Type {
	case notifications.MessageTypeSubscribe:
		conn.subscribe(req.ProjectIDs)
		reply := notifications.Message{
			Type:      notifications.MessageTypeStatus,
			Data:      map[string]any{"status": "subscribed", "connection_id": conn.ID, "project_ids": req.ProjectIDs},
			Timestamp: time.Now().UTC(),
		}
		select {
		case m.hub.direct <- directMessage{conn: conn, msg: reply}:
		case <-m.hub.done:
		}
	default:
		m.logger.Debug("Ignoring unknown message type", zap.String("type", req.Type))
	}
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			h.logger.Debug("Connection registered", zap.String("connection_id", conn.ID))

		case conn := <-h.unregister:
			h.drop(conn)

		case d := <-h.direct:
			if h.connections[d.conn] {
				h.deliver(d.conn, d.msg)
			}

		case message := <-h.broadcast:
			for conn := range h.connections {
				if conn.wants(message.ProjectID) {
					h.deliver(conn, message)
				}
			}

		case <-h.stop:
			for conn := range h.connections {
				h.drop(conn)
			}
			return
		}
	}
}

// deliver drops connections whose buffer is full.
func (h *Hub) deliver(conn *Connection, msg notifications.Message) {
	select {
	case conn.Send <- msg:
	default:
		h.logger.Warn("Connection buffer full, dropping connection", zap.String("connection_id", conn.ID))
		h.drop(conn)
	}
}

func (h *Hub) drop(conn *Connection) {
	if _, ok := h.connections[conn]; ok {
		delete(h.connections, conn)
		close(conn.Send)
		h.logger.Debug("Connection unregistered", zap.String("connection_id", conn.ID))
	}
}

// Publish queues msg for every subscribed connection.
func (m *Manager) Publish(msg notifications.Message) error {
	select {
	case <-m.hub.done:
		return fmt.Errorf("websocket manager closed")
	default:
	}
	select {
	case m.hub.broadcast <- msg:
		return nil
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// GetConnectionCount returns the number of active connections
func (m *Manager) GetConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close disconnects every client and stops the hub.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.hub.stop)
		<-m.hub.done
	})
}
