package daemon

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"drowsy/internal/api"
	"drowsy/internal/logging"
	"drowsy/internal/session"
)

const (
	defaultMaxStreamClients = 32
	clientSendBuffer        = 16
	writeWait               = 5 * time.Second
	pongWait                = 60 * time.Second
	pingPeriod              = (pongWait * 9) / 10
)

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newStreamClient(conn *websocket.Conn) *streamClient {
	return &streamClient{conn: conn, send: make(chan []byte, clientSendBuffer)}
}

// writePump owns all writes to the connection.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and reports when the peer goes away.
func (c *streamClient) readPump(onClose func()) {
	defer onClose()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.send) })
}

// broadcaster fans controller snapshots out to WebSocket clients.
type broadcaster struct {
	logger     *slog.Logger
	maxClients int

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

func newBroadcaster(logger *slog.Logger, maxClients int) *broadcaster {
	return &broadcaster{
		logger:     logging.NewComponentLogger(logger, "event-stream"),
		maxClients: maxClients,
		clients:    make(map[*streamClient]struct{}),
	}
}

// run forwards snapshots until the subscription channel closes.
func (b *broadcaster) run(updates <-chan session.Snapshot) {
	for snap := range updates {
		b.broadcast(snap)
	}
}

// add registers a connection and sends it the current snapshot. It returns
// false when the client limit is reached.
func (b *broadcaster) add(conn *websocket.Conn, current session.Snapshot) bool {
	c := newStreamClient(conn)
	if data, err := encodeStream(api.MessageSnapshot, current); err == nil {
		c.send <- data
	}

	b.mu.Lock()
	if b.maxClients > 0 && len(b.clients) >= b.maxClients {
		b.mu.Unlock()
		return false
	}
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go c.writePump()
	go c.readPump(func() { b.remove(c) })
	return true
}

func (b *broadcaster) remove(c *streamClient) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *broadcaster) broadcast(snap session.Snapshot) {
	data, err := encodeStream(api.MessageUpdate, snap)
	if err != nil {
		b.logger.Error("stream marshal failed", logging.Error(err))
		return
	}

	// Sends never block, so they can run under the read lock; close only
	// happens under the write lock.
	var slow []*streamClient
	b.mu.RLock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		logging.WarnWithContext(b.logger, "stream client too slow, disconnecting", "stream_client_dropped",
			logging.String(logging.FieldImpact, "client stops receiving session updates"),
			logging.String(logging.FieldErrorHint, "client should reconnect to resume the stream"),
		)
		b.remove(c)
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func encodeStream(kind string, snap session.Snapshot) ([]byte, error) {
	return json.Marshal(api.StreamMessage{Type: kind, Session: api.FromSnapshot(snap)})
}
