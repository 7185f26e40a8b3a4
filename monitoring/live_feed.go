package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PredictionEvent is one served prediction pushed to live-feed clients.
type PredictionEvent struct {
	Letter           string  `json:"letter"`
	Confidence       float64 `json:"confidence"`
	DeviceID         string  `json:"device_id"`
	ProcessingTimeMS float64 `json:"processing_time_ms"`
	Timestamp        float64 `json:"timestamp"`
}

type feedClient struct {
	conn *websocket.Conn
	send chan []byte
	id   uint64
}

// LiveFeed broadcasts served predictions to connected WebSocket clients
// (the desktop app). Slow or dead clients are dropped, never waited on.
type LiveFeed struct {
	clients    map[*feedClient]bool
	broadcast  chan []byte
	register   chan *feedClient
	unregister chan *feedClient
	upgrader   websocket.Upgrader
	nextID     atomic.Uint64
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewLiveFeed() *LiveFeed {
	ctx, cancel := context.WithCancel(context.Background())
	return &LiveFeed{
		clients:    make(map[*feedClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The desktop app connects from arbitrary local origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run owns the client set. Start it once in its own goroutine.
func (f *LiveFeed) Run() {
	for {
		select {
		case client := <-f.register:
			f.clients[client] = true
			zap.S().Debugw("live feed client connected", "client", client.id, "total", len(f.clients))

		case client := <-f.unregister:
			if _, ok := f.clients[client]; ok {
				delete(f.clients, client)
				close(client.send)
			}
			zap.S().Debugw("live feed client disconnected", "client", client.id, "total", len(f.clients))

		case message := <-f.broadcast:
			for client := range f.clients {
				select {
				case client.send <- message:
				default:
					delete(f.clients, client)
					close(client.send)
				}
			}

		case <-f.ctx.Done():
			for client := range f.clients {
				delete(f.clients, client)
				close(client.send)
			}
			return
		}
	}
}

func (f *LiveFeed) Stop() {
	f.cancel()
}

// Publish queues an event for broadcast without blocking the caller.
func (f *LiveFeed) Publish(event PredictionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		zap.S().Warnw("live feed marshal failed", "err", err)
		return
	}
	select {
	case f.broadcast <- payload:
	case <-f.ctx.Done():
	default:
		zap.S().Debug("live feed queue full, dropping event")
	}
}

// HandleWebSocket upgrades the connection and registers the client.
func (f *LiveFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade failed", "err", err)
		return
	}

	client := &feedClient{
		conn: conn,
		send: make(chan []byte, 64),
		id:   f.nextID.Add(1),
	}

	select {
	case f.register <- client:
	case <-f.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(f)
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; the feed is one-way. Reading is
// still required to notice closes and answer pings.
func (c *feedClient) readPump(f *LiveFeed) {
	defer func() {
		select {
		case f.unregister <- c:
		case <-f.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
