package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/quocanhngo/quakealert/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	redisChannel   = "quakealert:audit"
	publishTimeout = 2 * time.Second
)

// Hub fans audit events out to connected operator consoles.
// With Redis configured, events go through Pub/Sub so every instance sees every pass.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *envelope
	outbox     chan *envelope // awaiting the Redis publisher
	done       chan struct{}  // closed once Run has returned

	// nil runs the hub in single-instance mode
	rdb *redis.Client
}

// envelope carries the device an event concerns so clients can filter without decoding payloads
type envelope struct {
	DeviceID string         `json:"device_id,omitempty"`
	Event    *model.WSEvent `json:"event"`
}

// NewHub creates a new audit hub. rdb may be nil.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope, 256),
		outbox:     make(chan *envelope, 256),
		done:       make(chan struct{}),
		rdb:        rdb,
	}
}

// Run starts the Hub's main event loop. It must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.rdb != nil {
		go h.subscribeRedis(ctx)
		go h.publishRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case env := <-h.broadcast:
			h.broadcastToLocal(env)
		}
	}
}

// Register queues a client for registration with the hub.
// Once the hub has stopped the client's send channel is closed instead, which ends its WritePump.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a client; it is a no-op once the hub has stopped
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish sends event to every console. It never blocks a dispatch pass:
// with Redis configured the event is handed to the background publisher,
// and when a queue is full the event is dropped.
func (h *Hub) Publish(event model.WSEvent) {
	env := &envelope{DeviceID: deviceOf(event), Event: &event}

	queue := h.broadcast
	if h.rdb != nil {
		queue = h.outbox
	}
	select {
	case queue <- env:
	default:
		log.Printf("⚠️  Audit stream queue full, dropping %s event", event.Type)
	}
}

// publishRedis drains the outbox into Redis. Events Redis refuses are delivered locally.
func (h *Hub) publishRedis(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.outbox:
			data, err := json.Marshal(env)
			if err != nil {
				log.Printf("Error marshaling for Redis: %v", err)
				continue
			}
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err = h.rdb.Publish(pubCtx, redisChannel, data).Err()
			cancel()
			if err == nil {
				continue
			}
			log.Printf("Error publishing to Redis, delivering locally: %v", err)
			select {
			case h.broadcast <- env:
			default:
				log.Printf("⚠️  Audit stream queue full, dropping %s event", env.Event.Type)
			}
		}
	}
}

// ClientCount returns the number of consoles connected to this instance
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	log.Printf("✅ Audit console connected: %s (total: %d)", client.Subject, len(h.clients))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	log.Printf("❌ Audit console disconnected: %s", client.Subject)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// broadcastToLocal sends an event to every matching console on this instance
func (h *Hub) broadcastToLocal(env *envelope) {
	if env.Event == nil {
		return
	}
	data, err := json.Marshal(env.Event)
	if err != nil {
		log.Printf("Error marshaling broadcast event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if !client.accepts(env.DeviceID) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// slow console, drop it
			delete(h.clients, client)
			close(client.send)
		}
	}
}

// subscribeRedis subscribes to Redis and delivers events to local consoles
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Println("📡 Redis Pub/Sub subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("Error unmarshaling Redis message: %v", err)
				continue
			}
			select {
			case h.broadcast <- &env:
			case <-ctx.Done():
				return
			}
		}
	}
}

func deviceOf(event model.WSEvent) string {
	switch p := event.Payload.(type) {
	case model.AttemptEvent:
		return p.DeviceID
	case *model.AttemptEvent:
		return p.DeviceID
	}
	return ""
}
