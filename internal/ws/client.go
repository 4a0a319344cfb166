package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quocanhngo/quakealert/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024
)

// Console commands
const (
	CommandFollowDevice = "follow_device"
	CommandFollowAll    = "follow_all"
)

// Client is one connected operator console
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	Subject string

	mu     sync.RWMutex
	follow string
}

// NewClient creates a new console client
func NewClient(hub *Hub, conn *websocket.Conn, subject string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		Subject: subject,
	}
}

// accepts reports whether the console wants events about deviceID.
// Events not tied to a device always pass.
func (c *Client) accepts(deviceID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.follow == "" || deviceID == "" || c.follow == deviceID
}

// Follow restricts the console to one device; an empty id follows everything
func (c *Client) Follow(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.follow = deviceID
}

// handleCommand applies a console command
func (c *Client) handleCommand(event model.WSEvent) {
	switch event.Type {
	case CommandFollowDevice:
		payloadBytes, _ := json.Marshal(event.Payload)
		var payload struct {
			DeviceID string `json:"deviceId"`
		}
		if err := json.Unmarshal(payloadBytes, &payload); err != nil {
			log.Printf("Error parsing follow_device payload: %v", err)
			return
		}
		c.Follow(payload.DeviceID)
		log.Printf("👀 Console %s following device %q", c.Subject, payload.DeviceID)
	case CommandFollowAll:
		c.Follow("")
	default:
		log.Printf("Unknown console command: %s", event.Type)
	}
}

// ReadPump reads console commands until the connection closes
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var event model.WSEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.Printf("Error parsing WebSocket message: %v", err)
			continue
		}
		c.handleCommand(event)
	}
}

// WritePump pumps audit events from the hub to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
