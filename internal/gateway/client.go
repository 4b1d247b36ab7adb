package gateway

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fractalmind-ai/voidbots/pkg/protocol"
)

// Client represents a connected WebSocket client
type Client struct {
	ID        string
	Conn      *websocket.Conn
	Server    *Server
	sendLock  sync.Mutex
	closeOnce sync.Once
	closeChan chan struct{}
}

// NewClient creates a new client
func NewClient(id string, conn *websocket.Conn, server *Server) *Client {
	return &Client{
		ID:        id,
		Conn:      conn,
		Server:    server,
		closeChan: make(chan struct{}),
	}
}

// Handle processes incoming messages from client
func (c *Client) Handle() {
	defer c.Close()

	for {
		var msg protocol.Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error [%s]: %v", c.ID, err)
			}
			return
		}

		c.ProcessMessage(&msg)
	}
}

// ProcessMessage handles incoming message based on type
func (c *Client) ProcessMessage(msg *protocol.Message) {
	if msg == nil {
		return
	}

	switch msg.Kind {
	case protocol.MessageKindEvent:
		c.handleEventMessage(msg)
	case protocol.MessageKindStatus:
		resp := protocol.Message{
			Kind: protocol.MessageKindStatus,
			Data: c.Server.source.Status(),
		}
		if err := c.Send(&resp); err != nil {
			log.Printf("Status send error [%s]: %v", c.ID, err)
		}
	default:
		log.Printf("Unknown message kind: %s", msg.Kind)
	}
}

// handleEventMessage processes event messages.
func (c *Client) handleEventMessage(msg *protocol.Message) {
	switch msg.Action {
	case protocol.ActionEcho:
		resp := protocol.Message{
			Kind:   protocol.MessageKindEvent,
			Action: protocol.ActionEcho,
			Data:   msg.Data,
		}
		if err := c.Send(&resp); err != nil {
			log.Printf("Echo send error [%s]: %v", c.ID, err)
		}
	default:
		log.Printf("Unknown event action: %s", msg.Action)
	}
}

// Send sends a message to client
func (c *Client) Send(msg *protocol.Message) error {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(msg)
}

func (c *Client) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeChan:
			return
		case <-ticker.C:
			c.sendLock.Lock()
			err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.sendLock.Unlock()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.Conn.Close()
		if c.Server != nil {
			c.Server.removeClient(c)
		}
		log.Printf("🔌 Client disconnected: %s", c.ID)
	})
}
