package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

// Identity is what a connection claims about its participant. It is trusted
// as presented.
type Identity struct {
	AnonymousID     string
	Role            models.Role
	InstitutionCode string
}

// Client is one websocket connection.
type Client struct {
	ID       string
	Identity Identity

	conn    *websocket.Conn
	send    chan []byte
	gateway *Gateway
	limiter *rate.Limiter
	log     *logger.Logger

	// rooms is guarded by the hub lock.
	rooms map[string]struct{}
}

func newClient(id string, conn *websocket.Conn, g *Gateway, identity Identity) *Client {
	return &Client{
		ID:       id,
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, g.opts.SendBuffer),
		gateway:  g,
		limiter:  rate.NewLimiter(rate.Limit(g.opts.MessagesPerSec), g.opts.MessageBurst),
		log:      g.log.WithConnection(id, identity.AnonymousID),
		rooms:    make(map[string]struct{}),
	}
}

// ReadPump handles inbound frames one at a time, in arrival order.
func (c *Client) ReadPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.gateway.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", "error", err.Error())
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug("dropping malformed frame", "error", err.Error())
			c.gateway.dropped(c, "malformed")
			continue
		}
		c.gateway.Handle(c, env)
	}
}

// WritePump drains the send queue to the socket and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			// Flush anything already queued, one frame per message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendEvent queues an event for this client only.
func (c *Client) sendEvent(eventType string, content any) {
	frame, err := Encode(eventType, content)
	if err != nil {
		c.log.LogError(err, "encode event failed", "type", eventType)
		return
	}
	if !c.gateway.hub.SendTo(c, frame) {
		c.log.Debug("event not queued", "type", eventType)
	}
}
