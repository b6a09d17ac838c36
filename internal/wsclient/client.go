// Package wsclient is a Go client for the realtime gateway. It keeps the
// participant's scope in a session.View and auto-accepts private-session
// invites addressed to it.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/session"
	"mindpalace/backend/internal/ws"
	"mindpalace/backend/pkg/logger"
)

const writeWait = 10 * time.Second

// ErrNotInRoom is returned by Send before the client has entered a room.
var ErrNotInRoom = errors.New("wsclient: not in a room")

// Config describes the participant.
type Config struct {
	URL             string
	AnonymousID     string
	Role            models.Role
	InstitutionCode string
	Logger          *logger.Logger
}

// Client is one participant's connection.
type Client struct {
	cfg  Config
	conn *websocket.Conn
	view *session.View
	log  *logger.Logger

	writeMu sync.Mutex
	events  chan ws.Envelope
	pongs   chan struct{}
	done    chan struct{}
}

// Dial connects and starts the read loop.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("wsclient: parse url: %w", err)
	}
	q := u.Query()
	q.Set("anonymousId", cfg.AnonymousID)
	q.Set("role", string(cfg.Role))
	q.Set("institutionCode", cfg.InstitutionCode)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("wsclient: dial: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.GetGlobal()
	}
	c := &Client{
		cfg:    cfg,
		conn:   conn,
		log:    log.With("anonymous_id", cfg.AnonymousID),
		events: make(chan ws.Envelope, 64),
		pongs:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	c.view = session.NewView(c, cfg.AnonymousID, cfg.Role, cfg.InstitutionCode)
	go c.readLoop()
	return c, nil
}

// View exposes the participant's scope state.
func (c *Client) View() *session.View {
	return c.view
}

// Events delivers every inbound event after the client has processed it.
// Events are dropped when nobody drains the channel.
func (c *Client) Events() <-chan ws.Envelope {
	return c.events
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// Join implements session.Transport.
func (c *Client) Join(roomID string) error {
	return c.emit(ws.EventJoin, ws.RoomPayload{RoomID: roomID})
}

// Leave implements session.Transport.
func (c *Client) Leave(roomID string) error {
	return c.emit(ws.EventLeave, ws.RoomPayload{RoomID: roomID})
}

// RequestPrivateSession implements session.Transport.
func (c *Client) RequestPrivateSession(institutionCode, targetStudentID, counsellorID string) error {
	return c.emit(ws.EventRequestPrivateSession, ws.PrivateSessionRequest{
		InstitutionCode: institutionCode,
		TargetStudentID: targetStudentID,
		CounsellorID:    counsellorID,
	})
}

// Send posts text to the current room.
func (c *Client) Send(text string, consent *models.Consent, tags []string) error {
	room := c.view.RoomID()
	if room == "" {
		return ErrNotInRoom
	}
	var inst *string
	if c.cfg.InstitutionCode != "" {
		code := c.cfg.InstitutionCode
		inst = &code
	}
	return c.emit(ws.EventMessage, ws.MessagePayload{
		RoomID:            room,
		InstitutionCode:   inst,
		AuthorAnonymousID: c.cfg.AnonymousID,
		AuthorRole:        c.cfg.Role,
		Text:              text,
		Consent:           consent,
		Tags:              tags,
	})
}

// Sync round-trips a ping. When it returns, the gateway has handled every
// event this client sent before it.
func (c *Client) Sync(ctx context.Context) error {
	if err := c.emit(ws.EventPing, nil); err != nil {
		return err
	}
	select {
	case <-c.pongs:
		return nil
	case <-c.done:
		return errors.New("wsclient: connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) emit(eventType string, content any) error {
	frame, err := ws.Encode(eventType, content)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debug("dropping malformed frame", "error", err.Error())
			continue
		}
		c.dispatch(env)

		select {
		case c.events <- env:
		default:
		}
	}
}

func (c *Client) dispatch(env ws.Envelope) {
	switch env.Type {
	case ws.EventPong:
		select {
		case c.pongs <- struct{}{}:
		default:
		}
	case ws.EventMessage:
		var msg ws.ChatMessage
		if err := json.Unmarshal(env.Content, &msg); err != nil {
			return
		}
		c.view.Append(session.Line{
			ID:                msg.ID,
			RoomID:            msg.RoomID,
			AuthorAnonymousID: msg.AuthorAnonymousID,
			AuthorRole:        msg.AuthorRole,
			Text:              msg.Text,
			CreatedAt:         msg.CreatedAt,
		})
	case ws.EventPrivateSessionInvite:
		var inv ws.InviteEvent
		if err := json.Unmarshal(env.Content, &inv); err != nil {
			return
		}
		switched, err := c.view.HandleInvite(inv)
		if err != nil {
			c.log.LogError(err, "accepting private session failed")
			return
		}
		if switched {
			c.log.Info("joined private session", "room_id", inv.PrivateRoomID)
		}
	}
}
