package ws

import (
	"encoding/json"
	"time"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/sensitive"
	"mindpalace/backend/internal/session"
)

// Event types carried in Envelope.Type.
const (
	EventJoin                  = "join"
	EventLeave                 = "leave"
	EventMessage               = "message"
	EventRequestPrivateSession = "request_private_session"
	EventPrivateSessionInvite  = "private_session_invite"
	EventAlert                 = "alert"
	EventError                 = "error"
	EventPing                  = "ping"
	EventPong                  = "pong"
)

// Advisory texts sent to clients.
const (
	ContactBlockedText = "Your message was blocked because it contains a phone number or email. Sharing personal contact info is not allowed for your safety."
	RoomAdvisoryText   = "This message contains sensitive content and has been flagged for moderation."
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// outbound mirrors Envelope for encoding arbitrary content.
type outbound struct {
	Type    string `json:"type"`
	Content any    `json:"content,omitempty"`
}

// Encode builds a frame.
func Encode(eventType string, content any) ([]byte, error) {
	return json.Marshal(outbound{Type: eventType, Content: content})
}

// RoomPayload is the content of join and leave.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// MessagePayload is the content of an inbound message.
type MessagePayload struct {
	RoomID            string          `json:"roomId"`
	InstitutionCode   *string         `json:"institutionCode,omitempty"`
	AuthorAnonymousID string          `json:"authorAnonymousId,omitempty"`
	AuthorRole        models.Role     `json:"authorRole"`
	Text              string          `json:"text"`
	Consent           *models.Consent `json:"consent,omitempty"`
	Tags              []string        `json:"tags,omitempty"`
}

// ChatMessage is the broadcast form of a message.
type ChatMessage struct {
	MessagePayload
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// AlertEvent is sent to the author on a contact-details block and to the
// room when a message is flagged. It never carries the flagged text.
type AlertEvent struct {
	Severity sensitive.Severity `json:"severity"`
	Text     string             `json:"text"`
}

// PrivateSessionRequest is the content of request_private_session.
type PrivateSessionRequest struct {
	InstitutionCode string `json:"institutionCode"`
	TargetStudentID string `json:"targetStudentId"`
	CounsellorID    string `json:"counsellorId"`
}

// InviteEvent is the content of private_session_invite.
type InviteEvent = session.Invite

// ErrorEvent is a sender-only failure notice.
type ErrorEvent struct {
	Message string `json:"message"`
}
