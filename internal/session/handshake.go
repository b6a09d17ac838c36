// Package session implements the private-session invite between a counsellor
// and one anonymous student, plus the client-held scope state that reacts to
// it.
package session

import (
	"errors"
	"strings"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/rooms"
)

var (
	// ErrNotCounsellor is returned when a non-counsellor requests a session.
	ErrNotCounsellor = errors.New("session: only counsellors can start a private session")
	// ErrMissingParticipant is returned when either party id is empty.
	ErrMissingParticipant = errors.New("session: counsellor and student ids are required")
)

// Request asks for a private session. Role is the requester's connection role.
type Request struct {
	Role            models.Role
	InstitutionCode string
	CounsellorID    string
	TargetStudentID string
}

// Invite is broadcast into the institution room. Every client receives it;
// only the targeted student acts on it.
type Invite struct {
	TargetStudentID string `json:"targetStudentId"`
	PrivateRoomID   string `json:"privateRoomId"`
	CounsellorID    string `json:"counsellorId"`
}

// Delivery is an invite together with the room it must be broadcast to.
type Delivery struct {
	Room   string
	Invite Invite
}

// RequestPrivateSession validates req and builds the invite. The private
// room id has no random component, so repeating a request for the same pair
// yields the same room.
func RequestPrivateSession(req Request) (Delivery, error) {
	if req.Role != models.RoleCounsellor {
		return Delivery{}, ErrNotCounsellor
	}
	counsellor := strings.TrimSpace(req.CounsellorID)
	student := strings.TrimSpace(req.TargetStudentID)
	if counsellor == "" || student == "" {
		return Delivery{}, ErrMissingParticipant
	}

	return Delivery{
		Room: rooms.Institution(req.InstitutionCode).RoomID(),
		Invite: Invite{
			TargetStudentID: student,
			PrivateRoomID:   rooms.PrivateRoomID(counsellor, student),
			CounsellorID:    counsellor,
		},
	}, nil
}
