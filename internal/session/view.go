package session

import (
	"errors"
	"sync"
	"time"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/rooms"
)

// Transport is the connection a View drives.
type Transport interface {
	Join(roomID string) error
	Leave(roomID string) error
	RequestPrivateSession(institutionCode, targetStudentID, counsellorID string) error
}

// Destination is where a participant lands after leaving a private session.
type Destination int

const (
	// StayPut means the view was not in a private session.
	StayPut Destination = iota
	// ToInstitution returns a student to the institution room.
	ToInstitution
	// ToModerationList returns a counsellor to the moderation list, outside
	// any room.
	ToModerationList
)

// Line is a message shown in the current room.
type Line struct {
	ID                string
	RoomID            string
	AuthorAnonymousID string
	AuthorRole        models.Role
	Text              string
	CreatedAt         time.Time
}

// View is the scope state a client keeps for one participant.
type View struct {
	mu              sync.Mutex
	transport       Transport
	anonymousID     string
	role            models.Role
	institutionCode string
	scope           rooms.Scope
	history         []Line
}

// NewView builds an idle view. Call SwitchScope to enter a room.
func NewView(t Transport, anonymousID string, role models.Role, institutionCode string) *View {
	return &View{
		transport:       t,
		anonymousID:     anonymousID,
		role:            role,
		institutionCode: institutionCode,
	}
}

// Scope returns the current scope, zero when outside any room.
func (v *View) Scope() rooms.Scope {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scope
}

// RoomID returns the current room id or "".
func (v *View) RoomID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roomIDLocked()
}

func (v *View) roomIDLocked() string {
	if v.scope.IsZero() {
		return ""
	}
	return v.scope.RoomID()
}

// History returns a copy of the buffered lines for the current room.
func (v *View) History() []Line {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Line(nil), v.history...)
}

// Append buffers a line if it belongs to the current room.
func (v *View) Append(line Line) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if line.RoomID == "" || line.RoomID != v.roomIDLocked() {
		return false
	}
	v.history = append(v.history, line)
	return true
}

// SwitchScope clears the buffered history, leaves the current room and joins
// the new one, in that order. Switching to the current room is a no-op.
func (v *View) SwitchScope(next rooms.Scope) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.switchLocked(next)
}

func (v *View) switchLocked(next rooms.Scope) error {
	if next.IsZero() {
		return errors.New("session: cannot switch to an empty scope")
	}
	nextRoom := next.RoomID()
	prevRoom := v.roomIDLocked()
	if nextRoom == prevRoom {
		return nil
	}

	v.history = nil
	if prevRoom != "" {
		if err := v.transport.Leave(prevRoom); err != nil {
			return err
		}
		v.scope = rooms.Scope{}
	}
	if err := v.transport.Join(nextRoom); err != nil {
		return err
	}
	v.scope = next
	return nil
}

// HandleInvite acts on an invite addressed to this participant by moving into
// the private room. Invites for anyone else are ignored. It reports whether
// the view switched.
func (v *View) HandleInvite(inv Invite) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.anonymousID == "" || inv.TargetStudentID != v.anonymousID {
		return false, nil
	}
	// Counsellor ids may contain ':', so the room id is rebuilt rather than
	// parsed.
	if inv.CounsellorID == "" || inv.PrivateRoomID != rooms.PrivateRoomID(inv.CounsellorID, v.anonymousID) {
		return false, nil
	}
	if err := v.switchLocked(rooms.Private(inv.CounsellorID, v.anonymousID)); err != nil {
		return false, err
	}
	return true, nil
}

// InviteStudent sends a private-session request and moves the counsellor into
// the private room without waiting for the student.
func (v *View) InviteStudent(studentAnonymousID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	delivery, err := RequestPrivateSession(Request{
		Role:            v.role,
		InstitutionCode: v.institutionCode,
		CounsellorID:    v.anonymousID,
		TargetStudentID: studentAnonymousID,
	})
	if err != nil {
		return err
	}
	if err := v.transport.RequestPrivateSession(v.institutionCode, delivery.Invite.TargetStudentID, delivery.Invite.CounsellorID); err != nil {
		return err
	}
	return v.switchLocked(rooms.Private(delivery.Invite.CounsellorID, delivery.Invite.TargetStudentID))
}

// ExitPrivate leaves a private session. Students go back to their
// institution room; counsellors leave and return to the moderation list.
func (v *View) ExitPrivate() (Destination, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.scope.Kind() != rooms.KindPrivate {
		return StayPut, nil
	}
	if v.role == models.RoleCounsellor {
		room := v.roomIDLocked()
		v.history = nil
		if err := v.transport.Leave(room); err != nil {
			return StayPut, err
		}
		v.scope = rooms.Scope{}
		return ToModerationList, nil
	}
	if err := v.switchLocked(rooms.Institution(v.institutionCode)); err != nil {
		return StayPut, err
	}
	return ToInstitution, nil
}
