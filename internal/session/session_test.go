package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindpalace/backend/internal/models"
	"mindpalace/backend/internal/rooms"
)

type recordingTransport struct {
	calls   []string
	failOn  string
	invites []Invite
}

func (t *recordingTransport) Join(roomID string) error {
	t.calls = append(t.calls, "join "+roomID)
	if t.failOn == "join" {
		return errors.New("join failed")
	}
	return nil
}

func (t *recordingTransport) Leave(roomID string) error {
	t.calls = append(t.calls, "leave "+roomID)
	return nil
}

func (t *recordingTransport) RequestPrivateSession(inst, student, counsellor string) error {
	t.calls = append(t.calls, "invite "+student)
	t.invites = append(t.invites, Invite{TargetStudentID: student, CounsellorID: counsellor})
	return nil
}

func TestRequestPrivateSession(t *testing.T) {
	req := Request{Role: models.RoleCounsellor, InstitutionCode: "INST1", CounsellorID: "C1", TargetStudentID: "S1"}

	first, err := RequestPrivateSession(req)
	require.NoError(t, err)
	second, err := RequestPrivateSession(req)
	require.NoError(t, err)

	assert.Equal(t, "inst:INST1", first.Room)
	assert.Equal(t, "private:C1:S1", first.Invite.PrivateRoomID)
	assert.Equal(t, first, second)

	_, err = RequestPrivateSession(Request{Role: models.RoleStudent, CounsellorID: "C1", TargetStudentID: "S1"})
	assert.ErrorIs(t, err, ErrNotCounsellor)

	_, err = RequestPrivateSession(Request{Role: models.RoleCounsellor, CounsellorID: "C1"})
	assert.ErrorIs(t, err, ErrMissingParticipant)
}

func TestSwitchScopeOrder(t *testing.T) {
	tr := &recordingTransport{}
	v := NewView(tr, "S1", models.RoleStudent, "INST1")

	require.NoError(t, v.SwitchScope(rooms.Institution("INST1")))
	assert.True(t, v.Append(Line{RoomID: "inst:INST1", Text: "hi"}))
	assert.False(t, v.Append(Line{RoomID: "global:public", Text: "elsewhere"}))
	require.Len(t, v.History(), 1)

	require.NoError(t, v.SwitchScope(rooms.Global()))
	assert.Empty(t, v.History())
	assert.Equal(t, []string{"join inst:INST1", "leave inst:INST1", "join global:public"}, tr.calls)

	require.NoError(t, v.SwitchScope(rooms.Global()))
	assert.Len(t, tr.calls, 3)
}

func TestSwitchScopeJoinFailureLeavesViewOutsideRooms(t *testing.T) {
	tr := &recordingTransport{}
	v := NewView(tr, "S1", models.RoleStudent, "INST1")
	require.NoError(t, v.SwitchScope(rooms.Institution("INST1")))

	tr.failOn = "join"
	assert.Error(t, v.SwitchScope(rooms.Global()))
	assert.Equal(t, "", v.RoomID())
}

func TestHandleInviteMatchesOnlyTarget(t *testing.T) {
	inv := Invite{TargetStudentID: "S1", PrivateRoomID: "private:C1:S1", CounsellorID: "C1"}

	s1 := NewView(&recordingTransport{}, "S1", models.RoleStudent, "INST1")
	s2 := NewView(&recordingTransport{}, "S2", models.RoleStudent, "INST1")
	require.NoError(t, s1.SwitchScope(rooms.Institution("INST1")))
	require.NoError(t, s2.SwitchScope(rooms.Institution("INST1")))

	switched, err := s1.HandleInvite(inv)
	require.NoError(t, err)
	assert.True(t, switched)
	assert.Equal(t, "private:C1:S1", s1.RoomID())

	switched, err = s2.HandleInvite(inv)
	require.NoError(t, err)
	assert.False(t, switched)
	assert.Equal(t, "inst:INST1", s2.RoomID())
}

func TestHandleInviteIgnoresForgedRoom(t *testing.T) {
	v := NewView(&recordingTransport{}, "S1", models.RoleStudent, "INST1")
	switched, err := v.HandleInvite(Invite{TargetStudentID: "S1", PrivateRoomID: "inst:OTHER"})
	require.NoError(t, err)
	assert.False(t, switched)
}

func TestHandleInviteWithColonInCounsellorID(t *testing.T) {
	delivery, err := RequestPrivateSession(Request{Role: models.RoleCounsellor, InstitutionCode: "INST1", CounsellorID: "team:C1", TargetStudentID: "S1"})
	require.NoError(t, err)
	assert.Equal(t, "private:team:C1:S1", delivery.Invite.PrivateRoomID)

	tr := &recordingTransport{}
	v := NewView(tr, "S1", models.RoleStudent, "INST1")
	require.NoError(t, v.SwitchScope(rooms.Institution("INST1")))

	switched, err := v.HandleInvite(delivery.Invite)
	require.NoError(t, err)
	assert.True(t, switched)
	assert.Equal(t, "private:team:C1:S1", v.RoomID())
	assert.Equal(t, "team:C1", v.Scope().CounsellorID())
	assert.Equal(t, []string{"join inst:INST1", "leave inst:INST1", "join private:team:C1:S1"}, tr.calls)
}

func TestHandleInviteIgnoresMismatchedRoom(t *testing.T) {
	v := NewView(&recordingTransport{}, "S1", models.RoleStudent, "INST1")
	switched, err := v.HandleInvite(Invite{TargetStudentID: "S1", CounsellorID: "C1", PrivateRoomID: "private:C2:S1"})
	require.NoError(t, err)
	assert.False(t, switched)
	assert.Equal(t, "", v.RoomID())
}

func TestCounsellorInviteAndExit(t *testing.T) {
	tr := &recordingTransport{}
	c := NewView(tr, "C1", models.RoleCounsellor, "INST1")
	require.NoError(t, c.SwitchScope(rooms.Institution("INST1")))

	require.NoError(t, c.InviteStudent("S1"))
	assert.Equal(t, "private:C1:S1", c.RoomID())
	require.Len(t, tr.invites, 1)
	assert.Equal(t, "C1", tr.invites[0].CounsellorID)

	dest, err := c.ExitPrivate()
	require.NoError(t, err)
	assert.Equal(t, ToModerationList, dest)
	assert.Equal(t, "", c.RoomID())

	student := NewView(&recordingTransport{}, "S2", models.RoleStudent, "INST1")
	assert.ErrorIs(t, student.InviteStudent("S1"), ErrNotCounsellor)
}

func TestStudentExitReturnsToInstitution(t *testing.T) {
	v := NewView(&recordingTransport{}, "S1", models.RoleStudent, "INST1")
	require.NoError(t, v.SwitchScope(rooms.Private("C1", "S1")))

	dest, err := v.ExitPrivate()
	require.NoError(t, err)
	assert.Equal(t, ToInstitution, dest)
	assert.Equal(t, "inst:INST1", v.RoomID())

	dest, err = v.ExitPrivate()
	require.NoError(t, err)
	assert.Equal(t, StayPut, dest)
}
