// Package rooms maps conversation scopes to room identifiers and decides
// which identifiers a connection may join.
package rooms

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates conversation scopes.
type Kind int

const (
	KindInstitution Kind = iota + 1
	KindGlobal
	KindPeerSupport
	KindPrivate
)

func (k Kind) String() string {
	switch k {
	case KindInstitution:
		return "institution"
	case KindGlobal:
		return "global"
	case KindPeerSupport:
		return "peer_support"
	case KindPrivate:
		return "private"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Room id prefixes.
const (
	PrefixInstitution = "inst:"
	PrefixGlobal      = "global:"
	PrefixPeer        = "peer:"
	PrefixPrivate     = "private:"

	// GlobalRoomID is the single global room.
	GlobalRoomID = "global:public"
	// PublicInstitution stands in for a missing institution code.
	PublicInstitution = "public"
)

// ErrNotJoinable is returned by Parse for identifiers outside the reserved
// prefixes.
var ErrNotJoinable = errors.New("rooms: room id is not joinable")

// Scope is a conversation scope. Build it with Institution, Global,
// PeerSupport or Private.
type Scope struct {
	kind            Kind
	institutionCode string
	counsellorID    string
	studentID       string
}

// Institution is the institution-wide scope. An empty code maps to the public
// institution room.
func Institution(code string) Scope {
	return Scope{kind: KindInstitution, institutionCode: code}
}

// Global is the cross-institution scope.
func Global() Scope {
	return Scope{kind: KindGlobal}
}

// PeerSupport is the institution's peer-support scope.
func PeerSupport(code string) Scope {
	return Scope{kind: KindPeerSupport, institutionCode: code}
}

// Private is the one-to-one counsellor session with a student.
func Private(counsellorID, studentAnonymousID string) Scope {
	return Scope{kind: KindPrivate, counsellorID: counsellorID, studentID: studentAnonymousID}
}

func (s Scope) Kind() Kind                 { return s.kind }
func (s Scope) InstitutionCode() string    { return s.institutionCode }
func (s Scope) CounsellorID() string       { return s.counsellorID }
func (s Scope) StudentAnonymousID() string { return s.studentID }

// IsZero reports whether s was never constructed.
func (s Scope) IsZero() bool { return s.kind == 0 }

// RoomID derives the scope's room identifier.
func (s Scope) RoomID() string {
	return DeriveRoomID(s)
}

// DeriveRoomID maps a scope to its stable room identifier.
func DeriveRoomID(s Scope) string {
	switch s.kind {
	case KindInstitution:
		code := s.institutionCode
		if code == "" {
			code = PublicInstitution
		}
		return PrefixInstitution + code
	case KindGlobal:
		return GlobalRoomID
	case KindPeerSupport:
		return PrefixPeer + s.institutionCode
	case KindPrivate:
		return PrivateRoomID(s.counsellorID, s.studentID)
	default:
		panic(fmt.Sprintf("rooms: unconstructed scope %v", s.kind))
	}
}

// PrivateRoomID is deterministic in its inputs.
func PrivateRoomID(counsellorID, studentAnonymousID string) string {
	return PrefixPrivate + counsellorID + ":" + studentAnonymousID
}

// Parse recovers the scope of a joinable room id.
func Parse(roomID string) (Scope, error) {
	switch {
	case strings.HasPrefix(roomID, PrefixInstitution):
		code := strings.TrimPrefix(roomID, PrefixInstitution)
		if code == "" {
			break
		}
		if code == PublicInstitution {
			code = ""
		}
		return Institution(code), nil
	case strings.HasPrefix(roomID, PrefixGlobal):
		if strings.TrimPrefix(roomID, PrefixGlobal) == "" {
			break
		}
		return Global(), nil
	case strings.HasPrefix(roomID, PrefixPeer):
		code := strings.TrimPrefix(roomID, PrefixPeer)
		if code == "" {
			break
		}
		return PeerSupport(code), nil
	case strings.HasPrefix(roomID, PrefixPrivate):
		rest := strings.TrimPrefix(roomID, PrefixPrivate)
		// Anonymous ids never contain ':', counsellor ids may.
		i := strings.LastIndex(rest, ":")
		if i <= 0 || i == len(rest)-1 {
			break
		}
		return Private(rest[:i], rest[i+1:]), nil
	}
	return Scope{}, fmt.Errorf("%w: %q", ErrNotJoinable, roomID)
}

// IsJoinable reports whether roomID carries one of the reserved prefixes
// with a non-empty remainder.
func IsJoinable(roomID string) bool {
	for _, prefix := range []string{PrefixInstitution, PrefixGlobal, PrefixPeer, PrefixPrivate} {
		if strings.HasPrefix(roomID, prefix) {
			return len(roomID) > len(prefix)
		}
	}
	return false
}
