package domain

import (
	"strings"
	"time"
)

type RoomID string

func (r RoomID) String() string {
	return string(r)
}

// Valid reports whether the identifier can be used as a storage key segment.
func (r RoomID) Valid() bool {
	s := string(r)
	return strings.TrimSpace(s) != "" && !strings.Contains(s, ":")
}

type RoomKind string

const (
	KindDirectSupport RoomKind = "direct-support"
	KindTeam          RoomKind = "team"
)

func (k RoomKind) Valid() bool {
	return k == KindDirectSupport || k == KindTeam
}

// Room is a chat conversation scope. It is immutable once provisioned,
// only deletion is allowed.
type Room struct {
	ID        RoomID
	Name      string
	Kind      RoomKind
	TeamID    *string
	CreatedAt time.Time
}

// RoomFilter mirrors the listing filters exposed to administrators.
type RoomFilter string

const (
	FilterNone  RoomFilter = "none"
	FilterTeams RoomFilter = "teams"
	FilterTechs RoomFilter = "techs"
)

func (f RoomFilter) Match(room Room) bool {
	switch f {
	case FilterTeams:
		return room.Kind == KindTeam
	case FilterTechs:
		return room.Kind == KindDirectSupport
	default:
		return true
	}
}
