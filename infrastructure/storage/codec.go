package storage

import (
	"fmt"
	"talent-chat/domain"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Values are stored in protobuf wire format, unknown fields are skipped.
//
//	message Message { bytes id = 1; string room = 2; string sender = 3; string content = 4; int64 created_at = 5; uint64 sequence = 6; }
//	message Room    { string id = 1; string name = 2; string kind = 3; string team_id = 4; int64 created_at = 5; }
//	message User    { string id = 1; string display_name = 2; repeated string roles = 3; }

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// walk calls fn for every field. fn consumes the value and returns how many
// bytes it read, or a negative protowire error code.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func consumeString(typ protowire.Type, b []byte, into *string) int {
	if typ != protowire.BytesType {
		return -1
	}
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*into = v
	}
	return n
}

func consumeVarint(typ protowire.Type, b []byte, into *uint64) int {
	if typ != protowire.VarintType {
		return -1
	}
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*into = v
	}
	return n
}

func unixNano(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano())
}

func fromUnixNano(v uint64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(v)).UTC()
}

func encodeMessage(m domain.Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.ID[:])
	b = appendString(b, 2, string(m.Room))
	b = appendString(b, 3, string(m.SenderID))
	b = appendString(b, 4, m.Content)
	b = appendVarint(b, 5, unixNano(m.CreatedAt))
	b = appendVarint(b, 6, m.Sequence)
	return b
}

func decodeMessage(b []byte) (domain.Message, error) {
	var (
		m              domain.Message
		room, sender   string
		createdAt, seq uint64
		idErr          error
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			if typ != protowire.BytesType {
				return -1
			}
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				m.ID, idErr = uuid.FromBytes(v)
			}
			return n
		case 2:
			return consumeString(typ, b, &room)
		case 3:
			return consumeString(typ, b, &sender)
		case 4:
			return consumeString(typ, b, &m.Content)
		case 5:
			return consumeVarint(typ, b, &createdAt)
		case 6:
			return consumeVarint(typ, b, &seq)
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if idErr != nil {
		return domain.Message{}, fmt.Errorf("decode message id: %w", idErr)
	}
	m.Room = domain.RoomID(room)
	m.SenderID = domain.UserID(sender)
	m.CreatedAt = fromUnixNano(createdAt)
	m.Sequence = seq
	return m, nil
}

func encodeRoom(r domain.Room) []byte {
	var b []byte
	b = appendString(b, 1, string(r.ID))
	b = appendString(b, 2, r.Name)
	b = appendString(b, 3, string(r.Kind))
	if r.TeamID != nil {
		b = appendString(b, 4, *r.TeamID)
	}
	b = appendVarint(b, 5, unixNano(r.CreatedAt))
	return b
}

func decodeRoom(b []byte) (domain.Room, error) {
	var (
		r                domain.Room
		id, kind, teamID string
		createdAt        uint64
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &id)
		case 2:
			return consumeString(typ, b, &r.Name)
		case 3:
			return consumeString(typ, b, &kind)
		case 4:
			return consumeString(typ, b, &teamID)
		case 5:
			return consumeVarint(typ, b, &createdAt)
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if err != nil {
		return domain.Room{}, fmt.Errorf("decode room: %w", err)
	}
	r.ID = domain.RoomID(id)
	r.Kind = domain.RoomKind(kind)
	if teamID != "" {
		r.TeamID = &teamID
	}
	r.CreatedAt = fromUnixNano(createdAt)
	return r, nil
}

func encodeUser(u domain.Identity) []byte {
	var b []byte
	b = appendString(b, 1, string(u.UserID))
	b = appendString(b, 2, u.DisplayName)
	for _, role := range u.Roles {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, role)
	}
	return b
}

func decodeUser(b []byte) (domain.Identity, error) {
	var (
		u  domain.Identity
		id string
	)
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch num {
		case 1:
			return consumeString(typ, b, &id)
		case 2:
			return consumeString(typ, b, &u.DisplayName)
		case 3:
			var role string
			n := consumeString(typ, b, &role)
			if n >= 0 {
				u.Roles = append(u.Roles, role)
			}
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("decode user: %w", err)
	}
	u.UserID = domain.UserID(id)
	return u, nil
}
