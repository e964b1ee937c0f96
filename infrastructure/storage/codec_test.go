package storage

import (
	"talent-chat/domain"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodec_Message(t *testing.T) {
	req := require.New(t)
	msg := domain.Message{
		ID:        uuid.New(),
		Room:      "room-1",
		SenderID:  "alice",
		Content:   "héllo 👋",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 42, time.UTC),
		Sequence:  7,
	}

	got, err := decodeMessage(encodeMessage(msg))

	req.NoError(err)
	req.Equal(msg, got)
}

func TestCodec_Room_Without_Team(t *testing.T) {
	req := require.New(t)
	room := domain.Room{ID: "s1", Name: "Support", Kind: domain.KindDirectSupport}

	got, err := decodeRoom(encodeRoom(room))

	req.NoError(err)
	req.Nil(got.TeamID)
	req.True(got.CreatedAt.IsZero())
	req.Equal(room, got)
}

func TestCodec_User_Skips_Unknown_Fields(t *testing.T) {
	req := require.New(t)
	// Given a record written by a newer version with an extra field
	b := encodeUser(domain.Identity{UserID: "u1", DisplayName: "Ada", Roles: []string{"administrator", "tech"}})
	b = protowire.AppendTag(b, 15, protowire.VarintType)
	b = protowire.AppendVarint(b, 99)

	got, err := decodeUser(b)

	req.NoError(err)
	req.Equal(domain.Identity{UserID: "u1", DisplayName: "Ada", Roles: []string{"administrator", "tech"}}, got)
}

func TestCodec_Corrupted(t *testing.T) {
	req := require.New(t)
	b := encodeMessage(domain.Message{ID: uuid.New(), Content: "truncated"})

	_, err := decodeMessage(b[:len(b)-3])
	req.Error(err)

	// Wrong wire type for a string field
	bad := protowire.AppendTag(nil, 2, protowire.VarintType)
	bad = protowire.AppendVarint(bad, 1)
	_, err = decodeRoom(bad)
	req.Error(err)
}
