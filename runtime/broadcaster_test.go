package runtime

import (
	"context"
	"log/slog"
	"talent-chat/domain"
	"talent-chat/infrastructure/memory"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type liveSession struct {
	session   *Session
	transport *memory.Transport
}

func joinLive(t *testing.T, ctx context.Context, registry *Registry, roomID domain.RoomID, user domain.UserID, buffer int) liveSession {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	transport := memory.NewTransport(64)
	session := NewSession(roomID, domain.Identity{UserID: user}, transport, buffer, log)
	registry.Register(roomID, session)
	require.NoError(t, session.Replay(ctx, nil))
	return liveSession{session: session, transport: transport}
}

func TestBroadcaster_Excludes_Sender(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, log)
	roomID := domain.RoomID("room-1")

	// Given alice on two devices and bob
	alicePhone := joinLive(t, ctx, registry, roomID, "alice", 8)
	aliceLaptop := joinLive(t, ctx, registry, roomID, "alice", 8)
	bob := joinLive(t, ctx, registry, roomID, "bob", 8)

	// When alice's phone sends
	n := broadcaster.Broadcast(ctx, roomID, Delivery{MessageID: uuid.New(), Text: "Alice: hi"}, alicePhone.session)

	// Then alice's laptop and bob receive it, the phone does not
	req.Equal(2, n)
	text, err := aliceLaptop.transport.Next(waitFor)
	req.NoError(err)
	req.Equal("Alice: hi", text)
	text, err = bob.transport.Next(waitFor)
	req.NoError(err)
	req.Equal("Alice: hi", text)
	req.Empty(alicePhone.transport.Drain())
}

func TestBroadcaster_Nil_Exclude_Reaches_Everyone(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, log)

	joinLive(t, ctx, registry, "room-1", "alice", 8)
	joinLive(t, ctx, registry, "room-1", "bob", 8)

	req.Equal(2, broadcaster.Broadcast(ctx, "room-1", Delivery{Text: "notice"}, nil))
}

func TestBroadcaster_Empty_Room(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	broadcaster := NewBroadcaster(NewRegistry(), log)

	req.Zero(broadcaster.Broadcast(context.Background(), "nobody", Delivery{Text: "hello?"}, nil))
}

func TestBroadcaster_Failing_Peer_Is_Isolated(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, log)
	roomID := domain.RoomID("room-1")

	sender := joinLive(t, ctx, registry, roomID, "alice", 8)
	healthy := joinLive(t, ctx, registry, roomID, "bob", 8)
	broken := joinLive(t, ctx, registry, roomID, "carol", 8)

	// Given carol's session already closed underneath
	broken.session.Close(nil)

	// When alice broadcasts
	n := broadcaster.Broadcast(ctx, roomID, Delivery{MessageID: uuid.New(), Text: "Alice: ping"}, sender.session)

	// Then bob still gets it and carol is dropped from the room
	req.Equal(1, n)
	text, err := healthy.transport.Next(waitFor)
	req.NoError(err)
	req.Equal("Alice: ping", text)
	req.Equal([]*Session{sender.session, healthy.session}, registry.SessionsOf(roomID))

	// And a later broadcast no longer attempts carol
	req.Equal(1, broadcaster.Broadcast(ctx, roomID, Delivery{Text: "Alice: again"}, sender.session))
}

func TestBroadcaster_Same_Sender_Order_Is_Preserved(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, log)

	sender := joinLive(t, ctx, registry, "room-1", "alice", 32)
	receiver := joinLive(t, ctx, registry, "room-1", "bob", 32)

	expected := []string{"Alice: 1", "Alice: 2", "Alice: 3", "Alice: 4"}
	for _, line := range expected {
		broadcaster.Broadcast(ctx, "room-1", Delivery{MessageID: uuid.New(), Text: line}, sender.session)
	}

	var got []string
	for range expected {
		text, err := receiver.transport.Next(waitFor)
		req.NoError(err)
		got = append(got, text)
	}
	req.Equal(expected, got)
}
