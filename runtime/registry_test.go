package runtime

import (
	"context"
	"log/slog"
	"sync"
	"talent-chat/domain"
	"talent-chat/infrastructure/memory"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestSession(roomID domain.RoomID, user domain.UserID) *Session {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	identity := domain.Identity{UserID: user, DisplayName: string(user)}
	return NewSession(roomID, identity, memory.NewTransport(64), 16, log)
}

func TestRegistry_Register_One_Room_One_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("room-1")
	session := newTestSession(roomID, "alice")

	// Given no room is known
	req.Empty(registry.Rooms())
	req.Empty(registry.SessionsOf(roomID))

	// When a session registers
	registry.Register(roomID, session)

	// Then the room exists and holds the session
	req.Equal([]domain.RoomID{roomID}, registry.Rooms())
	req.Equal([]*Session{session}, registry.SessionsOf(roomID))
	req.Equal(1, registry.Count(roomID))
}

func TestRegistry_SessionsOf_Keeps_Join_Order(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("room-1")
	s1 := newTestSession(roomID, "alice")
	s2 := newTestSession(roomID, "bob")
	s3 := newTestSession(roomID, "alice")

	// When three sessions join, alice twice from two devices
	registry.Register(roomID, s1)
	registry.Register(roomID, s2)
	registry.Register(roomID, s3)

	// Then they are listed in join order
	req.Equal([]*Session{s1, s2, s3}, registry.SessionsOf(roomID))

	// When the middle one leaves
	registry.Deregister(roomID, s2)

	// Then order of the others is untouched
	req.Equal([]*Session{s1, s3}, registry.SessionsOf(roomID))
}

func TestRegistry_SessionsOf_Returns_A_Copy(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("room-1")
	s1 := newTestSession(roomID, "alice")
	s2 := newTestSession(roomID, "bob")
	registry.Register(roomID, s1)
	registry.Register(roomID, s2)

	// Given a snapshot
	snapshot := registry.SessionsOf(roomID)

	// When the snapshot is altered and the registry changes
	snapshot[0] = nil
	registry.Deregister(roomID, s2)

	// Then neither side sees the other's mutation
	req.Len(snapshot, 2)
	req.Equal([]*Session{s1}, registry.SessionsOf(roomID))
}

func TestRegistry_Register_Twice_Is_NoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("room-1")
	session := newTestSession(roomID, "alice")

	registry.Register(roomID, session)
	registry.Register(roomID, session)

	req.Equal(1, registry.Count(roomID))
}

func TestRegistry_Deregister_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("room-1")
	member := newTestSession(roomID, "alice")
	stranger := newTestSession(roomID, "bob")
	registry.Register(roomID, member)

	// When a non member leaves, and an unknown room is cleaned
	registry.Deregister(roomID, stranger)
	registry.Deregister("unknown", member)

	// Then nothing changed
	req.Equal([]*Session{member}, registry.SessionsOf(roomID))

	// When the member leaves twice
	registry.Deregister(roomID, member)
	registry.Deregister(roomID, member)

	// Then the room entry is gone
	req.Empty(registry.SessionsOf(roomID))
	req.Empty(registry.Rooms())
	req.Equal(0, registry.Count(roomID))
}

func TestRegistry_Register_After_Room_Emptied(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("room-1")
	first := newTestSession(roomID, "alice")
	second := newTestSession(roomID, "bob")

	// Given a room emptied by its only member
	registry.Register(roomID, first)
	registry.Deregister(roomID, first)

	// When someone joins again
	registry.Register(roomID, second)

	// Then a fresh entry is created
	req.Equal([]*Session{second}, registry.SessionsOf(roomID))
}

func TestRegistry_Rooms_Are_Independent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	a := newTestSession("room-a", "alice")
	b := newTestSession("room-b", "alice")

	registry.Register("room-a", a)
	registry.Register("room-b", b)
	registry.Deregister("room-a", a)

	req.Empty(registry.SessionsOf("room-a"))
	req.Equal([]*Session{b}, registry.SessionsOf("room-b"))
	req.ElementsMatch([]domain.RoomID{"room-b"}, registry.Rooms())
}

func TestRegistry_Concurrent_Join_And_Leave(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	roomID := domain.RoomID("room-1")
	const n = 200

	sessions := make([]*Session, n)
	for i := range sessions {
		sessions[i] = newTestSession(roomID, "user")
	}

	// When every session joins and half of them leave concurrently
	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			registry.Register(roomID, s)
			if i%2 == 0 {
				registry.Deregister(roomID, s)
			}
		}(i, s)
	}
	wg.Wait()

	// Then exactly the other half remains
	req.Equal(n/2, registry.Count(roomID))
	for _, s := range registry.SessionsOf(roomID) {
		req.NotNil(s)
	}
}

func TestRegistry_Drain(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	session := newTestSession("room-1", "alice")
	registry.Register("room-1", session)

	// Given a session still live, draining with a short bound fails
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	req.ErrorIs(registry.Drain(ctx), context.DeadlineExceeded)

	// When it leaves while draining
	go func() {
		time.Sleep(20 * time.Millisecond)
		registry.Deregister("room-1", session)
	}()

	// Then the drain completes
	req.NoError(registry.Drain(context.Background()))
	req.NoError(registry.Drain(context.Background()))
}
