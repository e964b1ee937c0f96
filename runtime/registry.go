package runtime

import (
	"context"
	"fmt"
	"sync"
	"talent-chat/domain"
	"time"
)

const drainPollInterval = 10 * time.Millisecond

// roomSessions holds the live sessions of one room in join order.
// A dead entry has been removed from the registry and must not be reused.
type roomSessions struct {
	mu       sync.Mutex
	sessions []*Session
	dead     bool
}

// Registry maps a room to the sessions currently connected to it.
// Each room has its own lock, there is no registry-wide lock.
type Registry struct {
	rooms sync.Map // domain.RoomID -> *roomSessions
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds the session to the room, creating the room entry on first use.
// Registering the same session twice is a no-op.
func (r *Registry) Register(roomID domain.RoomID, session *Session) {
	for {
		value, _ := r.rooms.LoadOrStore(roomID, &roomSessions{})
		entry := value.(*roomSessions)

		entry.mu.Lock()
		if entry.dead {
			// Lost the race against a Deregister emptying the room, retry on a fresh entry
			entry.mu.Unlock()
			continue
		}
		if indexOf(entry.sessions, session) < 0 {
			entry.sessions = append(entry.sessions, session)
		}
		entry.mu.Unlock()
		return
	}
}

// Deregister removes the session from the room.
// Removing a session that is not registered is a no-op.
// The room entry is dropped as soon as it becomes empty.
func (r *Registry) Deregister(roomID domain.RoomID, session *Session) {
	value, ok := r.rooms.Load(roomID)
	if !ok {
		return
	}
	entry := value.(*roomSessions)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	i := indexOf(entry.sessions, session)
	if i < 0 {
		return
	}
	// Keep join order
	entry.sessions = append(entry.sessions[:i:i], entry.sessions[i+1:]...)

	if len(entry.sessions) == 0 {
		entry.dead = true
		r.rooms.CompareAndDelete(roomID, entry)
	}
}

// SessionsOf returns a snapshot of the room's sessions in join order.
// The returned slice is never shared with the registry.
func (r *Registry) SessionsOf(roomID domain.RoomID) []*Session {
	value, ok := r.rooms.Load(roomID)
	if !ok {
		return nil
	}
	entry := value.(*roomSessions)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if len(entry.sessions) == 0 {
		return nil
	}
	snapshot := make([]*Session, len(entry.sessions))
	copy(snapshot, entry.sessions)
	return snapshot
}

func (r *Registry) Count(roomID domain.RoomID) int {
	value, ok := r.rooms.Load(roomID)
	if !ok {
		return 0
	}
	entry := value.(*roomSessions)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return len(entry.sessions)
}

// Rooms lists the rooms having at least one live session.
func (r *Registry) Rooms() []domain.RoomID {
	var rooms []domain.RoomID
	r.rooms.Range(func(key, value any) bool {
		entry := value.(*roomSessions)
		entry.mu.Lock()
		alive := !entry.dead && len(entry.sessions) > 0
		entry.mu.Unlock()
		if alive {
			rooms = append(rooms, key.(domain.RoomID))
		}
		return true
	})
	return rooms
}

// Drain waits until every session has deregistered, or ctx ends.
// Sessions deregister once their connection stopped using the stores.
func (r *Registry) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		rooms := r.Rooms()
		if len(rooms) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d rooms still live: %w", len(rooms), ctx.Err())
		case <-ticker.C:
		}
	}
}

func indexOf(sessions []*Session, session *Session) int {
	for i, s := range sessions {
		if s.ID == session.ID {
			return i
		}
	}
	return -1
}
