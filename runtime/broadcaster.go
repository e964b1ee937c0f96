package runtime

import (
	"context"
	"log/slog"
	"talent-chat/domain"
)

// Broadcaster fans a delivery out to the live sessions of a room.
type Broadcaster struct {
	registry *Registry
	log      *slog.Logger
}

func NewBroadcaster(registry *Registry, log *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, log: log}
}

// Broadcast pushes the delivery to every session of the room except exclude,
// which may be nil. It returns how many sessions accepted the delivery.
// A session failing the push is deregistered and closed; the failure never
// reaches the caller and never stops delivery to the others.
func (b *Broadcaster) Broadcast(ctx context.Context, roomID domain.RoomID, d Delivery, exclude *Session) int {
	sessions := b.registry.SessionsOf(roomID)
	delivered := 0

	for _, session := range sessions {
		if ctx.Err() != nil {
			break
		}
		if exclude != nil && session.ID == exclude.ID {
			continue
		}
		if err := session.Push(d); err != nil {
			b.registry.Deregister(roomID, session)
			session.Close(err)
			b.log.Debug("Dropped session after failed delivery",
				"room_id", roomID, "session_id", session.ID, "user_id", session.Identity.UserID, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
