package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"talent-chat/contract"
	"talent-chat/domain"
	"talent-chat/errors"
	"time"

	"github.com/google/uuid"
)

// A replaying session may hold back more deliveries than its live queue holds,
// since history is written while the room keeps talking.
const (
	replayBacklogFactor = 8
	minReplayBacklog    = 256
)

// Delivery is one rendered line for a session.
// MessageID is uuid.Nil for server notices that are not part of the room history.
type Delivery struct {
	MessageID uuid.UUID
	Text      string
}

// Session is the server side of one open connection to a room.
// A session starts in replay mode: deliveries pushed while the history is being
// written are held back, then flushed minus the ones the history already contained.
type Session struct {
	ID       uuid.UUID
	Room     domain.RoomID
	Identity domain.Identity
	JoinedAt time.Time

	transport  contract.Transport
	log        *slog.Logger
	maxPending int

	mu        sync.Mutex
	replaying bool
	closed    bool
	pending   []Delivery
	outbound  chan Delivery
	done      chan struct{}
}

func NewSession(roomID domain.RoomID, identity domain.Identity, transport contract.Transport, bufferSize int, log *slog.Logger) *Session {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Session{
		ID:         uuid.New(),
		Room:       roomID,
		Identity:   identity,
		JoinedAt:   time.Now().UTC(),
		transport:  transport,
		log:        log,
		maxPending: replayBacklog(bufferSize),
		replaying:  true,
		outbound:   make(chan Delivery, bufferSize),
		done:       make(chan struct{}),
	}
}

func replayBacklog(bufferSize int) int {
	return max(bufferSize*replayBacklogFactor, minReplayBacklog)
}

// Push enqueues a delivery without blocking.
// It fails with errors.ErrPeerDelivery when the session is closed or cannot keep up.
func (s *Session) Push(d Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session %s closed: %w", s.ID, errors.ErrPeerDelivery)
	}
	if s.replaying {
		if len(s.pending) >= s.maxPending {
			return fmt.Errorf("session %s replay backlog full: %w", s.ID, errors.ErrPeerDelivery)
		}
		s.pending = append(s.pending, d)
		return nil
	}
	select {
	case s.outbound <- d:
		return nil
	default:
		return fmt.Errorf("session %s outbound queue full: %w", s.ID, errors.ErrPeerDelivery)
	}
}

// Replay writes the history straight to the transport, flushes what was pushed
// meanwhile and switches the session to live delivery.
// Must be called once, before any other goroutine reads from the session.
func (s *Session) Replay(ctx context.Context, history []Delivery) error {
	seen := make(map[uuid.UUID]struct{}, len(history))
	for _, line := range history {
		seen[line.MessageID] = struct{}{}
		if err := s.transport.SendText(ctx, line.Text); err != nil {
			s.Close(err)
			return fmt.Errorf("replay to session %s: %w", s.ID, err)
		}
	}

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return fmt.Errorf("session %s closed during replay: %w", s.ID, errors.ErrPeerDelivery)
		}
		if len(s.pending) == 0 {
			s.replaying = false
			s.mu.Unlock()
			break
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, d := range batch {
			if _, ok := seen[d.MessageID]; ok && d.MessageID != uuid.Nil {
				continue
			}
			if err := s.transport.SendText(ctx, d.Text); err != nil {
				s.Close(err)
				return fmt.Errorf("flush to session %s: %w", s.ID, err)
			}
		}
	}

	go s.pump(ctx)
	return nil
}

// pump drains the outbound queue until the session is closed.
func (s *Session) pump(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-s.outbound:
			if !ok || s.Closed() {
				return
			}
			if err := s.transport.SendText(ctx, d.Text); err != nil {
				s.log.Debug("Write to session failed", "session_id", s.ID, "room_id", s.Room, "error", err)
				s.Close(err)
				return
			}
		}
	}
}

// Close marks the session closed and closes its transport. Safe to call many times.
func (s *Session) Close(reason error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	close(s.outbound)
	s.mu.Unlock()

	if err := s.transport.Close(reason); err != nil {
		s.log.Debug("Transport close failed", "session_id", s.ID, "error", err)
	}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done is closed once the writer pump has exited.
// It never closes for a session whose replay did not complete.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
