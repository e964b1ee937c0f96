package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"talent-chat/contract"
	"talent-chat/domain"
	"talent-chat/errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// RoomService provisions rooms and their participants.
// Live sessions are not touched: a removed participant keeps an open
// connection until it closes.
type RoomService struct {
	rooms contract.RoomDirectory
	log   *slog.Logger
	now   func() time.Time
}

func NewRoomService(rooms contract.RoomDirectory, log *slog.Logger) *RoomService {
	return &RoomService{rooms: rooms, log: log, now: time.Now}
}

// CreateRoom stores a new room with its creator as first participant.
func (s *RoomService) CreateRoom(ctx context.Context, name string, kind domain.RoomKind, teamID *string, creator domain.UserID) (domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Room{}, fmt.Errorf("empty name: %w", errors.ErrInvalidRoom)
	}
	if !kind.Valid() {
		return domain.Room{}, fmt.Errorf("kind %q: %w", kind, errors.ErrInvalidRoom)
	}
	if kind == domain.KindTeam && (teamID == nil || *teamID == "") {
		return domain.Room{}, fmt.Errorf("team room without team: %w", errors.ErrInvalidRoom)
	}

	room := domain.Room{
		ID:        domain.RoomID(uuid.NewString()),
		Name:      name,
		Kind:      kind,
		TeamID:    teamID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return domain.Room{}, err
	}
	if creator != "" {
		if err := s.rooms.AddParticipant(ctx, domain.Participant{RoomID: room.ID, UserID: creator}); err != nil {
			return domain.Room{}, err
		}
	}
	s.log.Info("Room created", "room_id", room.ID, "kind", room.Kind, "user_id", creator)
	return room, nil
}

// DeleteRoom removes the room, its participants and its messages.
func (s *RoomService) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	if _, err := s.rooms.Room(ctx, id); err != nil {
		return err
	}
	if err := s.rooms.DeleteRoom(ctx, id); err != nil {
		return err
	}
	s.log.Info("Room deleted", "room_id", id)
	return nil
}

func (s *RoomService) AddParticipant(ctx context.Context, id domain.RoomID, user domain.UserID) error {
	if _, err := s.rooms.Room(ctx, id); err != nil {
		return err
	}
	return s.rooms.AddParticipant(ctx, domain.Participant{RoomID: id, UserID: user})
}

func (s *RoomService) RemoveParticipant(ctx context.Context, id domain.RoomID, user domain.UserID) error {
	if _, err := s.rooms.Room(ctx, id); err != nil {
		return err
	}
	return s.rooms.RemoveParticipant(ctx, domain.Participant{RoomID: id, UserID: user})
}

// EnsureTeamRoom returns the room of the team, creating "<team name> chat"
// when the team has none yet. The owner and the members are made participants
// either way, so people joining the team later can enter its room.
func (s *RoomService) EnsureTeamRoom(ctx context.Context, teamID, teamName string, owner domain.UserID, members []domain.UserID) (domain.Room, error) {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return domain.Room{}, err
	}
	room, found := lo.Find(rooms, func(r domain.Room) bool {
		return r.Kind == domain.KindTeam && r.TeamID != nil && *r.TeamID == teamID
	})
	if !found {
		room, err = s.CreateRoom(ctx, fmt.Sprintf("%s chat", strings.TrimSpace(teamName)), domain.KindTeam, &teamID, "")
		if err != nil {
			return domain.Room{}, err
		}
	}

	people := lo.Without(lo.Uniq(append([]domain.UserID{owner}, members...)), "")
	for _, user := range people {
		if err := s.rooms.AddParticipant(ctx, domain.Participant{RoomID: room.ID, UserID: user}); err != nil {
			return domain.Room{}, err
		}
	}
	return room, nil
}

// SupportRoomFor finds the direct-support room the user takes part in.
func (s *RoomService) SupportRoomFor(ctx context.Context, user domain.UserID) (domain.Room, error) {
	rooms, err := s.rooms.RoomsOf(ctx, user)
	if err != nil {
		return domain.Room{}, err
	}
	room, found := lo.Find(rooms, func(r domain.Room) bool {
		return r.Kind == domain.KindDirectSupport
	})
	if !found {
		return domain.Room{}, fmt.Errorf("support room of %s: %w", user, errors.ErrNotFound)
	}
	return room, nil
}

func (s *RoomService) ListRooms(ctx context.Context, filter domain.RoomFilter) ([]domain.Room, error) {
	rooms, err := s.rooms.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(rooms, func(r domain.Room, _ int) bool {
		return filter.Match(r)
	}), nil
}
