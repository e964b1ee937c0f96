// Package sqlite is the relational store adapter, selected with STORE_DRIVER=sqlite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"talent-chat/domain"
	"talent-chat/errors"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql
var schema string

type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// Open opens the database file and applies the schema.
func Open(path string, log *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required: %w", errors.ErrInvalidConfig)
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time, sqlite serialises them anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: log, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !stderrors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func classify(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", what, errors.ErrNotFound)
	case stderrors.Is(err, errors.ErrNotFound), stderrors.Is(err, errors.ErrAlreadyExists):
		return err
	case isConstraintError(err):
		return fmt.Errorf("%s: %w", what, errors.ErrAlreadyExists)
	default:
		return fmt.Errorf("%s: %w: %v", what, errors.ErrStoreUnavailable, err)
	}
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

// withTx runs fn in a transaction, rolled back on any error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func roomExists(ctx context.Context, tx *sql.Tx, id domain.RoomID) error {
	var one int
	return tx.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, string(id)).Scan(&one)
}

func (s *Store) Append(ctx context.Context, room domain.RoomID, sender domain.UserID, text string) (domain.Message, error) {
	msg := domain.Message{
		ID:        uuid.New(),
		Room:      room,
		SenderID:  sender,
		Content:   text,
		CreatedAt: s.now().UTC(),
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := roomExists(ctx, tx, room); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO messages (id, room_id, sender_id, content, created_at)
VALUES (?, ?, ?, ?, ?)
`, msg.ID.String(), string(room), string(sender), text, unixNano(msg.CreatedAt))
		if err != nil {
			return err
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return err
		}
		msg.Sequence = uint64(seq)
		return nil
	})
	if err != nil {
		return domain.Message{}, classify(err, fmt.Sprintf("append to room %s", room))
	}
	return msg, nil
}

func (s *Store) History(ctx context.Context, room domain.RoomID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, id, sender_id, content, created_at
FROM messages
WHERE room_id = ?
ORDER BY seq
`, string(room))
	if err != nil {
		return nil, classify(err, fmt.Sprintf("history of room %s", room))
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg := domain.Message{Room: room}
		var (
			id, sender string
			createdAt  int64
		)
		if err := rows.Scan(&msg.Sequence, &id, &sender, &msg.Content, &createdAt); err != nil {
			return nil, classify(err, "scan message")
		}
		if msg.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("message id %q: %w", id, err)
		}
		msg.SenderID = domain.UserID(sender)
		msg.CreatedAt = fromUnixNano(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, fmt.Sprintf("history of room %s", room))
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (domain.Room, error) {
	var (
		room      domain.Room
		id, kind  string
		teamID    sql.NullString
		createdAt int64
	)
	if err := row.Scan(&id, &room.Name, &kind, &teamID, &createdAt); err != nil {
		return domain.Room{}, err
	}
	room.ID = domain.RoomID(id)
	room.Kind = domain.RoomKind(kind)
	if teamID.Valid {
		room.TeamID = &teamID.String
	}
	room.CreatedAt = fromUnixNano(createdAt)
	return room, nil
}

func (s *Store) Room(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, kind, team_id, created_at FROM rooms WHERE id = ?`, string(id))
	room, err := scanRoom(row)
	if err != nil {
		return domain.Room{}, classify(err, fmt.Sprintf("room %s", id))
	}
	return room, nil
}

func (s *Store) queryRooms(ctx context.Context, what, query string, args ...any) ([]domain.Room, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, what)
	}
	defer rows.Close()

	var rooms []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, classify(err, what)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, what)
	}
	return rooms, nil
}

func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	return s.queryRooms(ctx, "list rooms", `SELECT id, name, kind, team_id, created_at FROM rooms ORDER BY created_at, id`)
}

func (s *Store) RoomsOf(ctx context.Context, user domain.UserID) ([]domain.Room, error) {
	return s.queryRooms(ctx, fmt.Sprintf("rooms of %s", user), `
SELECT r.id, r.name, r.kind, r.team_id, r.created_at
FROM rooms r
JOIN participants p ON p.room_id = r.id
WHERE p.user_id = ?
ORDER BY r.created_at, r.id
`, string(user))
}

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	if !room.ID.Valid() {
		return fmt.Errorf("room id %q: %w", room.ID, errors.ErrInvalidRoom)
	}
	var teamID sql.NullString
	if room.TeamID != nil {
		teamID = sql.NullString{String: *room.TeamID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO rooms (id, name, kind, team_id, created_at) VALUES (?, ?, ?, ?, ?)
`, string(room.ID), room.Name, string(room.Kind), teamID, unixNano(room.CreatedAt))
	return classify(err, fmt.Sprintf("create room %s", room.ID))
}

// DeleteRoom drops the room with its participants and messages in one transaction.
func (s *Store) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := roomExists(ctx, tx, id); err != nil {
			return err
		}
		for _, stmt := range []string{
			`DELETE FROM messages WHERE room_id = ?`,
			`DELETE FROM participants WHERE room_id = ?`,
			`DELETE FROM rooms WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, string(id)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return classify(err, fmt.Sprintf("delete room %s", id))
	}
	s.log.Debug("Room deleted", "room_id", id)
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, p domain.Participant) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := roomExists(ctx, tx, p.RoomID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO participants (room_id, user_id) VALUES (?, ?)`,
			string(p.RoomID), string(p.UserID))
		return err
	})
	return classify(err, fmt.Sprintf("add %s to room %s", p.UserID, p.RoomID))
}

func (s *Store) RemoveParticipant(ctx context.Context, p domain.Participant) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM participants WHERE room_id = ? AND user_id = ?`,
		string(p.RoomID), string(p.UserID))
	return classify(err, fmt.Sprintf("remove %s from room %s", p.UserID, p.RoomID))
}

func (s *Store) IsParticipant(ctx context.Context, id domain.RoomID, user domain.UserID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM participants WHERE room_id = ? AND user_id = ?`,
		string(id), string(user)).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, classify(err, fmt.Sprintf("membership of %s in %s", user, id))
	}
}

// Participants returns the room members with their display names.
// A member without a user record gets an empty display name.
func (s *Store) Participants(ctx context.Context, id domain.RoomID) ([]domain.Identity, error) {
	var identities []domain.Identity
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := roomExists(ctx, tx, id); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx, `
SELECT p.user_id, COALESCE(u.display_name, ''), COALESCE(u.roles, '')
FROM participants p
LEFT JOIN users u ON u.id = p.user_id
WHERE p.room_id = ?
ORDER BY p.user_id
`, string(id))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var user, name, roles string
			if err := rows.Scan(&user, &name, &roles); err != nil {
				return err
			}
			identities = append(identities, domain.Identity{UserID: domain.UserID(user), DisplayName: name, Roles: splitRoles(roles)})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classify(err, fmt.Sprintf("participants of %s", id))
	}
	return identities, nil
}

func (s *Store) User(ctx context.Context, id domain.UserID) (domain.Identity, error) {
	var name, roles string
	err := s.db.QueryRowContext(ctx, `SELECT display_name, roles FROM users WHERE id = ?`, string(id)).Scan(&name, &roles)
	if err != nil {
		return domain.Identity{}, classify(err, fmt.Sprintf("user %s", id))
	}
	return domain.Identity{UserID: id, DisplayName: name, Roles: splitRoles(roles)}, nil
}

// PutUser creates or replaces the user record.
func (s *Store) PutUser(ctx context.Context, identity domain.Identity) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, display_name, roles) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, roles = excluded.roles
`, string(identity.UserID), identity.DisplayName, strings.Join(identity.Roles, ","))
	return classify(err, fmt.Sprintf("put user %s", identity.UserID))
}

func splitRoles(roles string) []string {
	if roles == "" {
		return nil
	}
	return strings.Split(roles, ",")
}
