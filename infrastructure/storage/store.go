package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"talent-chat/domain"
	"talent-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const sequenceBandwidth = 100

// Store keeps rooms, participants, users and messages in BadgerDB.
//
// Key layout, every segment escaped:
//
//	room:{room}                  -> Room
//	member:{room}:{user}         -> empty
//	joined:{user}:{room}         -> empty, reverse index of member
//	user:{user}                  -> User
//	msg:{room}:{sequence:020d}   -> Message
//
// The zero padded sequence makes a prefix scan return a room's messages in
// insertion order.
type Store struct {
	db       *badger.DB
	sequence *badger.Sequence
	log      *slog.Logger
	now      func() time.Time
	// appendMu makes sequence order and commit order the same
	appendMu sync.Mutex
}

// Open opens (or creates) the database directory and returns a ready Store.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	store, err := New(db, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func New(db *badger.DB, log *slog.Logger) (*Store, error) {
	seq, err := db.GetSequence([]byte("seq:msg"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &Store{db: db, sequence: seq, log: log, now: time.Now}, nil
}

// Close releases the leased sequence range then closes the database.
func (s *Store) Close() error {
	if err := s.sequence.Release(); err != nil {
		s.log.Warn("Sequence release failed", "error", err)
	}
	return s.db.Close()
}

// Size reports the LSM and value log sizes in bytes.
func (s *Store) Size() (int64, int64) {
	return s.db.Size()
}

func part(s string) string {
	return url.QueryEscape(s)
}

func roomKey(id domain.RoomID) []byte {
	return []byte("room:" + part(string(id)))
}

func memberPrefix(id domain.RoomID) []byte {
	return []byte("member:" + part(string(id)) + ":")
}

func memberKey(p domain.Participant) []byte {
	return append(memberPrefix(p.RoomID), part(string(p.UserID))...)
}

func joinedPrefix(user domain.UserID) []byte {
	return []byte("joined:" + part(string(user)) + ":")
}

func joinedKey(p domain.Participant) []byte {
	return append(joinedPrefix(p.UserID), part(string(p.RoomID))...)
}

func userKey(id domain.UserID) []byte {
	return []byte("user:" + part(string(id)))
}

func messagePrefix(id domain.RoomID) []byte {
	return []byte("msg:" + part(string(id)) + ":")
}

func messageKey(id domain.RoomID, seq uint64) []byte {
	return fmt.Appendf(messagePrefix(id), "%020d", seq)
}

// classify maps badger failures onto the chat error sentinels.
func classify(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("%s: %w", what, errors.ErrNotFound)
	case stderrors.Is(err, errors.ErrNotFound), stderrors.Is(err, errors.ErrAlreadyExists):
		return err
	default:
		return fmt.Errorf("%s: %w: %v", what, errors.ErrStoreUnavailable, err)
	}
}

// Append stores a message at the end of the room log.
// A message never becomes visible before one holding a lower sequence.
func (s *Store) Append(_ context.Context, room domain.RoomID, sender domain.UserID, text string) (domain.Message, error) {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	seq, err := s.sequence.Next()
	if err != nil {
		return domain.Message{}, classify(err, "next sequence")
	}
	// Badger sequences start at 0
	seq++

	msg := domain.Message{
		ID:        uuid.New(),
		Room:      room,
		SenderID:  sender,
		Content:   text,
		CreatedAt: s.now().UTC(),
		Sequence:  seq,
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room)); err != nil {
			return err
		}
		return txn.Set(messageKey(room, seq), encodeMessage(msg))
	})
	if err != nil {
		return domain.Message{}, classify(err, fmt.Sprintf("append to room %s", room))
	}
	return msg, nil
}

// History returns every message of the room in insertion order.
func (s *Store) History(_ context.Context, room domain.RoomID) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(room)
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				msg, err := decodeMessage(v)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, fmt.Sprintf("history of room %s", room))
	}
	return messages, nil
}

func (s *Store) Room(_ context.Context, id domain.RoomID) (domain.Room, error) {
	var room domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			room, err = decodeRoom(v)
			return err
		})
	})
	if err != nil {
		return domain.Room{}, classify(err, fmt.Sprintf("room %s", id))
	}
	return room, nil
}

func (s *Store) ListRooms(_ context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		return s.scanRooms(txn, func(r domain.Room) { rooms = append(rooms, r) })
	})
	if err != nil {
		return nil, classify(err, "list rooms")
	}
	return rooms, nil
}

func (s *Store) scanRooms(txn *badger.Txn, fn func(domain.Room)) error {
	prefix := []byte("room:")
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		err := it.Item().Value(func(v []byte) error {
			room, err := decodeRoom(v)
			if err != nil {
				return err
			}
			fn(room)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RoomsOf lists the rooms the user takes part in.
func (s *Store) RoomsOf(_ context.Context, user domain.UserID) ([]domain.Room, error) {
	var rooms []domain.Room
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := joinedPrefix(user)
		keys := collectKeys(txn, prefix)
		for _, key := range keys {
			escaped := string(key[len(prefix):])
			id, err := url.QueryUnescape(escaped)
			if err != nil {
				return err
			}
			item, err := txn.Get(roomKey(domain.RoomID(id)))
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(v []byte) error {
				room, err := decodeRoom(v)
				if err == nil {
					rooms = append(rooms, room)
				}
				return err
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, fmt.Sprintf("rooms of %s", user))
	}
	return rooms, nil
}

func (s *Store) CreateRoom(_ context.Context, room domain.Room) error {
	if !room.ID.Valid() {
		return fmt.Errorf("room id %q: %w", room.ID, errors.ErrInvalidRoom)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room.ID)); err == nil {
			return fmt.Errorf("room %s: %w", room.ID, errors.ErrAlreadyExists)
		}
		return txn.Set(roomKey(room.ID), encodeRoom(room))
	})
	return classify(err, fmt.Sprintf("create room %s", room.ID))
}

// DeleteRoom drops the room with its participants and messages.
// A write batch is used since a busy room does not fit in one transaction.
func (s *Store) DeleteRoom(_ context.Context, id domain.RoomID) error {
	var members, messages [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(id)); err != nil {
			return err
		}
		members = collectKeys(txn, memberPrefix(id))
		messages = collectKeys(txn, messagePrefix(id))
		return nil
	})
	if err != nil {
		return classify(err, fmt.Sprintf("delete room %s", id))
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	prefixLen := len(memberPrefix(id))
	for _, key := range members {
		user, err := url.QueryUnescape(string(key[prefixLen:]))
		if err != nil {
			return classify(err, "decode member key")
		}
		if err := wb.Delete(joinedKey(domain.Participant{RoomID: id, UserID: domain.UserID(user)})); err != nil {
			return classify(err, "delete member index")
		}
		if err := wb.Delete(key); err != nil {
			return classify(err, "delete member")
		}
	}
	for _, key := range messages {
		if err := wb.Delete(key); err != nil {
			return classify(err, "delete message")
		}
	}
	if err := wb.Delete(roomKey(id)); err != nil {
		return classify(err, "delete room")
	}
	if err := wb.Flush(); err != nil {
		return classify(err, fmt.Sprintf("delete room %s", id))
	}
	s.log.Debug("Room deleted", "room_id", id, "participants", len(members), "messages", len(messages))
	return nil
}

func (s *Store) AddParticipant(_ context.Context, p domain.Participant) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(p.RoomID)); err != nil {
			return err
		}
		if err := txn.Set(memberKey(p), nil); err != nil {
			return err
		}
		return txn.Set(joinedKey(p), nil)
	})
	return classify(err, fmt.Sprintf("add %s to room %s", p.UserID, p.RoomID))
}

func (s *Store) RemoveParticipant(_ context.Context, p domain.Participant) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(memberKey(p)); err != nil {
			return err
		}
		return txn.Delete(joinedKey(p))
	})
	return classify(err, fmt.Sprintf("remove %s from room %s", p.UserID, p.RoomID))
}

func (s *Store) IsParticipant(_ context.Context, id domain.RoomID, user domain.UserID) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(memberKey(domain.Participant{RoomID: id, UserID: user}))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, classify(err, fmt.Sprintf("membership of %s in %s", user, id))
	}
}

// Participants returns the room members with their display names.
// A member without a user record gets an empty display name.
func (s *Store) Participants(_ context.Context, id domain.RoomID) ([]domain.Identity, error) {
	var identities []domain.Identity
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(id)); err != nil {
			return err
		}
		prefix := memberPrefix(id)
		for _, key := range collectKeys(txn, prefix) {
			raw, err := url.QueryUnescape(string(key[len(prefix):]))
			if err != nil {
				return err
			}
			userID := domain.UserID(raw)
			identity, err := getUser(txn, userID)
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				identity = domain.Identity{UserID: userID}
			} else if err != nil {
				return err
			}
			identities = append(identities, identity)
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, fmt.Sprintf("participants of %s", id))
	}
	return identities, nil
}

func (s *Store) User(_ context.Context, id domain.UserID) (domain.Identity, error) {
	var identity domain.Identity
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		identity, err = getUser(txn, id)
		return err
	})
	if err != nil {
		return domain.Identity{}, classify(err, fmt.Sprintf("user %s", id))
	}
	return identity, nil
}

// PutUser creates or replaces the user record.
func (s *Store) PutUser(_ context.Context, identity domain.Identity) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(identity.UserID), encodeUser(identity))
	})
	return classify(err, fmt.Sprintf("put user %s", identity.UserID))
}

func getUser(txn *badger.Txn, id domain.UserID) (domain.Identity, error) {
	item, err := txn.Get(userKey(id))
	if err != nil {
		return domain.Identity{}, err
	}
	var identity domain.Identity
	err = item.Value(func(v []byte) error {
		identity, err = decodeUser(v)
		return err
	})
	return identity, err
}

// collectKeys copies every key under prefix, values are not read.
func collectKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

// DB exposes the underlying database for the debug inspector.
func (s *Store) DB() *badger.DB {
	return s.db
}
