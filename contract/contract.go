//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"talent-chat/domain"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Credentials are whatever the caller presented when opening a connection.
type Credentials struct {
	Token      string
	RemoteAddr string
}

// IdentityResolver turns credentials into a stable user identity.
// It fails with errors.ErrUnauthorized when credentials are absent or invalid.
type IdentityResolver interface {
	Resolve(ctx context.Context, credentials Credentials) (domain.Identity, error)
}

type UserDirectory interface {
	User(ctx context.Context, id domain.UserID) (domain.Identity, error)
	PutUser(ctx context.Context, identity domain.Identity) error
}

// RoomDirectory answers room and participant lookups and holds room provisioning.
// Lookups of a missing room fail with errors.ErrNotFound.
type RoomDirectory interface {
	Room(ctx context.Context, id domain.RoomID) (domain.Room, error)
	Participants(ctx context.Context, id domain.RoomID) ([]domain.Identity, error)
	IsParticipant(ctx context.Context, id domain.RoomID, user domain.UserID) (bool, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	RoomsOf(ctx context.Context, user domain.UserID) ([]domain.Room, error)
	CreateRoom(ctx context.Context, room domain.Room) error
	DeleteRoom(ctx context.Context, id domain.RoomID) error
	AddParticipant(ctx context.Context, participant domain.Participant) error
	RemoveParticipant(ctx context.Context, participant domain.Participant) error
}

// MessageStore is the durable append-only log of messages per room.
// Transient backend failures are reported as errors.ErrStoreUnavailable.
type MessageStore interface {
	Append(ctx context.Context, room domain.RoomID, sender domain.UserID, text string) (domain.Message, error)
	History(ctx context.Context, room domain.RoomID) ([]domain.Message, error)
}

// Transport is a bidirectional text channel, one logical message per call.
// ReceiveText returns errors.ErrTransportClosed once the peer or the server closed it.
type Transport interface {
	ReceiveText(ctx context.Context) (string, error)
	SendText(ctx context.Context, text string) error
	Close(reason error) error
}

// Acceptor completes the transport handshake. It is only called once the
// caller has been authorised to join.
type Acceptor interface {
	Accept(ctx context.Context) (Transport, error)
}
