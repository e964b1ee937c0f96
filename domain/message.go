// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once appended to a room log.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event.
type Message struct {
	ID        uuid.UUID // unique identifier
	Room      RoomID
	SenderID  UserID
	Content   string
	CreatedAt time.Time
	// Sequence is the store insertion order, it breaks timestamp ties.
	Sequence uint64
}

const (
	SelfLabel    = "You"
	UnknownLabel = "Unknown user"
)

// RenderLine formats a message the way it is pushed on the wire.
func RenderLine(label, text string) string {
	return fmt.Sprintf("%s: %s", label, text)
}

// Label picks the sender label seen by viewer. The comparison is made on the
// user identifier, two users may share a display name.
func (m Message) Label(viewer UserID, names map[UserID]string) string {
	if m.SenderID == viewer {
		return SelfLabel
	}
	if name, ok := names[m.SenderID]; ok && name != "" {
		return name
	}
	return UnknownLabel
}
