// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"slices"
	"strings"
)

type UserID string

const RoleAdministrator = "administrator"

// Participant links a user to a room. Its existence gates joining.
type Participant struct {
	RoomID RoomID
	UserID UserID
}

// Identity is a resolved user as seen by the chat core.
type Identity struct {
	UserID      UserID
	DisplayName string
	Roles       []string
}

func (i Identity) IsAdministrator() bool {
	return slices.ContainsFunc(i.Roles, func(role string) bool {
		return strings.EqualFold(role, RoleAdministrator)
	})
}

// FullName joins first and last names the way the platform displays users.
func FullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
