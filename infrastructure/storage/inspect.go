package storage

import (
	"fmt"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// InspectMapper renders a store entry for the badger debug inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	kind, rest, _ := strings.Cut(key, ":")
	row.Namespace = kind

	switch kind {
	case "msg":
		m, err := decodeMessage(val)
		if err != nil {
			row.Detail = "Error: decode failed"
			return row
		}
		row.Type = "MESSAGE"
		row.EntityID = m.ID.String()
		row.Timestamp = m.CreatedAt.Format("15:04:05")
		row.Detail = fmt.Sprintf("%s > %s", m.SenderID, m.Content)
	case "room":
		r, err := decodeRoom(val)
		if err != nil {
			row.Detail = "Error: decode failed"
			return row
		}
		row.Type = "ROOM"
		row.EntityID = string(r.ID)
		row.Timestamp = r.CreatedAt.Format("15:04:05")
		row.Detail = fmt.Sprintf("%s (%s)", r.Name, r.Kind)
	case "user":
		u, err := decodeUser(val)
		if err != nil {
			row.Detail = "Error: decode failed"
			return row
		}
		row.Type = "USER"
		row.EntityID = string(u.UserID)
		row.Detail = strings.TrimSpace(u.DisplayName + " " + strings.Join(u.Roles, ","))
	case "member", "joined":
		row.Type = "INDEX"
		row.Detail = rest
	}
	return row
}
