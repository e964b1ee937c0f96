// Package httpapi exposes the chat gateway over HTTP: the websocket endpoint,
// room presence and a health probe.
package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"talent-chat/auth"
	"talent-chat/contract"
	"talent-chat/domain"
	"talent-chat/errors"
	"talent-chat/infrastructure/websocket"
	"talent-chat/runtime"
	"talent-chat/services"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Gateway is the part of services.ChatGateway the HTTP layer drives.
type Gateway interface {
	Admit(ctx context.Context, credentials contract.Credentials, roomID domain.RoomID) (services.Admission, error)
	Authorize(ctx context.Context, credentials contract.Credentials, roomID domain.RoomID) (services.Admission, error)
	Serve(ctx context.Context, admission services.Admission, acceptor contract.Acceptor) error
}

type Handlers struct {
	gateway   Gateway
	registry  *runtime.Registry
	upgrader  *gorilla.Upgrader
	transport websocket.Config
	log       *slog.Logger
}

func NewHandlers(gateway Gateway, registry *runtime.Registry, origins *websocket.OriginPolicy, transport websocket.Config, log *slog.Logger) *Handlers {
	return &Handlers{
		gateway:   gateway,
		registry:  registry,
		upgrader:  origins.Upgrader(),
		transport: transport,
		log:       log,
	}
}

// Routes registers every endpoint on a fresh mux.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /ws/{room}", h.connect)
	mux.HandleFunc("GET /rooms/{room}/presence", h.presence)
	return mux
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  len(h.registry.Rooms()),
	})
}

// connect authorises the join before upgrading, so refused clients get a
// plain HTTP status instead of a websocket close frame.
func (h *Handlers) connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomID := domain.RoomID(r.PathValue("room"))

	admission, err := h.gateway.Admit(ctx, auth.CredentialsFromRequest(r), roomID)
	if err != nil {
		h.refuse(w, err, "room_id", roomID)
		return
	}

	acceptor := websocket.NewAcceptor(h.upgrader, w, r, h.transport, h.log)
	if err := h.gateway.Serve(ctx, admission, acceptor); err != nil {
		h.log.Debug("Connection not upgraded", "room_id", roomID, "error", err)
	}
}

type presenceResponse struct {
	RoomID   domain.RoomID  `json:"room_id"`
	Sessions int            `json:"sessions"`
	Users    []presenceUser `json:"users"`
}

type presenceUser struct {
	UserID      domain.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
	Sessions    int           `json:"sessions"`
	Since       time.Time     `json:"since"`
}

// presence lists who is connected to a room. The caller needs the same
// rights as for joining it.
func (h *Handlers) presence(w http.ResponseWriter, r *http.Request) {
	roomID := domain.RoomID(r.PathValue("room"))
	if _, err := h.gateway.Authorize(r.Context(), auth.CredentialsFromRequest(r), roomID); err != nil {
		h.refuse(w, err, "room_id", roomID)
		return
	}

	sessions := h.registry.SessionsOf(roomID)
	byUser := lo.GroupBy(sessions, func(s *runtime.Session) domain.UserID { return s.Identity.UserID })
	// Join order of the first session of each user
	order := lo.Uniq(lo.Map(sessions, func(s *runtime.Session, _ int) domain.UserID { return s.Identity.UserID }))

	writeJSON(w, http.StatusOK, presenceResponse{
		RoomID:   roomID,
		Sessions: len(sessions),
		Users: lo.Map(order, func(id domain.UserID, _ int) presenceUser {
			first := byUser[id][0]
			return presenceUser{
				UserID:      id,
				DisplayName: first.Identity.DisplayName,
				Sessions:    len(byUser[id]),
				Since:       first.JoinedAt,
			}
		}),
	})
}

func (h *Handlers) refuse(w http.ResponseWriter, err error, args ...any) {
	status := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("Request failed", append(args, "status", status, "error", err)...)
	} else {
		h.log.Debug("Request refused", append(args, "status", status, "error", err)...)
	}
	writeJSON(w, status, map[string]string{"error": publicMessage(err)})
}

// publicMessage keeps internal details out of responses.
func publicMessage(err error) string {
	for _, sentinel := range []error{
		errors.ErrUnauthorized, errors.ErrForbidden, errors.ErrNotFound, errors.ErrStoreUnavailable,
	} {
		if stderrors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
