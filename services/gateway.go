package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"talent-chat/contract"
	"talent-chat/domain"
	"talent-chat/errors"
	"talent-chat/runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const (
	noticeNotDelivered = "error: message not delivered"
	noticeRejected     = "error: message rejected"
	noticeRateLimited  = "error: too many messages, slow down"
)

// Moderator masks forbidden words in an inbound message.
type Moderator interface {
	Moderate(text string) (string, []string)
}

type GatewayConfig struct {
	ConnectionBufferSize int           `validate:"gt=0"`
	MaxMessageLength     int           `validate:"gt=0"`
	RateLimitBurst       int           `validate:"gt=0"`
	RateLimitInterval    time.Duration `validate:"gt=0"`
	StoreRetryDelay      time.Duration `validate:"gte=0"`
}

type GatewayOption func(*ChatGateway)

func WithModerator(m Moderator) GatewayOption {
	return func(g *ChatGateway) { g.moderator = m }
}

func WithStateObserver(o StateObserver) GatewayOption {
	return func(g *ChatGateway) { g.observer = o }
}

// Admission is the outcome of a successful join check.
type Admission struct {
	Identity domain.Identity
	Room     domain.Room
}

// ChatGateway drives one connection from the join check to its closure.
type ChatGateway struct {
	identities  contract.IdentityResolver
	rooms       contract.RoomDirectory
	users       contract.UserDirectory
	messages    contract.MessageStore
	registry    *runtime.Registry
	broadcaster *runtime.Broadcaster
	moderator   Moderator
	observer    StateObserver
	validate    *validator.Validate
	cfg         GatewayConfig
	log         *slog.Logger
}

func NewChatGateway(
	identities contract.IdentityResolver,
	rooms contract.RoomDirectory,
	users contract.UserDirectory,
	messages contract.MessageStore,
	registry *runtime.Registry,
	broadcaster *runtime.Broadcaster,
	cfg GatewayConfig,
	log *slog.Logger,
	opts ...GatewayOption,
) (*ChatGateway, error) {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	g := &ChatGateway{
		identities:  identities,
		rooms:       rooms,
		users:       users,
		messages:    messages,
		registry:    registry,
		broadcaster: broadcaster,
		validate:    validate,
		cfg:         cfg,
		log:         log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Handle runs the whole lifecycle of a connection. Join failures are returned
// before the transport is accepted; once accepted, the connection ends quietly.
func (g *ChatGateway) Handle(ctx context.Context, credentials contract.Credentials, roomID domain.RoomID, acceptor contract.Acceptor) error {
	admission, err := g.Admit(ctx, credentials, roomID)
	if err != nil {
		return err
	}
	return g.Serve(ctx, admission, acceptor)
}

// Admit resolves who is connecting and whether they may enter the room.
// Nothing is registered and no transport is accepted here.
func (g *ChatGateway) Admit(ctx context.Context, credentials contract.Credentials, roomID domain.RoomID) (Admission, error) {
	admission, err := g.Authorize(ctx, credentials, roomID)
	userID := admission.Identity.UserID
	if userID != "" {
		g.notify(roomID, userID, StateConnecting)
	}
	if err != nil {
		g.log.Debug("Join refused", "room_id", roomID, "user_id", userID, "error", err)
		g.notify(roomID, userID, StateClosed)
		return Admission{}, err
	}
	return admission, nil
}

// Authorize runs the join checks without touching the connection state.
// On failure the returned admission still carries the identity when it was resolved.
func (g *ChatGateway) Authorize(ctx context.Context, credentials contract.Credentials, roomID domain.RoomID) (Admission, error) {
	identity, err := g.identities.Resolve(ctx, credentials)
	if err != nil {
		if !stderrors.Is(err, errors.ErrUnauthorized) && !stderrors.Is(err, errors.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
		}
		return Admission{}, err
	}
	refused := Admission{Identity: identity}

	if !roomID.Valid() {
		return refused, fmt.Errorf("room %q: %w", roomID, errors.ErrNotFound)
	}
	room, err := g.rooms.Room(ctx, roomID)
	if err != nil {
		return refused, err
	}

	if !identity.IsAdministrator() {
		ok, err := g.rooms.IsParticipant(ctx, roomID, identity.UserID)
		if err != nil {
			return refused, err
		}
		if !ok {
			return refused, fmt.Errorf("user %s in room %s: %w", identity.UserID, roomID, errors.ErrForbidden)
		}
	}

	return Admission{Identity: identity, Room: room}, nil
}

// Serve accepts the transport, replays the room history and relays messages
// until the connection closes. Only an accept failure is returned.
func (g *ChatGateway) Serve(ctx context.Context, admission Admission, acceptor contract.Acceptor) error {
	roomID := admission.Room.ID
	userID := admission.Identity.UserID

	transport, err := acceptor.Accept(ctx)
	if err != nil {
		g.notify(roomID, userID, StateClosed)
		return fmt.Errorf("accept connection to room %s: %w", roomID, err)
	}

	session := runtime.NewSession(roomID, admission.Identity, transport, g.cfg.ConnectionBufferSize, g.log)
	log := g.log.With("room_id", roomID, "user_id", userID, "session_id", session.ID)

	g.registry.Register(roomID, session)
	g.notify(roomID, userID, StateJoined)
	log.Info("Session joined", "sessions", g.registry.Count(roomID))

	// Shutdown closes the transport, which unblocks the receive loop
	stop := context.AfterFunc(ctx, func() {
		session.Close(errors.ErrTransportClosed)
	})
	defer func() {
		stop()
		g.registry.Deregister(roomID, session)
		var reason error
		if ctx.Err() != nil {
			reason = errors.ErrTransportClosed
		}
		session.Close(reason)
		g.notify(roomID, userID, StateClosed)
		log.Info("Session left", "sessions", g.registry.Count(roomID))
	}()

	history, err := g.renderHistory(ctx, admission)
	if err != nil {
		log.Warn("History unavailable, closing session", "error", err)
		g.registry.Deregister(roomID, session)
		session.Close(err)
		return nil
	}
	if err := session.Replay(ctx, history); err != nil {
		log.Debug("Replay interrupted", "error", err)
		return nil
	}

	g.notify(roomID, userID, StateStreaming)
	g.stream(ctx, admission, session, transport, log)
	return nil
}

// renderHistory labels every stored message for the viewer.
// Senders who left the room are looked up in the user directory.
func (g *ChatGateway) renderHistory(ctx context.Context, admission Admission) ([]runtime.Delivery, error) {
	roomID := admission.Room.ID
	viewer := admission.Identity.UserID

	participants, err := g.rooms.Participants(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("participants of room %s: %w", roomID, err)
	}
	messages, err := g.messages.History(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("history of room %s: %w", roomID, err)
	}

	names := lo.SliceToMap(participants, func(p domain.Identity) (domain.UserID, string) {
		return p.UserID, p.DisplayName
	})
	formerMembers := lo.Uniq(lo.FilterMap(messages, func(m domain.Message, _ int) (domain.UserID, bool) {
		_, known := names[m.SenderID]
		return m.SenderID, !known && m.SenderID != viewer
	}))
	for _, id := range formerMembers {
		user, err := g.users.User(ctx, id)
		if err != nil {
			if !stderrors.Is(err, errors.ErrNotFound) {
				g.log.Debug("User lookup failed", "user_id", id, "error", err)
			}
			continue
		}
		names[id] = user.DisplayName
	}

	return lo.Map(messages, func(m domain.Message, _ int) runtime.Delivery {
		return runtime.Delivery{MessageID: m.ID, Text: domain.RenderLine(m.Label(viewer, names), m.Content)}
	}), nil
}

func (g *ChatGateway) stream(ctx context.Context, admission Admission, session *runtime.Session, transport contract.Transport, log *slog.Logger) {
	limiter := newRateLimiter(g.cfg.RateLimitBurst, g.cfg.RateLimitInterval)

	for {
		text, err := transport.ReceiveText(ctx)
		if err != nil {
			switch {
			case stderrors.Is(err, errors.ErrTransportClosed), ctx.Err() != nil:
				log.Debug("Connection closed")
			default:
				log.Warn("Connection failed", "error", err)
			}
			return
		}

		if !limiter.allow() {
			log.Debug("Message dropped", "error", errors.ErrRateLimited)
			g.notice(session, noticeRateLimited, log)
			continue
		}
		g.relay(ctx, admission, session, text, log)
	}
}

// relay stores one inbound message then hands it to the other sessions of the room.
// A message is never broadcast unless it was stored.
func (g *ChatGateway) relay(ctx context.Context, admission Admission, session *runtime.Session, text string, log *slog.Logger) {
	roomID := admission.Room.ID

	if err := g.validateText(text); err != nil {
		log.Debug("Message rejected", "error", err)
		g.notice(session, noticeRejected, log)
		return
	}

	if g.moderator != nil {
		censored, words := g.moderator.Moderate(text)
		if len(words) > 0 {
			log.Info("Message moderated", "censored_words", len(words))
		}
		text = censored
	}

	msg, err := g.appendWithRetry(ctx, roomID, admission.Identity.UserID, text)
	if err != nil {
		log.Warn("Message not stored", "error", err)
		g.notice(session, noticeNotDelivered, log)
		return
	}

	line := domain.RenderLine(displayName(admission.Identity), msg.Content)
	delivered := g.broadcaster.Broadcast(ctx, roomID, runtime.Delivery{MessageID: msg.ID, Text: line}, session)
	log.Debug("Message relayed", "message_id", msg.ID, "delivered", delivered)
}

func (g *ChatGateway) validateText(text string) error {
	// Blank means empty once trimmed, the length limit applies to the text as sent
	if err := g.validate.Var(strings.TrimSpace(text), "required"); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	if err := g.validate.Var(text, fmt.Sprintf("max=%d", g.cfg.MaxMessageLength)); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	return nil
}

// appendWithRetry tries once more when the store reports a transient failure.
func (g *ChatGateway) appendWithRetry(ctx context.Context, roomID domain.RoomID, sender domain.UserID, text string) (domain.Message, error) {
	msg, err := g.messages.Append(ctx, roomID, sender, text)
	if err == nil || !stderrors.Is(err, errors.ErrStoreUnavailable) {
		return msg, err
	}

	select {
	case <-ctx.Done():
		return domain.Message{}, err
	case <-time.After(g.cfg.StoreRetryDelay):
	}
	return g.messages.Append(ctx, roomID, sender, text)
}

func (g *ChatGateway) notice(session *runtime.Session, text string, log *slog.Logger) {
	if err := session.Push(runtime.Delivery{Text: text}); err != nil {
		log.Debug("Notice not delivered", "error", err)
	}
}

func (g *ChatGateway) notify(room domain.RoomID, user domain.UserID, state State) {
	if g.observer != nil {
		g.observer(room, user, state)
	}
}

func displayName(identity domain.Identity) string {
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	return domain.UnknownLabel
}
