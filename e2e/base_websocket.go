package e2e

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"talent-chat/auth"
	"talent-chat/domain"
	"talent-chat/infrastructure/httpapi"
	"talent-chat/infrastructure/storage"
	"talent-chat/infrastructure/websocket"
	"talent-chat/moderation"
	"talent-chat/runtime"
	"talent-chat/services"
	"time"

	"github.com/gookit/color"
	gorilla "github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

const secret = "e2e_secret_long_enough_for_hs256_signing"

// BaseChatSuite starts the whole chat stack in process for each test:
// badger store, JWT identities, gateway, HTTP routes and a real listener.
type BaseChatSuite struct {
	suite.Suite
	Config Config

	ctx      context.Context
	cancel   context.CancelFunc
	store    *storage.Store
	signer   *auth.Signer
	registry *runtime.Registry
	rooms    *services.RoomService
	server   *httptest.Server
	conns    []*gorilla.Conn
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseChatSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

func (s *BaseChatSuite) SetupTest() {
	log := logs.GetLoggerFromString(s.Config.LogLevel)

	store, err := storage.Open(s.T().TempDir(), log)
	s.Require().NoError(err)
	s.store = store

	dictionaries, err := moderation.EmbeddedDictionaries()
	s.Require().NoError(err)
	filter, err := moderation.NewFilter(dictionaries, '*', log)
	s.Require().NoError(err)

	s.signer = auth.NewSigner(secret, time.Hour)
	s.registry = runtime.NewRegistry()
	s.rooms = services.NewRoomService(store, log)
	gateway, err := services.NewChatGateway(
		auth.NewTokenResolver(s.signer, store), store, store, store,
		s.registry, runtime.NewBroadcaster(s.registry, log),
		services.GatewayConfig{
			ConnectionBufferSize: 64,
			MaxMessageLength:     500,
			RateLimitBurst:       20,
			RateLimitInterval:    time.Second,
			StoreRetryDelay:      10 * time.Millisecond,
		},
		log,
		services.WithModerator(filter),
	)
	s.Require().NoError(err)

	handlers := httpapi.NewHandlers(gateway, s.registry, websocket.NewOriginPolicy([]string{"*"}, log), websocket.Config{MaxMessageSize: 4096}, log)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.server = httptest.NewUnstartedServer(handlers.Routes())
	s.server.Config.BaseContext = func(_ net.Listener) context.Context { return s.ctx }
	s.server.Start()
	s.conns = nil
}

func (s *BaseChatSuite) TearDownTest() {
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.cancel()
	s.server.Close()
	s.Require().NoError(s.store.Close())
}

// Step prints a header in the test log
func (s *BaseChatSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseChatSuite) User(id domain.UserID, name string) domain.Identity {
	identity := domain.Identity{UserID: id, DisplayName: name}
	s.Require().NoError(s.store.PutUser(context.Background(), identity))
	return identity
}

// Room creates a team room with the given participants.
func (s *BaseChatSuite) Room(name string, members ...domain.UserID) domain.RoomID {
	teamID := "team-" + name
	room, err := s.rooms.CreateRoom(context.Background(), name, domain.KindTeam, &teamID, "")
	s.Require().NoError(err)
	for _, member := range members {
		s.Require().NoError(s.rooms.AddParticipant(context.Background(), room.ID, member))
	}
	return room.ID
}

func (s *BaseChatSuite) Token(user domain.UserID, roles ...string) string {
	token, err := s.signer.GenerateToken(string(user), roles)
	s.Require().NoError(err)
	return token
}

func (s *BaseChatSuite) URL(path string) string {
	return s.server.URL + path
}

// Dial opens a websocket to the room, the token goes in the Authorization header.
func (s *BaseChatSuite) Dial(token string, room domain.RoomID) (*gorilla.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/" + string(room)
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := gorilla.DefaultDialer.Dial(url, header)
	if conn != nil {
		s.conns = append(s.conns, conn)
	}
	return conn, resp, err
}

// Join dials and waits until the session is registered in the room.
func (s *BaseChatSuite) Join(user domain.UserID, room domain.RoomID) *gorilla.Conn {
	before := s.registry.Count(room)
	conn, _, err := s.Dial(s.Token(user), room)
	s.Require().NoError(err)
	s.Require().Eventually(func() bool { return s.registry.Count(room) > before }, s.Config.ReadTimeout, 5*time.Millisecond)
	return conn
}

func (s *BaseChatSuite) Say(conn *gorilla.Conn, text string) {
	s.Require().NoError(conn.WriteMessage(gorilla.TextMessage, []byte(text)))
}

// Expect reads the next lines pushed to conn, in order.
func (s *BaseChatSuite) Expect(conn *gorilla.Conn, lines ...string) {
	for _, want := range lines {
		s.Require().NoError(conn.SetReadDeadline(time.Now().Add(s.Config.ReadTimeout)))
		kind, payload, err := conn.ReadMessage()
		s.Require().NoError(err, "waiting for %q", want)
		s.Require().Equal(gorilla.TextMessage, kind)
		s.Require().Equal(want, string(payload))
	}
}

// ExpectSilence checks nothing is pushed for a while. The connection cannot
// be read again afterwards.
func (s *BaseChatSuite) ExpectSilence(conn *gorilla.Conn) {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(s.Config.Silence)))
	_, payload, err := conn.ReadMessage()
	s.Require().Error(err, "unexpected line %q", string(payload))
	var netErr interface{ Timeout() bool }
	s.Require().ErrorAs(err, &netErr)
	s.Require().True(netErr.Timeout())
}

// History returns the stored contents of the room, in order.
func (s *BaseChatSuite) History(room domain.RoomID) []string {
	messages, err := s.store.History(context.Background(), room)
	s.Require().NoError(err)
	contents := make([]string, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, string(m.SenderID)+"|"+m.Content)
	}
	return contents
}
