package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"talent-chat/domain"
	"talent-chat/errors"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type testChatSuite struct {
	BaseChatSuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestFirstMessageInEmptyRoom() {
	alice := s.User("alice", "Alice Martin")
	room := s.Room("gophers", alice.UserID)

	s.Step("Alice joins an empty room, no history is pushed")
	conn := s.Join(alice.UserID, room)
	s.ExpectSilenceThenSay(conn, "hi")

	s.Step("The message is stored, nobody else receives it")
	s.Require().Eventually(func() bool {
		return len(s.History(room)) == 1
	}, s.Config.ReadTimeout, 5*time.Millisecond)
	s.Require().Equal([]string{"alice|hi"}, s.History(room))
}

// ExpectSilenceThenSay waits briefly for an unexpected replay, without
// breaking the connection, then sends text.
func (s *testChatSuite) ExpectSilenceThenSay(conn *gorilla.Conn, text string) {
	got := make(chan string, 1)
	go func() {
		_, payload, err := conn.ReadMessage()
		if err == nil {
			got <- string(payload)
		}
		close(got)
	}()
	select {
	case line, ok := <-got:
		if ok {
			s.Failf("unexpected replay", "line %q", line)
		}
	case <-time.After(s.Config.Silence):
	}
	s.Say(conn, text)
}

func (s *testChatSuite) TestReplayIsLabelledPerViewer() {
	alice := s.User("alice", "Alice Martin")
	bob := s.User("bob", "Bob Durand")
	room := s.Room("gophers", alice.UserID, bob.UserID)

	s.Step("Alice leaves a message")
	first := s.Join(alice.UserID, room)
	s.Say(first, "hi")
	s.Require().Eventually(func() bool { return len(s.History(room)) == 1 }, s.Config.ReadTimeout, 5*time.Millisecond)

	s.Step("Bob and another device of Alice join")
	bobConn := s.Join(bob.UserID, room)
	aliceConn := s.Join(alice.UserID, room)

	s.Expect(bobConn, "Alice Martin: hi")
	s.Expect(aliceConn, "You: hi")
}

func (s *testChatSuite) TestBroadcastSkipsTheSender() {
	alice := s.User("alice", "Alice Martin")
	bob := s.User("bob", "Bob Durand")
	room := s.Room("gophers", alice.UserID, bob.UserID)

	aliceConn := s.Join(alice.UserID, room)
	bobConn := s.Join(bob.UserID, room)

	s.Step("Bob says hello")
	s.Say(bobConn, "hello")

	s.Expect(aliceConn, "Bob Durand: hello")
	s.ExpectSilence(bobConn)
	s.Require().Equal([]string{"bob|hello"}, s.History(room))
}

func (s *testChatSuite) TestAbruptDisconnectDoesNotHurtOthers() {
	alice := s.User("alice", "Alice Martin")
	bob := s.User("bob", "Bob Durand")
	carol := s.User("carol", "Carol Petit")
	room := s.Room("gophers", alice.UserID, bob.UserID, carol.UserID)

	aliceConn := s.Join(alice.UserID, room)
	bobConn := s.Join(bob.UserID, room)
	carolConn := s.Join(carol.UserID, room)

	s.Step("Alice's connection drops without a close frame")
	s.Require().NoError(aliceConn.UnderlyingConn().Close())
	s.Require().Eventually(func() bool { return s.registry.Count(room) == 2 }, s.Config.ReadTimeout, 5*time.Millisecond)

	s.Step("Bob keeps talking to Carol")
	s.Say(bobConn, "still here?")
	s.Expect(carolConn, "Bob Durand: still here?")
	s.Require().Equal([]string{"bob|still here?"}, s.History(room))
}

func (s *testChatSuite) TestModeratedMessage() {
	alice := s.User("alice", "Alice Martin")
	bob := s.User("bob", "Bob Durand")
	room := s.Room("gophers", alice.UserID, bob.UserID)

	aliceConn := s.Join(alice.UserID, room)
	bobConn := s.Join(bob.UserID, room)

	s.Say(aliceConn, "what a damn day")

	s.Require().NoError(bobConn.SetReadDeadline(time.Now().Add(s.Config.ReadTimeout)))
	_, payload, err := bobConn.ReadMessage()
	s.Require().NoError(err)
	s.Require().True(strings.HasPrefix(string(payload), "Alice Martin: "))
	s.Require().NotContains(string(payload), "damn")
	s.Require().Contains(string(payload), "****")
}

func (s *testChatSuite) TestJoinRefusals() {
	alice := s.User("alice", "Alice Martin")
	s.User("mallory", "Mallory")
	room := s.Room("gophers", alice.UserID)

	tests := []struct {
		name   string
		token  string
		room   string
		status int
	}{
		{"no credentials", "", string(room), http.StatusUnauthorized},
		{"forged token", "forged", string(room), http.StatusUnauthorized},
		{"unknown user", s.Token("ghost"), string(room), http.StatusUnauthorized},
		{"unknown room", s.Token("alice"), "nowhere", http.StatusNotFound},
		{"not a participant", s.Token("mallory"), string(room), http.StatusForbidden},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, resp, err := s.Dial(tt.token, domain.RoomID(tt.room))
			s.Require().ErrorIs(err, gorilla.ErrBadHandshake)
			s.Require().NotNil(resp)
			s.Require().Equal(tt.status, resp.StatusCode)
		})
	}
	s.Require().Zero(s.registry.Count(room))

	s.Step("Administrators join any room")
	conn, _, err := s.Dial(s.Token("mallory", "administrator"), room)
	s.Require().NoError(err)
	s.Require().NotNil(conn)
}

func (s *testChatSuite) TestPresence() {
	alice := s.User("alice", "Alice Martin")
	bob := s.User("bob", "Bob Durand")
	room := s.Room("gophers", alice.UserID, bob.UserID)
	s.Join(alice.UserID, room)
	s.Join(alice.UserID, room)

	request, err := http.NewRequest(http.MethodGet, s.URL("/rooms/"+string(room)+"/presence"), nil)
	s.Require().NoError(err)
	request.Header.Set("Authorization", "Bearer "+s.Token(bob.UserID))
	resp, err := http.DefaultClient.Do(request)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Sessions int `json:"sessions"`
		Users    []struct {
			UserID      string `json:"user_id"`
			DisplayName string `json:"display_name"`
			Sessions    int    `json:"sessions"`
		} `json:"users"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Require().Equal(2, body.Sessions)
	s.Require().Len(body.Users, 1)
	s.Require().Equal("Alice Martin", body.Users[0].DisplayName)
	s.Require().Equal(2, body.Users[0].Sessions)
}

func (s *testChatSuite) TestShutdownClosesSessionsGoingAway() {
	alice := s.User("alice", "Alice Martin")
	room := s.Room("gophers", alice.UserID)
	conn := s.Join(alice.UserID, room)

	s.Step("The server shuts down")
	s.cancel()

	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(s.Config.ReadTimeout)))
	_, _, err := conn.ReadMessage()
	var closeErr *gorilla.CloseError
	s.Require().ErrorAs(err, &closeErr)
	s.Require().Equal(errors.CloseGoingAway, closeErr.Code)
	s.Require().Eventually(func() bool { return s.registry.Count(room) == 0 }, s.Config.ReadTimeout, 5*time.Millisecond)
}
