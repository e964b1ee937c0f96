package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"talent-chat/contract"
	"talent-chat/errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// serve accepts one connection and hands the server side transport to the test.
func serve(t *testing.T, cfg Config) (*websocket.Conn, contract.Transport) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	accepted := make(chan contract.Transport, 1)
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport, err := NewAcceptor(NewOriginPolicy(nil, log).Upgrader(), w, r, cfg, log).Accept(r.Context())
		if err != nil {
			return
		}
		accepted <- transport
		<-done
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case transport := <-accepted:
		return client, transport
	case <-time.After(time.Second):
		t.Fatal("connection not accepted")
		return nil, nil
	}
}

func TestTransport_Exchange(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client, transport := serve(t, Config{})

	// Given a client text frame and a binary one before it
	req.NoError(client.WriteMessage(websocket.BinaryMessage, []byte{0x1}))
	req.NoError(client.WriteMessage(websocket.TextMessage, []byte("hello")))

	// Then only the text is received
	text, err := transport.ReceiveText(ctx)
	req.NoError(err)
	req.Equal("hello", text)

	// And server texts reach the client
	req.NoError(transport.SendText(ctx, "Alice: hi"))
	kind, payload, err := client.ReadMessage()
	req.NoError(err)
	req.Equal(websocket.TextMessage, kind)
	req.Equal("Alice: hi", string(payload))
}

func TestTransport_Close_Sends_Code(t *testing.T) {
	req := require.New(t)
	client, transport := serve(t, Config{})

	// When the server ends the connection because history is unavailable
	req.NoError(transport.Close(errors.ErrStoreUnavailable))
	req.NoError(transport.Close(nil))

	// Then the client sees the try-again-later code
	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	req.ErrorAs(err, &closeErr)
	req.Equal(errors.CloseTryAgainLater, closeErr.Code)

	// And the server side is unusable
	req.ErrorIs(transport.SendText(context.Background(), "late"), errors.ErrTransportClosed)
	_, err = transport.ReceiveText(context.Background())
	req.ErrorIs(err, errors.ErrTransportClosed)
}

func TestTransport_Peer_Close_Is_Expected(t *testing.T) {
	req := require.New(t)
	client, transport := serve(t, Config{})

	req.NoError(client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	_, err := transport.ReceiveText(context.Background())
	req.ErrorIs(err, errors.ErrTransportClosed)
}

func TestTransport_Oversized_Frame(t *testing.T) {
	req := require.New(t)
	client, transport := serve(t, Config{MaxMessageSize: 16})

	req.NoError(client.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 64))))

	_, err := transport.ReceiveText(context.Background())
	req.ErrorIs(err, errors.ErrInvalidMessage)
}

func TestTransport_Missing_Pong_Ends_Read(t *testing.T) {
	req := require.New(t)
	// Given a client that never reads, so never answers pings
	_, transport := serve(t, Config{PingPeriod: 20 * time.Millisecond, PongWait: 60 * time.Millisecond})

	// Then the read deadline fires
	_, err := transport.ReceiveText(context.Background())
	req.Error(err)
	req.NotErrorIs(err, errors.ErrTransportClosed)
}

func TestOriginPolicy(t *testing.T) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"https://app.example.com"}, "", true},
		{"allowed", []string{"https://app.example.com"}, "https://APP.example.com", true},
		{"other host", []string{"https://app.example.com"}, "https://evil.example.com", false},
		{"other scheme", []string{"https://app.example.com"}, "http://app.example.com", false},
		{"wildcard", []string{" * "}, "https://anything.io", true},
		{"invalid entries ignored", []string{"not an origin", ""}, "https://app.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/r1", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, NewOriginPolicy(tt.origins, log).Allow(r))
		})
	}
}
