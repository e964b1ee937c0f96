// Package websocket adapts gorilla/websocket connections to contract.Transport.
package websocket

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"talent-chat/contract"
	"talent-chat/errors"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultPingPeriod = 54 * time.Second
	DefaultPongWait   = 60 * time.Second
	DefaultWriteWait  = 10 * time.Second
)

type Config struct {
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

func (c Config) withDefaults() Config {
	if c.PingPeriod <= 0 {
		c.PingPeriod = DefaultPingPeriod
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	return c
}

// Transport wraps one upgraded connection. Reads happen on the gateway
// goroutine, writes come from the session pump and the pinger, hence the
// write mutex.
type Transport struct {
	conn *websocket.Conn
	cfg  Config
	log  *slog.Logger

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

func NewTransport(conn *websocket.Conn, cfg Config, log *slog.Logger) *Transport {
	cfg = cfg.withDefaults()
	t := &Transport{
		conn: conn,
		cfg:  cfg,
		log:  log.With("remote_addr", conn.RemoteAddr().String()),
		done: make(chan struct{}),
	}
	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	if err := conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
		t.log.Debug("Initial read deadline", "error", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	go t.ping()
	return t
}

func (t *Transport) ping() {
	ticker := time.NewTicker(t.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.cfg.WriteWait)); err != nil {
				t.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

// ReceiveText blocks until the next text frame. Binary frames are skipped.
// Cancellation is obtained by closing the transport.
func (t *Transport) ReceiveText(_ context.Context) (string, error) {
	for {
		kind, payload, err := t.conn.ReadMessage()
		if err != nil {
			return "", t.readError(err)
		}
		if kind == websocket.TextMessage {
			return string(payload), nil
		}
	}
}

func (t *Transport) readError(err error) error {
	select {
	case <-t.done:
		return errors.ErrTransportClosed
	default:
	}
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived),
		stderrors.Is(err, io.EOF),
		stderrors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", errors.ErrTransportClosed, err)
	case stderrors.Is(err, websocket.ErrReadLimit):
		return fmt.Errorf("%w: frame over %d bytes", errors.ErrInvalidMessage, t.cfg.MaxMessageSize)
	default:
		return fmt.Errorf("websocket read: %w", err)
	}
}

func (t *Transport) SendText(ctx context.Context, text string) error {
	select {
	case <-t.done:
		return errors.ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteWait)); err != nil {
		return fmt.Errorf("write deadline: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrPeerDelivery, err)
	}
	return nil
}

// Close sends a close frame carrying the code derived from reason, then
// drops the connection. Only the first call does anything.
func (t *Transport) Close(reason error) error {
	var err error
	t.once.Do(func() {
		close(t.done)
		code, text := errors.CloseReason(reason)
		msg := websocket.FormatCloseMessage(code, text)
		if werr := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.cfg.WriteWait)); werr != nil {
			t.log.Debug("Close frame not sent", "error", werr)
		}
		err = t.conn.Close()
	})
	return err
}

// Acceptor upgrades one HTTP request. It is built per request and only used
// after the join was authorised.
type Acceptor struct {
	upgrader *websocket.Upgrader
	w        http.ResponseWriter
	r        *http.Request
	cfg      Config
	log      *slog.Logger
}

var _ contract.Acceptor = (*Acceptor)(nil)
var _ contract.Transport = (*Transport)(nil)

func NewAcceptor(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, cfg Config, log *slog.Logger) *Acceptor {
	return &Acceptor{upgrader: upgrader, w: w, r: r, cfg: cfg, log: log}
}

// Accept performs the handshake. On failure the upgrader already replied
// with an HTTP error.
func (a *Acceptor) Accept(_ context.Context) (contract.Transport, error) {
	conn, err := a.upgrader.Upgrade(a.w, a.r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return NewTransport(conn, a.cfg, a.log), nil
}
