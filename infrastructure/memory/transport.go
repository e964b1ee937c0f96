// Package memory provides an in-process transport used to drive the gateway
// without a network, mostly from tests and local tooling.
package memory

import (
	"context"
	"fmt"
	"sync"
	"talent-chat/contract"
	"talent-chat/errors"
	"time"
)

// Transport is a pair of buffered channels. The server side implements
// contract.Transport, the peer side is driven through Say, Next and Hangup.
type Transport struct {
	in     chan string
	out    chan string
	closed chan struct{}
	once   sync.Once

	mu        sync.Mutex
	reason    error
	writeErr  error
	sentTexts int
}

func NewTransport(buffer int) *Transport {
	return &Transport{
		in:     make(chan string, buffer),
		out:    make(chan string, buffer),
		closed: make(chan struct{}),
	}
}

func (t *Transport) ReceiveText(ctx context.Context) (string, error) {
	// Drain what the peer already said before reporting the closure
	select {
	case text := <-t.in:
		return text, nil
	default:
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-t.closed:
		return "", errors.ErrTransportClosed
	case text := <-t.in:
		return text, nil
	}
}

func (t *Transport) SendText(ctx context.Context, text string) error {
	t.mu.Lock()
	writeErr := t.writeErr
	t.mu.Unlock()
	if writeErr != nil {
		return writeErr
	}

	select {
	case <-t.closed:
		return errors.ErrTransportClosed
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.closed:
		return errors.ErrTransportClosed
	case t.out <- text:
		t.mu.Lock()
		t.sentTexts++
		t.mu.Unlock()
		return nil
	}
}

// Close is idempotent, only the first reason is kept.
func (t *Transport) Close(reason error) error {
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		close(t.closed)
	})
	return nil
}

// Say delivers a text from the peer to the server side.
func (t *Transport) Say(text string) error {
	select {
	case <-t.closed:
		return errors.ErrTransportClosed
	case t.in <- text:
		return nil
	}
}

// Next waits for the next text written by the server.
func (t *Transport) Next(timeout time.Duration) (string, error) {
	select {
	case text := <-t.out:
		return text, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("no text received within %s", timeout)
	}
}

// Drain returns every text written by the server so far without waiting.
func (t *Transport) Drain() []string {
	var texts []string
	for {
		select {
		case text := <-t.out:
			texts = append(texts, text)
		default:
			return texts
		}
	}
}

// Hangup closes the connection from the peer side.
func (t *Transport) Hangup() {
	_ = t.Close(nil)
}

// FailWrites makes every further SendText return err.
func (t *Transport) FailWrites(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErr = err
}

func (t *Transport) IsClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *Transport) Reason() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

func (t *Transport) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sentTexts
}

// Acceptor hands out a prepared transport.
type Acceptor struct {
	Transport *Transport
	accepted  bool
}

func NewAcceptor(transport *Transport) *Acceptor {
	return &Acceptor{Transport: transport}
}

func (a *Acceptor) Accept(_ context.Context) (contract.Transport, error) {
	a.accepted = true
	return a.Transport, nil
}

func (a *Acceptor) Accepted() bool {
	return a.accepted
}
