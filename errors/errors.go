package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrNotFound         = fmt.Errorf("not found")
	ErrForbidden        = fmt.Errorf("participant access required")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrPeerDelivery     = fmt.Errorf("peer delivery failure")
	ErrTransportClosed  = fmt.Errorf("transport closed")
	ErrInvalidMessage   = fmt.Errorf("invalid message")
	ErrRateLimited      = fmt.Errorf("rate limit exceeded")
	ErrInvalidConfig    = fmt.Errorf("invalid configuration")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrAlreadyExists    = fmt.Errorf("already exists")
	ErrInvalidRoom      = fmt.Errorf("invalid room")
)

// MapToHTTPStatus translates a join-time failure into the status sent
// before the websocket upgrade.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case stderrors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrInvalidMessage), stderrors.Is(err, ErrInvalidRoom):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case stderrors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Close codes from RFC 6455, section 7.4.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	ClosePolicy        = 1008
	CloseInternalError = 1011
	CloseTryAgainLater = 1013
)

// CloseReason picks the close code sent to a peer when its connection is ended.
func CloseReason(err error) (int, string) {
	switch {
	case err == nil:
		return CloseNormal, ""
	case stderrors.Is(err, ErrTransportClosed):
		return CloseGoingAway, "server shutting down"
	case stderrors.Is(err, ErrStoreUnavailable):
		return CloseTryAgainLater, "history unavailable"
	case stderrors.Is(err, ErrRateLimited), stderrors.Is(err, ErrPeerDelivery):
		return ClosePolicy, err.Error()
	default:
		return CloseInternalError, "internal error"
	}
}
