package service

import "errors"

var (
	// ErrForbidden scopes a denied room.join to that room; the
	// connection stays alive.
	ErrForbidden = errors.New("no access to this order")

	ErrSessionClosed  = errors.New("session is closed")
	ErrSendBufferFull = errors.New("session send buffer is full")
)
