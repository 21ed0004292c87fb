package domain

import "errors"

var (
	// ErrUnauthorized is returned by the API on HTTP 401. It ends the session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoSession is returned when an authenticated call is attempted without a session.
	ErrNoSession = errors.New("no active session")

	ErrEmptyContent   = errors.New("message content is empty")
	ErrNoConversation = errors.New("no conversation selected")
	ErrNotActive      = errors.New("conversation is not the active view")

	// ErrNotConnected is returned by a transport connection that is closed.
	ErrNotConnected = errors.New("transport not connected")
)

// IsValidation reports whether err was rejected before any I/O took place.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrNoConversation) ||
		errors.Is(err, ErrNotActive)
}
