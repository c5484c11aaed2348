package chat

import "errors"

var (
	// ErrInvalidInput is returned for caller-side precondition violations,
	// e.g. whitespace-only message text. The store is never reached.
	ErrInvalidInput = errors.New("message text is empty")

	// ErrNotAuthenticated is returned when a send is attempted without a
	// resolvable caller identity. Fatal to the operation, not the session.
	ErrNotAuthenticated = errors.New("no authenticated user")

	// ErrPersistence wraps store failures (network, permission, backend).
	// Recoverable by caller retry; in-memory state is never corrupted.
	ErrPersistence = errors.New("persistence failure")

	// ErrSubscription wraps a failed realtime listener. The session keeps
	// its last-known-good message list; a new Open is required.
	ErrSubscription = errors.New("subscription failure")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)
