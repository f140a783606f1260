package orchestrator

import "errors"

var (
	// ErrMissingSession is returned when no session exists for a sender and
	// the incoming payload is not a prekey message. The Orchestrator does
	// not request keys from the transport collaborator itself; the error is
	// only returned to the caller.
	ErrMissingSession = errors.New("orchestrator: no session for sender")

	// ErrNoOneTimeKey is returned when claiming a one-time key for an
	// outbound session fails because the transport collaborator has none.
	ErrNoOneTimeKey = errors.New("orchestrator: no one-time key available")

	// ErrSessionExhausted is returned when no session among those tried for
	// a sender decrypts the incoming message within the bounded try-count.
	ErrSessionExhausted = errors.New("orchestrator: no session decrypted message")

	// ErrDeviceNotFound is returned when group-key sharing is asked to
	// encrypt to a user with no known devices.
	ErrDeviceNotFound = errors.New("orchestrator: no devices known for user")
)
