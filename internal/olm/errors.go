package olm

import "errors"

// Errors returned by Session.Decrypt and the wire codec (spec §4.2).
var (
	// ErrBadMac is returned when the trailing MAC on a message does not match
	// the MAC computed from the derived message key.
	ErrBadMac = errors.New("olm: bad message authentication code")

	// ErrBadMessageFormat is returned when a message is structurally invalid:
	// a required TLV is missing, truncated, or references a message index
	// this session has no key for.
	ErrBadMessageFormat = errors.New("olm: bad message format")

	// ErrTooManySkipped is returned when decrypting a message would require
	// deriving more skipped message keys than the session's cache allows in
	// a single jump.
	ErrTooManySkipped = errors.New("olm: too many skipped messages")

	// ErrUnknownMessageType is returned when a message's version byte is not
	// one this session understands.
	ErrUnknownMessageType = errors.New("olm: unknown message type")

	// ErrSessionNotReady is returned by Encrypt when called before the
	// session has a sending chain (the inbound side must decrypt the first
	// prekey message before it can reply).
	ErrSessionNotReady = errors.New("olm: session has no sending chain yet")
)
