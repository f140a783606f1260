package megolm

import "errors"

var (
	// ErrBadSignature is returned when a message's Ed25519 signature does not
	// verify against the session's signing key.
	ErrBadSignature = errors.New("megolm: bad signature")

	// ErrBadMessageFormat is returned when a message is structurally invalid.
	ErrBadMessageFormat = errors.New("megolm: bad message format")

	// ErrUnknownIndex is returned when a message's index is below the
	// inbound session's earliest usable index — the forward-secrecy
	// boundary established at import/export time.
	ErrUnknownIndex = errors.New("megolm: index below earliest usable index")
)
