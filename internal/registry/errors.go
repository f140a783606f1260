package registry

import "errors"

// ErrBadSignature is returned by UpsertDevice when a device's self-signature
// does not verify against its own published Ed25519 key.
var ErrBadSignature = errors.New("registry: bad device self-signature")
