package orchestrator

import "context"

// KeyClaimRequest asks the transport collaborator for one published
// one-time key belonging to (UserID, DeviceID).
type KeyClaimRequest struct {
	UserID   string
	DeviceID string
}

// ClaimedKey is the response to a KeyClaimRequest.
type ClaimedKey struct {
	IdentityKey [32]byte
	OneTimeKey  [32]byte
}

// Transport is the out-of-scope network collaborator (spec §6's "transport
// collaborator"): it owns delivery and server-side key publication. The
// Orchestrator only calls out to it; it never implements retry policy for
// send_to_device (that is the collaborator's job per spec §6).
type Transport interface {
	// SendToDevice delivers envelope to (userID, deviceID). Fire-and-forget;
	// the collaborator is responsible for retrying transient failures.
	SendToDevice(ctx context.Context, userID, deviceID string, envelope []byte) error

	// ClaimOneTimeKeys bulk-claims one one-time key per request.
	ClaimOneTimeKeys(ctx context.Context, requests []KeyClaimRequest) (map[KeyClaimRequest]ClaimedKey, error)
}
