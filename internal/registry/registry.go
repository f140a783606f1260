package registry

import (
	"fmt"
	"sync"

	"github.com/jaydenbeard/olmcore/internal/identity"
	"github.com/jaydenbeard/olmcore/internal/primitives"
)

type deviceKey struct {
	userID   string
	deviceID string
}

// Registry owns every device record and every other user's cross-signing
// identity this account has seen, plus the local account's own identity. A
// DeviceRecord carries only its owner's user ID — never a pointer back to a
// UserIdentity — so trust evaluation takes the identity set as an explicit
// argument instead of following back-references (spec §9 "Cyclic ownership
// between Device and Identity").
type Registry struct {
	mu         sync.RWMutex
	devices    map[deviceKey]*DeviceRecord
	identities map[string]*identity.UserIdentity

	ownUserID       string
	own             *identity.OwnUserIdentity
	crossSignatures map[string][]byte // other userID -> our signature over their master key
}

// New creates an empty registry for the local account ownUserID.
func New(ownUserID string, own *identity.OwnUserIdentity) *Registry {
	return &Registry{
		devices:         make(map[deviceKey]*DeviceRecord),
		identities:      make(map[string]*identity.UserIdentity),
		ownUserID:       ownUserID,
		own:             own,
		crossSignatures: make(map[string][]byte),
	}
}

// signableDeviceKeys is the subset of DeviceKeys covered by SelfSignature,
// canonicalized the same way on every device that verifies it.
type signableDeviceKeys struct {
	UserID              string            `json:"user_id"`
	DeviceID            string            `json:"device_id"`
	DisplayName         string            `json:"display_name"`
	SupportedAlgorithms []string          `json:"algorithms"`
	Keys                map[string][]byte `json:"keys"`
}

// UpsertDevice verifies keys.SelfSignature against keys.Keys["ed25519"] and,
// on success, inserts or replaces the device record. Local trust and deleted
// state are preserved across a re-upsert of an already-known device.
func (r *Registry) UpsertDevice(keys DeviceKeys) (*DeviceRecord, error) {
	ed25519Key := keys.Keys["ed25519"]
	if len(ed25519Key) == 0 {
		return nil, fmt.Errorf("registry: device has no ed25519 key: %w", ErrBadSignature)
	}

	signable := signableDeviceKeys{
		UserID:              keys.UserID,
		DeviceID:            keys.DeviceID,
		DisplayName:         keys.DisplayName,
		SupportedAlgorithms: keys.SupportedAlgorithms,
		Keys:                keys.Keys,
	}
	canonical, err := primitives.CanonicalJSON(signable)
	if err != nil {
		return nil, fmt.Errorf("registry: canonicalize device keys: %w", err)
	}
	if !primitives.Verify(ed25519Key, canonical, keys.SelfSignature) {
		return nil, ErrBadSignature
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := deviceKey{userID: keys.UserID, deviceID: keys.DeviceID}
	record := &DeviceRecord{
		UserID:              keys.UserID,
		DeviceID:            keys.DeviceID,
		DisplayName:         keys.DisplayName,
		SupportedAlgorithms: keys.SupportedAlgorithms,
		Keys:                copyKeyMap(keys.Keys),
		SelfSignature:       append([]byte(nil), keys.SelfSignature...),
		CrossSignature:      append([]byte(nil), keys.CrossSignature...),
	}
	if existing, ok := r.devices[k]; ok {
		record.trust.Store(existing.trust.Load())
		record.deleted.Store(existing.deleted.Load())
	}
	r.devices[k] = record
	return record.clone(), nil
}

// MarkDeleted idempotently marks a device as deleted. It is retained in the
// registry (for StoreError::Corrupt-free reload and audit) but is expected
// to be excluded by callers building "active devices" views.
func (r *Registry) MarkDeleted(userID, deviceID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.devices[deviceKey{userID: userID, deviceID: deviceID}]; ok {
		d.deleted.Store(true)
	}
}

// Device looks up a single device record by value.
func (r *Registry) Device(userID, deviceID string) (*DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[deviceKey{userID: userID, deviceID: deviceID}]
	if !ok {
		return nil, false
	}
	return d.clone(), true
}

// UserDevices returns every device recorded for userID, including deleted
// ones; callers that want only active devices should filter on Deleted().
func (r *Registry) UserDevices(userID string) []*DeviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*DeviceRecord
	for k, d := range r.devices {
		if k.userID == userID {
			out = append(out, d.clone())
		}
	}
	return out
}

// SetUserIdentity records another user's cross-signing identity.
func (r *Registry) SetUserIdentity(id *identity.UserIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[id.UserID] = id
}

// VerifyUserIdentity has the local account sign other's master key with its
// user-signing key, recording that signature for future trust evaluation.
func (r *Registry) VerifyUserIdentity(other *identity.UserIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crossSignatures[other.UserID] = r.own.SignOtherUser(other)
}

// TrustState implements spec §4.4: true iff local trust is Verified, or the
// local account's own cross-signing identity is verified and has signed the
// device owner's identity, and that identity has signed the device. For the
// local account's own devices, the owner-identity step short-circuits
// through the local account's own identity.
func (r *Registry) TrustState(d *DeviceRecord) bool {
	if d.LocalTrust() == TrustVerified {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.own == nil || !r.own.Verified() {
		return false
	}

	if d.UserID == r.ownUserID {
		return r.own.IsDeviceSigned(d.Ed25519Key(), d.CrossSignature)
	}

	owner, ok := r.identities[d.UserID]
	if !ok {
		return false
	}
	sig, ok := r.crossSignatures[d.UserID]
	if !ok {
		return false
	}
	if !owner.IsIdentitySignedBy(&r.own.UserIdentity, sig) {
		return false
	}
	return owner.IsDeviceSigned(d.Ed25519Key(), d.CrossSignature)
}
