// Package registry tracks known devices across all users this account has
// encountered: their published keys, local trust decisions, and deletion
// state (spec §4.4).
package registry

import (
	"crypto/ed25519"
	"sync/atomic"
)

// LocalTrust is a user's manually-set trust decision for a device.
type LocalTrust int32

const (
	TrustUnset LocalTrust = iota
	TrustVerified
	TrustBlacklisted
	TrustIgnored
)

// DeviceKeys is the self-signed payload a device publishes: its identity
// keys by algorithm, plus a self-signature over the canonical JSON of
// everything but the signature itself.
type DeviceKeys struct {
	UserID              string
	DeviceID            string
	DisplayName         string
	SupportedAlgorithms []string
	Keys                map[string][]byte // algorithm name -> public key bytes
	SelfSignature       []byte            // signed by Keys["ed25519"]
	CrossSignature      []byte            // signed by the owner's self-signing key, if cross-signed
}

// DeviceRecord is the registry's in-memory view of one device. deleted and
// trust are atomics, so the registry's own record can change state (see
// MarkDeleted) while other goroutines hold only the registry's read lock.
// Registry accessors hand out clones, not the stored record: SetLocalTrust
// on a returned record changes that copy only, and a clone does not see
// later changes to the registry's record.
type DeviceRecord struct {
	UserID              string
	DeviceID            string
	DisplayName         string
	SupportedAlgorithms []string
	Keys                map[string][]byte
	SelfSignature       []byte
	CrossSignature      []byte

	deleted atomic.Bool
	trust   atomic.Int32
}

// Ed25519Key returns the device's Ed25519 identity key, or nil if it never
// published one.
func (d *DeviceRecord) Ed25519Key() ed25519.PublicKey {
	return ed25519.PublicKey(d.Keys["ed25519"])
}

// Deleted reports whether the device has been marked deleted. Monotonic:
// once true, always true.
func (d *DeviceRecord) Deleted() bool { return d.deleted.Load() }

// LocalTrust returns the device's current local trust decision.
func (d *DeviceRecord) LocalTrust() LocalTrust { return LocalTrust(d.trust.Load()) }

// SetLocalTrust updates the device's local trust decision. Unlike deleted,
// this is not monotonic: a user may re-verify or un-blacklist a device.
func (d *DeviceRecord) SetLocalTrust(t LocalTrust) { d.trust.Store(int32(t)) }

// clone returns a value copy sharing the same atomics' current values but
// independent going forward, matching the "DeviceRecords are cloned freely
// by value" ownership rule in spec §3. Since atomic.Bool/atomic.Int32 must
// not be copied while in use, clone reads them into fresh atomics.
func (d *DeviceRecord) clone() *DeviceRecord {
	c := &DeviceRecord{
		UserID:              d.UserID,
		DeviceID:            d.DeviceID,
		DisplayName:         d.DisplayName,
		SupportedAlgorithms: append([]string(nil), d.SupportedAlgorithms...),
		Keys:                copyKeyMap(d.Keys),
		SelfSignature:       append([]byte(nil), d.SelfSignature...),
		CrossSignature:      append([]byte(nil), d.CrossSignature...),
	}
	c.deleted.Store(d.deleted.Load())
	c.trust.Store(d.trust.Load())
	return c
}

func copyKeyMap(m map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = append([]byte(nil), v...)
	}
	return out
}
