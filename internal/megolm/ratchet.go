// Package megolm implements the group (room) session layer: a forward-secret,
// one-way AES key stream keyed by a shared 32-byte seed, with per-message
// Ed25519 signatures and export/import for key-sharing between devices
// (spec §4.3).
package megolm

import (
	"fmt"

	"github.com/jaydenbeard/olmcore/internal/primitives"
)

// seedLabel is the HKDF info label used to expand a 32-byte session seed
// into the ratchet's four 32-byte parts.
var seedLabel = []byte("MEGOLM_KEYS")

// partCount is the number of hierarchical parts in the rolling ratchet.
const partCount = 4

// ratchet is the 4-part "rolling" KDF described in spec §4.3: R[3] advances
// every step, R[2] every 2^8 steps, R[1] every 2^16, R[0] every 2^24, each
// more significant part reseeding every part below it when it advances.
type ratchet struct {
	parts   [partCount][32]byte
	counter uint32
}

// stride returns how many counter values part j covers before it must
// advance: 2^24, 2^16, 2^8, 1 for j = 0..3.
func stride(j int) uint32 {
	return 1 << uint(8*(partCount-1-j))
}

// newRatchetFromSeed expands a 32-byte session seed into the initial 4-part
// ratchet state at counter 0.
func newRatchetFromSeed(seed [32]byte) (*ratchet, error) {
	out := make([]byte, 32*partCount)
	if err := primitives.HKDFExpand(seed[:], nil, seedLabel, out); err != nil {
		return nil, fmt.Errorf("megolm: expand seed: %w", err)
	}

	r := &ratchet{}
	for j := 0; j < partCount; j++ {
		copy(r.parts[j][:], out[j*32:(j+1)*32])
	}
	return r, nil
}

// newRatchetFromParts reconstructs a ratchet at a known counter from an
// exported snapshot (spec §4.3 import).
func newRatchetFromParts(counter uint32, parts [partCount][32]byte) *ratchet {
	return &ratchet{parts: parts, counter: counter}
}

// advanceTo moves the ratchet forward to target, which must be >= the
// current counter. Each part is rehashed once per stride block it crosses,
// and the last rehash of a part also reseeds every less significant part
// beneath it by hashing forward from that part. Jumping straight to target
// therefore yields the same state as advancing one step at a time, while the
// inverse (recovering an earlier part from a later one) stays infeasible.
func (r *ratchet) advanceTo(target uint32) {
	if target == r.counter {
		return
	}

	for j := 0; j < partCount; j++ {
		steps := (target/stride(j) - r.counter/stride(j)) & 0xff
		if steps == 0 {
			continue
		}
		for ; steps > 1; steps-- {
			copy(r.parts[j][:], primitives.HMACSHA256(r.parts[j][:], []byte{byte(j)}))
		}

		seed := primitives.HMACSHA256(r.parts[j][:], []byte{byte(j)})
		copy(r.parts[j][:], seed)
		for k := j + 1; k < partCount; k++ {
			seed = primitives.HMACSHA256(seed, []byte{byte(k)})
			copy(r.parts[k][:], seed)
		}
		r.counter = target / stride(j) * stride(j)
	}

	r.counter = target
}

// snapshot returns the current counter and ratchet parts, suitable for
// export to another device (spec §4.3 "export at index").
func (r *ratchet) snapshot() (uint32, [partCount][32]byte) {
	return r.counter, r.parts
}

// messageKeysLabel splits a ratchet state into an AES key and IV for one
// message ciphertext.
var messageKeysLabel = []byte("MEGOLM_MSG_KEYS")

func (r *ratchet) messageKeys() (aesKey [32]byte, iv [16]byte, err error) {
	var flattened [32 * partCount]byte
	for j := 0; j < partCount; j++ {
		copy(flattened[j*32:(j+1)*32], r.parts[j][:])
	}
	seed := primitives.HMACSHA256(flattened[:], []byte{0x00})

	out := make([]byte, 48)
	if err := primitives.HKDFExpand(seed, nil, messageKeysLabel, out); err != nil {
		return [32]byte{}, [16]byte{}, fmt.Errorf("megolm: derive message keys: %w", err)
	}
	copy(aesKey[:], out[0:32])
	copy(iv[:], out[32:48])
	return aesKey, iv, nil
}
