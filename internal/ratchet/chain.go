// Package ratchet implements the symmetric KDF chain used inside each Olm
// session's sending and receiving chains (spec §4.1).
package ratchet

import (
	"errors"
	"fmt"
	"math"

	"github.com/jaydenbeard/olmcore/internal/primitives"
)

// ErrCounterWrapped is returned by Next when advancing the chain would
// overflow its 32-bit message counter.
var ErrCounterWrapped = errors.New("ratchet: chain counter would wrap")

// hkdfKeysLabel is the HKDF info label used to split a message key into its
// AES key, MAC key and IV, per spec §4.1.
var hkdfKeysLabel = []byte("OLM_KEYS")

// MessageKeys holds the three values derived from a single chain step.
type MessageKeys struct {
	AESKey [32]byte
	MACKey [32]byte
	IV     [16]byte
}

// Chain is a one-way symmetric KDF chain: 32 bytes of chain key plus a
// strictly monotonic message counter. It only ever advances forward.
type Chain struct {
	key     [32]byte
	counter uint32
}

// NewChain starts a chain at the given key with counter 0.
func NewChain(key [32]byte) *Chain {
	return &Chain{key: key}
}

// RestoreChain reconstructs a chain at an already-advanced position, for
// loading a pickled session back from storage.
func RestoreChain(key [32]byte, counter uint32) *Chain {
	return &Chain{key: key, counter: counter}
}

// Key returns the current (unadvanced) chain key.
func (c *Chain) Key() [32]byte { return c.key }

// Counter returns the number of messages this chain has produced.
func (c *Chain) Counter() uint32 { return c.counter }

// Next derives the message keys for the current counter position, advances
// the chain key, and increments the counter. It fails once the counter has
// reached its maximum value rather than silently wrapping.
func (c *Chain) Next() (MessageKeys, error) {
	if c.counter == math.MaxUint32 {
		return MessageKeys{}, ErrCounterWrapped
	}

	messageKey := primitives.HMACSHA256(c.key[:], []byte{0x01})
	nextChainKey := primitives.HMACSHA256(c.key[:], []byte{0x02})

	split := make([]byte, 80)
	if err := primitives.HKDFExpand(messageKey, nil, hkdfKeysLabel, split); err != nil {
		return MessageKeys{}, fmt.Errorf("ratchet: split message key: %w", err)
	}

	var keys MessageKeys
	copy(keys.AESKey[:], split[0:32])
	copy(keys.MACKey[:], split[32:64])
	copy(keys.IV[:], split[64:80])

	copy(c.key[:], nextChainKey)
	c.counter++

	return keys, nil
}
