package olm

import "fmt"

// prekeyVersion matches messageVersion: both wire formats share version byte
// 0x03. A receiver cannot tell them apart by inspecting the bytes alone — the
// Orchestrator carries an explicit message-type field alongside the payload,
// the same way a to-device event's "type" field does, and routes to
// DecodePrekeyMessage or decodeMessage accordingly.
const (
	prekeyVersion = 0x03

	tagOneTimeKey   = 0x0A
	tagEphemeralKey = 0x12
	tagIdentityKey  = 0x1A
	tagInnerMessage = 0x22
)

// PrekeyMessage wraps a normal Message with the X3DH-style handshake fields
// the recipient needs to locate the right account/one-time key and build its
// inbound session (spec §4.2). A session holds onto these fields and keeps
// wrapping every outgoing message with them until the first reply arrives.
type PrekeyMessage struct {
	OneTimeKey   [32]byte // the recipient's one-time key the sender claimed
	EphemeralKey [32]byte // the sender's initial ratchet (base) key
	IdentityKey  [32]byte // the sender's long-term identity key
	Inner        []byte   // the wire form of the wrapped Message
}

// Encode serialises the prekey envelope.
func (p *PrekeyMessage) Encode() []byte {
	buf := make([]byte, 0, 1+3*34+6+len(p.Inner))
	buf = append(buf, prekeyVersion)
	buf = putTLVBytes(buf, tagOneTimeKey, p.OneTimeKey[:])
	buf = putTLVBytes(buf, tagEphemeralKey, p.EphemeralKey[:])
	buf = putTLVBytes(buf, tagIdentityKey, p.IdentityKey[:])
	buf = putTLVBytes(buf, tagInnerMessage, p.Inner)
	return buf
}

// DecodePrekeyMessage parses a prekey envelope produced by Encode.
func DecodePrekeyMessage(wire []byte) (*PrekeyMessage, error) {
	if len(wire) < 1 {
		return nil, fmt.Errorf("olm: empty prekey message: %w", ErrBadMessageFormat)
	}
	if wire[0] != prekeyVersion {
		return nil, fmt.Errorf("olm: prekey version byte 0x%02x: %w", wire[0], ErrUnknownMessageType)
	}

	rest := wire[1:]

	oneTimeKey, rest, err := readTLVBytes(rest, tagOneTimeKey)
	if err != nil {
		return nil, err
	}
	ephemeralKey, rest, err := readTLVBytes(rest, tagEphemeralKey)
	if err != nil {
		return nil, err
	}
	identityKey, rest, err := readTLVBytes(rest, tagIdentityKey)
	if err != nil {
		return nil, err
	}
	inner, rest, err := readTLVBytes(rest, tagInnerMessage)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("olm: trailing bytes after prekey envelope: %w", ErrBadMessageFormat)
	}
	if len(oneTimeKey) != 32 || len(ephemeralKey) != 32 || len(identityKey) != 32 {
		return nil, fmt.Errorf("olm: prekey envelope key must be 32 bytes: %w", ErrBadMessageFormat)
	}

	p := &PrekeyMessage{Inner: inner}
	copy(p.OneTimeKey[:], oneTimeKey)
	copy(p.EphemeralKey[:], ephemeralKey)
	copy(p.IdentityKey[:], identityKey)
	return p, nil
}
