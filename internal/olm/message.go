package olm

import "fmt"

const (
	messageVersion = 0x03

	tagRatchetKey  = 0x0A
	tagChainIndex  = 0x10
	tagCiphertext  = 0x22
	macSize        = 8
)

// Message is a normal (post-handshake) Olm message: the sender's current
// ratchet public key, the chain index the message key was derived at, and
// the AES-CBC ciphertext, followed on the wire by a truncated MAC.
type Message struct {
	RatchetKey [32]byte
	ChainIndex uint32
	Ciphertext []byte
}

// encodeBody writes the version byte and TLV fields, but not the trailing
// MAC. This is exactly the byte range the MAC is computed over.
func (m *Message) encodeBody() []byte {
	buf := make([]byte, 0, 1+2+34+6+len(m.Ciphertext)+4)
	buf = append(buf, messageVersion)
	buf = putTLVBytes(buf, tagRatchetKey, m.RatchetKey[:])
	buf = putTLVVarint(buf, tagChainIndex, uint64(m.ChainIndex))
	buf = putTLVBytes(buf, tagCiphertext, m.Ciphertext)
	return buf
}

// Encode appends the MAC (computed by the caller, who alone holds the chain's
// MAC key) to the message body and returns the full wire form.
func (m *Message) Encode(mac []byte) []byte {
	body := m.encodeBody()
	return append(body, mac...)
}

// decodeMessage splits wire into its body and trailing MAC, then parses the
// body's TLV fields. The returned mac is the last macSize bytes, to be
// verified by the caller against the body using the chain's MAC key.
func decodeMessage(wire []byte) (msg *Message, body []byte, mac []byte, err error) {
	if len(wire) < 1+macSize {
		return nil, nil, nil, fmt.Errorf("olm: message too short: %w", ErrBadMessageFormat)
	}
	if wire[0] != messageVersion {
		return nil, nil, nil, fmt.Errorf("olm: version byte 0x%02x: %w", wire[0], ErrUnknownMessageType)
	}

	body = wire[:len(wire)-macSize]
	mac = wire[len(wire)-macSize:]

	rest := body[1:]

	ratchetKeyBytes, rest, err := readTLVBytes(rest, tagRatchetKey)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(ratchetKeyBytes) != 32 {
		return nil, nil, nil, fmt.Errorf("olm: ratchet key must be 32 bytes: %w", ErrBadMessageFormat)
	}

	chainIndex, rest, err := readTLVVarint(rest, tagChainIndex)
	if err != nil {
		return nil, nil, nil, err
	}
	if chainIndex > 0xFFFFFFFF {
		return nil, nil, nil, fmt.Errorf("olm: chain index overflows uint32: %w", ErrBadMessageFormat)
	}

	ciphertext, rest, err := readTLVBytes(rest, tagCiphertext)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(rest) != 0 {
		return nil, nil, nil, fmt.Errorf("olm: trailing bytes after ciphertext TLV: %w", ErrBadMessageFormat)
	}

	msg = &Message{ChainIndex: uint32(chainIndex), Ciphertext: ciphertext}
	copy(msg.RatchetKey[:], ratchetKeyBytes)
	return msg, body, mac, nil
}
