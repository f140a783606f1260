package megolm

import (
	"crypto/ed25519"
	"fmt"
)

const (
	messageVersion = 0x03
	signatureSize  = ed25519.SignatureSize

	tagIndex      = 0x08
	tagCiphertext = 0x12
)

// message is the wire form of a single Megolm ciphertext: a version byte, the
// ratchet index the message key was derived at, the AES-CBC ciphertext, and
// a trailing Ed25519 signature over everything before it.
type message struct {
	Index      uint32
	Ciphertext []byte
}

func (m *message) encodeBody() []byte {
	buf := make([]byte, 0, 1+6+6+len(m.Ciphertext))
	buf = append(buf, messageVersion)
	buf = putVarintTLV(buf, tagIndex, uint64(m.Index))
	buf = putBytesTLV(buf, tagCiphertext, m.Ciphertext)
	return buf
}

func (m *message) encode(signingKey ed25519.PrivateKey) []byte {
	body := m.encodeBody()
	sig := ed25519.Sign(signingKey, body)
	return append(body, sig...)
}

func decodeMessage(wire []byte) (msg *message, body []byte, sig []byte, err error) {
	if len(wire) < 1+signatureSize {
		return nil, nil, nil, fmt.Errorf("megolm: message too short: %w", ErrBadMessageFormat)
	}
	if wire[0] != messageVersion {
		return nil, nil, nil, fmt.Errorf("megolm: unknown version byte 0x%02x: %w", wire[0], ErrBadMessageFormat)
	}

	body = wire[:len(wire)-signatureSize]
	sig = wire[len(wire)-signatureSize:]

	rest := body[1:]
	index, rest, err := readVarintTLV(rest, tagIndex)
	if err != nil {
		return nil, nil, nil, err
	}
	if index > 0xFFFFFFFF {
		return nil, nil, nil, fmt.Errorf("megolm: index overflows uint32: %w", ErrBadMessageFormat)
	}

	ciphertext, rest, err := readBytesTLV(rest, tagCiphertext)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(rest) != 0 {
		return nil, nil, nil, fmt.Errorf("megolm: trailing bytes after ciphertext: %w", ErrBadMessageFormat)
	}

	return &message{Index: uint32(index), Ciphertext: ciphertext}, body, sig, nil
}

// --- minimal TLV helpers (mirrors internal/olm's wire codec) ---

func putVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func readVarint(data []byte) (uint64, []byte, error) {
	var result uint64
	var shift uint
	for i := 0; i < len(data); i++ {
		b := data[i]
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, data[i+1:], nil
		}
		shift += 7
		if shift > 63 {
			return 0, nil, fmt.Errorf("megolm: varint too long: %w", ErrBadMessageFormat)
		}
	}
	return 0, nil, fmt.Errorf("megolm: truncated varint: %w", ErrBadMessageFormat)
}

func putBytesTLV(buf []byte, tag byte, data []byte) []byte {
	buf = append(buf, tag)
	buf = putVarint(buf, uint64(len(data)))
	return append(buf, data...)
}

func putVarintTLV(buf []byte, tag byte, v uint64) []byte {
	buf = append(buf, tag)
	return putVarint(buf, v)
}

func readBytesTLV(data []byte, wantTag byte) ([]byte, []byte, error) {
	if len(data) < 1 {
		return nil, nil, fmt.Errorf("megolm: truncated TLV: %w", ErrBadMessageFormat)
	}
	if data[0] != wantTag {
		return nil, nil, fmt.Errorf("megolm: unexpected tag 0x%02x: %w", data[0], ErrBadMessageFormat)
	}
	length, rest, err := readVarint(data[1:])
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < length {
		return nil, nil, fmt.Errorf("megolm: truncated TLV body: %w", ErrBadMessageFormat)
	}
	return rest[:length], rest[length:], nil
}

func readVarintTLV(data []byte, wantTag byte) (uint64, []byte, error) {
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("megolm: truncated TLV: %w", ErrBadMessageFormat)
	}
	if data[0] != wantTag {
		return 0, nil, fmt.Errorf("megolm: unexpected tag 0x%02x: %w", data[0], ErrBadMessageFormat)
	}
	return readVarint(data[1:])
}
