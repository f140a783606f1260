// Package qrverify implements the binary envelope for QR-mediated device and
// user verification (spec §4.6): a compact byte layout that is encoded into
// and decoded from a QR bitmap by an external image codec.
package qrverify

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/google/uuid"
)

// Mode selects which of the three verification scenarios an envelope
// describes.
type Mode byte

const (
	ModeVerification               Mode = 0x00
	ModeSelfVerification            Mode = 0x01
	ModeSelfVerificationNoMasterKey Mode = 0x02
)

const (
	magic          = "MATRIX"
	version        = 0x02
	headerSize     = len(magic) + 1 + 1 // magic + version + mode
	flowLenSize    = 2
	keySize        = 32
	minSecretBytes = 8
)

// Message is the decoded form of a verification envelope. The meaning of
// KeyA, KeyB and FlowID depends on Mode (spec §4.6):
//
//   - ModeVerification: FlowID is a room ID, KeyA is our master key, KeyB is
//     their master key as we know it.
//   - ModeSelfVerification: FlowID is a transaction ID, KeyA is our master
//     key, KeyB is the other device's Ed25519 key.
//   - ModeSelfVerificationNoMasterKey: FlowID is a transaction ID, KeyA is
//     our device Ed25519 key, KeyB is our master key as trusted by the other
//     side.
type Message struct {
	Mode   Mode
	FlowID string
	KeyA   [32]byte
	KeyB   [32]byte
	Secret []byte
}

// NewFlowID generates a fresh transaction ID for ModeSelfVerification and
// ModeSelfVerificationNoMasterKey flows, which (unlike ModeVerification's
// room ID) have no natural identifier of their own.
func NewFlowID() string {
	return uuid.NewString()
}

// Encode produces the inverse byte string of Decode. The result is the input
// to an external QR renderer at error-correction level L, byte-mode data.
func Encode(m *Message) ([]byte, error) {
	if len(m.FlowID) > 0xFFFF {
		return nil, ErrTooLong
	}

	buf := make([]byte, 0, headerSize+flowLenSize+len(m.FlowID)+2*keySize+len(m.Secret))
	buf = append(buf, magic...)
	buf = append(buf, version)
	buf = append(buf, byte(m.Mode))

	flowLen := make([]byte, flowLenSize)
	binary.BigEndian.PutUint16(flowLen, uint16(len(m.FlowID)))
	buf = append(buf, flowLen...)
	buf = append(buf, m.FlowID...)
	buf = append(buf, m.KeyA[:]...)
	buf = append(buf, m.KeyB[:]...)
	buf = append(buf, m.Secret...)
	return buf, nil
}

// Decode parses a verification envelope produced by Encode (or a compatible
// client).
func Decode(data []byte) (*Message, error) {
	if len(data) < 9 || !bytes.Equal(data[:len(magic)], []byte(magic)) {
		return nil, ErrHeader
	}

	if data[len(magic)] != version {
		return nil, &VersionError{Version: data[len(magic)]}
	}

	mode := Mode(data[len(magic)+1])
	if mode > ModeSelfVerificationNoMasterKey {
		return nil, &ModeError{Mode: byte(mode)}
	}

	if len(data) < headerSize+flowLenSize {
		return nil, &ReadError{Field: "flow_len"}
	}
	flowLen := int(binary.BigEndian.Uint16(data[headerSize : headerSize+flowLenSize]))

	flowStart := headerSize + flowLenSize
	flowEnd := flowStart + flowLen
	if len(data) < flowEnd {
		return nil, &ReadError{Field: "flow_id"}
	}
	flowID := string(data[flowStart:flowEnd])

	keysEnd := flowEnd + 2*keySize
	if len(data) < keysEnd {
		return nil, &ReadError{Field: "keys"}
	}

	secret := data[keysEnd:]
	if len(secret) < minSecretBytes {
		return nil, &SharedSecretError{Length: len(secret)}
	}

	if mode == ModeVerification && !isValidRoomID(flowID) {
		return nil, &IdentifierError{FlowID: flowID}
	}

	msg := &Message{Mode: mode, FlowID: flowID, Secret: append([]byte(nil), secret...)}
	copy(msg.KeyA[:], data[flowEnd:flowEnd+keySize])
	copy(msg.KeyB[:], data[flowEnd+keySize:keysEnd])
	return msg, nil
}

// isValidRoomID checks the minimal Matrix room ID shape: a leading '!' and a
// ':' separating the local part from a non-empty server name, per spec §4.6
// ("flow_id not a valid room ID of the form !...:host").
func isValidRoomID(s string) bool {
	if !strings.HasPrefix(s, "!") {
		return false
	}
	colon := strings.IndexByte(s, ':')
	if colon < 2 || colon == len(s)-1 {
		return false
	}
	return true
}
