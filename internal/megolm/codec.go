package megolm

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
)

// outboundSnapshot is the serializable form of an OutboundSession, for
// pickling into internal/store. Storage detail only, not a wire format.
type outboundSnapshot struct {
	Counter    uint32              `json:"counter"`
	Parts      [partCount][32]byte `json:"parts"`
	SigningKey ed25519.PrivateKey  `json:"signing_key"`
	SigningPub ed25519.PublicKey   `json:"signing_pub"`
}

// Marshal serializes the outbound session at its current position.
func (s *OutboundSession) Marshal() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, parts := s.ratchet.snapshot()
	out, err := json.Marshal(outboundSnapshot{
		Counter:    counter,
		Parts:      parts,
		SigningKey: s.signingKey,
		SigningPub: s.SigningPub,
	})
	if err != nil {
		return nil, fmt.Errorf("megolm: marshal outbound session: %w", err)
	}
	return out, nil
}

// UnmarshalOutboundSession restores an outbound session serialized with
// Marshal.
func UnmarshalOutboundSession(data []byte) (*OutboundSession, error) {
	var snap outboundSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("megolm: unmarshal outbound session: %w", err)
	}
	return &OutboundSession{
		ratchet:    newRatchetFromParts(snap.Counter, snap.Parts),
		signingKey: snap.SigningKey,
		SigningPub: snap.SigningPub,
	}, nil
}

// inboundSnapshot is the serializable form of an InboundSession.
type inboundSnapshot struct {
	Counter    uint32              `json:"counter"`
	Parts      [partCount][32]byte `json:"parts"`
	Earliest   uint32              `json:"earliest"`
	SenderKey  [32]byte            `json:"sender_key"`
	SigningPub ed25519.PublicKey   `json:"signing_pub"`
}

// Marshal serializes the inbound session at its current position.
func (s *InboundSession) Marshal() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, parts := s.ratchet.snapshot()
	out, err := json.Marshal(inboundSnapshot{
		Counter:    counter,
		Parts:      parts,
		Earliest:   s.earliest,
		SenderKey:  s.SenderKey,
		SigningPub: s.SigningPub,
	})
	if err != nil {
		return nil, fmt.Errorf("megolm: marshal inbound session: %w", err)
	}
	return out, nil
}

// UnmarshalInboundSession restores an inbound session serialized with
// Marshal.
func UnmarshalInboundSession(data []byte) (*InboundSession, error) {
	var snap inboundSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("megolm: unmarshal inbound session: %w", err)
	}
	return &InboundSession{
		ratchet:    newRatchetFromParts(snap.Counter, snap.Parts),
		earliest:   snap.Earliest,
		SenderKey:  snap.SenderKey,
		SigningPub: snap.SigningPub,
	}, nil
}
