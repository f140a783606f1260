package olm

import (
	"encoding/json"
	"fmt"

	"github.com/jaydenbeard/olmcore/internal/primitives"
	"github.com/jaydenbeard/olmcore/internal/ratchet"
)

// snapshot is the serializable form of a Session, used to pickle it into
// internal/store. It is a storage detail, not a wire format: unlike Message
// and PrekeyMessage, nothing about its shape needs to match another Olm
// implementation.
type snapshot struct {
	RatchetPriv [32]byte `json:"ratchet_priv"`
	RatchetPub  [32]byte `json:"ratchet_pub"`

	RemoteKeyKnown bool     `json:"remote_key_known"`
	RemoteKey      [32]byte `json:"remote_key"`
	RootKey        [32]byte `json:"root_key"`

	HasSendingChain   bool     `json:"has_sending_chain"`
	SendingChainKey   [32]byte `json:"sending_chain_key"`
	SendingCounter    uint32   `json:"sending_counter"`
	SendingRatchet    [32]byte `json:"sending_ratchet"`

	HasReceivingChain bool     `json:"has_receiving_chain"`
	ReceivingChainKey [32]byte `json:"receiving_chain_key"`
	ReceivingCounter  uint32   `json:"receiving_counter"`
	ReceivingSource   [32]byte `json:"receiving_source"`

	HasPrekey   bool        `json:"has_prekey"`
	Prekey      prekeyState `json:"prekey"`
}

// Marshal serializes the session's full state for storage.
func (s *Session) Marshal() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		RatchetPriv:    s.ratchetKeyPair.PrivateKey,
		RatchetPub:     s.ratchetKeyPair.PublicKey,
		RemoteKeyKnown: s.remoteKeyKnown,
		RemoteKey:      s.remoteKey,
		RootKey:        s.rootKey,
	}
	if s.sendingChain != nil {
		snap.HasSendingChain = true
		snap.SendingChainKey = s.sendingChain.Key()
		snap.SendingCounter = s.sendingChain.Counter()
		snap.SendingRatchet = s.sendingRatchet
	}
	if s.receivingChain != nil {
		snap.HasReceivingChain = true
		snap.ReceivingChainKey = s.receivingChain.Key()
		snap.ReceivingCounter = s.receivingChain.Counter()
		snap.ReceivingSource = s.receivingSource
	}
	if s.prekey != nil {
		snap.HasPrekey = true
		snap.Prekey = *s.prekey
	}

	out, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("olm: marshal session: %w", err)
	}
	return out, nil
}

// Unmarshal restores a session previously serialized with Marshal. The
// skipped-message-key cache is not persisted: it is an in-memory
// optimization only, and losing it merely means out-of-order messages sent
// before a restart cannot be decrypted.
func Unmarshal(data []byte) (*Session, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("olm: unmarshal session: %w", err)
	}

	s := &Session{
		ratchetKeyPair: &primitives.Curve25519KeyPair{
			PrivateKey: snap.RatchetPriv,
			PublicKey:  snap.RatchetPub,
		},
		remoteKeyKnown: snap.RemoteKeyKnown,
		remoteKey:      snap.RemoteKey,
		rootKey:        snap.RootKey,
		skipped:        newSkippedKeyCache(),
	}
	if snap.HasSendingChain {
		s.sendingChain = ratchet.RestoreChain(snap.SendingChainKey, snap.SendingCounter)
		s.sendingRatchet = snap.SendingRatchet
	}
	if snap.HasReceivingChain {
		s.receivingChain = ratchet.RestoreChain(snap.ReceivingChainKey, snap.ReceivingCounter)
		s.receivingSource = snap.ReceivingSource
	}
	if snap.HasPrekey {
		prekey := snap.Prekey
		s.prekey = &prekey
	}
	return s, nil
}
