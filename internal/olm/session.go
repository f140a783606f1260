// Package olm implements the Double Ratchet session used for 1:1 encrypted
// messaging (spec §4.2): a Diffie-Hellman ratchet over a pair of symmetric
// KDF chains, wrapped in prekey envelopes until the recipient's first reply
// establishes the session.
package olm

import (
	"crypto/hmac"
	"fmt"
	"sync"

	"github.com/jaydenbeard/olmcore/internal/primitives"
	"github.com/jaydenbeard/olmcore/internal/ratchet"
)

// ratchetStepLabel is the HKDF info label used when deriving a new root key
// and chain key from a Diffie-Hellman output, per spec §4.2.
var ratchetStepLabel = []byte("OLM_RATCHET")

// prekeyState holds the handshake fields an initiating session must keep
// echoing until its first reply arrives.
type prekeyState struct {
	OneTimeKey  [32]byte
	Ephemeral   [32]byte
	IdentityKey [32]byte
}

// Session is one Olm Double Ratchet session between a local account and a
// single remote device. All exported methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	ratchetKeyPair  *primitives.Curve25519KeyPair
	remoteKeyKnown  bool
	remoteKey       [32]byte
	rootKey         [32]byte
	sendingChain    *ratchet.Chain
	sendingRatchet  [32]byte // the ratchet public key the sending chain is tied to
	receivingChain  *ratchet.Chain
	receivingSource [32]byte // the remote ratchet key the receiving chain is tied to
	skipped         *skippedKeyCache
	prekey          *prekeyState
}

// NewOutbound creates the initiating side of a session (X3DH "Alice"). rootKey
// is the X3DH shared secret; remoteRatchetKey and the handshake fields come
// from the recipient's published prekey bundle. Alice's own freshly generated
// ratchet key pair doubles as her X3DH ephemeral key.
func NewOutbound(rootKey [32]byte, remoteRatchetKey, remoteIdentityKey, remoteOneTimeKey [32]byte) (*Session, error) {
	ratchetKeyPair, err := primitives.GenerateCurve25519KeyPair()
	if err != nil {
		return nil, fmt.Errorf("olm: generate initial ratchet key: %w", err)
	}

	dh, err := primitives.DH(ratchetKeyPair.PrivateKey, remoteRatchetKey)
	if err != nil {
		return nil, fmt.Errorf("olm: initial DH: %w", err)
	}

	newRoot, sendChainKey, err := deriveRootStep(rootKey, dh)
	if err != nil {
		return nil, err
	}

	s := &Session{
		ratchetKeyPair: ratchetKeyPair,
		remoteKeyKnown: true,
		remoteKey:      remoteRatchetKey,
		rootKey:        newRoot,
		sendingChain:   ratchet.NewChain(sendChainKey),
		sendingRatchet: ratchetKeyPair.PublicKey,
		skipped:        newSkippedKeyCache(),
		prekey: &prekeyState{
			OneTimeKey:  remoteOneTimeKey,
			Ephemeral:   ratchetKeyPair.PublicKey,
			IdentityKey: remoteIdentityKey,
		},
	}
	return s, nil
}

// NewInbound creates the responding side of a session (X3DH "Bob"). rootKey
// is the same X3DH shared secret Alice derived; localRatchetKeyPair is the
// signed-prekey (or one-time-key) pair Alice's bundle advertised and that Bob
// used to complete X3DH. The session has no sending chain and no observed
// remote ratchet key until the first message is decrypted: that decrypt
// triggers the DH ratchet step that gives Bob both a receiving chain (tied to
// Alice's key) and a fresh sending chain for his reply.
func NewInbound(rootKey [32]byte, localRatchetKeyPair *primitives.Curve25519KeyPair) *Session {
	return &Session{
		ratchetKeyPair: localRatchetKeyPair,
		rootKey:        rootKey,
		skipped:        newSkippedKeyCache(),
	}
}

// deriveRootStep expands (rootKey, dh) into a new root key and a new chain
// key via HKDF-SHA256, matching the two-value split the ratchet step makes at
// every DH ratchet, per spec §4.2.
func deriveRootStep(rootKey, dh [32]byte) (newRoot [32]byte, chainKey [32]byte, err error) {
	out := make([]byte, 64)
	if err := primitives.HKDFExpand(rootKey[:], dh[:], ratchetStepLabel, out); err != nil {
		return [32]byte{}, [32]byte{}, fmt.Errorf("olm: derive ratchet step: %w", err)
	}
	copy(newRoot[:], out[0:32])
	copy(chainKey[:], out[32:64])
	return newRoot, chainKey, nil
}

// ratchetStep performs the full two-stage DH ratchet triggered by observing a
// new remote ratchet key: it derives a receiving chain from the existing
// local key pair, then rolls the local key pair forward and derives a fresh
// sending chain against the same remote key.
func (s *Session) ratchetStep(newRemoteKey [32]byte) error {
	dhRecv, err := primitives.DH(s.ratchetKeyPair.PrivateKey, newRemoteKey)
	if err != nil {
		return fmt.Errorf("olm: ratchet step (recv): %w", err)
	}
	newRoot, recvChainKey, err := deriveRootStep(s.rootKey, dhRecv)
	if err != nil {
		return err
	}

	newLocalKeyPair, err := primitives.GenerateCurve25519KeyPair()
	if err != nil {
		return fmt.Errorf("olm: ratchet step: generate new local key: %w", err)
	}
	dhSend, err := primitives.DH(newLocalKeyPair.PrivateKey, newRemoteKey)
	if err != nil {
		return fmt.Errorf("olm: ratchet step (send): %w", err)
	}
	newRootPrime, sendChainKey, err := deriveRootStep(newRoot, dhSend)
	if err != nil {
		return err
	}

	s.remoteKey = newRemoteKey
	s.remoteKeyKnown = true
	s.receivingChain = ratchet.NewChain(recvChainKey)
	s.receivingSource = newRemoteKey
	s.ratchetKeyPair = newLocalKeyPair
	s.sendingChain = ratchet.NewChain(sendChainKey)
	s.sendingRatchet = newLocalKeyPair.PublicKey
	s.rootKey = newRootPrime
	return nil
}

// Encrypt advances the sending chain and returns the wire form of plaintext.
// While the session still carries unacknowledged prekey handshake fields, the
// message is wrapped in a PrekeyMessage envelope.
func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sendingChain == nil {
		return nil, ErrSessionNotReady
	}

	keys, err := s.sendingChain.Next()
	if err != nil {
		return nil, fmt.Errorf("olm: advance sending chain: %w", err)
	}
	chainIndex := s.sendingChain.Counter() - 1

	ciphertext, err := primitives.EncryptAESCBC(plaintext, keys.AESKey, keys.IV)
	if err != nil {
		return nil, fmt.Errorf("olm: encrypt message: %w", err)
	}

	msg := &Message{RatchetKey: s.sendingRatchet, ChainIndex: chainIndex, Ciphertext: ciphertext}
	body := msg.encodeBody()
	mac := primitives.HMACSHA256(keys.MACKey[:], body)[:macSize]
	wire := msg.Encode(mac)

	if s.prekey != nil {
		pm := &PrekeyMessage{
			OneTimeKey:   s.prekey.OneTimeKey,
			EphemeralKey: s.prekey.Ephemeral,
			IdentityKey:  s.prekey.IdentityKey,
			Inner:        wire,
		}
		return pm.Encode(), nil
	}
	return wire, nil
}

// Decrypt verifies and decrypts a normal Message. Callers holding a prekey
// envelope must unwrap it with DecodePrekeyMessage first and pass the Inner
// bytes here.
func (s *Session) Decrypt(wire []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, body, mac, err := decodeMessage(wire)
	if err != nil {
		return nil, err
	}

	if !s.remoteKeyKnown || msg.RatchetKey != s.remoteKey {
		if err := s.ratchetStep(msg.RatchetKey); err != nil {
			return nil, err
		}
	}

	keys, err := s.resolveMessageKeys(msg)
	if err != nil {
		return nil, err
	}

	computedMac := primitives.HMACSHA256(keys.MACKey[:], body)[:macSize]
	if !hmac.Equal(computedMac, mac) {
		return nil, ErrBadMac
	}

	plaintext, err := primitives.DecryptAESCBC(msg.Ciphertext, keys.AESKey, keys.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessageFormat, err)
	}

	s.prekey = nil
	return plaintext, nil
}

// resolveMessageKeys returns the message keys for msg's chain index, pulling
// from the skipped-key cache, advancing in place, or deriving and caching a
// run of skipped keys, as needed.
func (s *Session) resolveMessageKeys(msg *Message) (ratchet.MessageKeys, error) {
	current := s.receivingChain.Counter()

	switch {
	case msg.ChainIndex < current:
		keys, ok := s.skipped.take(msg.RatchetKey, msg.ChainIndex)
		if !ok {
			return ratchet.MessageKeys{}, fmt.Errorf("olm: no key for already-consumed index %d: %w", msg.ChainIndex, ErrBadMessageFormat)
		}
		return keys, nil

	case msg.ChainIndex > current:
		gap := uint64(msg.ChainIndex) - uint64(current)
		if gap > maxSkippedKeys {
			return ratchet.MessageKeys{}, ErrTooManySkipped
		}
		for s.receivingChain.Counter() < msg.ChainIndex {
			keys, err := s.receivingChain.Next()
			if err != nil {
				return ratchet.MessageKeys{}, fmt.Errorf("olm: derive skipped key: %w", err)
			}
			s.skipped.insert(msg.RatchetKey, s.receivingChain.Counter()-1, keys)
		}
		return s.receivingChain.Next()

	default:
		return s.receivingChain.Next()
	}
}

// RatchetPublicKey returns the session's current local ratchet public key,
// as advertised in the Message header of the next Encrypt call.
func (s *Session) RatchetPublicKey() [32]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ratchetKeyPair.PublicKey
}

// HasPendingPrekey reports whether outgoing messages are still wrapped in a
// prekey envelope, i.e. whether the first reply has not yet been decrypted.
func (s *Session) HasPendingPrekey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prekey != nil
}
