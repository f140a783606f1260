// Package orchestrator routes incoming and outgoing to-device payloads to
// the right Olm session, creates sessions lazily from prekey messages and
// one-time keys, and distributes Megolm group sessions to recipient devices
// (spec §4.7).
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaydenbeard/olmcore/internal/megolm"
	"github.com/jaydenbeard/olmcore/internal/olm"
	"github.com/jaydenbeard/olmcore/internal/registry"
	"github.com/jaydenbeard/olmcore/internal/store"
)

// maxSessionTryCount bounds how many candidate sessions the Orchestrator
// will attempt before giving up on an incoming non-prekey message, per spec
// §4.7.
const maxSessionTryCount = 10

// storeRetryAttempts is how many attempts in total a Store operation failing
// with ErrTimeout gets before the Orchestrator gives up, per spec §5.
const storeRetryAttempts = 3

// Orchestrator is the thin dispatch layer gluing incoming/outgoing payloads
// to Olm/Megolm sessions and Store updates (spec §2/§4.7). Account and Store
// are singletons within an Orchestrator.
type Orchestrator struct {
	mu sync.Mutex

	account   *Account
	store     *store.Store
	registry  *registry.Registry
	transport Transport
	otkCache  *OneTimeKeyCache
	logger    *log.Logger

	sessions       map[string][]*olm.Session // sender_key (hex) -> sessions, MRU first
	outboundGroups map[string]*megolm.OutboundSession // room_id -> session
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithOneTimeKeyCache wires an optional Redis-backed cache for in-flight
// one-time-key claims.
func WithOneTimeKeyCache(c *OneTimeKeyCache) Option {
	return func(o *Orchestrator) { o.otkCache = c }
}

// WithLogger overrides the default stdlib logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator over an already-open account, store and
// device registry.
func New(account *Account, st *store.Store, reg *registry.Registry, transport Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		account:        account,
		store:          st,
		registry:       reg,
		transport:      transport,
		logger:         log.New(os.Stdout, "[orchestrator] ", log.Ldate|log.Ltime|log.LUTC),
		sessions:       make(map[string][]*olm.Session),
		outboundGroups: make(map[string]*megolm.OutboundSession),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func keyHex(k [32]byte) string { return hex.EncodeToString(k[:]) }

// withStoreRetry runs op up to storeRetryAttempts times in total, trying
// again only while it fails with store.ErrTimeout.
func withStoreRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < storeRetryAttempts; attempt++ {
		err = op()
		if err == nil || err != store.ErrTimeout {
			return err
		}
	}
	return err
}

// rememberSession inserts sess as the most-recently-used session for
// senderKey.
func (o *Orchestrator) rememberSession(senderKey [32]byte, sess *olm.Session) {
	k := keyHex(senderKey)
	existing := o.sessions[k]
	o.sessions[k] = append([]*olm.Session{sess}, existing...)
}

func (o *Orchestrator) persistSession(ctx context.Context, sessionID string, senderKey [32]byte, sess *olm.Session) error {
	plaintext, err := sess.Marshal()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	return withStoreRetry(func() error {
		return o.store.SaveSession(ctx, sessionID, keyHex(senderKey), plaintext, now, now)
	})
}

// HandleIncoming routes one decrypted-at-the-transport-layer to-device
// payload. isPrekey must be carried by the caller out-of-band (spec §4.2:
// the wire bytes alone cannot distinguish a PrekeyMessage from a Message).
// senderKey is the sender device's published Curve25519 identity key, also
// supplied out-of-band by the transport/to-device envelope.
func (o *Orchestrator) HandleIncoming(ctx context.Context, senderUserID string, senderKey [32]byte, isPrekey bool, wire []byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if isPrekey {
		return o.handleIncomingPrekey(ctx, senderUserID, senderKey, wire)
	}
	return o.handleIncomingMessage(ctx, senderKey, wire)
}

func (o *Orchestrator) handleIncomingPrekey(ctx context.Context, senderUserID string, senderKey [32]byte, wire []byte) ([]byte, error) {
	pm, err := olm.DecodePrekeyMessage(wire)
	if err != nil {
		return nil, err
	}

	otk, ok := o.account.ClaimOneTimeKey(pm.OneTimeKey)
	if !ok {
		// The one-time key has already been consumed, or never belonged to
		// this account: there is nothing new to establish. Fall back to
		// trying existing sessions in case this is a retransmit.
		return o.handleIncomingMessage(ctx, senderKey, pm.Inner)
	}

	rootKey, err := inboundRootKey(o.account, otk.PrivateKey, senderKey)
	if err != nil {
		return nil, err
	}

	sess := olm.NewInbound(rootKey, otk)
	plaintext, err := sess.Decrypt(pm.Inner)
	if err != nil {
		return nil, err
	}

	o.rememberSession(senderKey, sess)
	sessionID := uuid.NewString()
	if err := o.persistSession(ctx, sessionID, senderKey, sess); err != nil {
		o.logger.Printf("persist inbound session from %s: %v", senderUserID, err)
	}
	return plaintext, nil
}

func (o *Orchestrator) handleIncomingMessage(ctx context.Context, senderKey [32]byte, wire []byte) ([]byte, error) {
	candidates := o.sessions[keyHex(senderKey)]
	if len(candidates) == 0 {
		return nil, ErrMissingSession
	}

	tries := len(candidates)
	if tries > maxSessionTryCount {
		tries = maxSessionTryCount
	}

	for i := 0; i < tries; i++ {
		sess := candidates[i]
		plaintext, err := sess.Decrypt(wire)
		if err == nil {
			o.bumpToFront(senderKey, i)
			return plaintext, nil
		}
	}
	return nil, ErrSessionExhausted
}

func (o *Orchestrator) bumpToFront(senderKey [32]byte, i int) {
	k := keyHex(senderKey)
	list := o.sessions[k]
	if i == 0 || i >= len(list) {
		return
	}
	sess := list[i]
	without := append(append([]*olm.Session{}, list[:i]...), list[i+1:]...)
	o.sessions[k] = append([]*olm.Session{sess}, without...)
}

// EncryptTo encrypts plaintext for (recipientUserID, recipientDeviceID),
// reusing an existing session keyed by the device's known identity key or
// creating one from a freshly claimed one-time key if none exists.
func (o *Orchestrator) EncryptTo(ctx context.Context, recipientUserID, recipientDeviceID string, recipientIdentityKey [32]byte, plaintext []byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	k := keyHex(recipientIdentityKey)
	if sessions := o.sessions[k]; len(sessions) > 0 {
		return sessions[0].Encrypt(plaintext)
	}

	claim, err := o.claimOneTimeKey(ctx, recipientUserID, recipientDeviceID)
	if err != nil {
		return nil, err
	}

	rootKey, err := outboundRootKey(o.account, claim.IdentityKey, claim.OneTimeKey)
	if err != nil {
		return nil, err
	}

	sess, err := olm.NewOutbound(rootKey, claim.OneTimeKey, claim.IdentityKey, claim.OneTimeKey)
	if err != nil {
		return nil, err
	}

	o.rememberSession(recipientIdentityKey, sess)
	sessionID := uuid.NewString()
	if err := o.persistSession(ctx, sessionID, recipientIdentityKey, sess); err != nil {
		o.logger.Printf("persist outbound session to %s/%s: %v", recipientUserID, recipientDeviceID, err)
	}

	return sess.Encrypt(plaintext)
}

func (o *Orchestrator) claimOneTimeKey(ctx context.Context, userID, deviceID string) (ClaimedKey, error) {
	if o.otkCache != nil {
		if key, ok, err := o.otkCache.Get(ctx, userID, deviceID); err == nil && ok {
			if dev, found := o.registry.Device(userID, deviceID); found {
				return ClaimedKey{IdentityKey: asKey(dev.Keys["curve25519"]), OneTimeKey: key}, nil
			}
		}
	}

	claims, err := o.transport.ClaimOneTimeKeys(ctx, []KeyClaimRequest{{UserID: userID, DeviceID: deviceID}})
	if err != nil {
		return ClaimedKey{}, fmt.Errorf("orchestrator: claim one-time keys: %w", err)
	}
	claim, ok := claims[KeyClaimRequest{UserID: userID, DeviceID: deviceID}]
	if !ok {
		return ClaimedKey{}, ErrNoOneTimeKey
	}

	if o.otkCache != nil {
		if err := o.otkCache.Put(ctx, userID, deviceID, claim.OneTimeKey); err != nil {
			o.logger.Printf("cache one-time key for %s/%s: %v", userID, deviceID, err)
		}
	}
	return claim, nil
}

func asKey(b []byte) [32]byte {
	var k [32]byte
	copy(k[:], b)
	return k
}

// ShareGroupSessionResult is one recipient's encrypted group session share.
type ShareGroupSessionResult struct {
	UserID, DeviceID string
	Envelope         []byte
	Err              error
}

// newOutboundGroupSession creates and registers a fresh outbound Megolm
// session for roomID, replacing any prior one (a rotation).
func (o *Orchestrator) newOutboundGroupSession(roomID string) (*megolm.OutboundSession, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("orchestrator: generate group session seed: %w", err)
	}
	outbound, err := megolm.NewOutboundSession(seed)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.outboundGroups[roomID] = outbound
	o.mu.Unlock()
	return outbound, nil
}

// ShareGroupSession creates (or rotates) the outbound Megolm session for
// roomID, exports its inbound counterpart at index 0, and encrypts that
// export to every device of every recipient user that is neither
// Blacklisted nor deleted, per spec §4.7.
func (o *Orchestrator) ShareGroupSession(ctx context.Context, roomID string, recipientUserIDs []string) (*megolm.OutboundSession, []ShareGroupSessionResult, error) {
	outbound, err := o.newOutboundGroupSession(roomID)
	if err != nil {
		return nil, nil, err
	}

	index, parts, signingPub := outbound.ExportAt()
	share := groupKeyShare{RoomID: roomID, Index: index, Parts: parts, SigningPub: signingPub}
	payload, err := share.encode()
	if err != nil {
		return nil, nil, err
	}

	var results []ShareGroupSessionResult
	for _, userID := range recipientUserIDs {
		devices := o.registry.UserDevices(userID)
		if len(devices) == 0 {
			results = append(results, ShareGroupSessionResult{UserID: userID, Err: ErrDeviceNotFound})
			continue
		}
		for _, dev := range devices {
			if dev.Deleted() || dev.LocalTrust() == registry.TrustBlacklisted {
				continue
			}
			identityKey := asKey(dev.Keys["curve25519"])
			envelope, err := o.EncryptTo(ctx, userID, dev.DeviceID, identityKey, payload)
			results = append(results, ShareGroupSessionResult{UserID: userID, DeviceID: dev.DeviceID, Envelope: envelope, Err: err})
		}
	}
	return outbound, results, nil
}

// ReceiveGroupKeyShare decrypts a group-key-share payload previously
// delivered via ShareGroupSession and imports the resulting Megolm inbound
// session, persisting it for later room-message decryption.
func (o *Orchestrator) ReceiveGroupKeyShare(ctx context.Context, senderUserID string, senderIdentityKey [32]byte, isPrekey bool, wire []byte) (*megolm.InboundSession, error) {
	payload, err := o.HandleIncoming(ctx, senderUserID, senderIdentityKey, isPrekey, wire)
	if err != nil {
		return nil, err
	}

	share, err := decodeGroupKeyShare(payload)
	if err != nil {
		return nil, err
	}

	inbound := megolm.NewInboundSession(share.Index, share.Parts, senderIdentityKey, share.SigningPub)

	plaintext, err := inbound.Marshal()
	if err != nil {
		return nil, err
	}
	sessionID := fmt.Sprintf("%s:%s:%d", share.RoomID, keyHex(senderIdentityKey), share.Index)
	if err := withStoreRetry(func() error {
		return o.store.SaveInboundGroupSession(ctx, share.RoomID, keyHex(senderIdentityKey), string(share.SigningPub), sessionID, plaintext)
	}); err != nil {
		o.logger.Printf("persist inbound group session for room %s: %v", share.RoomID, err)
	}
	return inbound, nil
}
