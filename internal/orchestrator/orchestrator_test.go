package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jaydenbeard/olmcore/internal/identity"
	"github.com/jaydenbeard/olmcore/internal/primitives"
	"github.com/jaydenbeard/olmcore/internal/registry"
	"github.com/jaydenbeard/olmcore/internal/store"
)

// fakeTransport is a minimal in-memory stand-in for the out-of-scope
// transport collaborator: it serves one-time keys straight out of a map the
// test populates, and records every envelope handed to SendToDevice.
type fakeTransport struct {
	claims map[KeyClaimRequest]ClaimedKey
	sent   []sentEnvelope
}

type sentEnvelope struct {
	userID, deviceID string
	envelope         []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{claims: make(map[KeyClaimRequest]ClaimedKey)}
}

func (f *fakeTransport) SendToDevice(ctx context.Context, userID, deviceID string, envelope []byte) error {
	f.sent = append(f.sent, sentEnvelope{userID, deviceID, envelope})
	return nil
}

func (f *fakeTransport) ClaimOneTimeKeys(ctx context.Context, requests []KeyClaimRequest) (map[KeyClaimRequest]ClaimedKey, error) {
	out := make(map[KeyClaimRequest]ClaimedKey)
	for _, r := range requests {
		if c, ok := f.claims[r]; ok {
			out[r] = c
		}
	}
	return out, nil
}

func setupOrchestrator(t *testing.T) (*Orchestrator, *fakeTransport, *Account) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "crypto.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	own, err := identity.NewOwnUserIdentity("@alice:example.org")
	require.NoError(t, err)
	reg := registry.New("@alice:example.org", own)

	account, err := NewAccount("@alice:example.org", "ALICEDEVICE")
	require.NoError(t, err)
	require.NoError(t, st.SaveAccount(context.Background(), "@alice:example.org", "ALICEDEVICE", []byte("account-placeholder"), true))

	transport := newFakeTransport()
	orch := New(account, st, reg, transport)
	return orch, transport, account
}

// bobDevice registers a self-signed device for @bob:example.org carrying
// both an Ed25519 identity key (required by registry.UpsertDevice) and a
// Curve25519 one it publishes for Olm sessions, then seeds the fake
// transport with one freshly claimable one-time key for that device.
func bobDevice(t *testing.T, orch *Orchestrator, transport *fakeTransport) (bobIdentity *primitives.Curve25519KeyPair, bobOneTime *primitives.Curve25519KeyPair) {
	t.Helper()

	signing, err := primitives.GenerateEd25519KeyPair()
	require.NoError(t, err)
	bobIdentity, err = primitives.GenerateCurve25519KeyPair()
	require.NoError(t, err)
	bobOneTime, err = primitives.GenerateCurve25519KeyPair()
	require.NoError(t, err)

	keys := registry.DeviceKeys{
		UserID:              "@bob:example.org",
		DeviceID:            "BOBDEVICE",
		SupportedAlgorithms: []string{"m.olm.v1.curve25519-aes-sha2"},
		Keys: map[string][]byte{
			"ed25519":    signing.PublicKey,
			"curve25519": bobIdentity.PublicKey[:],
		},
	}
	canonical, err := primitives.CanonicalJSON(struct {
		UserID              string            `json:"user_id"`
		DeviceID            string            `json:"device_id"`
		DisplayName         string            `json:"display_name"`
		SupportedAlgorithms []string          `json:"algorithms"`
		Keys                map[string][]byte `json:"keys"`
	}{keys.UserID, keys.DeviceID, keys.DisplayName, keys.SupportedAlgorithms, keys.Keys})
	require.NoError(t, err)
	keys.SelfSignature = primitives.Sign(signing.PrivateKey, canonical)

	_, err = orch.registry.UpsertDevice(keys)
	require.NoError(t, err)

	transport.claims[KeyClaimRequest{UserID: "@bob:example.org", DeviceID: "BOBDEVICE"}] = ClaimedKey{
		IdentityKey: bobIdentity.PublicKey,
		OneTimeKey:  bobOneTime.PublicKey,
	}
	return bobIdentity, bobOneTime
}

func TestEncryptToCreatesSessionFromClaimedOneTimeKey(t *testing.T) {
	orch, transport, _ := setupOrchestrator(t)
	bobIdentity, _ := bobDevice(t, orch, transport)

	envelope, err := orch.EncryptTo(context.Background(), "@bob:example.org", "BOBDEVICE", bobIdentity.PublicKey, []byte("hello bob"))
	require.NoError(t, err)
	require.NotEmpty(t, envelope)

	// A second call reuses the session rather than claiming another key.
	_, err = orch.EncryptTo(context.Background(), "@bob:example.org", "BOBDEVICE", bobIdentity.PublicKey, []byte("again"))
	require.NoError(t, err)
}

func TestShareAndReceiveGroupSession(t *testing.T) {
	aliceOrch, aliceTransport, aliceAccount := setupOrchestrator(t)
	_, _ = aliceTransport, aliceAccount

	bobIdentity, bobOneTime := bobDevice(t, aliceOrch, aliceTransport)

	_, results, err := aliceOrch.ShareGroupSession(context.Background(), "!room:example.org", []string{"@bob:example.org"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.NotEmpty(t, results[0].Envelope)

	// Bob's side: an Orchestrator of his own, with Alice's identity key as
	// the claimable "remote" key used to decrypt the envelope Alice sent.
	bobSt, err := store.Open(filepath.Join(t.TempDir(), "bob-crypto.db"))
	require.NoError(t, err)
	defer bobSt.Close()

	bobOwn, err := identity.NewOwnUserIdentity("@bob:example.org")
	require.NoError(t, err)
	bobReg := registry.New("@bob:example.org", bobOwn)

	bobAccount := &Account{userID: "@bob:example.org", deviceID: "BOBDEVICE"}
	bobAccount.identityKey = &primitives.Curve25519KeyPair{PrivateKey: bobIdentity.PrivateKey, PublicKey: bobIdentity.PublicKey}
	signing, err := primitives.GenerateEd25519KeyPair()
	require.NoError(t, err)
	bobAccount.signingKey = signing
	bobAccount.oneTimeKeys = map[[32]byte]*primitives.Curve25519KeyPair{bobOneTime.PublicKey: bobOneTime}

	require.NoError(t, bobSt.SaveAccount(context.Background(), "@bob:example.org", "BOBDEVICE", []byte("bob-account"), true))

	bobOrch := New(bobAccount, bobSt, bobReg, newFakeTransport())

	aliceIdentityKey := aliceAccount.IdentityPublicKey()
	inbound, err := bobOrch.ReceiveGroupKeyShare(context.Background(), "@alice:example.org", aliceIdentityKey, true, results[0].Envelope)
	require.NoError(t, err)
	require.NotNil(t, inbound)
}
