package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, passphrase string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrix-sdk-crypto.db")
	var opts []Option
	if passphrase != "" {
		opts = append(opts, WithPassphrase(passphrase))
	}
	s, err := Open(path, opts...)
	require.NoError(t, err)
	return s, path
}

func TestAccountRoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t, "hunter2")

	require.NoError(t, s.SaveAccount(ctx, "@alice:example.org", "DEVICEA", []byte("account-bytes"), false))
	require.NoError(t, s.Close())

	reopened, err := Open(path, WithPassphrase("hunter2"))
	require.NoError(t, err)
	defer reopened.Close()

	plaintext, shared, err := reopened.LoadAccount(ctx, "@alice:example.org", "DEVICEA")
	require.NoError(t, err)
	require.False(t, shared)
	require.Equal(t, []byte("account-bytes"), plaintext)
}

func TestLoadAccountUnsetReturnsErrAccountUnset(t *testing.T) {
	s, _ := openTemp(t, "")
	defer s.Close()

	_, _, err := s.LoadAccount(context.Background(), "@nobody:example.org", "X")
	require.ErrorIs(t, err, ErrAccountUnset)
}

// TestSessionReloadRoundTrip mirrors scenario S3: save an account and a
// session keyed by sender_key K, close the store, reopen it, and confirm
// GetSessions(K) returns exactly the saved session.
func TestSessionReloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t, "")

	require.NoError(t, s.SaveAccount(ctx, "@alice:example.org", "DEVICEA", []byte("acct"), true))
	require.NoError(t, s.SaveSession(ctx, "session-1", "senderkeyK", []byte("olm-session-bytes"), 1000, 1000))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, _, err = reopened.LoadAccount(ctx, "@alice:example.org", "DEVICEA")
	require.NoError(t, err)

	sessions, err := reopened.GetSessions(ctx, "senderkeyK")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "session-1", sessions[0].SessionID)
	require.Equal(t, []byte("olm-session-bytes"), sessions[0].Plaintext)
}

func TestGetSessionsOrdersMostRecentlyUsedFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, "")
	defer s.Close()

	require.NoError(t, s.SaveAccount(ctx, "@alice:example.org", "DEVICEA", []byte("acct"), true))
	require.NoError(t, s.SaveSession(ctx, "old", "senderkeyK", []byte("old-bytes"), 100, 100))
	require.NoError(t, s.SaveSession(ctx, "new", "senderkeyK", []byte("new-bytes"), 200, 200))

	sessions, err := s.GetSessions(ctx, "senderkeyK")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "new", sessions[0].SessionID)
	require.Equal(t, "old", sessions[1].SessionID)
}

func TestInboundGroupSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, "")
	defer s.Close()

	require.NoError(t, s.SaveAccount(ctx, "@alice:example.org", "DEVICEA", []byte("acct"), true))
	require.NoError(t, s.SaveInboundGroupSession(ctx, "!room:example.org", "sender-key", "signing-key", "sess-1", []byte("megolm-bytes")))

	plaintext, err := s.GetInboundGroupSession(ctx, "!room:example.org", "sender-key", "sess-1")
	require.NoError(t, err)
	require.Equal(t, []byte("megolm-bytes"), plaintext)

	_, err = s.GetInboundGroupSession(ctx, "!room:example.org", "sender-key", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

// TestDeviceDeletedFlagPersistsAcrossReload mirrors property #4: the deleted
// predicate, once set, survives a close/reopen cycle.
func TestDeviceDeletedFlagPersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t, "")

	require.NoError(t, s.SaveAccount(ctx, "@alice:example.org", "DEVICEA", []byte("acct"), true))
	require.NoError(t, s.SaveDevice(ctx, DeviceInfo{
		UserID:      "@bob:example.org",
		DeviceID:    "BOBDEVICE",
		Algorithms:  []string{"m.olm.v1.curve25519-aes-sha2"},
		Keys:        map[string]string{"curve25519": "abc"},
		TrustState:  0,
	}))
	require.NoError(t, s.DeleteDevice(ctx, "@bob:example.org", "BOBDEVICE"))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, _, err = reopened.LoadAccount(ctx, "@alice:example.org", "DEVICEA")
	require.NoError(t, err)

	dev, err := reopened.GetDevice(ctx, "@bob:example.org", "BOBDEVICE")
	require.NoError(t, err)
	require.True(t, dev.Deleted)
	require.Equal(t, []string{"m.olm.v1.curve25519-aes-sha2"}, dev.Algorithms)
	require.Equal(t, "abc", dev.Keys["curve25519"])
}

func TestTrackedUsers(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, "")
	defer s.Close()

	require.NoError(t, s.SaveAccount(ctx, "@alice:example.org", "DEVICEA", []byte("acct"), true))
	require.NoError(t, s.AddUserForTracking(ctx, "@bob:example.org"))
	require.NoError(t, s.AddUserForTracking(ctx, "@carol:example.org"))
	require.NoError(t, s.AddUserForTracking(ctx, "@bob:example.org")) // idempotent

	users, err := s.TrackedUsers(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"@bob:example.org", "@carol:example.org"}, users)
}
