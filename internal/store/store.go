// Package store is the encrypted persistence façade described in spec
// §4.5/§6: a SQLite database of pickled accounts, sessions and inbound group
// sessions, plus relational device records. All SQL runs behind a single
// exclusive mutex (spec §5: "Store connection is serialized by a single
// exclusive mutex; SQL operations never overlap. This is acceptable because
// crypto work dominates.").
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultTimeout is the deadline applied to every store operation when the
// caller does not override it, per spec §5.
const DefaultTimeout = 5 * time.Second

// Store wraps the matrix-sdk-crypto.db SQLite database.
type Store struct {
	mu         sync.Mutex
	db         *sql.DB
	passphrase string
	timeout    time.Duration
	logger     *log.Logger

	accountID int64
	haveAcct  bool
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithPassphrase sets the pickle encryption passphrase. Without it, pickles
// are stored as plain base64.
func WithPassphrase(passphrase string) Option {
	return func(s *Store) { s.passphrase = passphrase }
}

// WithTimeout overrides DefaultTimeout for every operation on this Store.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// Open opens (creating if necessary) the SQLite database at path and applies
// the schema in schema.go.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // spec §5: a single exclusive mutex already serializes access

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	s := &Store{
		db:      db,
		timeout: DefaultTimeout,
		logger:  log.New(os.Stdout, "[store] ", log.Ldate|log.Ltime|log.LUTC),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// mapTimeout converts a context deadline error into ErrTimeout, even when
// the deadline error has since been wrapped with additional context.
func mapTimeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// SaveAccount upserts the single account row for (userID, deviceID),
// encrypting plaintext as a pickle. shared marks whether the account's
// public keys have been published.
func (s *Store) SaveAccount(ctx context.Context, userID, deviceID string, plaintext []byte, shared bool) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := pickle(plaintext, s.passphrase)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, device_id, pickle, shared) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, device_id) DO UPDATE SET pickle = excluded.pickle, shared = excluded.shared
	`, userID, deviceID, blob, boolToInt(shared))
	if err != nil {
		return mapTimeout(fmt.Errorf("store: save account: %w", err))
	}

	id, err := res.LastInsertId()
	if err == nil && id != 0 {
		s.accountID = id
		s.haveAcct = true
	} else {
		return s.loadAccountID(ctx, userID, deviceID)
	}
	return nil
}

func (s *Store) loadAccountID(ctx context.Context, userID, deviceID string) error {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE user_id = ? AND device_id = ?`, userID, deviceID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return mapTimeout(fmt.Errorf("store: load account id: %w", err))
	}
	s.accountID = id
	s.haveAcct = true
	return nil
}

// LoadAccount fetches and decrypts the account row for (userID, deviceID).
// Loading also primes the in-memory account handle used by subsequent
// session/device calls, matching spec §4.5 ("Loading also hydrates
// in-memory caches for group sessions and devices" — here, the account_id
// foreign key scope).
func (s *Store) LoadAccount(ctx context.Context, userID, deviceID string) (plaintext []byte, shared bool, err error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	var blob string
	var sharedInt int
	row := s.db.QueryRowContext(ctx, `SELECT id, pickle, shared FROM accounts WHERE user_id = ? AND device_id = ?`, userID, deviceID)
	if err := row.Scan(&id, &blob, &sharedInt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, ErrAccountUnset
		}
		return nil, false, mapTimeout(fmt.Errorf("store: load account: %w", err))
	}

	plaintext, err = unpickle(blob, s.passphrase)
	if err != nil {
		return nil, false, err
	}

	s.accountID = id
	s.haveAcct = true
	return plaintext, sharedInt != 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveSession upserts an Olm session pickle keyed by its sessionID, recording
// the remote sender_key it is associated with so GetSessions can find it
// later. creationTime/lastUseTime are unix seconds.
func (s *Store) SaveSession(ctx context.Context, sessionID, senderKey string, plaintext []byte, creationTime, lastUseTime int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveAcct {
		return ErrAccountUnset
	}

	blob, err := pickle(plaintext, s.passphrase)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, account_id, creation_time, last_use_time, sender_key, pickle)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET last_use_time = excluded.last_use_time, pickle = excluded.pickle
	`, sessionID, s.accountID, creationTime, lastUseTime, senderKey, blob)
	if err != nil {
		return mapTimeout(fmt.Errorf("store: save session: %w", err))
	}
	return nil
}

// SessionRecord is a decrypted Olm session row, ordered by last_use_time
// descending so callers that try sessions in turn attempt the most recently
// used one first.
type SessionRecord struct {
	SessionID    string
	Plaintext    []byte
	CreationTime int64
	LastUseTime  int64
}

// GetSessions returns every session associated with senderKey, most recently
// used first. Matches spec §4.5: "multiple sessions may exist per sender_key;
// callers try them in turn."
func (s *Store) GetSessions(ctx context.Context, senderKey string) ([]SessionRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveAcct {
		return nil, ErrAccountUnset
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, pickle, creation_time, last_use_time FROM sessions
		WHERE account_id = ? AND sender_key = ?
		ORDER BY last_use_time DESC
	`, s.accountID, senderKey)
	if err != nil {
		return nil, mapTimeout(fmt.Errorf("store: get sessions: %w", err))
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var blob string
		if err := rows.Scan(&rec.SessionID, &blob, &rec.CreationTime, &rec.LastUseTime); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		plaintext, err := unpickle(blob, s.passphrase)
		if err != nil {
			return nil, err
		}
		rec.Plaintext = plaintext
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveInboundGroupSession upserts a Megolm inbound session pickle keyed by
// (room_id, sender_key, session_id).
func (s *Store) SaveInboundGroupSession(ctx context.Context, roomID, senderKey, signingKey, sessionID string, plaintext []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveAcct {
		return ErrAccountUnset
	}

	blob, err := pickle(plaintext, s.passphrase)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inbound_group_sessions (session_id, account_id, sender_key, signing_key, room_id, pickle)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, room_id, sender_key, session_id) DO UPDATE SET pickle = excluded.pickle
	`, sessionID, s.accountID, senderKey, signingKey, roomID, blob)
	if err != nil {
		return mapTimeout(fmt.Errorf("store: save inbound group session: %w", err))
	}
	return nil
}

// GetInboundGroupSession fetches and decrypts a single Megolm inbound
// session. Returns ErrNotFound if no matching row exists.
func (s *Store) GetInboundGroupSession(ctx context.Context, roomID, senderKey, sessionID string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveAcct {
		return nil, ErrAccountUnset
	}

	var blob string
	row := s.db.QueryRowContext(ctx, `
		SELECT pickle FROM inbound_group_sessions
		WHERE account_id = ? AND room_id = ? AND sender_key = ? AND session_id = ?
	`, s.accountID, roomID, senderKey, sessionID)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, mapTimeout(fmt.Errorf("store: get inbound group session: %w", err))
	}
	return unpickle(blob, s.passphrase)
}

// DeviceInfo is the relational shape of a DeviceRecord, used to persist and
// reload internal/registry state.
type DeviceInfo struct {
	UserID, DeviceID, DisplayName string
	TrustState                    int32
	Deleted                       bool
	Algorithms                    []string
	Keys                          map[string]string
}

// SaveDevice upserts a device row and replaces its algorithms/keys child
// rows.
func (s *Store) SaveDevice(ctx context.Context, d DeviceInfo) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveAcct {
		return ErrAccountUnset
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapTimeout(fmt.Errorf("store: save device: %w", err))
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO devices (account_id, user_id, device_id, display_name, trust_state, deleted)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, user_id, device_id)
		DO UPDATE SET display_name = excluded.display_name, trust_state = excluded.trust_state, deleted = excluded.deleted
	`, s.accountID, d.UserID, d.DeviceID, d.DisplayName, d.TrustState, boolToInt(d.Deleted))
	if err != nil {
		return mapTimeout(fmt.Errorf("store: upsert device: %w", err))
	}

	rowID, err := res.LastInsertId()
	if err != nil || rowID == 0 {
		row := tx.QueryRowContext(ctx, `SELECT id FROM devices WHERE account_id = ? AND user_id = ? AND device_id = ?`,
			s.accountID, d.UserID, d.DeviceID)
		if err := row.Scan(&rowID); err != nil {
			return mapTimeout(fmt.Errorf("store: resolve device id: %w", err))
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM algorithms WHERE device_id = ?`, rowID); err != nil {
		return mapTimeout(fmt.Errorf("store: clear algorithms: %w", err))
	}
	for _, alg := range d.Algorithms {
		if _, err := tx.ExecContext(ctx, `INSERT INTO algorithms (device_id, algorithm) VALUES (?, ?)`, rowID, alg); err != nil {
			return mapTimeout(fmt.Errorf("store: insert algorithm: %w", err))
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM device_keys WHERE device_id = ?`, rowID); err != nil {
		return mapTimeout(fmt.Errorf("store: clear device keys: %w", err))
	}
	for alg, key := range d.Keys {
		if _, err := tx.ExecContext(ctx, `INSERT INTO device_keys (device_id, algorithm, key) VALUES (?, ?, ?)`, rowID, alg, key); err != nil {
			return mapTimeout(fmt.Errorf("store: insert device key: %w", err))
		}
	}

	return mapTimeout(tx.Commit())
}

// GetDevice fetches a single device by (userID, deviceID). Returns
// ErrNotFound if absent.
func (s *Store) GetDevice(ctx context.Context, userID, deviceID string) (DeviceInfo, error) {
	devices, err := s.queryDevices(ctx, `user_id = ? AND device_id = ?`, userID, deviceID)
	if err != nil {
		return DeviceInfo{}, err
	}
	if len(devices) == 0 {
		return DeviceInfo{}, ErrNotFound
	}
	return devices[0], nil
}

// GetUserDevices returns every device stored for userID.
func (s *Store) GetUserDevices(ctx context.Context, userID string) ([]DeviceInfo, error) {
	return s.queryDevices(ctx, `user_id = ?`, userID)
}

func (s *Store) queryDevices(ctx context.Context, where string, args ...interface{}) ([]DeviceInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveAcct {
		return nil, ErrAccountUnset
	}

	queryArgs := append([]interface{}{s.accountID}, args...)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, device_id, display_name, trust_state, deleted FROM devices
		WHERE account_id = ? AND `+where, queryArgs...)
	if err != nil {
		return nil, mapTimeout(fmt.Errorf("store: query devices: %w", err))
	}
	defer rows.Close()

	type row struct {
		id int64
		DeviceInfo
	}
	var out []row
	for rows.Next() {
		var r row
		var deletedInt int
		if err := rows.Scan(&r.id, &r.UserID, &r.DeviceID, &r.DisplayName, &r.TrustState, &deletedInt); err != nil {
			return nil, fmt.Errorf("store: scan device: %w", err)
		}
		r.Deleted = deletedInt != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make([]DeviceInfo, len(out))
	for i, r := range out {
		algs, err := s.db.QueryContext(ctx, `SELECT algorithm FROM algorithms WHERE device_id = ?`, r.id)
		if err != nil {
			return nil, mapTimeout(fmt.Errorf("store: query algorithms: %w", err))
		}
		var algList []string
		for algs.Next() {
			var a string
			if err := algs.Scan(&a); err != nil {
				algs.Close()
				return nil, err
			}
			algList = append(algList, a)
		}
		algs.Close()

		keys, err := s.db.QueryContext(ctx, `SELECT algorithm, key FROM device_keys WHERE device_id = ?`, r.id)
		if err != nil {
			return nil, mapTimeout(fmt.Errorf("store: query device keys: %w", err))
		}
		keyMap := make(map[string]string)
		for keys.Next() {
			var alg, key string
			if err := keys.Scan(&alg, &key); err != nil {
				keys.Close()
				return nil, err
			}
			keyMap[alg] = key
		}
		keys.Close()

		r.DeviceInfo.Algorithms = algList
		r.DeviceInfo.Keys = keyMap
		result[i] = r.DeviceInfo
	}
	return result, nil
}

// DeleteDevice marks a device deleted without removing its row, matching the
// monotonic-deleted-flag semantics of internal/registry.DeviceRecord.
func (s *Store) DeleteDevice(ctx context.Context, userID, deviceID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveAcct {
		return ErrAccountUnset
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE devices SET deleted = 1 WHERE account_id = ? AND user_id = ? AND device_id = ?
	`, s.accountID, userID, deviceID)
	return mapTimeout(err)
}

// AddUserForTracking records userID as a user whose device list should be
// kept up to date (spec §4.5's add_user_for_tracking).
func (s *Store) AddUserForTracking(ctx context.Context, userID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveAcct {
		return ErrAccountUnset
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_users (account_id, user_id) VALUES (?, ?)
		ON CONFLICT(account_id, user_id) DO NOTHING
	`, s.accountID, userID)
	return mapTimeout(err)
}

// TrackedUsers returns every user_id registered via AddUserForTracking.
func (s *Store) TrackedUsers(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.haveAcct {
		return nil, ErrAccountUnset
	}

	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM tracked_users WHERE account_id = ?`, s.accountID)
	if err != nil {
		return nil, mapTimeout(fmt.Errorf("store: tracked users: %w", err))
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
