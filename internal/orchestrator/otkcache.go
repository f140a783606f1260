package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// otkClaimTTL bounds how long an in-flight one-time-key claim is cached
// before the Orchestrator re-requests it from the transport collaborator.
const otkClaimTTL = 2 * time.Minute

// OneTimeKeyCache is an optional transient cache for one-time keys claimed
// from the transport collaborator while the caller's outbound session is
// still being established. It is not a message queue — it never stores
// plaintext or ciphertext, only the claimed public key bytes — and an
// Orchestrator with no client configured simply re-claims on every miss.
type OneTimeKeyCache struct {
	client *redis.Client
}

// NewOneTimeKeyCache creates a Redis client for addr and checks it with a
// ping before returning.
func NewOneTimeKeyCache(addr string) (*OneTimeKeyCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("orchestrator: connect one-time-key cache: %w", err)
	}
	return &OneTimeKeyCache{client: client}, nil
}

// Close releases the underlying Redis connection.
func (c *OneTimeKeyCache) Close() error {
	return c.client.Close()
}

func cacheKey(userID, deviceID string) string {
	return "otk-claim:" + userID + ":" + deviceID
}

// Put records a freshly claimed key's raw 32 bytes against (userID, deviceID).
func (c *OneTimeKeyCache) Put(ctx context.Context, userID, deviceID string, key [32]byte) error {
	return c.client.Set(ctx, cacheKey(userID, deviceID), key[:], otkClaimTTL).Err()
}

// Get returns a previously cached claim, if one is still within its TTL.
func (c *OneTimeKeyCache) Get(ctx context.Context, userID, deviceID string) ([32]byte, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(userID, deviceID)).Bytes()
	if err == redis.Nil {
		return [32]byte{}, false, nil
	}
	if err != nil {
		return [32]byte{}, false, fmt.Errorf("orchestrator: read one-time-key cache: %w", err)
	}
	var out [32]byte
	copy(out[:], raw)
	return out, true, nil
}

// Invalidate removes a cached claim once it has been consumed into a
// session, so a retry never reuses an already-spent one-time key.
func (c *OneTimeKeyCache) Invalidate(ctx context.Context, userID, deviceID string) error {
	return c.client.Del(ctx, cacheKey(userID, deviceID)).Err()
}
