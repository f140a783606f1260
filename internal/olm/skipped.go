package olm

import "github.com/jaydenbeard/olmcore/internal/ratchet"

// maxSkippedKeys bounds both how many keys a single decrypt call may derive
// ahead in one jump and how many unused skipped keys a session retains at
// once (spec §4.2/§9).
const maxSkippedKeys = 2000

type skippedKeyID struct {
	ratchetKey [32]byte
	chainIndex uint32
}

// skippedKeyCache is an insertion-ordered, capacity-bounded store of message
// keys derived ahead of the receiving chain's current counter, so that
// out-of-order messages can still be decrypted once they arrive. Past
// capacity the oldest entry is evicted to make room for the newest.
type skippedKeyCache struct {
	order []skippedKeyID
	keys  map[skippedKeyID]ratchet.MessageKeys
}

func newSkippedKeyCache() *skippedKeyCache {
	return &skippedKeyCache{keys: make(map[skippedKeyID]ratchet.MessageKeys)}
}

func (c *skippedKeyCache) insert(ratchetKey [32]byte, chainIndex uint32, keys ratchet.MessageKeys) {
	id := skippedKeyID{ratchetKey: ratchetKey, chainIndex: chainIndex}
	if _, exists := c.keys[id]; exists {
		return
	}

	c.keys[id] = keys
	c.order = append(c.order, id)

	if len(c.order) > maxSkippedKeys {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.keys, oldest)
	}
}

func (c *skippedKeyCache) lookup(ratchetKey [32]byte, chainIndex uint32) (ratchet.MessageKeys, bool) {
	keys, ok := c.keys[skippedKeyID{ratchetKey: ratchetKey, chainIndex: chainIndex}]
	return keys, ok
}

// take removes and returns a skipped key; skipped keys are single-use.
func (c *skippedKeyCache) take(ratchetKey [32]byte, chainIndex uint32) (ratchet.MessageKeys, bool) {
	id := skippedKeyID{ratchetKey: ratchetKey, chainIndex: chainIndex}
	keys, ok := c.keys[id]
	if !ok {
		return ratchet.MessageKeys{}, false
	}

	delete(c.keys, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return keys, true
}

func (c *skippedKeyCache) len() int { return len(c.order) }
