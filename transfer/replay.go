package transfer

import (
	"sync"
	"time"
)

// challengeReplayCache records PULL challenge values a Sender has already
// answered, so a retransmitted datagram within pullValidity (spec.md
// §4.6: a challenge is a wire uint64, not an arbitrary key) is rejected
// as a replay instead of re-processed. Expiry is lazy, same as the
// generic cache it replaces: an expired entry is only reclaimed the next
// time its own challenge is looked up.
type challengeReplayCache struct {
	mu   sync.Mutex
	seen map[uint64]time.Time
	ttl  time.Duration
}

func newChallengeReplayCache(ttl time.Duration) *challengeReplayCache {
	return &challengeReplayCache{seen: make(map[uint64]time.Time), ttl: ttl}
}

// SeenRecently reports whether challenge was already marked within ttl.
// It does not itself mark the challenge; a caller that decides to
// process challenge still must call Mark.
func (c *challengeReplayCache) SeenRecently(challenge uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.seen[challenge]
	if !ok {
		return false
	}
	if exp.After(time.Now()) {
		return true
	}
	delete(c.seen, challenge)
	return false
}

// Mark records challenge as answered, valid for ttl from now.
func (c *challengeReplayCache) Mark(challenge uint64) {
	c.mu.Lock()
	c.seen[challenge] = time.Now().Add(c.ttl)
	c.mu.Unlock()
}
