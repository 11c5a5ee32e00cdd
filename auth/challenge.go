package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// defaultChallengeTTL is how long a nonce remains valid for a single use.
const defaultChallengeTTL = 30 * time.Second

// nonceByteLen is the width of the random nonce, well above the 128-bit
// minimum spec.md §3 requires.
const nonceByteLen = 32

// Challenge is a single-use server nonce (spec.md §3).
type Challenge struct {
	Nonce    string
	IssuedAt time.Time
	TTL      time.Duration
}

func (c Challenge) expiresAt() time.Time { return c.IssuedAt.Add(c.TTL) }

// pendingChallenges is the short-TTL set of issued, unconsumed nonces,
// mutex-guarded with short critical sections and lazy reaping on access,
// per spec.md §5.
type pendingChallenges struct {
	mu      sync.Mutex
	entries map[string]Challenge
	now     func() time.Time
}

func newPendingChallenges(now func() time.Time) *pendingChallenges {
	return &pendingChallenges{
		entries: make(map[string]Challenge),
		now:     now,
	}
}

// issue creates and stores a new challenge.
func (p *pendingChallenges) issue() (Challenge, error) {
	raw := make([]byte, nonceByteLen)
	if _, err := rand.Read(raw); err != nil {
		return Challenge{}, fmt.Errorf("auth: generating nonce: %w", err)
	}

	c := Challenge{
		Nonce:    base64.RawURLEncoding.EncodeToString(raw),
		IssuedAt: p.now(),
		TTL:      defaultChallengeTTL,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.reapLocked()
	p.entries[c.Nonce] = c
	return c, nil
}

// ErrAuthFailed is returned for any challenge/response mismatch; spec.md
// §4.3 deliberately does not distinguish "unknown nonce" from "bad HMAC".
var ErrAuthFailed = errors.New("auth_failed")

// consume validates and removes nonce, returning ErrAuthFailed if it is
// unknown or expired. A nonce that verifies successfully cannot verify
// again (spec.md §8.3).
func (p *pendingChallenges) consume(nonce string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reapLocked()

	c, ok := p.entries[nonce]
	if !ok {
		return ErrAuthFailed
	}
	delete(p.entries, nonce)

	if p.now().After(c.expiresAt()) {
		return ErrAuthFailed
	}
	return nil
}

func (p *pendingChallenges) reapLocked() {
	now := p.now()
	for nonce, c := range p.entries {
		if now.After(c.expiresAt()) {
			delete(p.entries, nonce)
		}
	}
}
