// Package auth implements the agent's challenge-response authentication
// engine (spec.md §4.3): password hashing, challenge issuance and
// consumption, and session-token issuance/verification/revocation.
//
// Pinned design choice (spec.md §9's "single most fragile point"): the
// HMAC in step 2/3 of the handshake is computed over the raw password
// bytes, not the persisted Argon2id hash. Disk persistence (AgentConfig.
// PasswordHash) is always the irreversible hash; the plaintext is held
// only in this Engine's memory for the lifetime of the process, set
// whenever SetPassword/ChangePassword runs. A consequence spec.md §9
// flags explicitly: across an agent restart, the in-memory plaintext is
// gone, and no cached controller credential will verify until the
// operator re-provisions the password on the agent (SetPassword again).
// That is the cost of never persisting anything recoverable, and is
// considered acceptable over the alternative (keying HMAC off the
// on-disk hash string, which would let anyone who observes a single
// handshake on the unencrypted LAN impersonate the controller forever
// without ever learning the password).
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"sync"
	"time"
)

// Engine is the agent-side authentication engine. One Engine exists per
// running agent process.
type Engine struct {
	mu       sync.RWMutex
	password string // plaintext, in-memory only; see package doc.
	required bool

	challenges *pendingChallenges
	tokens     *tokenTable

	now func() time.Time
}

// New creates an Engine. passwordSet reports whether AgentConfig already
// has a password_hash on disk -- the engine starts in "required" mode but
// cannot verify anything until SetPassword is called again, per the
// package doc's restart caveat.
func New(passwordSet bool) *Engine {
	now := time.Now
	return &Engine{
		required:   passwordSet,
		challenges: newPendingChallenges(now),
		tokens:     newTokenTable(now),
		now:        now,
	}
}

// IsAuthRequired reports whether the agent currently requires
// authentication (spec.md §4.3 "is auth required").
func (e *Engine) IsAuthRequired() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.required
}

// IssueChallenge returns a fresh single-use nonce (spec.md §4.3 step 1).
func (e *Engine) IssueChallenge() (Challenge, error) {
	return e.challenges.issue()
}

// VerifyResponse consumes nonce and checks response against
// HMAC-SHA-256(password, nonce); on success it mints and returns a new
// SessionToken (spec.md §4.3 steps 2-3).
func (e *Engine) VerifyResponse(nonce string, response []byte, clientAddr string) (*SessionToken, error) {
	if err := e.challenges.consume(nonce); err != nil {
		return nil, err
	}

	e.mu.RLock()
	password := e.password
	required := e.required
	e.mu.RUnlock()

	if !required {
		// Public-less mode never reaches here through the HTTP pipeline
		// (verify is unauthenticated but IsAuthRequired gates whether a
		// controller even attempts it), but guard anyway.
		return nil, ErrAuthFailed
	}

	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(nonce))
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, response) != 1 {
		return nil, ErrAuthFailed
	}

	return e.tokens.issue(clientAddr)
}

// VerifyBearer validates a session token from an Authorization header
// (spec.md §4.3 "verify bearer token"). When auth is not required, every
// request is accepted without a token.
func (e *Engine) VerifyBearer(token string) (*SessionToken, error) {
	e.mu.RLock()
	required := e.required
	e.mu.RUnlock()

	if !required {
		return nil, nil
	}
	return e.tokens.verify(token)
}

// RevokeToken implements logout.
func (e *Engine) RevokeToken(token string) {
	e.tokens.revoke(token)
}

// SetPassword establishes a password where none was set before (or
// re-provisions the in-memory plaintext after a restart). Returns the
// Argon2id hash to persist to AgentConfig.
func (e *Engine) SetPassword(plaintext string) (hash string, err error) {
	hash, err = HashPassword(plaintext)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.password = plaintext
	e.required = true
	e.mu.Unlock()

	// Moving from public-less to password-protected, or rotating the
	// password, invalidates any in-flight tokens (spec.md §4.3).
	e.tokens.revokeAll()
	return hash, nil
}

// ChangePassword verifies the current in-memory password (failing if
// there isn't one, e.g. after a restart that hasn't re-provisioned it)
// before rotating to a new one.
func (e *Engine) ChangePassword(current, next string) (hash string, err error) {
	e.mu.RLock()
	stored := e.password
	required := e.required
	e.mu.RUnlock()

	if !required || stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(current)) != 1 {
		return "", ErrAuthFailed
	}
	return e.SetPassword(next)
}

// ClearPassword disables authentication entirely.
func (e *Engine) ClearPassword() {
	e.mu.Lock()
	e.password = ""
	e.required = false
	e.mu.Unlock()
	e.tokens.revokeAll()
}
