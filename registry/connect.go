package registry

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// ErrAuthRequired is returned by Connect when the device requires a
// password and no promptFn was able to supply one.
var ErrAuthRequired = errors.New("registry: device requires a password")

// computeResponse mirrors auth.Engine.VerifyResponse's HMAC construction on
// the controller side, so both halves of the handshake agree on the key
// material (spec.md §9's "implementers MUST pin which side of this choice
// they take" -- this repo pins raw plaintext password bytes, see
// auth/engine.go's package doc).
func computeResponse(password, nonce string) []byte {
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(nonce))
	return mac.Sum(nil)
}

// Connect implements the controller's credential flow on connect
// (spec.md §4.7): ask whether auth is required, try a cached password if
// one exists (clearing it on auth_failed), and otherwise fall back to
// promptFn for a fresh password. On a successful password handshake the
// password and token are cached for next time. The returned token is
// empty when the device does not require authentication.
func Connect(ctx context.Context, client *Client, d SavedDevice, creds *CredentialCache, promptFn func() (password string, ok bool)) (token string, err error) {
	key := d.matchKey()

	_, authRequired, err := client.Health(ctx, d)
	if err != nil {
		return "", err
	}
	if !authRequired {
		return "", nil
	}

	if cached, ok := creds.Get(key); ok {
		tok, err := handshake(ctx, client, d, cached)
		if err == nil {
			creds.SetToken(key, tok)
			return tok, nil
		}
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Tag == "auth_failed" {
			_ = creds.Clear(key)
		} else {
			return "", err
		}
	}

	if promptFn == nil {
		return "", ErrAuthRequired
	}
	password, ok := promptFn()
	if !ok {
		return "", ErrAuthRequired
	}

	tok, err := handshake(ctx, client, d, password)
	if err != nil {
		return "", err
	}

	if err := creds.Set(key, password); err != nil {
		return "", err
	}
	creds.SetToken(key, tok)
	return tok, nil
}

func handshake(ctx context.Context, client *Client, d SavedDevice, password string) (string, error) {
	nonce, _, err := client.Challenge(ctx, d)
	if err != nil {
		return "", err
	}

	response := computeResponse(password, nonce)
	token, _, err := client.Verify(ctx, d, nonce, response)
	if err != nil {
		return "", err
	}
	return token, nil
}
