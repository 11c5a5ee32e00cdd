package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, chosen to satisfy spec.md §4.3's minimums (memory
// >= 64 MiB, >= 3 iterations, parallelism >= 4).
const (
	argonMemoryKiB  = 64 * 1024
	argonIterations = 3
	argonParallel   = 4
	argonSaltLen    = 16
	argonKeyLen     = 32
)

// HashPassword derives a self-describing Argon2id verifier string from a
// plaintext password, encoding the algorithm, parameters, salt, and tag so
// the format can evolve without breaking stored hashes.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}

	tag := argon2.IDKey([]byte(password), salt, argonIterations, argonMemoryKiB, argonParallel, argonKeyLen)

	return fmt.Sprintf("argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemoryKiB, argonIterations, argonParallel,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(tag),
	), nil
}

// VerifyPassword reports whether password matches the given self-describing
// verifier string, in constant time once both tags are computed.
func VerifyPassword(password, encoded string) (bool, error) {
	version, memKiB, iterations, parallel, salt, tag, err := parseHash(encoded)
	if err != nil {
		return false, err
	}

	if version != argon2.Version {
		return false, fmt.Errorf("auth: unsupported argon2 version %d", version)
	}

	candidate := argon2.IDKey([]byte(password), salt, iterations, memKiB, parallel, uint32(len(tag)))
	return subtle.ConstantTimeCompare(candidate, tag) == 1, nil
}

func parseHash(encoded string) (version int, memKiB, iterations uint32, parallel uint8, salt, tag []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "argon2id" {
		return 0, 0, 0, 0, nil, nil, fmt.Errorf("auth: malformed password hash")
	}

	if _, err = fmt.Sscanf(parts[1], "v=%d", &version); err != nil {
		return 0, 0, 0, 0, nil, nil, fmt.Errorf("auth: malformed password hash version: %w", err)
	}

	var t, p uint32
	if _, err = fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &memKiB, &t, &p); err != nil {
		return 0, 0, 0, 0, nil, nil, fmt.Errorf("auth: malformed password hash params: %w", err)
	}
	iterations = t
	parallel = uint8(p)

	if salt, err = base64.RawStdEncoding.DecodeString(parts[3]); err != nil {
		return 0, 0, 0, 0, nil, nil, fmt.Errorf("auth: malformed password hash salt: %w", err)
	}
	if tag, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return 0, 0, 0, 0, nil, nil, fmt.Errorf("auth: malformed password hash tag: %w", err)
	}

	return version, memKiB, iterations, parallel, salt, tag, nil
}
