package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. timeCost/memoryCost/parallelism satisfy the minimums
// this system requires: timeCost>=3, memoryCost>=64MiB, parallelism=1.
const (
	argonTimeCost   = 3
	argonMemoryKiB  = 64 * 1024
	argonThreads    = 1
	argonKeyLen     = 32
	argonSaltLen    = 16
)

// HashPassword derives an argon2id hash of password and encodes it as
// "<b64 salt>$<b64 hash>$t=<time>,m=<memory>,p=<parallelism>" so every
// parameter needed to verify is self-contained in the stored string.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("identity: generating salt: %w", err)
	}

	sum := argon2.IDKey([]byte(password), salt, argonTimeCost, argonMemoryKiB, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("%s$%s$t=%d,m=%d,p=%d",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
		argonTimeCost, argonMemoryKiB, argonThreads,
	)
	return encoded, nil
}

// VerifyPassword checks password against an encoded hash produced by
// HashPassword, in constant time. Malformed encoded strings (truncated,
// wrong field count) return false, never panic.
func VerifyPassword(encoded, password string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	var timeCost uint32 = argonTimeCost
	var memoryKiB uint32 = argonMemoryKiB
	var threads uint8 = argonThreads
	if _, err := fmt.Sscanf(parts[2], "t=%d,m=%d,p=%d", &timeCost, &memoryKiB, &threads); err != nil {
		return false
	}
	if len(want) == 0 || timeCost < 1 || threads < 1 {
		return false
	}

	got := argon2.IDKey([]byte(password), salt, timeCost, memoryKiB, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// RandomToken mints a fresh single-use bearer: 32 cryptographically random
// bytes, base64url-encoded as the plaintext shown to the caller once, and
// the SHA-256 hex digest of that plaintext as the value persisted. This
// exact mechanism backs sessions, setup/reset tokens, and node credentials.
func RandomToken() (plaintext string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("identity: generating token: %w", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(buf)
	hash = HashToken(plaintext)
	return plaintext, hash, nil
}

// HashToken returns the SHA-256 hex digest of a bearer plaintext — the only
// form of any bearer secret ever persisted.
func HashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
