package authn

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2Params configures the memory-hard hash (§4.G), sourced from
// internal/config's AuthArgon2MemoryKB/AuthArgon2Iterations — matching
// golang.org/x/crypto/argon2's existing indirect presence in the teacher's
// go.mod, promoted here to direct, active use.
type argon2Params struct {
	memoryKB    uint32
	iterations  uint32
	parallelism uint8
	saltLen     uint32
	keyLen      uint32
}

func defaultParams(memoryKB, iterations int) argon2Params {
	return argon2Params{
		memoryKB:    uint32(memoryKB),
		iterations:  uint32(iterations),
		parallelism: 2,
		saltLen:     16,
		keyLen:      32,
	}
}

// HashPassword derives an argon2id hash encoded as
// "$argon2id$v=19$m=<kb>,t=<iter>,p=<par>$<salt-b64>$<hash-b64>".
func HashPassword(password string, memoryKB, iterations int) (string, error) {
	p := defaultParams(memoryKB, iterations)
	salt := make([]byte, p.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, p.iterations, p.memoryKB, p.parallelism, p.keyLen)

	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.memoryKB, p.iterations, p.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword checks password against an encoded hash produced by
// HashPassword, in constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("authn: unrecognized password hash format")
	}
	var memoryKB, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memoryKB, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("parse hash params: %w", err)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memoryKB, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
