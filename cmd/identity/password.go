package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

// Password errors (stable for callers).
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrInvalidHash      = errors.New("invalid password hash")
)

const (
	argon2Version = 19

	passwordMinLen = 8
	passwordMaxLen = 256
)

// PasswordParams controls Argon2id hashing cost. MemoryKiB is in KiB as argon2.IDKey expects.
type PasswordParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultPasswordParams returns a baseline suitable for interactive sign-in.
func DefaultPasswordParams() PasswordParams {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}
	return PasswordParams{
		MemoryKiB:   64 * 1024,
		Iterations:  3,
		Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
		SaltLength:  16,
		KeyLength:   32,
	}
}

// PasswordParamsFromEnv overrides defaults with CHAT_ARGON2_MEMORY_KIB,
// CHAT_ARGON2_ITERATIONS and CHAT_ARGON2_PARALLELISM.
func PasswordParamsFromEnv() (PasswordParams, error) {
	p := DefaultPasswordParams()

	if v, err := lookupUint("CHAT_ARGON2_MEMORY_KIB", 8*1024, 1<<20); err != nil {
		return PasswordParams{}, err
	} else if v > 0 {
		p.MemoryKiB = uint32(v) // #nosec G115 -- bounded above.
	}
	if v, err := lookupUint("CHAT_ARGON2_ITERATIONS", 1, 10); err != nil {
		return PasswordParams{}, err
	} else if v > 0 {
		p.Iterations = uint32(v) // #nosec G115 -- bounded above.
	}
	if v, err := lookupUint("CHAT_ARGON2_PARALLELISM", 1, 16); err != nil {
		return PasswordParams{}, err
	} else if v > 0 {
		p.Parallelism = uint8(v) // #nosec G115 -- bounded above.
	}
	return p, nil
}

func lookupUint(key string, lo, hi uint64) (uint64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s: must be in [%d..%d]", key, lo, hi)
	}
	return n, nil
}

// ValidatePassword checks length policy, counting runes rather than bytes.
func ValidatePassword(plain string) error {
	n := utf8.RuneCountInString(plain)
	if n < passwordMinLen {
		return ErrPasswordTooShort
	}
	if n > passwordMaxLen {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword returns a PHC-style Argon2id string:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
func HashPassword(plain string, p PasswordParams) (string, error) {
	if err := ValidatePassword(plain); err != nil {
		return "", err
	}

	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether plain matches encoded.
// A malformed or out-of-bounds hash yields (false, ErrInvalidHash).
func VerifyPassword(plain, encoded string) (bool, error) {
	p, salt, want, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(plain), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func decodeHash(encoded string) (PasswordParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return PasswordParams{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return PasswordParams{}, nil, nil, ErrInvalidHash
	}
	// Hash strings are untrusted: refuse pathological cost parameters.
	if mem == 0 || mem > 1<<20 || it == 0 || it > 10 || par == 0 || par > 16 {
		return PasswordParams{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 || len(salt) > 64 {
		return PasswordParams{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return PasswordParams{}, nil, nil, ErrInvalidHash
	}

	return PasswordParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),       // #nosec G115 -- bounded above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded above.
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded above.
	}, salt, key, nil
}
