package app

import (
	"errors"
	"strings"
)

const minSecretBytes = 32

// Values that show up in sample env files and must never sign real tokens.
var placeholderSecrets = []string{
	"changeme",
	"change-me",
	"secret",
	"dev-secret",
	"replace-me",
}

// ValidateSecurityConfig enforces the signing key policy at startup when
// CHAT_REQUIRE_STRONG_SECRET is on (the default). Fails fast instead of
// running with a guessable key.
func ValidateSecurityConfig(cfg Config, secret []byte) error {
	if !cfg.RequireStrongSecret {
		return nil
	}

	// Bytes, not runes: the key is used as raw HMAC input.
	if len(secret) < minSecretBytes {
		return errors.New("security policy: CHAT_JWT_SECRET is too short (min 32 bytes)")
	}

	s := strings.ToLower(strings.TrimSpace(string(secret)))
	for _, p := range placeholderSecrets {
		if strings.HasPrefix(s, p) {
			return errors.New("security policy: CHAT_JWT_SECRET looks like a placeholder value")
		}
	}
	return nil
}
