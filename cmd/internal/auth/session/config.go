package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is set as the "iss" claim and required on decode when non-empty.
	Issuer string

	// AccessTokenTTL is the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the lifetime of refresh tokens (and of the refresh cookie).
	RefreshTokenTTL time.Duration

	// Secret is the HS256 signing key.
	Secret []byte

	// RevokeRefreshOnSignOut clears the user's refresh pointer on sign-out
	// in addition to denylisting the access token.
	RevokeRefreshOnSignOut bool
}

// DefaultConfig returns defaults suitable for development. Secret is left empty.
func DefaultConfig() Config {
	return Config{
		Issuer:                 "chat-app",
		AccessTokenTTL:         15 * time.Minute,
		RefreshTokenTTL:        7 * 24 * time.Hour,
		RevokeRefreshOnSignOut: true,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - CHAT_JWT_SECRET
//
// Optional:
//   - CHAT_AUTH_ISSUER
//   - CHAT_AUTH_ACCESS_TTL (Go duration)
//   - CHAT_AUTH_REFRESH_TTL (Go duration)
//   - CHAT_AUTH_REVOKE_REFRESH_ON_SIGNOUT (bool)
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("CHAT_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("CHAT_AUTH_ACCESS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTokenTTL = d
	}

	if v := os.Getenv("CHAT_AUTH_REFRESH_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenTTL = d
	}

	if v := os.Getenv("CHAT_AUTH_REVOKE_REFRESH_ON_SIGNOUT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, ErrConfig
		}
		cfg.RevokeRefreshOnSignOut = b
	}

	cfg.Secret = []byte(os.Getenv("CHAT_JWT_SECRET"))
	if len(cfg.Secret) == 0 {
		return Config{}, ErrConfig
	}

	// A refresh token that dies before its access token would be useless.
	if cfg.RefreshTokenTTL < cfg.AccessTokenTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
