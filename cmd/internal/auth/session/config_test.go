package session

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_MissingSecret(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", "")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig on missing secret, got %v", err)
	}
}

func TestLoadConfigFromEnv_InvalidDurations(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", string(testSecret))
	t.Setenv("CHAT_AUTH_ACCESS_TTL", "-5m")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for negative duration, got %v", err)
	}
}

func TestLoadConfigFromEnv_RefreshShorterThanAccess(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", string(testSecret))
	t.Setenv("CHAT_AUTH_ACCESS_TTL", "2h")
	t.Setenv("CHAT_AUTH_REFRESH_TTL", "1h")
	if _, err := LoadConfigFromEnv(); err != ErrConfig {
		t.Fatalf("expected ErrConfig for ttl order, got %v", err)
	}
}

func TestLoadConfigFromEnv_Valid(t *testing.T) {
	t.Setenv("CHAT_JWT_SECRET", string(testSecret))
	t.Setenv("CHAT_AUTH_ISSUER", "chat-test")
	t.Setenv("CHAT_AUTH_ACCESS_TTL", "10m")
	t.Setenv("CHAT_AUTH_REFRESH_TTL", "48h")
	t.Setenv("CHAT_AUTH_REVOKE_REFRESH_ON_SIGNOUT", "false")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Issuer != "chat-test" {
		t.Fatalf("issuer mismatch: %q", cfg.Issuer)
	}
	if cfg.AccessTokenTTL != 10*time.Minute {
		t.Fatalf("access ttl mismatch: %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 48*time.Hour {
		t.Fatalf("refresh ttl mismatch: %v", cfg.RefreshTokenTTL)
	}
	if cfg.RevokeRefreshOnSignOut {
		t.Fatalf("expected refresh revocation disabled")
	}
	if string(cfg.Secret) != string(testSecret) {
		t.Fatalf("secret mismatch")
	}
}
