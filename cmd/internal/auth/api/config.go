package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	RefreshCookieName string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite
	// RefreshCookieMaxAge is normally the refresh token lifetime.
	RefreshCookieMaxAge time.Duration

	// Per client IP, shared by sign-in and sign-up.
	CredentialsPerMinute int
	CredentialsBurst     int
	// Per client IP.
	HandshakePerMinute int
	HandshakeBurst     int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:         1 << 16,
		RefreshCookieName:    "refresh_token",
		CookiePath:           "/",
		CookieSecure:         true,
		CookieSameSite:       http.SameSiteStrictMode,
		RefreshCookieMaxAge:  7 * 24 * time.Hour,
		CredentialsPerMinute: 10,
		CredentialsBurst:     10,
		HandshakePerMinute:   60,
		HandshakeBurst:       20,
	}
}

// LoadConfigFromEnv loads auth API config from CHAT_AUTH_* variables.
// refreshTTL sets the cookie lifetime; zero keeps the default.
func LoadConfigFromEnv(refreshTTL time.Duration) Config {
	def := DefaultConfig()
	if refreshTTL > 0 {
		def.RefreshCookieMaxAge = refreshTTL
	}

	cfg := Config{
		TrustProxy:           envBool("CHAT_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:         envInt64("CHAT_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		RefreshCookieName:    envString("CHAT_AUTH_COOKIE_NAME", def.RefreshCookieName),
		CookiePath:           envString("CHAT_AUTH_COOKIE_PATH", def.CookiePath),
		CookieDomain:         envString("CHAT_AUTH_COOKIE_DOMAIN", ""),
		CookieSecure:         envBool("CHAT_AUTH_COOKIE_SECURE", def.CookieSecure),
		CookieSameSite:       parseSameSite(envString("CHAT_AUTH_COOKIE_SAMESITE", "strict")),
		RefreshCookieMaxAge:  def.RefreshCookieMaxAge,
		CredentialsPerMinute: envInt("CHAT_AUTH_CREDENTIALS_PER_MINUTE", def.CredentialsPerMinute),
		CredentialsBurst:     envInt("CHAT_AUTH_CREDENTIALS_BURST", def.CredentialsBurst),
		HandshakePerMinute:   envInt("CHAT_AUTH_HANDSHAKE_PER_MINUTE", def.HandshakePerMinute),
		HandshakeBurst:       envInt("CHAT_AUTH_HANDSHAKE_BURST", def.HandshakeBurst),
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteStrictMode
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
