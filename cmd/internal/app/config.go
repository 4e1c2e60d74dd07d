package app

import "time"

// Config contains process-level runtime configuration loaded from environment
// variables. Subsystems (session, auth API, socket gateway) load their own.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration

	// Empty selects the in-memory user store.
	DatabaseURL         string
	DBMaxConns          int32
	DBMinConns          int32
	DBMaxConnLifetime   time.Duration
	DBHealthCheckPeriod time.Duration
	DBMigrate           bool

	// Empty selects in-process bus, denylist and handshake store (single instance only).
	RedisURL      string
	FanoutChannel string
	HandshakeTTL  time.Duration

	// If true, /readyz returns 503 unless Postgres and Redis are configured and reachable.
	ReadinessRequireBackends bool

	// If true, CHAT_JWT_SECRET must be at least 32 bytes and not a known placeholder.
	RequireStrongSecret bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("CHAT_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("CHAT_LOG_LEVEL", "info"),
		LogFormat: EnvString("CHAT_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("CHAT_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("CHAT_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("CHAT_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("CHAT_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("CHAT_HTTP_MAX_HEADER_BYTES", 1<<20),
		ShutdownTimeout:   EnvDuration("CHAT_SHUTDOWN_TIMEOUT", 10*time.Second),

		DatabaseURL:         EnvString("CHAT_DATABASE_URL", ""),
		DBMaxConns:          EnvInt32("CHAT_DB_MAX_CONNS", 10),
		DBMinConns:          EnvInt32("CHAT_DB_MIN_CONNS", 0),
		DBMaxConnLifetime:   EnvDuration("CHAT_DB_MAX_CONN_LIFETIME", 30*time.Minute),
		DBHealthCheckPeriod: EnvDuration("CHAT_DB_HEALTH_CHECK_PERIOD", time.Minute),
		DBMigrate:           EnvBool("CHAT_DB_MIGRATE", false),

		RedisURL:      EnvString("CHAT_REDIS_URL", ""),
		FanoutChannel: EnvString("CHAT_FANOUT_CHANNEL", "broadcast"),
		HandshakeTTL:  EnvDuration("CHAT_WS_HANDSHAKE_TTL", 5*time.Minute),

		ReadinessRequireBackends: EnvBool("CHAT_READINESS_REQUIRE_BACKENDS", false),
		RequireStrongSecret:      EnvBool("CHAT_REQUIRE_STRONG_SECRET", true),

		CORSAllowedOrigins:   EnvCSV("CHAT_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("CHAT_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("CHAT_CORS_MAX_AGE_SECONDS", 600),
	}
}
