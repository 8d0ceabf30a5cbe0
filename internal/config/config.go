package config

import (
	"os"
	"strings"
	"time"
)

// DefaultJWTSecret is the developer fallback used when JWT_SECRET is
// unset. Startup logs a warning when it is in effect.
const DefaultJWTSecret = "opsdeck-dev-secret-change-me"

type Config struct {
	// Database
	PGDSN      string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimeout  time.Duration

	// Sessions
	JWTSecret  string
	SessionTTL time.Duration

	// Identity provider
	GoogleClientID string

	// Authorization
	AdminDomain string

	// Metrics
	TickInterval time.Duration

	// Control plane (optional; in-cluster defaults)
	KubeTokenPath string
	KubeCAPath    string

	// Server
	Port        string
	CORSOrigins string
	LogLevel    string
}

func Load() *Config {
	return &Config{
		PGDSN:      getEnv("PG_DSN", ""),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "opsdeck"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBTimeout:  parseDuration(getEnv("DB_TIMEOUT", "5s"), 5*time.Second),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		SessionTTL: parseDuration(getEnv("SESSION_TTL", "24h"), 24*time.Hour),

		GoogleClientID: getEnv("GOOGLE_CLIENT_ID", ""),

		AdminDomain: strings.ToLower(getEnv("ADMIN_DOMAIN", "")),

		TickInterval: parseDuration(getEnv("METRICS_INTERVAL", "5s"), 5*time.Second),

		KubeTokenPath: getEnv("KUBE_TOKEN_PATH", "/var/run/secrets/kubernetes.io/serviceaccount/token"),
		KubeCAPath:    getEnv("KUBE_CA_PATH", "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGIN", "*"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// DSN returns the Postgres connection string. PG_DSN wins when set;
// otherwise it is assembled from the discrete DB_* variables.
func (c *Config) DSN() string {
	if c.PGDSN != "" {
		return c.PGDSN
	}
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
