// Package config generalizes the teacher's cmd/server/main.go env() helper
// into a typed Load(), so every binary (cmd/server, cmd/cleanupd) reads the
// same environment contract instead of duplicating os.Getenv calls.
package config

import (
	"os"
	"strings"
	"time"
)

func str(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func duration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Config is the server's full environment contract.
type Config struct {
	Env         string // "dev" enables console logging and identity-JWT relaxations
	HTTPAddr    string
	DatabaseURL string
	RedisURL    string // empty = in-memory rate limiter

	Issuer string // OAuth issuer, also the default identity-provider issuer

	IdentityIssuer  string
	IdentityJWKSURL string
	IdentityAud     string
	IdentityAlias   string // program id assigned to identity-JWT contexts

	CleanupInterval time.Duration
}

// Load reads the process environment into a Config, applying the same
// "explicit dev opt-in" defaults the teacher's main.go uses for JWT dev mode.
func Load() Config {
	return Config{
		Env:             str("ENV", ""),
		HTTPAddr:        str("HTTP_ADDR", ":8080"),
		DatabaseURL:     str("DATABASE_URL", ""),
		RedisURL:        str("REDIS_URL", ""),
		Issuer:          str("OAUTH_ISSUER", "http://localhost:8080"),
		IdentityIssuer:  str("IDENTITY_ISSUER", ""),
		IdentityJWKSURL: str("IDENTITY_JWKS_URL", ""),
		IdentityAud:     str("IDENTITY_AUDIENCE", ""),
		IdentityAlias:   str("IDENTITY_PROGRAM_ALIAS", "mobile"),
		CleanupInterval: duration("CLEANUP_INTERVAL", time.Minute),
	}
}

// IsDev reports whether ENV was explicitly set to "dev" — mirrors the
// teacher's "Secure by default: if ENV is unset or misspelled, DevMode
// stays false" comment in cmd/server/main.go.
func (c Config) IsDev() bool { return strings.EqualFold(c.Env, "dev") }
