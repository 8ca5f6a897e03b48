// Package config loads application configuration from environment
// variables. A .env file is honored when present.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env             string        // application environment (dev/test/prod)
	Port            string        // HTTP port to listen on
	ProjectName     string        // shown as issuer in authenticator apps
	FrontendURL     string        // base URL for links embedded in emails
	DBUser          string        // database username
	DBPass          string        // database password (optional)
	DBHost          string        // database host address
	DBPort          string        // database port number
	DBName          string        // database name
	DBMaxOpenConns  int           // connection pool ceiling
	DBMaxIdleConns  int           // idle connections kept around
	DBConnLifetime  time.Duration // recycle connections after this long
	JWTSecret       string        // secret used to sign JWTs
	AccessTTL       time.Duration // access token time-to-live
	RefreshTTL      time.Duration // refresh token time-to-live
	VerificationTTL time.Duration // email-verification token time-to-live
	ResetTTL        time.Duration // password-reset token time-to-live
	BcryptCost      int           // bcrypt cost for password hashing
}

// Load reads configuration from the environment. Required variables are
// enforced by must(); missing values exit with a fatal log message.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Env:             must("APP_ENV"),
		Port:            must("APP_PORT"),
		ProjectName:     envStr("PROJECT_NAME", "FitGate"),
		FrontendURL:     envStr("FRONTEND_URL", "http://localhost:3000"),
		DBUser:          must("DB_USER"),
		DBPass:          os.Getenv("DB_PASS"),
		DBHost:          must("DB_HOST"),
		DBPort:          must("DB_PORT"),
		DBName:          must("DB_NAME"),
		DBMaxOpenConns:  envInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:  envInt("DB_MAX_IDLE_CONNS", 25),
		DBConnLifetime:  time.Duration(envInt("DB_CONN_LIFETIME_MIN", 30)) * time.Minute,
		JWTSecret:       must("JWT_SECRET"),
		AccessTTL:       time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 30)) * time.Minute,
		RefreshTTL:      time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,
		VerificationTTL: time.Duration(envInt("VERIFICATION_TOKEN_TTL_HOURS", 24)) * time.Hour,
		ResetTTL:        time.Duration(envInt("PASSWORD_RESET_TTL_MIN", 15)) * time.Minute,
		BcryptCost:      envInt("BCRYPT_COST", 12),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
