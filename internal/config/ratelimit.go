package config

import (
	"os"
	"strings"
	"time"
)

// RatePolicy is the declarative limit applied to one sensitive route: at
// most Limit requests per Period per client.
type RatePolicy struct {
	Key     string // route key, part of the Redis key
	Limit   int
	Period  time.Duration
	Enabled bool
}

// RatePolicies bundles the per-route limits for the sensitive operations.
type RatePolicies struct {
	Login         RatePolicy
	Verify2FA     RatePolicy
	Refresh       RatePolicy
	ResetRequest  RatePolicy
	ResetPassword RatePolicy
	Register      RatePolicy
}

// LoadRatePolicies returns the per-route rate limits. RATE_LIMIT_ENABLED
// switches the whole limiter off (useful in tests and local development).
func LoadRatePolicies() RatePolicies {
	enabled := true
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		enabled = !strings.EqualFold(v, "false") && v != "0"
	}
	pol := func(key string, limit int, period time.Duration) RatePolicy {
		return RatePolicy{Key: key, Limit: limit, Period: period, Enabled: enabled}
	}
	return RatePolicies{
		Login:         pol("login", 5, time.Minute),
		Verify2FA:     pol("verify_2fa", 5, time.Minute),
		Refresh:       pol("refresh", 10, time.Minute),
		ResetRequest:  pol("password_reset", 3, time.Hour),
		ResetPassword: pol("reset_password", 5, time.Minute),
		Register:      pol("register", 5, 5*time.Minute),
	}
}
