package authcore

import (
	"encoding/base64"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadConfigFromEnv builds a Config from environment variables layered over
// the defaults. A .env file in the working directory is honored when
// present; real environment variables win over it.
func LoadConfigFromEnv() (Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := defaultConfig()

	cfg.Token.AccessTTL = envDuration("AUTH_ACCESS_TTL", cfg.Token.AccessTTL)
	cfg.Token.RefreshTTL = envDuration("AUTH_REFRESH_TTL", cfg.Token.RefreshTTL)
	cfg.Token.Issuer = envString("AUTH_TOKEN_ISSUER", cfg.Token.Issuer)
	cfg.Token.Audience = envString("AUTH_TOKEN_AUDIENCE", cfg.Token.Audience)
	cfg.Token.SigningMethod = envString("AUTH_SIGNING_METHOD", cfg.Token.SigningMethod)
	cfg.Token.KeyID = envString("AUTH_TOKEN_KEY_ID", cfg.Token.KeyID)

	if raw := os.Getenv("AUTH_SIGNING_PRIVATE_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Token.PrivateKey = key
	}
	if raw := os.Getenv("AUTH_SIGNING_PUBLIC_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Token.PublicKey = key
	}

	cfg.Password.Memory = envUint32("AUTH_ARGON2_MEMORY_KB", cfg.Password.Memory)
	cfg.Password.Time = envUint32("AUTH_ARGON2_TIME", cfg.Password.Time)
	cfg.Password.MaxConcurrentHashes = envInt("AUTH_MAX_CONCURRENT_HASHES", cfg.Password.MaxConcurrentHashes)

	cfg.TOTP.Issuer = envString("AUTH_TOTP_ISSUER", cfg.TOTP.Issuer)
	cfg.TOTP.SetupTokenTTL = envDuration("AUTH_MFA_SETUP_TTL", cfg.TOTP.SetupTokenTTL)
	cfg.TOTP.ChallengeTTL = envDuration("AUTH_MFA_CHALLENGE_TTL", cfg.TOTP.ChallengeTTL)

	cfg.Session.AbsoluteTTL = envDuration("AUTH_SESSION_TTL", cfg.Session.AbsoluteTTL)
	cfg.Session.SlidingWindow = envDuration("AUTH_SESSION_SLIDING_WINDOW", cfg.Session.SlidingWindow)
	cfg.Session.KeyGrace = envDuration("AUTH_SESSION_KEY_GRACE", cfg.Session.KeyGrace)
	cfg.Session.SweepInterval = envDuration("AUTH_SWEEP_INTERVAL", cfg.Session.SweepInterval)

	cfg.Policy.CacheTTL = envDuration("AUTH_POLICY_CACHE_TTL", cfg.Policy.CacheTTL)
	cfg.Policy.MaxDepth = envInt("AUTH_POLICY_MAX_DEPTH", cfg.Policy.MaxDepth)

	cfg.RateLimit.MaxLoginAttempts = envInt("AUTH_MAX_LOGIN_ATTEMPTS", cfg.RateLimit.MaxLoginAttempts)
	cfg.RateLimit.MaxMfaAttempts = envInt("AUTH_MAX_MFA_ATTEMPTS", cfg.RateLimit.MaxMfaAttempts)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint32(name string, fallback uint32) uint32 {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint32(n)
		}
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
