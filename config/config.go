package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type ServiceConfig struct {
	HTTPAddr      string
	PublicBaseURL string
	CORSOrigin    string
	// RecipientDevice is the device role eligible to receive videos.
	RecipientDevice string
}

type UploadsConfig struct {
	Dir string
	// IdleTTL bounds how long an orphaned upload session (sender gone,
	// chunks stopped) is kept before the janitor collects it.
	IdleTTL         time.Duration
	JanitorInterval time.Duration
}

type TokenConfig struct {
	Backend         string // "memory" or "redis"
	TTL             time.Duration
	CleanupInterval time.Duration
}

type RedisConfig struct {
	Addr string
}

type S3Config struct {
	Enabled    bool
	Bucket     string
	Region     string
	PresignTTL time.Duration
}

type Config struct {
	Env string

	ServiceConfig *ServiceConfig
	UploadsConfig *UploadsConfig
	TokenConfig   *TokenConfig
	RedisConfig   *RedisConfig
	S3Config      *S3Config
}

func LoadConfig() Config {
	httpAddr := envOr("HTTP_ADDR", ":3000")

	return Config{
		Env: envOr("ENV", "dev"),
		ServiceConfig: &ServiceConfig{
			HTTPAddr:        httpAddr,
			PublicBaseURL:   envOr("PUBLIC_BASE_URL", "http://localhost"+httpAddr),
			CORSOrigin:      envOr("CORS_ORIGIN", "*"),
			RecipientDevice: envOr("RECIPIENT_DEVICE", "android"),
		},
		UploadsConfig: &UploadsConfig{
			Dir:             envOr("UPLOADS_DIR", "./uploads"),
			IdleTTL:         envDurationOr("UPLOAD_IDLE_TTL", 30*time.Minute),
			JanitorInterval: envDurationOr("UPLOAD_JANITOR_INTERVAL", time.Minute),
		},
		TokenConfig: &TokenConfig{
			Backend:         envOr("TOKEN_BACKEND", "memory"),
			TTL:             envDurationOr("TOKEN_TTL", 10*time.Minute),
			CleanupInterval: envDurationOr("TOKEN_CLEANUP_INTERVAL", time.Minute),
		},
		RedisConfig: &RedisConfig{
			Addr: envOr("REDIS_HOST", "localhost:6379"),
		},
		S3Config: &S3Config{
			Enabled:    envBoolOr("S3_ENABLED", false),
			Bucket:     os.Getenv("S3_BUCKET"),
			Region:     envOr("AWS_REGION", "us-east-1"),
			PresignTTL: envDurationOr("S3_PRESIGN_TTL", time.Hour),
		},
	}
}

// Validate checks the combinations that cannot be defaulted.
func (c Config) Validate() error {
	if c.S3Config.Enabled && c.S3Config.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when S3_ENABLED is set")
	}
	switch c.TokenConfig.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown TOKEN_BACKEND %q", c.TokenConfig.Backend)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBoolOr(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDurationOr(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
