// Package config centralizes how StrayMandu reads its settings: defaults, then
// an optional YAML file, then STRAYMANDU_* environment variables.
package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store modes.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Notification delivery modes.
const (
	NotifyDirect = "direct"
	NotifyPool   = "pool"
	NotifyQueue  = "queue"
)

// Feed modes.
const (
	FeedMemory = "memory"
	FeedRedis  = "redis"
)

// Config represents runtime configuration for the API, the worker and the CLI.
type Config struct {
	Address     string `yaml:"address"`
	StoreMode   string `yaml:"store"`
	DatabaseURL string `yaml:"databaseUrl"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`

	NotifyMode        string `yaml:"notifications"`
	WorkerConcurrency int    `yaml:"workerConcurrency"`
	FeedMode          string `yaml:"feed"`

	S3Endpoint    string   `yaml:"s3Endpoint"`
	S3AccessKey   string   `yaml:"s3AccessKey"`
	S3SecretKey   string   `yaml:"s3SecretKey"`
	S3Region      string   `yaml:"s3Region"`
	S3UseSSL      bool     `yaml:"s3UseSsl"`
	MediaBucket   string   `yaml:"mediaBucket"`
	MediaBaseURL  string   `yaml:"mediaBaseUrl"`
	MaxImageSize  int64    `yaml:"maxImageBytes"`
	AllowedImages []string `yaml:"allowedImageTypes"`

	TokenSecret []byte        `yaml:"-"`
	TokenIssuer string        `yaml:"tokenIssuer"`
	TokenTTL    time.Duration `yaml:"tokenTtl"`

	SubmitRatePerMinute float64 `yaml:"submitRatePerMinute"`
	SubmitBurst         int     `yaml:"submitBurst"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	APIURL string `yaml:"apiUrl"`
}

const (
	defaultAddress       = ":8080"
	defaultMaxImageSize  = 10 << 20 // 10 MiB
	defaultAllowedImages = "image/jpeg,image/png,image/webp"
	defaultWorkers       = 4
	defaultTokenTTL      = 24 * time.Hour
	defaultIssuer        = "straymandu"
	defaultSubmitRate    = 6
	defaultSubmitBurst   = 3
)

func defaults() *Config {
	return &Config{
		Address:             defaultAddress,
		StoreMode:           StoreMemory,
		RedisAddr:           "localhost:6379",
		NotifyMode:          NotifyDirect,
		WorkerConcurrency:   defaultWorkers,
		FeedMode:            FeedMemory,
		S3Region:            "us-east-1",
		MediaBucket:         "straymandu-media",
		MaxImageSize:        defaultMaxImageSize,
		AllowedImages:       splitList(defaultAllowedImages),
		TokenIssuer:         defaultIssuer,
		TokenTTL:            defaultTokenTTL,
		SubmitRatePerMinute: defaultSubmitRate,
		SubmitBurst:         defaultSubmitBurst,
		LogLevel:            "info",
		LogFormat:           "json",
		APIURL:              "http://localhost:8080",
	}
}

// Load reads configuration. The YAML file named by STRAYMANDU_CONFIG is
// optional; environment variables win over it.
func Load() (*Config, error) {
	cfg := defaults()
	if path := readEnv("STRAYMANDU_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var file struct {
		Config      `yaml:",inline"`
		TokenSecret string `yaml:"tokenSecret"`
	}
	file.Config = *c
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	*c = file.Config
	if file.TokenSecret != "" {
		c.TokenSecret = []byte(file.TokenSecret)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Address = readEnv("STRAYMANDU_ADDRESS", c.Address)
	c.StoreMode = strings.ToLower(readEnv("STRAYMANDU_STORE", c.StoreMode))
	c.DatabaseURL = readEnv("STRAYMANDU_DATABASE_URL", c.DatabaseURL)
	c.RedisAddr = readEnv("STRAYMANDU_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = readEnv("STRAYMANDU_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = parseInt("STRAYMANDU_REDIS_DB", c.RedisDB)
	c.NotifyMode = strings.ToLower(readEnv("STRAYMANDU_NOTIFICATIONS", c.NotifyMode))
	c.WorkerConcurrency = parseInt("STRAYMANDU_WORKERS", c.WorkerConcurrency)
	c.FeedMode = strings.ToLower(readEnv("STRAYMANDU_FEED", c.FeedMode))
	c.S3Endpoint = readEnv("STRAYMANDU_S3_ENDPOINT", c.S3Endpoint)
	c.S3AccessKey = readEnv("STRAYMANDU_S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = readEnv("STRAYMANDU_S3_SECRET_KEY", c.S3SecretKey)
	c.S3Region = readEnv("STRAYMANDU_S3_REGION", c.S3Region)
	c.S3UseSSL = parseBool("STRAYMANDU_S3_USE_SSL", c.S3UseSSL)
	c.MediaBucket = readEnv("STRAYMANDU_MEDIA_BUCKET", c.MediaBucket)
	c.MediaBaseURL = readEnv("STRAYMANDU_MEDIA_BASE_URL", c.MediaBaseURL)
	c.MaxImageSize = parseInt64("STRAYMANDU_MAX_IMAGE_BYTES", c.MaxImageSize)
	if v := readEnv("STRAYMANDU_ALLOWED_IMAGE_TYPES", ""); v != "" {
		c.AllowedImages = splitList(v)
	}
	if v := readEnv("STRAYMANDU_TOKEN_SECRET", ""); v != "" {
		c.TokenSecret = []byte(v)
	}
	c.TokenIssuer = readEnv("STRAYMANDU_TOKEN_ISSUER", c.TokenIssuer)
	c.TokenTTL = parseDuration("STRAYMANDU_TOKEN_TTL", c.TokenTTL)
	c.SubmitRatePerMinute = parseFloat("STRAYMANDU_SUBMIT_RATE", c.SubmitRatePerMinute)
	c.SubmitBurst = parseInt("STRAYMANDU_SUBMIT_BURST", c.SubmitBurst)
	c.LogLevel = readEnv("STRAYMANDU_LOG_LEVEL", c.LogLevel)
	c.LogFormat = readEnv("STRAYMANDU_LOG_FORMAT", c.LogFormat)
	c.APIURL = readEnv("STRAYMANDU_API_URL", c.APIURL)
}

func (c *Config) normalize() error {
	switch c.StoreMode {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("store %q requires STRAYMANDU_DATABASE_URL", c.StoreMode)
		}
	default:
		return fmt.Errorf("unknown store mode %q", c.StoreMode)
	}
	switch c.NotifyMode {
	case NotifyDirect, NotifyPool, NotifyQueue:
	default:
		return fmt.Errorf("unknown notification mode %q", c.NotifyMode)
	}
	switch c.FeedMode {
	case FeedMemory, FeedRedis:
	default:
		return fmt.Errorf("unknown feed mode %q", c.FeedMode)
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = defaultWorkers
	}
	if c.MaxImageSize <= 0 {
		c.MaxImageSize = defaultMaxImageSize
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = defaultTokenTTL
	}
	if c.SubmitRatePerMinute <= 0 {
		c.SubmitRatePerMinute = defaultSubmitRate
	}
	if c.SubmitBurst <= 0 {
		c.SubmitBurst = defaultSubmitBurst
	}
	if c.TokenSecret == nil {
		// Tokens issued with a random secret stop verifying after a restart,
		// which is acceptable for local development only.
		c.TokenSecret = randomSecret()
	}
	return nil
}

// MediaEnabled reports whether photo upload storage is configured.
func (c *Config) MediaEnabled() bool {
	return c.S3Endpoint != ""
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func splitList(val string) []string {
	out := strings.Split(val, ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte("straymandu-development-secret")
	}
	return buf
}
