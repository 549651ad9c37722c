package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-engine/internal/cache"
	"github.com/kjstillabower/weather-engine/internal/validation"
)

// Credentialed providers. Keys come from env ({ID}_API_KEY) or the
// api_keys map in config/secrets.yaml.
var Providers = []string{"openweathermap", "visualcrossing", "weatherapi", "meteostat"}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	TestingMode bool

	ServerPort      string
	RequestTimeout  time.Duration
	MaxRangeDays    int
	ShutdownTimeout time.Duration

	SourceTimeout time.Duration
	Endpoints     Endpoints

	RetryAttempts          int
	RetryBaseDelay         time.Duration
	RetryBackoffMultiplier float64

	BreakerFailureThreshold int
	BreakerMaxRequests      int
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration

	CacheBackend    string // in_memory, memcached, redis or sqlite
	CacheVersion    string
	CacheCurrentTTL time.Duration
	CacheRecentTTL  time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	SQLitePath    string
	PurgeInterval time.Duration

	CoalesceEnabled bool

	WarmingEnabled     bool
	WarmInterval       time.Duration
	TrackedCoordinates []cache.Coordinate

	RateLimitRPS   int
	RateLimitBurst int
	HealthWindow   time.Duration

	APIKeys map[string]string
}

// Endpoints overrides provider base URLs. Empty values use the public APIs.
type Endpoints struct {
	OpenMeteo        string `yaml:"openmeteo"`
	OpenMeteoArchive string `yaml:"openmeteo_archive"`
	OpenWeatherMap   string `yaml:"openweathermap"`
	OWMHistory       string `yaml:"openweathermap_history"`
	VisualCrossing   string `yaml:"visualcrossing"`
	WeatherAPI       string `yaml:"weatherapi"`
	BrightSky        string `yaml:"brightsky"`
	Meteostat        string `yaml:"meteostat"`
}

// GetKey returns the credential for a provider id.
func (c *Config) GetKey(provider string) (string, bool) {
	key, ok := c.APIKeys[provider]
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Request struct {
		Timeout      string `yaml:"timeout"`
		MaxRangeDays int    `yaml:"max_range_days"`
	} `yaml:"request"`

	Sources struct {
		Timeout   string    `yaml:"timeout"`
		Endpoints Endpoints `yaml:"endpoints"`
	} `yaml:"sources"`

	Retry struct {
		MaxAttempts       int     `yaml:"max_attempts"`
		BaseDelay         string  `yaml:"base_delay"`
		BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	} `yaml:"retry"`

	CircuitBreaker struct {
		FailureThreshold int    `yaml:"failure_threshold"`
		MaxRequests      int    `yaml:"max_requests"`
		Interval         string `yaml:"interval"`
		Timeout          string `yaml:"timeout"`
	} `yaml:"circuit_breaker"`

	Cache struct {
		Backend    string `yaml:"backend"`
		Version    string `yaml:"version"`
		CurrentTTL string `yaml:"current_ttl"`
		RecentTTL  string `yaml:"recent_ttl"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr    string `yaml:"addr"`
			DB      int    `yaml:"db"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
		SQLite struct {
			Path          string `yaml:"path"`
			PurgeInterval string `yaml:"purge_interval"`
		} `yaml:"sqlite"`
	} `yaml:"cache"`

	Coalesce struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"coalesce"`

	Warming struct {
		Enabled     bool               `yaml:"enabled"`
		Interval    string             `yaml:"interval"`
		Coordinates []cache.Coordinate `yaml:"coordinates"`
	} `yaml:"warming"`

	RateLimit struct {
		RPS   int `yaml:"rps"`
		Burst int `yaml:"burst"`
	} `yaml:"rate_limit"`

	Health struct {
		Window string `yaml:"window"`
	} `yaml:"health"`
}

type secretsFile struct {
	APIKeys       map[string]string `yaml:"api_keys"`
	RedisPassword string            `yaml:"redis_password"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml relative to the working directory. A .env file there is
// loaded into the environment first. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir is Load rooted at dir.
func LoadDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")
	cfg.ShutdownTimeout = parseDuration(fc.Server.ShutdownTimeout, 30*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)
	cfg.MaxRangeDays = fc.Request.MaxRangeDays
	if cfg.MaxRangeDays <= 0 {
		cfg.MaxRangeDays = 366
	}

	cfg.SourceTimeout = parseDurationOrZero(fc.Sources.Timeout, 10*time.Second)
	cfg.Endpoints = fc.Sources.Endpoints

	cfg.RetryAttempts = fc.Retry.MaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Retry.BaseDelay, 300*time.Millisecond)
	cfg.RetryBackoffMultiplier = fc.Retry.BackoffMultiplier
	if cfg.RetryBackoffMultiplier <= 0 {
		cfg.RetryBackoffMultiplier = 2
	}

	cfg.BreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerMaxRequests = fc.CircuitBreaker.MaxRequests
	if cfg.BreakerMaxRequests <= 0 {
		cfg.BreakerMaxRequests = 1
	}
	cfg.BreakerInterval = parseDurationOrZero(fc.CircuitBreaker.Interval, time.Minute)
	cfg.BreakerTimeout = parseDuration(fc.CircuitBreaker.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("CACHE_BACKEND"), fc.Cache.Backend, "in_memory")))
	cfg.CacheVersion = firstNonEmpty(strings.TrimSpace(fc.Cache.Version), cache.VersionTag)
	cfg.CacheCurrentTTL = parseDuration(fc.Cache.CurrentTTL, cache.DefaultCurrentTTL)
	cfg.CacheRecentTTL = parseDuration(fc.Cache.RecentTTL, cache.DefaultRecentTTL)

	cfg.MemcachedAddrs = firstNonEmpty(strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")), strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RedisAddr = firstNonEmpty(strings.TrimSpace(os.Getenv("REDIS_ADDR")), strings.TrimSpace(fc.Cache.Redis.Addr), "localhost:6379")
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	cfg.SQLitePath = firstNonEmpty(strings.TrimSpace(os.Getenv("SQLITE_PATH")), strings.TrimSpace(fc.Cache.SQLite.Path), filepath.Join("data", "weather-cache.db"))
	cfg.PurgeInterval = parseDuration(fc.Cache.SQLite.PurgeInterval, time.Hour)

	cfg.CoalesceEnabled = fc.Coalesce.Enabled

	cfg.WarmingEnabled = fc.Warming.Enabled
	cfg.WarmInterval = parseDuration(fc.Warming.Interval, 5*time.Minute)
	cfg.TrackedCoordinates = fc.Warming.Coordinates

	cfg.RateLimitRPS = fc.RateLimit.RPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.RateLimit.Burst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cfg.HealthWindow = parseDuration(fc.Health.Window, 5*time.Minute)

	sec, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), sec.RedisPassword)
	cfg.APIKeys = make(map[string]string, len(Providers))
	for id, key := range sec.APIKeys {
		cfg.APIKeys[strings.ToLower(id)] = strings.TrimSpace(key)
	}
	for _, id := range Providers {
		if key := strings.TrimSpace(os.Getenv(KeyEnvVar(id))); key != "" {
			cfg.APIKeys[id] = key
		}
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// KeyEnvVar returns the environment variable holding a provider credential.
func KeyEnvVar(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// Auto-adjusts RequestTimeout so a full source call fits inside it.
func validate(cfg *Config) error {
	if cfg.SourceTimeout <= 0 {
		return fmt.Errorf("sources.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.SourceTimeout {
		cfg.RequestTimeout = cfg.SourceTimeout + time.Second
	}
	if cfg.BreakerInterval < 0 {
		return fmt.Errorf("circuit_breaker.interval must not be negative")
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "redis", "sqlite":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached, redis or sqlite, got %q", cfg.CacheBackend)
	}
	if strings.Contains(cfg.CacheVersion, ":") {
		return fmt.Errorf("cache.version must not contain ':', got %q", cfg.CacheVersion)
	}
	for i, c := range cfg.TrackedCoordinates {
		if err := validation.ValidateCoordinates(c.Lat, c.Lon); err != nil {
			return fmt.Errorf("warming.coordinates[%s]: %w", strconv.Itoa(i), err)
		}
	}
	return nil
}
