// Package config loads redgraph settings from YAML, a .env file and
// REDGRAPH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Media     MediaConfig     `yaml:"media"`
	Engine    EngineConfig    `yaml:"engine"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr       string        `yaml:"addr"`
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	CookieName string        `yaml:"cookie_name"`
	RateLimit  float64       `yaml:"rate_limit"`
	RateBurst  int           `yaml:"rate_burst"`
	// PublicURL is used to build password reset links.
	PublicURL string `yaml:"public_url"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	BadgerPath    string `yaml:"badger_path"`
	InMemory      bool   `yaml:"in_memory"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	LockWait time.Duration `yaml:"lock_wait"`
}

type MediaConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Endpoint      string `yaml:"endpoint"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	UseSSL        bool   `yaml:"use_ssl"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type EngineConfig struct {
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	CascadeWorkers int           `yaml:"cascade_workers"`
	TaskTimeout    time.Duration `yaml:"task_timeout"`
	ResetTTL       time.Duration `yaml:"reset_ttl"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:       ":8080",
			TokenTTL:   90 * 24 * time.Hour,
			CookieName: "token",
			RateLimit:  50,
			RateBurst:  100,
			PublicURL:  "http://localhost:8080",
		},
		Store: StoreConfig{
			Driver:        "badger",
			BadgerPath:    "data/badger",
			MongoDatabase: "redgraph",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			LockTTL:  5 * time.Second,
			LockWait: 2 * time.Second,
		},
		Media: MediaConfig{
			Endpoint: "127.0.0.1:9000",
			Bucket:   "red-book",
		},
		Engine: EngineConfig{
			RetryAttempts:  5,
			RetryBackoff:   10 * time.Millisecond,
			CascadeWorkers: 8,
			TaskTimeout:    5 * time.Second,
			ResetTTL:       15 * time.Minute,
		},
		Telemetry: TelemetryConfig{ServiceName: "redgraph"},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (optional), then .env from the working directory, then the
// environment. A missing .env is fine; a missing path is not.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// WriteDefault writes the default config to path, creating parent dirs.
func WriteDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "badger":
		if !c.Store.InMemory && c.Store.BadgerPath == "" {
			errs = append(errs, errors.New("store.badger_path is required unless store.in_memory is set"))
		}
	case "mysql", "postgres", "sqlite":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver))
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("store.mongo_uri is required for driver mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Server.JWTSecret == "" {
		errs = append(errs, errors.New("server.jwt_secret is required"))
	}
	if c.Server.TokenTTL <= 0 {
		errs = append(errs, errors.New("server.token_ttl must be positive"))
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, errors.New("server.rate_limit and server.rate_burst must not be negative"))
	}
	if c.Engine.RetryAttempts < 1 {
		errs = append(errs, errors.New("engine.retry_attempts must be at least 1"))
	}
	if c.Engine.CascadeWorkers < 1 {
		errs = append(errs, errors.New("engine.cascade_workers must be at least 1"))
	}
	if c.Engine.TaskTimeout <= 0 || c.Engine.ResetTTL <= 0 {
		errs = append(errs, errors.New("engine.task_timeout and engine.reset_ttl must be positive"))
	}
	if c.Media.Enabled && c.Media.Bucket == "" {
		errs = append(errs, errors.New("media.bucket is required when media is enabled"))
	}
	if c.Redis.Enabled && c.Redis.LockTTL <= 0 {
		errs = append(errs, errors.New("redis.lock_ttl must be positive"))
	}
	return errors.Join(errs...)
}

func applyEnv(c *Config) error {
	str := map[string]*string{
		"REDGRAPH_ADDR":             &c.Server.Addr,
		"REDGRAPH_JWT_SECRET":       &c.Server.JWTSecret,
		"REDGRAPH_PUBLIC_URL":       &c.Server.PublicURL,
		"REDGRAPH_STORE_DRIVER":     &c.Store.Driver,
		"REDGRAPH_STORE_DSN":        &c.Store.DSN,
		"REDGRAPH_BADGER_PATH":      &c.Store.BadgerPath,
		"REDGRAPH_MONGO_URI":        &c.Store.MongoURI,
		"REDGRAPH_MONGO_DATABASE":   &c.Store.MongoDatabase,
		"REDGRAPH_REDIS_ADDR":       &c.Redis.Addr,
		"REDGRAPH_REDIS_PASSWORD":   &c.Redis.Password,
		"REDGRAPH_MINIO_ENDPOINT":   &c.Media.Endpoint,
		"REDGRAPH_MINIO_ACCESS_KEY": &c.Media.AccessKey,
		"REDGRAPH_MINIO_SECRET_KEY": &c.Media.SecretKey,
		"REDGRAPH_MINIO_BUCKET":     &c.Media.Bucket,
		"REDGRAPH_OTLP_ENDPOINT":    &c.Telemetry.OTLPEndpoint,
		"REDGRAPH_LOG_LEVEL":        &c.Log.Level,
		"REDGRAPH_LOG_FORMAT":       &c.Log.Format,
	}
	for k, p := range str {
		if v, ok := os.LookupEnv(k); ok {
			*p = v
		}
	}

	flags := map[string]*bool{
		"REDGRAPH_STORE_IN_MEMORY": &c.Store.InMemory,
		"REDGRAPH_REDIS_ENABLED":   &c.Redis.Enabled,
		"REDGRAPH_MEDIA_ENABLED":   &c.Media.Enabled,
	}
	for k, p := range flags {
		if v, ok := os.LookupEnv(k); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			*p = b
		}
	}

	if v, ok := os.LookupEnv("REDGRAPH_RETRY_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDGRAPH_RETRY_ATTEMPTS: %w", err)
		}
		c.Engine.RetryAttempts = n
	}
	if v, ok := os.LookupEnv("REDGRAPH_CASCADE_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDGRAPH_CASCADE_WORKERS: %w", err)
		}
		c.Engine.CascadeWorkers = n
	}
	return nil
}
