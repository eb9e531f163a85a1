// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	// APIKey is exchanged at the login endpoint for a short-lived JWT.
	APIKey     string        `yaml:"api_key"`
	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	OpenAIKey       string `yaml:"openai_key"`
	GeminiKey       string `yaml:"gemini_key"`
	CompatKey       string `yaml:"compat_key"`
	CompatBaseURL   string `yaml:"compat_base_url"`
	DefaultModel    string `yaml:"default_model"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent provider streams
	// Fallback lists providers to try, in order, when the preferred
	// provider's breaker is open or its stream fails to start.
	Fallback []string `yaml:"fallback"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	MonitoringPeriod time.Duration `yaml:"monitoring_period"`
}

type WorkerConfig struct {
	Count        int           `yaml:"count"`         // concurrent stream workers
	ClaimBatch   int           `yaml:"claim_batch"`   // jobs claimed per poll
	PollInterval time.Duration `yaml:"poll_interval"` // claim loop tick
}

type JobsConfig struct {
	TTL              time.Duration `yaml:"ttl"`                // row lifetime past creation
	SweepInterval    time.Duration `yaml:"sweep_interval"`     // expiry sweeper tick
	StaleAfter       time.Duration `yaml:"stale_after"`        // heartbeat cutoff before requeue
	ReapInterval     time.Duration `yaml:"reap_interval"`      // stale reaper tick
	CreateRateLimit  int           `yaml:"create_rate_limit"`  // creations per user per window
	CreateRateWindow time.Duration `yaml:"create_rate_window"` // fixed rate window
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Worker   WorkerConfig   `yaml:"worker"`
	Jobs     JobsConfig     `yaml:"jobs"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 8
	}
	if cfg.Worker.ClaimBatch <= 0 {
		cfg.Worker.ClaimBatch = 4
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 500 * time.Millisecond
	}
	if cfg.Jobs.TTL <= 0 {
		cfg.Jobs.TTL = time.Hour
	}
	if cfg.Jobs.SweepInterval <= 0 {
		cfg.Jobs.SweepInterval = 5 * time.Minute
	}
	if cfg.Jobs.StaleAfter <= 0 {
		cfg.Jobs.StaleAfter = 2 * time.Minute
	}
	if cfg.Jobs.ReapInterval <= 0 {
		cfg.Jobs.ReapInterval = time.Minute
	}
	if cfg.Jobs.CreateRateLimit <= 0 {
		cfg.Jobs.CreateRateLimit = 10
	}
	if cfg.Jobs.CreateRateWindow <= 0 {
		cfg.Jobs.CreateRateWindow = time.Minute
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
