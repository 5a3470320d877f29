package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `json:"environment"`
	LogLevel    string `json:"logLevel"`
	Server      struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`
	Frontend struct {
		URL            string   `json:"url"`
		AllowedOrigins []string `json:"allowedOrigins"` // extra CORS and websocket origins
	} `json:"frontend"`
	Auth struct {
		TokenSecret string `json:"tokenSecret"`
		CookieName  string `json:"cookieName"`
	} `json:"auth"`
	Queue struct {
		MaxWaitSeconds *int `json:"maxWaitSeconds"` // 0 keeps entries until matched or cancelled
	} `json:"queue"`
	Engine struct {
		TickMillis      int            `json:"tickMillis"`
		BaseTolerance   *int           `json:"baseTolerance"`   // 0 pairs only equal ratings at first
		GrowthPerSecond *float64       `json:"growthPerSecond"` // 0 keeps the window fixed
		MaxTolerance    int            `json:"maxTolerance"`    // 0 means unbounded
		PartySizes      map[string]int `json:"partySizes"`
	} `json:"engine"`
	Tracker struct {
		ReadyTimeoutSeconds   int  `json:"readyTimeoutSeconds"`
		RetentionSeconds      int  `json:"retentionSeconds"`
		NoShowCooldownSeconds int  `json:"noShowCooldownSeconds"`
		RequeueOnExpiry       bool `json:"requeueOnExpiry"`
	} `json:"tracker"`
	Presence struct {
		IncludeMatched *bool `json:"includeMatched"`
	} `json:"presence"`
	Maintenance struct {
		IntervalSeconds int `json:"intervalSeconds"`
	} `json:"maintenance"`
	Journal struct {
		Driver     string `json:"driver"` // none, memory, mongo, redis
		BufferSize int    `json:"bufferSize"`
	} `json:"journal"`
	MongoDB struct {
		URI      string `json:"uri"`
		Database string `json:"database"`
	} `json:"mongodb"`
	Redis struct {
		URL    string `json:"url"`
		Stream string `json:"stream"`
		MaxLen int64  `json:"maxLen"` // approximate stream cap
	} `json:"redis"`
}

// Load reads configs/config.<env>.json (or $CONFIG_DIR/config.<env>.json),
// expanding ${VAR} references from the environment and a local .env file.
func Load(env string) (*Config, error) {
	_ = godotenv.Load()

	configDir := os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "configs"
	}

	filename := fmt.Sprintf("config.%s.json", env)
	configPath := filepath.Join(configDir, filename)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Environment = env
	return cfg, nil
}

// Parse decodes a config document, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = "token"
	}
	if c.Queue.MaxWaitSeconds == nil {
		maxWait := 3600
		c.Queue.MaxWaitSeconds = &maxWait
	}
	if c.Engine.TickMillis == 0 {
		c.Engine.TickMillis = 250
	}
	if c.Engine.BaseTolerance == nil {
		base := 50
		c.Engine.BaseTolerance = &base
	}
	if c.Engine.GrowthPerSecond == nil {
		growth := 10.0
		c.Engine.GrowthPerSecond = &growth
	}
	if c.Tracker.ReadyTimeoutSeconds == 0 {
		c.Tracker.ReadyTimeoutSeconds = 30
	}
	if c.Tracker.RetentionSeconds == 0 {
		c.Tracker.RetentionSeconds = 120
	}
	if c.Presence.IncludeMatched == nil {
		include := true
		c.Presence.IncludeMatched = &include
	}
	if c.Maintenance.IntervalSeconds == 0 {
		c.Maintenance.IntervalSeconds = 1
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = "none"
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = 1024
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "matchmaking:events"
	}
	if c.Redis.MaxLen == 0 {
		c.Redis.MaxLen = 100000
	}
}

// Validate rejects settings the matchmaking core cannot run with.
func (c *Config) Validate() error {
	if c.Auth.TokenSecret == "" {
		return errors.New("auth.tokenSecret is required")
	}
	if c.Engine.TickMillis < 0 || c.Engine.MaxTolerance < 0 ||
		(c.Engine.BaseTolerance != nil && *c.Engine.BaseTolerance < 0) ||
		(c.Engine.GrowthPerSecond != nil && *c.Engine.GrowthPerSecond < 0) {
		return errors.New("engine settings must not be negative")
	}
	for mode, size := range c.Engine.PartySizes {
		if size < 2 {
			return fmt.Errorf("engine.partySizes.%s must be at least 2, got %d", mode, size)
		}
	}
	if c.Tracker.ReadyTimeoutSeconds < 0 || c.Tracker.RetentionSeconds < 0 || c.Tracker.NoShowCooldownSeconds < 0 {
		return errors.New("tracker settings must not be negative")
	}
	if c.Queue.MaxWaitSeconds != nil && *c.Queue.MaxWaitSeconds < 0 {
		return errors.New("queue.maxWaitSeconds must not be negative")
	}
	switch c.Journal.Driver {
	case "none", "memory":
	case "mongo":
		if c.MongoDB.URI == "" || c.MongoDB.Database == "" {
			return errors.New("journal driver mongo needs mongodb.uri and mongodb.database")
		}
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("journal driver redis needs redis.url")
		}
	default:
		return fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}
	return nil
}

// Origins lists every origin allowed to call the API from a browser.
func (c *Config) Origins() []string {
	var origins []string
	if c.Frontend.URL != "" {
		origins = append(origins, c.Frontend.URL)
	}
	return append(origins, c.Frontend.AllowedOrigins...)
}

// ArchiveEnabled reports whether resolved matches should be written to MongoDB.
func (c *Config) ArchiveEnabled() bool {
	return c.MongoDB.URI != "" && c.MongoDB.Database != ""
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Engine.TickMillis) * time.Millisecond
}

func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Tracker.ReadyTimeoutSeconds) * time.Second
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.Tracker.RetentionSeconds) * time.Second
}

func (c *Config) NoShowCooldown() time.Duration {
	return time.Duration(c.Tracker.NoShowCooldownSeconds) * time.Second
}

func (c *Config) MaxQueueWait() time.Duration {
	if c.Queue.MaxWaitSeconds == nil {
		return 0
	}
	return time.Duration(*c.Queue.MaxWaitSeconds) * time.Second
}

func (c *Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.Maintenance.IntervalSeconds) * time.Second
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func GetEnv() string {
	env := os.Getenv("ROSHAMBLE_ENV")
	if env == "" {
		return "dev"
	}
	return env
}
