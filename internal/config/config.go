package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvConfigPath = "SHOPASSIST_CONFIG"
	EnvDatabase   = "SHOPASSIST_DB"
	EnvGoogleKey  = "GOOGLE_API_KEY"
	EnvPort       = "PORT"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Database    string                    `json:"database"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Agent       AgentConfig               `json:"agent"`
	Embedding   EmbeddingConfig           `json:"embedding"`
	Seed        SeedConfig                `json:"seed"`
}

type BasicConfig struct {
	ServerAddress  string   `json:"server_address"`
	AllowedOrigins []string `json:"allowed_origins"`
	Debug          bool     `json:"debug"`
}

// DatabaseConfig holds one driver's connection settings. sqlite only needs DSN.
type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

// RedisConfig enables the thread history cache when Host is set.
type RedisConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLMinutes int    `json:"ttl_minutes"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// AgentConfig controls the conversation loop.
type AgentConfig struct {
	Provider    string   `json:"provider"`
	Temperature *float32 `json:"temperature"`
	MaxAttempts int      `json:"max_attempts"`
	MaxSteps    int      `json:"max_steps"`
	// BaseDelayMS and MaxDelayMS shape the rate-limit backoff.
	BaseDelayMS int `json:"base_delay_ms"`
	MaxDelayMS  int `json:"max_delay_ms"`
}

type EmbeddingConfig struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	APIKey     string `json:"api_key"`
	// MinScore drops similarity matches below it; 0 keeps every match.
	MinScore float32 `json:"min_score"`
}

type SeedConfig struct {
	Provider    string   `json:"provider"`
	Count       int      `json:"count"`
	Temperature *float32 `json:"temperature"`
}

const (
	DefaultServerAddress = ":8000"
	DefaultDatabase      = "sqlite3"
	DefaultProvider      = "gemini"
	DefaultMaxAttempts   = 3
	DefaultMaxSteps      = 15
	DefaultBaseDelayMS   = 1000
	DefaultMaxDelayMS    = 30000
	DefaultEmbedModel    = "text-embedding-004"
	DefaultDimensions    = 768
	DefaultSeedCount     = 10
	DefaultRedisTTL      = 30
)

// Load reads configuration from the provided path (defaults to config.json).
// A .env file next to the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// relative sqlite paths are resolved against the config file
	for name, db := range cfg.Databases {
		if !isSQLite(name) || db.DSN == "" || strings.HasPrefix(db.DSN, "file:") || strings.Contains(db.DSN, ":memory:") {
			continue
		}
		if !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvDatabase)); v != "" {
		c.Database = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		c.BasicConfig.ServerAddress = ":" + v
	}
	key := strings.TrimSpace(os.Getenv(EnvGoogleKey))
	if key == "" {
		return
	}
	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = key
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	gem := c.Providers["gemini"]
	if gem.APIKey == "" {
		gem.APIKey = key
		c.Providers["gemini"] = gem
	}
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultServerAddress
	}
	if len(c.BasicConfig.AllowedOrigins) == 0 {
		c.BasicConfig.AllowedOrigins = []string{"*"}
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Agent.Provider == "" {
		c.Agent.Provider = DefaultProvider
	}
	if c.Agent.MaxAttempts <= 0 {
		c.Agent.MaxAttempts = DefaultMaxAttempts
	}
	if c.Agent.MaxSteps <= 0 {
		c.Agent.MaxSteps = DefaultMaxSteps
	}
	if c.Agent.BaseDelayMS <= 0 {
		c.Agent.BaseDelayMS = DefaultBaseDelayMS
	}
	if c.Agent.MaxDelayMS <= 0 {
		c.Agent.MaxDelayMS = DefaultMaxDelayMS
	}
	if c.Agent.Temperature == nil {
		zero := float32(0)
		c.Agent.Temperature = &zero
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = DefaultEmbedModel
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = DefaultDimensions
	}
	if c.Seed.Provider == "" {
		c.Seed.Provider = c.Agent.Provider
	}
	if c.Seed.Count <= 0 {
		c.Seed.Count = DefaultSeedCount
	}
	if c.Seed.Temperature == nil {
		t := float32(0.7)
		c.Seed.Temperature = &t
	}
	if c.Redis.TTLMinutes <= 0 {
		c.Redis.TTLMinutes = DefaultRedisTTL
	}
}

// Validate checks the fields the server cannot start without.
func (c *Config) Validate() error {
	if _, ok := c.Databases[c.Database]; !ok {
		return fmt.Errorf("database config for %s not found", c.Database)
	}
	if _, ok := c.Providers[c.Agent.Provider]; !ok {
		return fmt.Errorf("provider %s not configured", c.Agent.Provider)
	}
	return nil
}

// RedisEnabled reports whether a redis host was configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Host) != ""
}

func isSQLite(name string) bool {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}
