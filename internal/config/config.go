package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the authority and the console client
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Redis     RedisConfig     `yaml:"redis"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Log       LogConfig       `yaml:"log"`
	Authority AuthorityConfig `yaml:"authority"`
	Shop      ShopConfig      `yaml:"shop"`
	Floor     FloorConfig     `yaml:"floor"`
	Inventory InventoryConfig `yaml:"inventory"`
	Data      DataConfig      `yaml:"data"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	TickInterval time.Duration `yaml:"tick_interval"`
	MaxPlayers   int           `yaml:"max_players"`
	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AuthConfig holds session token settings
type AuthConfig struct {
	Issuer           string        `yaml:"issuer"`
	Secret           string        `yaml:"secret"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
	RevocationPrefix string        `yaml:"revocation_prefix"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SnapshotConfig controls the redis snapshot cache
type SnapshotConfig struct {
	Prefix   string        `yaml:"prefix"`
	Interval time.Duration `yaml:"interval"`
	TTL      time.Duration `yaml:"ttl"`
}

// LedgerConfig holds the audit ledger location
type LedgerConfig struct {
	Path string `yaml:"path"`
}

// LogConfig selects the log format and level
type LogConfig struct {
	Environment string `yaml:"environment"` // "production" logs JSON
	Level       string `yaml:"level"`
}

// AuthorityConfig is used by the client to reach the authority
type AuthorityConfig struct {
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ShopConfig holds shop lifecycle settings
type ShopConfig struct {
	RestockInterval time.Duration `yaml:"restock_interval"`
	PlayerSoldTTL   time.Duration `yaml:"player_sold_ttl"`
	BaseCeiling     int           `yaml:"base_ceiling"`
}

// FloorConfig holds floor item settings
type FloorConfig struct {
	Expiry      time.Duration `yaml:"expiry"`
	PickupRange int           `yaml:"pickup_range"`
}

// InventoryConfig holds bank sizing and the kit a new player starts with
type InventoryConfig struct {
	BankCapacity int            `yaml:"bank_capacity"`
	MaxTabs      int            `yaml:"max_tabs"`
	Starter      map[string]int `yaml:"starter"`
}

// DataConfig points at the static game data
type DataConfig struct {
	Items string `yaml:"items"`
	Shops string `yaml:"shops"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyEnv() {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Log.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.TickInterval == 0 {
		cfg.Server.TickInterval = 5 * time.Second
	}
	if cfg.Server.MaxPlayers == 0 {
		cfg.Server.MaxPlayers = 100
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "economy"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.Auth.RevocationPrefix == "" {
		cfg.Auth.RevocationPrefix = "revoked:"
	}
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = "localhost:6379"
	}
	if cfg.Snapshot.Prefix == "" {
		cfg.Snapshot.Prefix = "economy:"
	}
	if cfg.Snapshot.Interval == 0 {
		cfg.Snapshot.Interval = time.Minute
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "./data/ledger.db"
	}
	if cfg.Log.Environment == "" {
		cfg.Log.Environment = "development"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Authority.DialTimeout == 0 {
		cfg.Authority.DialTimeout = 10 * time.Second
	}
	if cfg.Shop.RestockInterval == 0 {
		cfg.Shop.RestockInterval = 60 * time.Second
	}
	if cfg.Shop.PlayerSoldTTL == 0 {
		cfg.Shop.PlayerSoldTTL = 3 * time.Minute
	}
	if cfg.Shop.BaseCeiling == 0 {
		cfg.Shop.BaseCeiling = 5
	}
	if cfg.Floor.Expiry == 0 {
		cfg.Floor.Expiry = 5 * time.Minute
	}
	if cfg.Floor.PickupRange == 0 {
		cfg.Floor.PickupRange = 2
	}
	if cfg.Inventory.BankCapacity == 0 {
		cfg.Inventory.BankCapacity = 400
	}
	if cfg.Inventory.MaxTabs == 0 {
		cfg.Inventory.MaxTabs = 9
	}
	if cfg.Data.Items == "" {
		cfg.Data.Items = "./data/items.yaml"
	}
	if cfg.Data.Shops == "" {
		cfg.Data.Shops = "./data/shops.yaml"
	}
}

// Addr is the server listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogLevel parses the configured level, defaulting to info.
func (c LogConfig) LogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
