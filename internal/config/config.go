package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	BlobStore   BlobStoreConfig  `json:"blob_store"`
	AI          AIConfig         `json:"ai"`
	Upstream    UpstreamConfig   `json:"upstream"`
	Cache       CacheConfig      `json:"cache"`
	CORSOrigins []string         `json:"cors_origins"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type BlobStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Provider        string      `json:"provider"`
	Model           string      `json:"model"`
	Timeout         int         `json:"timeout"`
	CacheSize       int         `json:"cache_size"`
	CacheTTLMinutes int         `json:"cache_ttl_minutes"`
	Data            interface{} `json:"data"`
}

type UpstreamConfig struct {
	BaseURL          string `json:"base_url"`
	APIKey           string `json:"api_key"`
	Timeout          int    `json:"timeout"`
	ModelsTTLMinutes int    `json:"models_ttl_minutes"`
}

type CacheConfig struct {
	Disabled        bool           `json:"disabled"`
	ShortThreshold  float64        `json:"short_threshold"`
	LongThreshold   float64        `json:"long_threshold"`
	LengthCutoff    int            `json:"length_cutoff"`
	TopK            int            `json:"top_k"`
	RateLimitMillis int            `json:"rate_limit_millis"`
	Eviction        EvictionConfig `json:"eviction"`
}

type EvictionConfig struct {
	Enabled    bool   `json:"enabled"`
	MaxAgeDays int    `json:"max_age_days"`
	Cron       string `json:"cron"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.BlobStore.Type == "" {
		return nil, fmt.Errorf("blob_store.type is required")
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 5
	}
	if cfg.AI.CacheSize == 0 {
		cfg.AI.CacheSize = 4096
	}
	if cfg.AI.CacheTTLMinutes == 0 {
		cfg.AI.CacheTTLMinutes = 120
	}
	if cfg.Upstream.BaseURL == "" {
		return nil, fmt.Errorf("upstream.base_url is required")
	}
	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 120
	}
	if cfg.Upstream.ModelsTTLMinutes == 0 {
		cfg.Upstream.ModelsTTLMinutes = 10
	}
	if cfg.Cache.ShortThreshold == 0 {
		cfg.Cache.ShortThreshold = 0.86
	}
	if cfg.Cache.LongThreshold == 0 {
		cfg.Cache.LongThreshold = 0.92
	}
	if cfg.Cache.LengthCutoff == 0 {
		cfg.Cache.LengthCutoff = 48
	}
	if cfg.Cache.TopK == 0 {
		cfg.Cache.TopK = 1
	}
	if cfg.Cache.ShortThreshold < -1 || cfg.Cache.ShortThreshold > 1 ||
		cfg.Cache.LongThreshold < -1 || cfg.Cache.LongThreshold > 1 {
		return nil, fmt.Errorf("cache thresholds must be within [-1, 1]")
	}
	if cfg.Cache.Eviction.Enabled {
		if cfg.Cache.Eviction.MaxAgeDays <= 0 {
			cfg.Cache.Eviction.MaxAgeDays = 30
		}
		if cfg.Cache.Eviction.Cron == "" {
			cfg.Cache.Eviction.Cron = "0 3 * * *"
		}
	}
	return &cfg, nil
}
