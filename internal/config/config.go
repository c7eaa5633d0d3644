package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	APIKeyHashes  []string         `json:"api_key_hashes"`
	TicketSecret  string           `json:"ticket_secret"`
	TicketTTLSecs int              `json:"ticket_ttl_secs"`
	CORSOrigins   []string         `json:"cors_origins"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Database      DatabaseConfig   `json:"database"`
	BlobStore     BlobStoreConfig  `json:"blob_store"`
	AI            AIConfig         `json:"ai"`
	Query         QueryConfig      `json:"query"`
	Ingest        IngestConfig     `json:"ingest"`
	Jobs          JobsConfig       `json:"jobs"`
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
	Provider      string      `json:"provider"`
	Data          interface{} `json:"data"`
	GenerateModel string      `json:"generate_model"`
	EmbedModel    string      `json:"embed_model"`
	TimeoutSecs   int         `json:"timeout_secs"`
	MaxInputChars int         `json:"max_input_chars"`
	CacheEntries  int         `json:"cache_entries"`
}

type QueryConfig struct {
	TopK            int `json:"top_k"`
	MaxContextChars int `json:"max_context_chars"`
	MaxHistoryChars int `json:"max_history_chars"`
	HistoryTurns    int `json:"history_turns"`
}

type IngestConfig struct {
	MaxFileSize int64 `json:"max_file_size"`
}

type JobsConfig struct {
	ReindexSpec       string `json:"reindex_spec"`
	RetentionSpec     string `json:"retention_spec"`
	TurnRetentionDays int    `json:"turn_retention_days"`
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
	if len(cfg.APIKeyHashes) == 0 {
		return nil, fmt.Errorf("api_key_hashes is required")
	}
	if cfg.TicketSecret == "" {
		return nil, fmt.Errorf("ticket_secret is required")
	}
	if cfg.TicketTTLSecs == 0 {
		cfg.TicketTTLSecs = 300
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
	if cfg.AI.GenerateModel == "" {
		return nil, fmt.Errorf("ai.generate_model is required")
	}
	if cfg.AI.EmbedModel == "" {
		cfg.AI.EmbedModel = cfg.AI.GenerateModel
	}
	if cfg.AI.TimeoutSecs == 0 {
		cfg.AI.TimeoutSecs = 120
	}
	if cfg.AI.CacheEntries == 0 {
		cfg.AI.CacheEntries = 10000
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 3
	}
	if cfg.Query.MaxContextChars == 0 {
		cfg.Query.MaxContextChars = 12000
	}
	if cfg.Query.MaxHistoryChars == 0 {
		cfg.Query.MaxHistoryChars = 3000
	}
	if cfg.Query.HistoryTurns == 0 {
		cfg.Query.HistoryTurns = 5
	}
	if cfg.Ingest.MaxFileSize == 0 {
		cfg.Ingest.MaxFileSize = 1 << 30
	}
	if cfg.Jobs.ReindexSpec == "" {
		cfg.Jobs.ReindexSpec = "*/10 * * * *"
	}
	return &cfg, nil
}
