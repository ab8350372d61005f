package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int                `json:"port"`
	CORSAllowlist []string           `json:"cors_allowlist"`
	LogConfig     logger.LogConfig   `json:"log_config"`
	Database      DatabaseConfig     `json:"database"`
	Index         IndexConfig        `json:"index"`
	AI            AIConfig           `json:"ai"`
	Retrieval     RetrievalConfig    `json:"retrieval"`
	Ingest        IngestConfig       `json:"ingest"`
	ArtifactStore ArtifactStoreConfig `json:"artifact_store"`
	Jobs          JobsConfig         `json:"jobs"`
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

type IndexConfig struct {
	Type      string `json:"type"`
	Table     string `json:"table"`
	DenseDim  int    `json:"dense_dim"`
	SparseDim int    `json:"sparse_dim"`
}

// ProviderConfig selects a registered provider implementation and carries
// its implementation-specific arguments verbatim.
type ProviderConfig struct {
	Provider string      `json:"provider"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Dense     ProviderConfig `json:"dense"`
	Sparse    ProviderConfig `json:"sparse"`
	Rerank    ProviderConfig `json:"rerank"`
	Generator ProviderConfig `json:"generator"`

	QueryCacheSize       int `json:"query_cache_size"`
	QueryCacheTTLSeconds int `json:"query_cache_ttl_seconds"`
}

type RetrievalConfig struct {
	PrefetchLimit int `json:"prefetch_limit"`
	FusedLimit    int `json:"fused_limit"`
	RerankTopK    int `json:"rerank_top_k"`
}

type IngestConfig struct {
	Parser         ProviderConfig `json:"parser"`
	BatchPages     int            `json:"batch_pages"`
	ChunkSize      int            `json:"chunk_size"`
	ChunkOverlap   int            `json:"chunk_overlap"`
	EmbedBatchSize int            `json:"embed_batch_size"`
	Concurrency    int            `json:"concurrency"`
	MaxRetries     int            `json:"max_retries"`
	BackoffSeconds int            `json:"backoff_seconds"`
	ProgressDir    string         `json:"progress_dir"`
}

type ArtifactStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type JobsConfig struct {
	EmbeddingCacheCleanupCron string `json:"embedding_cache_cleanup_cron"`
	EmbeddingCacheKeepDays    int    `json:"embedding_cache_keep_days"`
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
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.Index.Type == "" {
		c.Index.Type = "pgvector"
	}
	if c.AI.Dense.Provider == "" {
		return fmt.Errorf("ai.dense.provider is required")
	}
	if c.AI.Sparse.Provider == "" {
		return fmt.Errorf("ai.sparse.provider is required")
	}
	if c.AI.Generator.Provider == "" {
		return fmt.Errorf("ai.generator.provider is required")
	}
	if err := c.validateRetrieval(); err != nil {
		return err
	}
	if c.ArtifactStore.Type == "" {
		c.ArtifactStore.Type = "local"
		if c.ArtifactStore.Data == nil {
			c.ArtifactStore.Data = map[string]interface{}{"dir": "./data/artifacts"}
		}
	}
	if c.Jobs.EmbeddingCacheKeepDays <= 0 {
		c.Jobs.EmbeddingCacheKeepDays = 30
	}
	return nil
}

// validateRetrieval rejects limit combinations the index cannot honor:
// the reranker can only pick from what fusion returns, and fusion can only
// fuse what prefetch fetched.
func (c *Config) validateRetrieval() error {
	r := &c.Retrieval
	if r.PrefetchLimit <= 0 {
		r.PrefetchLimit = 30
	}
	if r.FusedLimit <= 0 {
		r.FusedLimit = 50
	}
	if r.RerankTopK <= 0 {
		r.RerankTopK = 5
	}
	if r.RerankTopK > r.PrefetchLimit {
		return fmt.Errorf("retrieval.rerank_top_k (%d) must not exceed retrieval.prefetch_limit (%d)", r.RerankTopK, r.PrefetchLimit)
	}
	if r.PrefetchLimit > r.FusedLimit {
		return fmt.Errorf("retrieval.prefetch_limit (%d) must not exceed retrieval.fused_limit (%d)", r.PrefetchLimit, r.FusedLimit)
	}
	return nil
}
