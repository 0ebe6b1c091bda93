package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	DocsRoot    string           `json:"docs_root"`
	CORSOrigins []string         `json:"cors_origins"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Index       IndexConfig      `json:"index"`
	Retrieval   RetrievalConfig  `json:"retrieval"`
	Answer      AnswerConfig     `json:"answer"`
	AI          AIConfig         `json:"ai"`
	Snapshot    SnapshotConfig   `json:"snapshot"`
	Reindex     ReindexConfig    `json:"reindex"`
}

type IndexConfig struct {
	ChunkMaxChars     int `json:"chunk_max_chars"`
	ChunkOverlapChars int `json:"chunk_overlap_chars"`
	EmbedBatchSize    int `json:"embed_batch_size"`
}

type RetrievalConfig struct {
	// Alpha mixes dense and sparse scores:
	// fused = alpha*dense + (1-alpha)*sparse.
	Alpha               float64 `json:"alpha"`
	CandidateMultiplier int     `json:"candidate_multiplier"`
	MinScore            float64 `json:"min_score"`
	RerankEnabled       *bool   `json:"rerank_enabled"`
	RerankBlend         float64 `json:"rerank_blend"`
}

type AnswerConfig struct {
	GroundingThreshold float64 `json:"grounding_threshold"`
	FallbackCeiling    float64 `json:"fallback_ceiling"`
	MarginWeight       float64 `json:"margin_weight"`
	MaxCitations       int     `json:"max_citations"`
	TimeoutSeconds     int     `json:"timeout_seconds"`
	CacheSize          int     `json:"cache_size"`
	CacheTTLMinutes    int     `json:"cache_ttl_minutes"`
}

type AIConfig struct {
	Provider         string      `json:"provider"`
	Data             interface{} `json:"data"`
	EmbedModel       string      `json:"embed_model"`
	GenModel         string      `json:"gen_model"`
	EmbedCacheSize   int         `json:"embed_cache_size"`
	EmbedCacheTTLMin int         `json:"embed_cache_ttl_minutes"`
}

type SnapshotConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ReindexConfig struct {
	CronSpec          string `json:"cron_spec"`
	Watch             bool   `json:"watch"`
	WatchDebounceSecs int    `json:"watch_debounce_secs"`
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
	if cfg.DocsRoot == "" {
		return nil, fmt.Errorf("docs_root is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Index.ChunkMaxChars == 0 {
		cfg.Index.ChunkMaxChars = 1000
	}
	if cfg.Index.ChunkOverlapChars == 0 {
		cfg.Index.ChunkOverlapChars = 200
	}
	if cfg.Index.EmbedBatchSize == 0 {
		cfg.Index.EmbedBatchSize = 32
	}
	if cfg.Retrieval.Alpha == 0 {
		cfg.Retrieval.Alpha = 0.7
	}
	if cfg.Retrieval.CandidateMultiplier == 0 {
		cfg.Retrieval.CandidateMultiplier = 3
	}
	if cfg.Retrieval.RerankEnabled == nil {
		enabled := true
		cfg.Retrieval.RerankEnabled = &enabled
	}
	if cfg.Retrieval.RerankBlend == 0 {
		cfg.Retrieval.RerankBlend = 0.5
	}
	if cfg.Answer.GroundingThreshold == 0 {
		cfg.Answer.GroundingThreshold = 0.55
	}
	if cfg.Answer.FallbackCeiling == 0 {
		cfg.Answer.FallbackCeiling = 0.4
	}
	if cfg.Answer.MarginWeight == 0 {
		cfg.Answer.MarginWeight = 0.5
	}
	if cfg.Answer.MaxCitations == 0 {
		cfg.Answer.MaxCitations = 3
	}
	if cfg.Answer.TimeoutSeconds == 0 {
		cfg.Answer.TimeoutSeconds = 30
	}
	if cfg.Answer.CacheSize == 0 {
		cfg.Answer.CacheSize = 2000
	}
	if cfg.Answer.CacheTTLMinutes == 0 {
		cfg.Answer.CacheTTLMinutes = 60
	}
	if cfg.AI.EmbedCacheSize == 0 {
		cfg.AI.EmbedCacheSize = 10000
	}
	if cfg.AI.EmbedCacheTTLMin == 0 {
		cfg.AI.EmbedCacheTTLMin = 120
	}
	if cfg.AI.EmbedModel == "" {
		cfg.AI.EmbedModel = "text-embedding-004"
	}
	if cfg.AI.GenModel == "" {
		cfg.AI.GenModel = "gemini-1.5-flash"
	}
	if cfg.Snapshot.Type == "" {
		cfg.Snapshot.Type = "local"
	}
	if cfg.Reindex.WatchDebounceSecs == 0 {
		cfg.Reindex.WatchDebounceSecs = 5
	}
}

func validate(cfg *Config) error {
	if cfg.Retrieval.Alpha < 0 || cfg.Retrieval.Alpha > 1 {
		return fmt.Errorf("retrieval.alpha must be in [0,1]")
	}
	if cfg.Retrieval.RerankBlend < 0 || cfg.Retrieval.RerankBlend > 1 {
		return fmt.Errorf("retrieval.rerank_blend must be in [0,1]")
	}
	if cfg.Answer.GroundingThreshold < 0 || cfg.Answer.GroundingThreshold > 1 {
		return fmt.Errorf("answer.grounding_threshold must be in [0,1]")
	}
	if cfg.Answer.FallbackCeiling < 0 || cfg.Answer.FallbackCeiling > 1 {
		return fmt.Errorf("answer.fallback_ceiling must be in [0,1]")
	}
	if cfg.Index.ChunkOverlapChars >= cfg.Index.ChunkMaxChars {
		return fmt.Errorf("index.chunk_overlap_chars must be smaller than index.chunk_max_chars")
	}
	return nil
}
