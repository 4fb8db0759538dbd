package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config carries process configuration. Values load from config.json and
// can be overridden per-field through environment variables.
type Config struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	EmbeddingModel string `json:"embedding_model"`
	EmbeddingDim   int    `json:"embedding_dim"`
	ChatModel      string `json:"chat_model"`
	ASRModel       string `json:"asr_model"`

	DataRoot     string `json:"data_root"`
	DatabasePath string `json:"database_path"`

	// Store selects an optional DB-backed vector index mirrored from the
	// embedding table: "", "pgvector" or "milvus".
	Store            string `json:"store"`
	PostgresURL      string `json:"postgres_url"`
	MilvusAddr       string `json:"milvus_addr"`
	MilvusCollection string `json:"milvus_collection"`

	SegmentSeconds int   `json:"segment_seconds"`
	MaxUploadBytes int64 `json:"max_upload_bytes"`

	EnhanceWorkers       int `json:"enhance_workers"`
	EnhanceMaxTokens     int `json:"enhance_max_tokens"`
	EnhanceOverlapTokens int `json:"enhance_overlap_tokens"`
	CodeRepairLimit      int `json:"code_repair_limit"`

	EmbedTimeoutSeconds int `json:"embed_timeout_seconds"`
	ASRTimeoutSeconds   int `json:"asr_timeout_seconds"`

	ListenAddr string `json:"listen_addr"`
	LogMode    string `json:"log_mode"`
}

func Load() (*Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile("config.json"); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config.json: %w", err)
		}
	}
	applyEnv(cfg)
	fillZero(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		BaseURL:              "https://api.groq.com/openai/v1",
		EmbeddingModel:       "bge-m3",
		EmbeddingDim:         1024,
		ChatModel:            "llama-3.3-70b-versatile",
		ASRModel:             "whisper-large-v3-turbo",
		DataRoot:             filepath.Join(".", "data"),
		DatabasePath:         filepath.Join(".", "data", "videorag.db"),
		MilvusCollection:     "video_chunks",
		SegmentSeconds:       600,
		MaxUploadBytes:       500 << 20,
		EnhanceWorkers:       3,
		EnhanceMaxTokens:     2200,
		EnhanceOverlapTokens: 200,
		CodeRepairLimit:      5,
		EmbedTimeoutSeconds:  300,
		ASRTimeoutSeconds:    120,
		ListenAddr:           ":8000",
		LogMode:              "dev",
	}
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.APIKey, "API_KEY")
	setStr(&cfg.BaseURL, "BASE_URL")
	setStr(&cfg.EmbeddingModel, "EMBEDDING_MODEL")
	setStr(&cfg.ChatModel, "CHAT_MODEL")
	setStr(&cfg.ASRModel, "ASR_MODEL")
	setStr(&cfg.DataRoot, "DATA_ROOT")
	setStr(&cfg.DatabasePath, "DATABASE_PATH")
	setStr(&cfg.Store, "STORE")
	setStr(&cfg.PostgresURL, "POSTGRES_URL")
	setStr(&cfg.MilvusAddr, "MILVUS_ADDR")
	setStr(&cfg.MilvusCollection, "MILVUS_COLLECTION")
	setStr(&cfg.ListenAddr, "LISTEN_ADDR")
	setStr(&cfg.LogMode, "LOG_MODE")
	if v := os.Getenv("EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EmbeddingDim = n
		}
	}
	if v := os.Getenv("SEGMENT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SegmentSeconds = n
		}
	}
}

// fillZero restores defaults for fields a sparse config.json zeroed out.
func fillZero(cfg *Config) {
	d := defaults()
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = d.SegmentSeconds
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = d.MaxUploadBytes
	}
	if cfg.EnhanceWorkers <= 0 {
		cfg.EnhanceWorkers = d.EnhanceWorkers
	}
	if cfg.EnhanceMaxTokens <= 0 {
		cfg.EnhanceMaxTokens = d.EnhanceMaxTokens
	}
	if cfg.EnhanceOverlapTokens < 0 {
		cfg.EnhanceOverlapTokens = d.EnhanceOverlapTokens
	}
	if cfg.CodeRepairLimit <= 0 {
		cfg.CodeRepairLimit = d.CodeRepairLimit
	}
	if cfg.EmbedTimeoutSeconds <= 0 {
		cfg.EmbedTimeoutSeconds = d.EmbedTimeoutSeconds
	}
	if cfg.ASRTimeoutSeconds <= 0 {
		cfg.ASRTimeoutSeconds = d.ASRTimeoutSeconds
	}
	if cfg.EmbeddingDim <= 0 {
		cfg.EmbeddingDim = d.EmbeddingDim
	}
	if cfg.DataRoot == "" {
		cfg.DataRoot = d.DataRoot
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = d.DatabasePath
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = d.ListenAddr
	}
}

func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.APIKey) == "" {
		problems = append(problems, "api_key is required")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		problems = append(problems, "base_url is required")
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		problems = append(problems, "embedding_model is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) HasValidAPI() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.BaseURL) != ""
}

// Artifact layout under DataRoot. The transcript and audio names embed the
// cleaned base name so every stage derives the same paths independently.

func (c *Config) VideosDir() string { return filepath.Join(c.DataRoot, "videos") }
func (c *Config) AudiosDir() string { return filepath.Join(c.DataRoot, "audios") }
func (c *Config) ChunksDir() string { return filepath.Join(c.DataRoot, "audios", "chunks") }
func (c *Config) JSONsDir() string  { return filepath.Join(c.DataRoot, "jsons") }
func (c *Config) PDFsDir() string   { return filepath.Join(c.DataRoot, "pdfs") }

func (c *Config) AudioPath(base string) string {
	return filepath.Join(c.AudiosDir(), "0_"+base+".mp3")
}

func (c *Config) TranscriptPath(base string) string {
	return filepath.Join(c.JSONsDir(), "0_"+base+".mp3.json")
}

func (c *Config) EmbeddingTablePath() string {
	return filepath.Join(c.DataRoot, "embeddings.json")
}

func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.VideosDir(), c.ChunksDir(), c.JSONsDir(), c.PDFsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
