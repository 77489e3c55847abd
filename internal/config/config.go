// Package config provides configuration loading and structs for the tutor server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	MaxImageBytes  int           `yaml:"max_image_bytes"`
}

// StorageConfig holds paths for the chunk database, the vector index and its id map.
// All three are produced by the same offline build and must be replaced together.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	IndexPath    string `yaml:"index_path"`
	IDMapPath    string `yaml:"id_map_path"`
}

// EmbeddingConfig selects and configures the embedding model. VocabPath is the
// WordPiece vocabulary for onnx models and defaults to vocab.txt next to ModelPath.
type EmbeddingConfig struct {
	// Provider is one of onnx, ollama, openai, hash.
	Provider   string        `yaml:"provider"`
	ModelPath  string        `yaml:"model_path"`
	VocabPath  string        `yaml:"vocab_path"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	// IndexType is one of memory, faiss, qdrant.
	IndexType string `yaml:"index_type"`
	// Metric is cosine or l2; fixed when the index is built.
	Metric           string `yaml:"metric"`
	QdrantHost       string `yaml:"qdrant_host"`
	QdrantPort       int    `yaml:"qdrant_port"`
	QdrantCollection string `yaml:"qdrant_collection"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// GenerationConfig configures the generative model and answer assembly.
type GenerationConfig struct {
	// Provider is openai (any OpenAI-compatible endpoint) or gemini.
	Provider     string        `yaml:"provider"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	Temperature  float32       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
	JSONMode     *bool         `yaml:"json_mode"`
	CourseName   string        `yaml:"course_name"`
	SystemPrompt string        `yaml:"system_prompt"`
	// ContextBudget is the maximum size of the assembled passages, in characters.
	ContextBudget int `yaml:"context_budget"`
	// CitationPolicy is grounded (drop links not backed by retrieved chunks) or passthrough.
	CitationPolicy  string `yaml:"citation_policy"`
	MaxLinks        int    `yaml:"max_links"`
	FallbackOnError bool   `yaml:"fallback_on_error"`
}

// JSONModeOrDefault returns whether to request JSON output; defaults to true when unset.
func (g *GenerationConfig) JSONModeOrDefault() bool {
	if g.JSONMode != nil {
		return *g.JSONMode
	}
	return true
}

// IngestConfig holds offline ingestion and index build settings.
type IngestConfig struct {
	CourseFile    string `yaml:"course_file"`
	DiscourseFile string `yaml:"discourse_file"`
	// Splitter is wrap (word packing up to ChunkSize characters) or recursive.
	Splitter     string `yaml:"splitter"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	EmbedBatch   int    `yaml:"embed_batch"`
}

// WatchConfig controls hot reload of the knowledge base when its files change.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, applies env overrides and defaults,
// and expands paths. Returns an error if the file cannot be read, parsed, or is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg, os.Getenv)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexPath = expandPath(cfg.Storage.IndexPath, configDir)
	cfg.Storage.IDMapPath = expandPath(cfg.Storage.IDMapPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.VocabPath != "" {
		cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	} else if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.VocabPath = filepath.Join(filepath.Dir(cfg.Embedding.ModelPath), "vocab.txt")
	}
	if cfg.Ingest.CourseFile != "" {
		cfg.Ingest.CourseFile = expandPath(cfg.Ingest.CourseFile, configDir)
	}
	if cfg.Ingest.DiscourseFile != "" {
		cfg.Ingest.DiscourseFile = expandPath(cfg.Ingest.DiscourseFile, configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects unknown providers and settings that cannot work together.
func Validate(cfg *Config) error {
	switch cfg.Embedding.Provider {
	case "onnx", "ollama", "openai", "hash":
	default:
		return fmt.Errorf("unknown embedding provider: %s (supported: onnx, ollama, openai, hash)", cfg.Embedding.Provider)
	}
	switch cfg.Vector.IndexType {
	case "memory", "faiss", "qdrant":
	default:
		return fmt.Errorf("unknown vector index type: %s (supported: memory, faiss, qdrant)", cfg.Vector.IndexType)
	}
	switch cfg.Vector.Metric {
	case "cosine", "l2":
	default:
		return fmt.Errorf("unknown metric: %s (supported: cosine, l2)", cfg.Vector.Metric)
	}
	switch cfg.Generation.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown generation provider: %s (supported: openai, gemini)", cfg.Generation.Provider)
	}
	switch cfg.Generation.CitationPolicy {
	case "grounded", "passthrough":
	default:
		return fmt.Errorf("unknown citation policy: %s (supported: grounded, passthrough)", cfg.Generation.CitationPolicy)
	}
	switch cfg.Ingest.Splitter {
	case "wrap", "recursive":
	default:
		return fmt.Errorf("unknown splitter: %s (supported: wrap, recursive)", cfg.Ingest.Splitter)
	}
	if cfg.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive")
	}
	if cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		return fmt.Errorf("chunk_overlap (%d) must be smaller than chunk_size (%d)", cfg.Ingest.ChunkOverlap, cfg.Ingest.ChunkSize)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
