package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.MaxImageBytes == 0 {
		cfg.Server.MaxImageBytes = 5 << 20
	}
	if cfg.Server.MaxBodyBytes == 0 {
		// base64 inflates by 4/3; leave room for the question and JSON framing.
		cfg.Server.MaxBodyBytes = int64(cfg.Server.MaxImageBytes)*4/3 + 64<<10
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/tutor/data/knowledge_base.db"
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/tutor/data/vectors.index"
	}
	if cfg.Storage.IDMapPath == "" {
		cfg.Storage.IDMapPath = "/usr/local/var/tutor/data/vector_ids.json"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/tutor/data/models/bge-small-en-v1.5.onnx"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "ollama":
			cfg.Embedding.Model = "nomic-embed-text"
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 10 * time.Second
	}
	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}
	if cfg.Vector.Metric == "" {
		cfg.Vector.Metric = "cosine"
	}
	if cfg.Vector.QdrantHost == "" {
		cfg.Vector.QdrantHost = "localhost"
	}
	if cfg.Vector.QdrantPort == 0 {
		cfg.Vector.QdrantPort = 6334
	}
	if cfg.Vector.QdrantCollection == "" {
		cfg.Vector.QdrantCollection = "course_chunks"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 6
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "openai"
	}
	if cfg.Generation.Model == "" {
		if cfg.Generation.Provider == "gemini" {
			cfg.Generation.Model = "gemini-2.0-flash"
		} else {
			cfg.Generation.Model = "gpt-4o-mini"
		}
	}
	if cfg.Generation.APIKeyEnv == "" {
		if cfg.Generation.Provider == "gemini" {
			cfg.Generation.APIKeyEnv = "GEMINI_API_KEY"
		} else {
			cfg.Generation.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.2
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 512
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 25 * time.Second
	}
	if cfg.Generation.CourseName == "" {
		cfg.Generation.CourseName = "Tools in Data Science"
	}
	if cfg.Generation.ContextBudget == 0 {
		cfg.Generation.ContextBudget = 8000
	}
	if cfg.Generation.CitationPolicy == "" {
		cfg.Generation.CitationPolicy = "grounded"
	}
	if cfg.Generation.MaxLinks == 0 {
		cfg.Generation.MaxLinks = cfg.Retrieval.TopK
	}
	if cfg.Ingest.Splitter == "" {
		cfg.Ingest.Splitter = "wrap"
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.EmbedBatch == 0 {
		cfg.Ingest.EmbedBatch = 8
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
