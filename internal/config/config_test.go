package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./kb.db"
embedding:
  provider: hash
  dimensions: 64
retrieval:
  top_k: 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Embedding.Provider != "hash" || cfg.Embedding.Dimensions != 64 {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Retrieval.TopK != 4 {
		t.Errorf("TopK = %d, want 4", cfg.Retrieval.TopK)
	}
	if cfg.Generation.MaxLinks != 4 {
		t.Errorf("MaxLinks = %d, want top_k", cfg.Generation.MaxLinks)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/kb.db"
  index_path: "./data/vectors.index"
  id_map_path: "./data/vector_ids.json"
ingest:
  course_file: "./course.json"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(path)
	want := map[string]string{
		cfg.Storage.DatabasePath: filepath.Join(dir, "data", "kb.db"),
		cfg.Storage.IndexPath:    filepath.Join(dir, "data", "vectors.index"),
		cfg.Storage.IDMapPath:    filepath.Join(dir, "data", "vector_ids.json"),
		cfg.Ingest.CourseFile:    filepath.Join(dir, "course.json"),
	}
	for got, w := range want {
		if got != w {
			t.Errorf("path = %q, want %q", got, w)
		}
	}
	if cfg.Ingest.DiscourseFile != "" {
		t.Errorf("unset discourse_file should stay empty, got %q", cfg.Ingest.DiscourseFile)
	}
}

func TestLoad_vocabPathDefaultsNextToModel(t *testing.T) {
	path := writeConfig(t, `
embedding:
  provider: onnx
  model_path: "./models/bge-small-en-v1.5.onnx"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(filepath.Dir(path), "models", "vocab.txt")
	if cfg.Embedding.VocabPath != want {
		t.Errorf("VocabPath = %q, want %q", cfg.Embedding.VocabPath, want)
	}

	path = writeConfig(t, `
embedding:
  provider: onnx
  model_path: "./m.onnx"
  vocab_path: "./tok/vocab.txt"
`)
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(filepath.Dir(path), "tok", "vocab.txt"); cfg.Embedding.VocabPath != want {
		t.Errorf("VocabPath = %q, want %q", cfg.Embedding.VocabPath, want)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown embedding provider", "embedding:\n  provider: word2vec\n"},
		{"unknown index type", "vector:\n  index_type: annoy\n"},
		{"unknown metric", "vector:\n  metric: manhattan\n"},
		{"unknown generation provider", "generation:\n  provider: cohere\n"},
		{"unknown citation policy", "generation:\n  citation_policy: loose\n"},
		{"overlap not smaller than size", "ingest:\n  chunk_size: 100\n  chunk_overlap: 100\n"},
		{"malformed yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Retrieval.TopK != 6 {
		t.Errorf("TopK = %d, want 6", cfg.Retrieval.TopK)
	}
	if cfg.Vector.Metric != "cosine" || cfg.Vector.IndexType != "memory" {
		t.Errorf("unexpected vector defaults: %+v", cfg.Vector)
	}
	if cfg.Generation.CitationPolicy != "grounded" {
		t.Errorf("CitationPolicy = %q", cfg.Generation.CitationPolicy)
	}
	if cfg.Generation.Timeout != 25*time.Second {
		t.Errorf("generation timeout = %v", cfg.Generation.Timeout)
	}
	if !cfg.Generation.JSONModeOrDefault() {
		t.Error("json mode should default to true")
	}
	if cfg.Ingest.ChunkSize != 1000 || cfg.Ingest.Splitter != "wrap" {
		t.Errorf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if err := Validate(&cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_gemini(t *testing.T) {
	cfg := Config{Generation: GenerationConfig{Provider: "gemini"}}
	ApplyDefaults(&cfg)
	if cfg.Generation.APIKeyEnv != "GEMINI_API_KEY" {
		t.Errorf("APIKeyEnv = %q", cfg.Generation.APIKeyEnv)
	}
	if cfg.Generation.Model != "gemini-2.0-flash" {
		t.Errorf("Model = %q", cfg.Generation.Model)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"AIPIPE_BASE_URL": "https://aipipe.org/openai/v1/",
		"CHAT_MODEL":      "gpt-4.1-nano",
		"RAG_DEBUG":       "1",
	}
	var cfg Config
	ApplyEnv(&cfg, func(k string) string { return env[k] })
	if cfg.Generation.BaseURL != "https://aipipe.org/openai/v1" {
		t.Errorf("BaseURL = %q", cfg.Generation.BaseURL)
	}
	if cfg.Generation.APIKeyEnv != "AIPIPE_API_KEY" {
		t.Errorf("APIKeyEnv = %q", cfg.Generation.APIKeyEnv)
	}
	if cfg.Generation.Model != "gpt-4.1-nano" {
		t.Errorf("Model = %q", cfg.Generation.Model)
	}
	if !cfg.Debug {
		t.Error("RAG_DEBUG=1 should enable debug")
	}
}

func TestSave_roundTrip(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	cfg.Server.Port = 9191
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, &cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9191 {
		t.Errorf("Port = %d", loaded.Server.Port)
	}
}
