package main

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/embedding"
	"github.com/hyperjump/tutor/internal/indexer"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/storage"
	"github.com/hyperjump/tutor/internal/vector"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after question are moved first",
			args:     []string{"which model for GA5", "-output", "json"},
			expected: []string{"-output", "json", "which model for GA5"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "which model for GA5"},
			expected: []string{"-output", "json", "which model for GA5"},
		},
		{
			name:     "question only returns unchanged",
			args:     []string{"which model for GA5"},
			expected: []string{"which model for GA5"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"when", "is", "ROE", "--server", ""},
			expected: []string{"--server", "", "when", "is", "ROE"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuestion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"deadline"}, "deadline"},
		{"multiple words", []string{"GA4", "bonus"}, "GA4 bonus"},
		{"single quoted phrase", []string{"GA4 bonus"}, "GA4 bonus"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuestion(tt.args); got != tt.expected {
				t.Errorf("buildQuestion(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestImageArg(t *testing.T) {
	for _, passthrough := range []string{
		"https://example.com/q.png",
		"HTTP://example.com/q.png",
		"data:image/png;base64,iVBORw0KGgo=",
	} {
		got, err := imageArg(passthrough)
		if err != nil || got != passthrough {
			t.Errorf("imageArg(%q) = %q, %v", passthrough, got, err)
		}
	}

	if got, err := imageArg("  "); err != nil || got != "" {
		t.Errorf("blank image = %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "q.png")
	data := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	got, err := imageArg(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != base64.StdEncoding.EncodeToString(data) {
		t.Errorf("file image = %q", got)
	}

	if _, err := imageArg(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIngestSources(t *testing.T) {
	cfg := &config.Config{Ingest: config.IngestConfig{CourseFile: "/data/course.json"}}

	got := ingestSources(cfg, "", "")
	want := []ingestSource{{path: "/data/course.json", kind: models.KindCourse}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("config only = %v, want %v", got, want)
	}

	got = ingestSources(cfg, "/tmp/c.json", "/tmp/d.json")
	want = []ingestSource{
		{path: "/tmp/c.json", kind: models.KindCourse},
		{path: "/tmp/d.json", kind: models.KindDiscourse},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("flags = %v, want %v", got, want)
	}

	if got := ingestSources(&config.Config{}, "", ""); len(got) != 0 {
		t.Errorf("nothing configured = %v", got)
	}
}

func TestEmbedderName(t *testing.T) {
	tests := []struct {
		cfg  config.EmbeddingConfig
		want string
	}{
		{config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text"}, "ollama/nomic-embed-text"},
		{config.EmbeddingConfig{Provider: "onnx", ModelPath: "/models/bge-small-en-v1.5.onnx"}, "onnx/bge-small-en-v1.5"},
		{config.EmbeddingConfig{Provider: "hash"}, "hash"},
	}
	for _, tt := range tests {
		if got := embedderName(&tt.cfg); got != tt.want {
			t.Errorf("embedderName(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestWatchedFiles(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{
		DatabasePath: "/kb/knowledge_base.db",
		IndexPath:    "/kb/vectors.index",
		IDMapPath:    "/kb/vector_ids.json",
	}}
	want := []string{"/kb/knowledge_base.db", "/kb/vectors.index", "/kb/vector_ids.json"}
	if got := watchedFiles(cfg); !reflect.DeepEqual(got, want) {
		t.Errorf("watchedFiles() = %v, want %v", got, want)
	}
}

// buildKnowledgeBase writes a small database, index and id map under dir the way
// "tutor ingest" and "tutor build-index" do.
func buildKnowledgeBase(t *testing.T, cfg *config.Config) {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	err = store.BatchUpsertChunks(ctx, []*models.ChunkRecord{
		{ID: "ga4_0", Text: "GA4 scores with the bonus show as 110 on the dashboard.", SourceURL: "https://discourse.example/t/ga4/1", Kind: models.KindDiscourse},
		{ID: "docker_0", Text: "Podman is recommended but Docker is acceptable.", SourceURL: "https://tds.example/docker", Kind: models.KindCourse},
	})
	if err != nil {
		t.Fatal(err)
	}

	embedder := embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
	index, err := vector.NewVectorIndex(&cfg.Vector, cfg.Embedding.Dimensions)
	if err != nil {
		t.Fatal(err)
	}
	defer index.Close()
	if _, err := indexer.NewBuilder(store, embedder, index).Build(ctx, cfg.Storage.IndexPath, cfg.Storage.IDMapPath); err != nil {
		t.Fatal(err)
	}
}

func testConfig(dir string) *config.Config {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath: filepath.Join(dir, "knowledge_base.db"),
			IndexPath:    filepath.Join(dir, "vectors.index"),
			IDMapPath:    filepath.Join(dir, "vector_ids.json"),
		},
		Embedding: config.EmbeddingConfig{Provider: "hash", Dimensions: 64},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDirectStatus(t *testing.T) {
	cfg := testConfig(t.TempDir())
	buildKnowledgeBase(t, cfg)

	status := directStatus(context.Background(), cfg)
	if status["loaded"] != true {
		t.Fatalf("loaded = %v (error %v)", status["loaded"], status["error"])
	}
	if status["chunks"] != int64(2) {
		t.Errorf("chunks = %v", status["chunks"])
	}
	vi, ok := status["vector_index"].(map[string]interface{})
	if !ok || vi["size"] != 2 || vi["type"] != "memory" || vi["dimensions"] != 64 {
		t.Errorf("vector_index = %v", status["vector_index"])
	}
	if n, ok := status["disk_usage_bytes"].(int64); !ok || n <= 0 {
		t.Errorf("disk_usage_bytes = %v", status["disk_usage_bytes"])
	}
	if status["embedder"] != "hash" {
		t.Errorf("embedder = %v", status["embedder"])
	}
}

func TestDirectStatus_missingKnowledgeBase(t *testing.T) {
	cfg := testConfig(t.TempDir())
	status := directStatus(context.Background(), cfg)
	if status["loaded"] != false {
		t.Errorf("loaded = %v", status["loaded"])
	}
	if status["error"] == nil {
		t.Error("expected an error entry")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
embedding:
  provider: hash
  dimensions: 64
storage:
  database_path: "./kb.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
embedding:
  provider: hash
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}
