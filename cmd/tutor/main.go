// Package main is the tutor CLI entry point.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/cli"
	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/embedding"
	"github.com/hyperjump/tutor/internal/indexer"
	"github.com/hyperjump/tutor/internal/kb"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/query"
	"github.com/hyperjump/tutor/internal/retrieval"
	"github.com/hyperjump/tutor/internal/server"
	"github.com/hyperjump/tutor/internal/storage"
	"github.com/hyperjump/tutor/internal/synthesis"
	"github.com/hyperjump/tutor/internal/vector"
	"github.com/hyperjump/tutor/internal/watcher"
	"github.com/hyperjump/tutor/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/tutor/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "build-index":
		runBuildIndex()
	case "status":
		runStatus()
	case "reload":
		runReload()
	case "version", "--version", "-v":
		fmt.Printf("tutor version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func mustLoad(configPath string) (*config.Config, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "reload the knowledge base when its files change (overrides config)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath := mustLoad(*configPath)
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := components.KB.Load(context.Background()); err != nil {
		// Serving without a knowledge base would answer every question with 503.
		logger.Fatal("Failed to load knowledge base",
			zap.String("category", apperr.KindOf(err).Category()),
			zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Watch.Enabled || *watch {
		manager := components.KB
		watchSvc := watcher.NewWatcher(
			watchedFiles(cfg),
			func() {
				if err := manager.Reload(watchCtx); err != nil {
					logger.Warn("knowledge base reload failed; keeping previous snapshot", zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
			watcher.WithDebounce(cfg.Watch.Debounce),
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(components.Service, components.KB, cfg, embedderName(&cfg.Embedding), logger)
	if cached, ok := components.Embedder.(*embedding.CachedEmbedder); ok {
		srv.ReportCache(cached.Stats)
	}
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printAskUsage prints ask subcommand usage.
func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: tutor ask [flags] <question>\n\n")
	fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  tutor ask which model should I use for GA5 Q8
  tutor ask --image screenshot.png "what does this error mean"
  tutor ask --server "" --output json when is the ROE exam   # no server, load the knowledge base directly
`)
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the question
// to the front so that flag.Parse() sees them. The flag package stops at the first
// non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// imageArg turns an --image value into the wire form: URLs and data: URLs pass through,
// anything else is read as a local file and base64-encoded.
func imageArg(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		return value, nil
	}
	data, err := os.ReadFile(value)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = load the knowledge base directly)")
	image := fs.String("image", "", "image file path, http(s) URL or data: URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	timeout := fs.Duration("timeout", 90*time.Second, "request timeout")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildQuestion(fs.Args())
	if question == "" {
		printAskUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	img, err := imageArg(*image)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var result *models.AnswerResult
	if *serverURL != "" {
		result, err = cli.NewClient(*serverURL, *timeout).Ask(ctx, question, img)
	} else {
		result, err = askDirect(ctx, *configPath, question, img)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askDirect(ctx context.Context, configPath, question, image string) (*models.AnswerResult, error) {
	cfg, _ := mustLoad(configPath)
	logger, err := utils.NewConsoleLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	if err := components.KB.Load(ctx); err != nil {
		return nil, err
	}
	return components.Service.AnswerQuestion(ctx, question, image)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	courseFile := fs.String("course", "", "course content JSON file (default from config)")
	discourseFile := fs.String("discourse", "", "discourse posts JSON file (default from config)")
	reset := fs.Bool("reset", false, "delete all existing chunks first")
	_ = fs.Parse(os.Args[2:])

	cfg, _ := mustLoad(*configPath)
	logger, err := utils.NewConsoleLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sources := ingestSources(cfg, *courseFile, *discourseFile)
	if len(sources) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to ingest: set ingest.course_file / ingest.discourse_file or pass --course / --discourse")
		os.Exit(1)
	}

	splitter, err := indexer.NewSplitter(&cfg.Ingest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create splitter: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	// Chunks are written to a staged copy; a running server keeps its snapshot until reload.
	stage, err := storage.StageSQLite(ctx, cfg.Storage.DatabasePath, !*reset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open storage: %v\n", err)
		os.Exit(1)
	}

	ing := indexer.NewIngester(stage, indexer.NewChunker(splitter), indexer.WithLogger(logger))
	for _, src := range sources {
		stats, err := ing.IngestFile(ctx, src.path, src.kind)
		if err != nil {
			stage.Discard()
			fmt.Fprintf(os.Stderr, "Ingest %s failed: %v\n", src.path, err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %s: %d item(s), %d skipped, %d chunk(s)\n", src.path, stats.Items, stats.Skipped, stats.Chunks)
	}
	total, countErr := stage.CountChunks(ctx)
	if err := stage.Publish(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to publish database: %v\n", err)
		os.Exit(1)
	}
	if countErr == nil {
		fmt.Printf("Knowledge base now holds %d chunk(s); run \"tutor build-index\" to embed them\n", total)
	}
}

type ingestSource struct {
	path string
	kind string
}

// ingestSources returns the files to ingest; flag values override config.
func ingestSources(cfg *config.Config, courseFlag, discourseFlag string) []ingestSource {
	course := cfg.Ingest.CourseFile
	if courseFlag != "" {
		course = courseFlag
	}
	discourse := cfg.Ingest.DiscourseFile
	if discourseFlag != "" {
		discourse = discourseFlag
	}
	var out []ingestSource
	if course != "" {
		out = append(out, ingestSource{path: course, kind: models.KindCourse})
	}
	if discourse != "" {
		out = append(out, ingestSource{path: discourse, kind: models.KindDiscourse})
	}
	return out
}

func runBuildIndex() {
	fs := flag.NewFlagSet("build-index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	quiet := fs.Bool("quiet", false, "do not show a progress bar")
	notify := fs.String("notify", "", "server URL to ask to reload after a successful build")
	_ = fs.Parse(os.Args[2:])

	cfg, _ := mustLoad(*configPath)
	logger, err := utils.NewConsoleLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, err := storage.OpenSQLiteReadOnly(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open storage (run \"tutor ingest\" first): %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize embedder: %v\n", err)
		os.Exit(1)
	}
	defer embedder.Close()

	index, err := vector.NewVectorIndex(&cfg.Vector, embedder.Dimensions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create vector index: %v\n", err)
		os.Exit(1)
	}
	defer index.Close()

	opts := []indexer.BuilderOption{
		indexer.WithBuildLogger(logger),
		indexer.WithBatchSize(cfg.Ingest.EmbedBatch),
	}
	if !*quiet {
		opts = append(opts, indexer.WithProgress(os.Stderr))
	}
	builder := indexer.NewBuilder(store, embedder, index, opts...)
	stats, err := builder.Build(context.Background(), cfg.Storage.IndexPath, cfg.Storage.IDMapPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d vector(s) from %d chunk(s) (%d skipped) in %s\n",
		stats.Vectors, stats.Chunks, stats.Skipped, stats.Duration.Round(time.Millisecond))

	if *notify != "" {
		if _, err := cli.NewClient(*notify, 30*time.Second).Reload(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Reload request failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Server at %s reloaded\n", *notify)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read files directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status map[string]interface{}
	if *serverURL != "" {
		status, err = cli.NewClient(*serverURL, 10*time.Second).Status(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _ := mustLoad(*configPath)
		status = directStatus(context.Background(), cfg)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// directStatus reports what is on disk without a running server.
func directStatus(ctx context.Context, cfg *config.Config) map[string]interface{} {
	status := map[string]interface{}{
		"loaded":   false,
		"embedder": embedderName(&cfg.Embedding),
	}
	manager := kb.NewManager(kb.FileLoader(cfg, cfg.Embedding.Dimensions))
	defer manager.Close()
	if err := manager.Load(ctx); err != nil {
		status["error"] = err.Error()
	} else if snap, release, err := manager.Acquire(); err == nil {
		status["loaded"] = true
		status["version"] = snap.Version
		status["vector_index"] = map[string]interface{}{
			"type":       snap.Index.Type(),
			"size":       snap.Index.Size(),
			"metric":     string(snap.Index.Metric()),
			"dimensions": snap.Index.Dimensions(),
		}
		if n, err := snap.Store.CountChunks(ctx); err == nil {
			status["chunks"] = n
		}
		release()
	}
	st := cfg.Storage
	if n, err := storage.DiskUsageBytes(storage.KnowledgeBaseFiles(&st)...); err == nil {
		status["disk_usage_bytes"] = n
	}
	status["config"] = map[string]interface{}{
		"database_path": st.DatabasePath,
		"index_path":    st.IndexPath,
		"id_map_path":   st.IDMapPath,
		"faiss_built":   vector.IsFAISSAvailable(),
	}
	return status
}

func runReload() {
	fs := flag.NewFlagSet("reload", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	out, err := cli.NewClient(*serverURL, 60*time.Second).Reload(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reload failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Reloaded: version %v, %v vector(s)\n", out["version"], out["vectors"])
}

// watchedFiles lists the knowledge base files whose replacement triggers a reload.
func watchedFiles(cfg *config.Config) []string {
	return []string{cfg.Storage.DatabasePath, cfg.Storage.IndexPath, cfg.Storage.IDMapPath}
}

// embedderName is the embedder label shown by the status endpoint.
func embedderName(cfg *config.EmbeddingConfig) string {
	switch {
	case cfg.Model != "":
		return cfg.Provider + "/" + cfg.Model
	case cfg.ModelPath != "":
		return cfg.Provider + "/" + strings.TrimSuffix(filepath.Base(cfg.ModelPath), filepath.Ext(cfg.ModelPath))
	default:
		return cfg.Provider
	}
}

// Components holds initialized services.
type Components struct {
	Embedder    embedding.Embedder
	KB          *kb.Manager
	Generator   synthesis.Generator
	Retriever   *retrieval.Retriever
	Synthesizer *synthesis.Synthesizer
	Service     *query.Service
}

func (c *Components) Close() {
	if c.KB != nil {
		_ = c.KB.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// initializeComponents wires the query pipeline. The knowledge base is not loaded yet;
// callers decide whether a missing one is fatal.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder, err := embedding.New(&cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	manager := kb.NewManager(kb.FileLoader(cfg, embedder.Dimensions()), kb.WithLogger(logger))

	gen, err := synthesis.NewGenerator(ctx, &cfg.Generation)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	logger.Info("pipeline initialized",
		zap.String("embedder", embedderName(&cfg.Embedding)),
		zap.String("generator", gen.Name()),
		zap.String("vector_index", cfg.Vector.IndexType),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()))

	retriever := retrieval.NewRetriever(embedder, manager,
		retrieval.WithLogger(logger),
		retrieval.WithEmbedTimeout(cfg.Embedding.Timeout))
	synth := synthesis.NewSynthesizer(gen,
		synthesis.WithConfig(&cfg.Generation),
		synthesis.WithLogger(logger))
	svc := query.NewService(retriever, synth,
		query.WithLogger(logger),
		query.WithTopK(cfg.Retrieval.TopK),
		query.WithMaxImageBytes(cfg.Server.MaxImageBytes))

	return &Components{
		Embedder:    embedder,
		KB:          manager,
		Generator:   gen,
		Retriever:   retriever,
		Synthesizer: synth,
		Service:     svc,
	}, nil
}

func printUsage() {
	fmt.Println(`tutor - Virtual teaching assistant for course and forum content

Usage:
  tutor server [flags]            Start the HTTP server
  tutor ask [flags] <question>    Ask a question
  tutor ingest [flags]            Chunk course and forum JSON into the knowledge base
  tutor build-index [flags]       Embed all chunks and write the vector index
  tutor status [flags]            Show knowledge base status
  tutor reload [flags]            Ask a running server to reload its knowledge base
  tutor version                   Show version
  tutor help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tutor/config.yaml)
  --debug            Enable debug logging
  --watch            Reload the knowledge base when its files change

Ask Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to load the knowledge base directly.
  --image string     Image file path, http(s) URL or data: URL
  --output string    Output format: text or json (default: text)
  --timeout duration Request timeout (default: 1m30s)

Ingest Flags:
  --config string     Config file path
  --course string     Course content JSON (default: ingest.course_file)
  --discourse string  Discourse posts JSON (default: ingest.discourse_file)
  --reset             Delete existing chunks first

Build-index Flags:
  --config string    Config file path
  --quiet            Hide the progress bar
  --notify string    Server URL to reload after the build

Status Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to read files directly.
  --output string    Output format: text or json (default: text)

Environment:
  OPENAI_API_KEY, GEMINI_API_KEY, AIPIPE_API_KEY   Model credentials (a .env file is read if present)
  AIPIPE_BASE_URL, CHAT_MODEL, RAG_DEBUG            Override generation endpoint, model and debug

Examples:
  tutor ingest --reset
  tutor build-index --notify http://localhost:8080
  tutor server --watch
  tutor ask "should I use gpt-4o-mini or gpt-3.5-turbo for GA5?"
  tutor ask --output json --image q.png what is this chart showing
  tutor status --output json`)
}
