package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/ingest"
	"github.com/shopclerk/shopclerk/internal/llm"
	"github.com/shopclerk/shopclerk/internal/llm/anthropic"
	"github.com/shopclerk/shopclerk/internal/llm/openai"
	"github.com/shopclerk/shopclerk/internal/memory"
	"github.com/shopclerk/shopclerk/internal/observability"
	"github.com/shopclerk/shopclerk/internal/pipeline"
	"github.com/shopclerk/shopclerk/internal/secrets"
	"github.com/shopclerk/shopclerk/internal/server"
	temporalmod "github.com/shopclerk/shopclerk/internal/temporal"
	"github.com/shopclerk/shopclerk/internal/vector"
	"github.com/spf13/cobra"

	temporalclient "go.temporal.io/sdk/client"
)

const version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "shopclerk",
		Short: "Retrieval-augmented support assistant for e-commerce FAQs",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/shopclerk.yaml", "Config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	var (
		csvPath      string
		jsonReport   bool
		chunkSize    int
		chunkOverlap int
		batchSize    int
		recreateColl bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a knowledge-base CSV into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, ingestOptions{
				csvPath:      csvPath,
				jsonReport:   jsonReport,
				chunkSize:    chunkSize,
				chunkOverlap: chunkOverlap,
				batchSize:    batchSize,
				recreate:     recreateColl,
			})
		},
	}
	ingestCmd.Flags().StringVar(&csvPath, "file", "", "Path to knowledge-base CSV")
	ingestCmd.Flags().BoolVar(&jsonReport, "json", false, "Output report as JSON")
	ingestCmd.Flags().IntVar(&chunkSize, "chunk-size", ingest.DefaultChunkSize, "Chunk size in characters")
	ingestCmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", ingest.DefaultChunkOverlap, "Overlap between consecutive chunks")
	ingestCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Embed/upload batch size (0 uses config)")
	ingestCmd.Flags().BoolVar(&recreateColl, "recreate", false, "Drop and recreate the collection first")
	_ = ingestCmd.MarkFlagRequired("file")

	collectionCmd := &cobra.Command{
		Use:   "collection",
		Short: "Vector collection operations",
	}
	collectionCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "Create (or recreate) the vector collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollectionCreate(configPath)
		},
	}
	collectionInfoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show collection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollectionInfo(configPath)
		},
	}
	collectionCmd.AddCommand(collectionCreateCmd, collectionInfoCmd)

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(configPath, strings.Join(args, " "))
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in shopclerk.yaml or via environment:")
			fmt.Println("  SHOPCLERK_LLM_PROVIDER=openai")
			fmt.Println("  SHOPCLERK_LLM_API_KEY=sk-...")
			fmt.Println("  SHOPCLERK_LLM_MODEL=gpt-4")
		},
	}

	var recreate bool
	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the index as a durable Temporal workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReindex(configPath, csvPath, recreate)
		},
	}
	reindexCmd.Flags().StringVar(&csvPath, "file", "", "Path to knowledge-base CSV")
	reindexCmd.Flags().BoolVar(&recreate, "recreate", false, "Drop and recreate the collection first")
	_ = reindexCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(serveCmd, ingestCmd, collectionCmd, askCmd, providersCmd, reindexCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	return cfg
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildSecrets constructs the secrets manager for the configured backend.
// The file backend is created lazily so an env-only setup never touches disk.
func buildSecrets(cfg *config.Config) (*secrets.Manager, error) {
	sc := &secrets.Config{
		Provider:  cfg.Secrets.Provider,
		EnvPrefix: "SHOPCLERK_",
	}
	if cfg.Secrets.Provider == "file" {
		sc.FileConfig = &secrets.FileConfig{
			Path:            cfg.Secrets.FilePath,
			CreateIfMissing: true,
		}
	}
	return secrets.NewManager(sc)
}

// buildProvider constructs the configured LLM provider wrapped with retry
// and rate limiting. The API key falls back to the secrets manager when the
// config leaves it empty.
func buildProvider(ctx context.Context, cfg *config.Config, sm *secrets.Manager) (llm.Provider, error) {
	apiKey := cfg.LLM.APIKey
	if apiKey == "" && sm != nil {
		apiKey = sm.GetOrDefault(ctx, string(secrets.SecretLLMAPIKey), "")
	}

	factory := llm.NewFactory()
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	// All OpenAI-compatible providers
	for _, p := range []struct{ name, url string }{
		{"groq", llm.KnownProviders["groq"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"together", llm.KnownProviders["together"]},
		{"deepseek", llm.KnownProviders["deepseek"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}

	providerCfg := llm.ProviderConfig{
		Provider:   cfg.LLM.Provider,
		APIKey:     apiKey,
		Model:      cfg.LLM.Model,
		BaseURL:    cfg.LLM.BaseURL,
		EmbedModel: cfg.LLM.EmbedModel,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	}
	provider, err := factory.Create(providerCfg)
	if err != nil {
		return nil, fmt.Errorf("creating LLM provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("llm provider %q is not usable for answering", cfg.LLM.Provider)
	}

	provider = llm.WrapWithRetry(provider, providerCfg)
	provider = llm.WithRateLimit(provider, llm.DefaultRateLimitConfig())
	return provider, nil
}

func connectVector(ctx context.Context, cfg *config.Config) (*vector.Client, error) {
	client, err := vector.NewClient(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
	if err != nil {
		return nil, fmt.Errorf("connecting to vector store: %w", err)
	}
	return client, nil
}

func connectMemory(ctx context.Context, cfg *config.Config, sm *secrets.Manager) *memory.Store {
	password := cfg.Memory.Password
	if password == "" && sm != nil {
		password = sm.GetOrDefault(ctx, string(secrets.SecretRedisPassword), "")
	}
	return memory.NewStore(memory.Config{
		Addr:      cfg.Memory.Addr,
		Password:  password,
		DB:        cfg.Memory.DB,
		TTL:       cfg.Memory.TTL,
		KeyPrefix: cfg.Memory.KeyPrefix,
	})
}

func buildPipeline(provider llm.Provider, vec *vector.Client, cfg *config.Config) *pipeline.Pipeline {
	return pipeline.New(provider, vec, provider,
		pipeline.WithThreshold(cfg.Vector.Threshold),
		pipeline.WithLimit(cfg.Vector.Limit),
		pipeline.WithTemperature(cfg.LLM.Temperature),
	)
}

func runServe(configPath string) error {
	cfg := loadConfig(configPath)
	setupLogging(cfg.Log)
	ctx := context.Background()

	sm, err := buildSecrets(cfg)
	if err != nil {
		return fmt.Errorf("secrets manager: %w", err)
	}

	tracer, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.Path,
	})
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}

	metrics := observability.NewChatMetrics()

	provider, err := buildProvider(ctx, cfg, sm)
	if err != nil {
		return err
	}
	provider = llm.WithInstrumentation(provider, cfg.LLM.Model, metrics, audit)

	vec, err := connectVector(ctx, cfg)
	if err != nil {
		return err
	}
	vec.WithObservability(metrics, audit)

	store := connectMemory(ctx, cfg, sm)
	pipe := buildPipeline(provider, vec, cfg)

	chat := server.NewChatServer(
		&server.Config{ListenAddr: cfg.Server.Addr},
		pipe, store, metrics, audit,
	)

	graceful := server.NewGracefulServer(
		&server.HealthConfig{Version: version, Addr: cfg.Server.HealthAddr},
		server.DefaultShutdownConfig(),
	)
	graceful.Health.RegisterCheck("redis", server.RedisHealthChecker(store.Ping))
	graceful.Health.RegisterCheck("qdrant", server.QdrantHealthChecker(cfg.Vector.Collection, vec.CollectionExists))
	graceful.Health.RegisterCheck("llm", server.LLMHealthChecker(provider.Name(), nil))

	graceful.RegisterShutdownHook(server.HTTPServerShutdownHook("chat-server", chat.Stop))
	graceful.RegisterShutdownHook(server.ConversationStoreShutdownHook(store.Close))
	graceful.RegisterShutdownHook(server.VectorStoreShutdownHook(vec.Close))
	graceful.RegisterShutdownHook(server.AuditLoggerShutdownHook(audit.Close))
	graceful.RegisterShutdownHook(server.TracingShutdownHook(tracer.Shutdown))

	if err := graceful.Start(cfg.Server.HealthAddr); err != nil {
		return fmt.Errorf("health server: %w", err)
	}

	go func() {
		if err := chat.Start(); err != nil {
			slog.Error("chat server failed", "error", err)
			graceful.Shutdown.Shutdown()
		}
	}()

	slog.Info("shopclerk serving",
		"addr", cfg.Server.Addr,
		"health", cfg.Server.HealthAddr,
		"provider", provider.Name(),
		"collection", cfg.Vector.Collection)

	graceful.Wait()
	return nil
}

type ingestOptions struct {
	csvPath      string
	jsonReport   bool
	chunkSize    int
	chunkOverlap int
	batchSize    int
	recreate     bool
}

func runIngest(configPath string, opts ingestOptions) error {
	cfg := loadConfig(configPath)
	setupLogging(cfg.Log)
	ctx := context.Background()

	sm, err := buildSecrets(cfg)
	if err != nil {
		return fmt.Errorf("secrets manager: %w", err)
	}

	provider, err := buildProvider(ctx, cfg, sm)
	if err != nil {
		return err
	}

	vec, err := connectVector(ctx, cfg)
	if err != nil {
		return err
	}
	defer vec.Close()

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Enabled,
		OutputPath: cfg.Audit.Path,
	})
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}
	defer audit.Close()

	if opts.recreate || !vec.CollectionExists(ctx) {
		slog.Info("creating collection", "name", cfg.Vector.Collection, "size", cfg.Vector.VectorSize)
		if err := vec.CreateCollection(ctx, cfg.Vector.VectorSize); err != nil {
			return fmt.Errorf("creating collection: %w", err)
		}
		audit.LogCollectionCreate(ctx, cfg.Vector.Collection, cfg.Vector.VectorSize)
	}

	ing := ingest.New(provider, vec).
		WithChunker(ingest.NewChunker(opts.chunkSize, opts.chunkOverlap)).
		WithObservability(cfg.Vector.Collection, audit)
	if opts.batchSize > 0 {
		ing.BatchSize = opts.batchSize
	} else if cfg.Vector.BatchSize > 0 {
		ing.BatchSize = cfg.Vector.BatchSize
	}

	report, err := ing.IngestFile(ctx, opts.csvPath)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if opts.jsonReport {
		data, err := report.JSON()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		report.PrintSummary(os.Stdout)
	}
	return nil
}

func runCollectionCreate(configPath string) error {
	cfg := loadConfig(configPath)
	setupLogging(cfg.Log)
	ctx := context.Background()

	vec, err := connectVector(ctx, cfg)
	if err != nil {
		return err
	}
	defer vec.Close()

	if err := vec.CreateCollection(ctx, cfg.Vector.VectorSize); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	fmt.Printf("Collection %q created (%d dimensions)\n", cfg.Vector.Collection, cfg.Vector.VectorSize)
	return nil
}

func runCollectionInfo(configPath string) error {
	cfg := loadConfig(configPath)
	setupLogging(cfg.Log)
	ctx := context.Background()

	vec, err := connectVector(ctx, cfg)
	if err != nil {
		return err
	}
	defer vec.Close()

	fmt.Printf("Collection: %s\n", cfg.Vector.Collection)
	fmt.Printf("Host:       %s:%d\n", cfg.Vector.Host, cfg.Vector.Port)
	if vec.CollectionExists(ctx) {
		fmt.Println("Status:     exists")
	} else {
		fmt.Println("Status:     missing (run 'shopclerk collection create')")
	}
	return nil
}

func runAsk(configPath, question string) error {
	cfg := loadConfig(configPath)
	setupLogging(cfg.Log)
	ctx := context.Background()

	sm, err := buildSecrets(cfg)
	if err != nil {
		return fmt.Errorf("secrets manager: %w", err)
	}

	provider, err := buildProvider(ctx, cfg, sm)
	if err != nil {
		return err
	}

	vec, err := connectVector(ctx, cfg)
	if err != nil {
		return err
	}
	defer vec.Close()

	pipe := buildPipeline(provider, vec, cfg)
	resp := pipe.Respond(ctx, question)

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range resp.Sources {
			fmt.Printf("  %d. [%s] %.0f%% match\n", i+1, src.Category("General"), src.Score*100)
		}
	}
	return nil
}

func runReindex(configPath, csvPath string, recreate bool) error {
	cfg := loadConfig(configPath)
	setupLogging(cfg.Log)
	ctx := context.Background()

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	input := temporalmod.ReindexInput{
		CSVPath:            csvPath,
		RecreateCollection: recreate,
		VectorSize:         cfg.Vector.VectorSize,
		BatchSize:          cfg.Vector.BatchSize,
	}

	run, err := c.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        fmt.Sprintf("reindex-%d", time.Now().Unix()),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, temporalmod.ReindexWorkflow, input)
	if err != nil {
		return fmt.Errorf("starting workflow: %w", err)
	}

	fmt.Printf("Reindex workflow started: %s\n", run.GetID())

	var out temporalmod.ReindexOutput
	if err := run.Get(ctx, &out); err != nil {
		return fmt.Errorf("workflow failed: %w", err)
	}

	fmt.Printf("Reindex complete: %d rows, %d chunks, %d vectors in %d batches (%s)\n",
		out.Rows, out.Chunks, out.Vectors, out.Batches, out.Duration)
	return nil
}
