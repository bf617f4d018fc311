package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopclerk/shopclerk/internal/config"
	"github.com/shopclerk/shopclerk/internal/ingest"
	"github.com/shopclerk/shopclerk/internal/llm"
	"github.com/shopclerk/shopclerk/internal/llm/anthropic"
	"github.com/shopclerk/shopclerk/internal/llm/openai"
	"github.com/shopclerk/shopclerk/internal/secrets"
	temporalmod "github.com/shopclerk/shopclerk/internal/temporal"
	"github.com/shopclerk/shopclerk/internal/vector"

	temporalclient "go.temporal.io/sdk/client"
)

func main() {
	configPath := "configs/shopclerk.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	sc := &secrets.Config{Provider: cfg.Secrets.Provider, EnvPrefix: "SHOPCLERK_"}
	if cfg.Secrets.Provider == "file" {
		sc.FileConfig = &secrets.FileConfig{Path: cfg.Secrets.FilePath, CreateIfMissing: true}
	}
	sm, err := secrets.NewManager(sc)
	if err != nil {
		log.Fatalf("secrets manager: %v", err)
	}

	apiKey := cfg.LLM.APIKey
	if apiKey == "" {
		apiKey = sm.GetOrDefault(ctx, string(secrets.SecretLLMAPIKey), "")
	}

	// Build LLM provider via factory.
	factory := llm.NewFactory()
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
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
		MaxRetries: cfg.LLM.MaxRetries,
	}
	provider, err := factory.Create(providerCfg)
	if err != nil {
		log.Fatalf("creating LLM provider: %v", err)
	}
	if provider == nil {
		log.Fatalf("llm provider %q cannot embed; reindex worker needs one", cfg.LLM.Provider)
	}

	// Wire retry and rate limiting before SetDependencies.
	provider = llm.WrapWithRetry(provider, providerCfg)
	provider = llm.WithRateLimit(provider, llm.DefaultRateLimitConfig())

	vec, err := vector.NewClient(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
	if err != nil {
		log.Fatalf("vector store: %v", err)
	}
	defer vec.Close()

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Embedder: provider,
		Store:    vec,
		Chunker:  ingest.NewChunker(ingest.DefaultChunkSize, ingest.DefaultChunkOverlap),
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	fmt.Printf("Worker started on task queue: %s\n", cfg.Temporal.TaskQueue)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	w.Stop()
	fmt.Println("Worker stopped")
}
