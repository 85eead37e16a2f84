package app

import (
	"context"
	"fmt"

	"github.com/upb/textbook-rag/config"
	"github.com/upb/textbook-rag/handlers"
	embedgemini "github.com/upb/textbook-rag/internal/embedding/gemini"
	"github.com/upb/textbook-rag/internal/rag"
	"github.com/upb/textbook-rag/internal/vectorstore"
	"github.com/upb/textbook-rag/internal/vectorstore/qdrant"
	"github.com/upb/textbook-rag/services/agent"
	"github.com/upb/textbook-rag/services/providers"
	"github.com/upb/textbook-rag/services/providers/gemini"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Retrieval
	Embedder    rag.Embedder
	VectorStore vectorstore.VectorStore
	Retriever   *rag.Retriever

	// Agent
	Provider providers.Provider
	Tools    *agent.Toolset
	Agent    agent.Agent
}

// NewDependencies creates and wires up all application dependencies.
// No network calls are made; reachability is reported by ReadinessProbes.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize embedding client and vector store
	if err := deps.initRetrieval(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize retrieval: %w", err)
	}

	// Initialize model provider and agent
	if err := deps.initAgent(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize agent: %w", err)
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("collection", cfg.Qdrant.CollectionName),
		zap.String("model", cfg.Gemini.Model))
	return deps, nil
}

// initRetrieval wires the embedder, Qdrant client and retriever
func (d *Dependencies) initRetrieval(cfg *config.Config) error {
	embedder, err := embedgemini.NewClient(embedgemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.EmbeddingBaseURL,
		Model:   cfg.Gemini.EmbeddingModel,
		Timeout: config.ClientTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding client: %w", err)
	}
	d.Embedder = embedder

	store, err := qdrant.New(qdrant.Config{
		URL:            cfg.Qdrant.URL,
		APIKey:         cfg.Qdrant.APIKey,
		CollectionName: cfg.Qdrant.CollectionName,
		Timeout:        cfg.Qdrant.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create qdrant client: %w", err)
	}
	d.VectorStore = store

	d.Retriever = rag.NewRetriever(d.Embedder, d.VectorStore, d.Logger)

	d.Logger.Info("retrieval initialized",
		zap.String("embedding_model", embedder.Model()),
		zap.String("collection", cfg.Qdrant.CollectionName))
	return nil
}

// initAgent wires the Gemini provider, the textbook tools and the runner
func (d *Dependencies) initAgent(cfg *config.Config) error {
	providerConfig := providers.DefaultProviderConfig()
	providerConfig.APIKey = cfg.Gemini.APIKey
	providerConfig.BaseURL = cfg.Gemini.BaseURL
	providerConfig.Timeout = cfg.Gemini.Timeout
	providerConfig.MaxRetries = cfg.Gemini.MaxRetries
	providerConfig.RetryDelay = cfg.Gemini.RetryDelay

	provider := gemini.NewGeminiAdapter(providerConfig)
	if err := provider.ValidateModel(cfg.Gemini.Model); err != nil {
		return fmt.Errorf("unsupported model: %w", err)
	}
	d.Provider = provider

	tools, err := agent.NewToolset(agent.NewSearchTool(d.Retriever), agent.NewFormatTool())
	if err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}
	d.Tools = tools

	d.Agent = agent.NewRunner(provider, tools, agent.Config{
		Model:       cfg.Gemini.Model,
		MaxTurns:    cfg.Agent.MaxTurns,
		Temperature: cfg.Agent.Temperature,
	}, d.Logger)

	d.Logger.Info("agent initialized",
		zap.String("provider", provider.Name()),
		zap.Int("tools", tools.Len()),
		zap.Int("max_turns", cfg.Agent.MaxTurns))
	return nil
}

// ReadinessProbes returns the dependency checks served by /readyz
func (d *Dependencies) ReadinessProbes() map[string]handlers.ReadinessProbe {
	probes := make(map[string]handlers.ReadinessProbe, 2)
	if d.VectorStore != nil {
		probes["qdrant"] = d.VectorStore.HealthCheck
	}
	if d.Provider != nil {
		probes[d.Provider.Name()] = handlers.ProviderProbe(d.Provider)
	}
	return probes
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Close vector store connection
	if d.VectorStore != nil {
		if err := d.VectorStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close vector store: %w", err))
		} else {
			d.Logger.Info("vector store connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
