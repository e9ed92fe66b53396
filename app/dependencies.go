package app

import (
	"context"
	"fmt"

	"github.com/upb/workflow-runner/config"
	"github.com/upb/workflow-runner/internal/observability"
	"github.com/upb/workflow-runner/middleware"
	"github.com/upb/workflow-runner/repositories"
	"github.com/upb/workflow-runner/repositories/postgres"
	"github.com/upb/workflow-runner/services/heuristics"
	"github.com/upb/workflow-runner/services/pipeline"
	"github.com/upb/workflow-runner/services/providers"
	"github.com/upb/workflow-runner/services/providers/gemini"
	"github.com/upb/workflow-runner/services/providers/openrouter"
	"github.com/upb/workflow-runner/services/ratelimit"
	"github.com/upb/workflow-runner/services/workflow"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Workflows repositories.WorkflowRepository
	Runs      repositories.RunRepository
	TxManager repositories.TransactionManager

	// Pipeline
	Pipeline *Pipeline

	// Services
	WorkflowCache   *workflow.Cache
	WorkflowService *workflow.Service

	// Middleware
	OwnerMiddleware *middleware.OwnerMiddleware
}

// Pipeline groups the pieces needed to execute steps. It has no database
// dependency so the CLI can run pipelines directly.
type Pipeline struct {
	Registry *providers.Registry
	Provider providers.ProviderClient
	Executor *pipeline.Executor
	Settings pipeline.Config

	// Limiter is nil when the per-model budget is disabled or no backend
	// is configured
	Limiter *ratelimit.Service

	// Metrics is nil when metrics are disabled
	Metrics *observability.Collector
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize repositories
	deps.initRepositories()

	// Initialize providers and the pipeline executor
	p, err := NewPipeline(cfg, logger)
	if err != nil {
		_ = deps.RepoFactory.Close()
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	deps.Pipeline = p

	deps.initServices(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Workflows = repos.Workflows
	d.Runs = repos.Runs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

// initServices wires the workflow service and its cache
func (d *Dependencies) initServices(cfg *config.Config) {
	d.WorkflowCache = workflow.NewCache(cfg.Cache.Size, cfg.Cache.TTL)
	d.WorkflowService = workflow.NewService(
		&repositories.Repositories{Workflows: d.Workflows, Runs: d.Runs},
		d.TxManager,
		d.Pipeline.Executor,
		d.Pipeline.Settings,
		d.WorkflowCache,
		d.Logger.Named("workflow"),
	)
	d.OwnerMiddleware = middleware.NewOwnerMiddleware(d.Logger)

	d.Logger.Info("services initialized",
		zap.Int("cache_size", cfg.Cache.Size),
		zap.Duration("cache_ttl", cfg.Cache.TTL))
}

// NewPipeline builds the configured provider backend and the step executor
func NewPipeline(cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	registry, err := NewProviderRegistry()
	if err != nil {
		return nil, err
	}

	client, err := BuildProvider(registry, cfg.Providers, logger)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Registry: registry,
		Settings: PipelineSettings(cfg.Pipeline),
	}

	limiter := ratelimit.NewService(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, logger.Named("ratelimit"))
	if limiter.Enabled() && providers.IsConfigured(client) {
		p.Limiter = limiter
		client = ratelimit.NewClient(client, limiter)
		logger.Info("per-model request budget enabled",
			zap.Int("requests_per_minute", cfg.RateLimit.RequestsPerMinute),
			zap.Int("burst", cfg.RateLimit.Burst))
	}
	p.Provider = client

	var metrics observability.Metrics = observability.NopMetrics{}
	if cfg.Observability.MetricsEnabled {
		p.Metrics = observability.NewCollector()
		metrics = p.Metrics
	}

	p.Executor = pipeline.NewExecutor(client, heuristics.Local{}, logger.Named("pipeline"), metrics)
	return p, nil
}

// NewProviderRegistry returns a registry that knows every supported backend
func NewProviderRegistry() (*providers.Registry, error) {
	registry := providers.NewRegistry()
	if err := registry.RegisterBuilder(gemini.ProviderName, gemini.Builder); err != nil {
		return nil, err
	}
	if err := registry.RegisterBuilder(openrouter.ProviderName, openrouter.Builder); err != nil {
		return nil, err
	}
	return registry, nil
}

// BuildProvider builds the client for the configured backend. A backend
// without an API key is replaced by a client that fails every call, so local
// steps keep working.
func BuildProvider(registry *providers.Registry, cfg config.ProvidersConfig, logger *zap.Logger) (providers.ProviderClient, error) {
	if cfg.APIKey() == "" {
		logger.Warn("no API key configured, AI-backed steps will fail",
			zap.String("backend", cfg.Backend))
		client := providers.NewUnconfiguredClient(cfg.Backend)
		if err := registry.RegisterProvider(client); err != nil {
			return nil, err
		}
		return client, nil
	}

	providerCfg := providers.DefaultProviderConfig()
	providerCfg.APIKey = cfg.APIKey()

	switch cfg.Backend {
	case config.BackendGemini:
		providerCfg.BaseURL = cfg.Gemini.BaseURL
		if cfg.Gemini.Timeout > 0 {
			providerCfg.Timeout = cfg.Gemini.Timeout
		}
	case config.BackendOpenRouter:
		providerCfg.BaseURL = cfg.OpenRouter.BaseURL
		if cfg.OpenRouter.Timeout > 0 {
			providerCfg.Timeout = cfg.OpenRouter.Timeout
		}
		providerCfg.SiteURL = cfg.OpenRouter.SiteURL
		providerCfg.SiteName = cfg.OpenRouter.SiteName
		providerCfg.RequestsPerSecond = cfg.OpenRouter.RequestsPerSecond
	}

	client, err := registry.Build(cfg.Backend, providerCfg)
	if err != nil {
		return nil, err
	}

	logger.Info("provider initialized", zap.String("backend", client.Name()))
	return client, nil
}

// PipelineSettings converts the configuration section into executor settings
func PipelineSettings(cfg config.PipelineConfig) pipeline.Config {
	return pipeline.Config{
		AllowLocalFallback: cfg.AllowLocalFallback,
		PerRequestTimeout:  cfg.PerRequestTimeout,
		TotalTimeout:       cfg.TotalTimeout,
		MaxCandidates:      cfg.MaxCandidates,
		PrimaryModel:       cfg.PrimaryModel,
		FallbackModels:     append([]string(nil), cfg.FallbackModels...),
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
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
