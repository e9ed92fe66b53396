package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported provider backends
const (
	BackendGemini     = "gemini"
	BackendOpenRouter = "openrouter"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Providers     ProvidersConfig
	Pipeline      PipelineConfig
	Observability ObservabilityConfig
	Cache         CacheConfig
	RateLimit     RateLimitConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProvidersConfig selects the generative backend and holds its settings
type ProvidersConfig struct {
	Backend    string
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
}

// GeminiConfig holds Gemini API configuration
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenRouterConfig holds OpenRouter configuration
type OpenRouterConfig struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	SiteURL           string
	SiteName          string
	RequestsPerSecond float64
}

// PipelineConfig holds the step execution and fallback chain settings
type PipelineConfig struct {
	PrimaryModel       string        `yaml:"primary_model"`
	FallbackModels     []string      `yaml:"fallback_models"`
	MaxCandidates      int           `yaml:"max_candidates"`
	PerRequestTimeout  time.Duration `yaml:"per_request_timeout"`
	TotalTimeout       time.Duration `yaml:"total_timeout"`
	AllowLocalFallback bool          `yaml:"allow_local_fallback"`
}

// CacheConfig holds the in-memory workflow cache settings
type CacheConfig struct {
	Size            int
	TTL             time.Duration
	CleanupInterval time.Duration
}

// RateLimitConfig bounds how often each candidate model is called. It is
// off unless RequestsPerMinute is positive.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	pipeline := DefaultPipelineConfig()
	if path := getEnv("PIPELINE_CONFIG_FILE", ""); path != "" {
		if err := loadPipelineFile(path, &pipeline); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Providers: ProvidersConfig{
			Backend: strings.ToLower(getEnv("PROVIDER_BACKEND", BackendGemini)),
			Gemini: GeminiConfig{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", ""),
				Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
			},
			OpenRouter: OpenRouterConfig{
				APIKey:            getEnv("OPENROUTER_API_KEY", ""),
				BaseURL:           getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
				Timeout:           getEnvAsDuration("OPENROUTER_TIMEOUT", 60*time.Second),
				SiteURL:           getEnv("OPENROUTER_SITE_URL", ""),
				SiteName:          getEnv("OPENROUTER_SITE_NAME", "workflow-runner"),
				RequestsPerSecond: getEnvAsFloat("OPENROUTER_REQUESTS_PER_SECOND", 10),
			},
		},
		Pipeline: PipelineConfig{
			PrimaryModel:       getEnv("PIPELINE_PRIMARY_MODEL", pipeline.PrimaryModel),
			FallbackModels:     getEnvAsSlice("PIPELINE_FALLBACK_MODELS", pipeline.FallbackModels),
			MaxCandidates:      getEnvAsInt("PIPELINE_MAX_CANDIDATES", pipeline.MaxCandidates),
			PerRequestTimeout:  getEnvAsDuration("PIPELINE_PER_REQUEST_TIMEOUT", pipeline.PerRequestTimeout),
			TotalTimeout:       getEnvAsDuration("PIPELINE_TOTAL_TIMEOUT", pipeline.TotalTimeout),
			AllowLocalFallback: getEnvAsBool("PIPELINE_ALLOW_LOCAL_FALLBACK", pipeline.AllowLocalFallback),
		},
		Cache: CacheConfig{
			Size:            getEnvAsInt("WORKFLOW_CACHE_SIZE", 1000),
			TTL:             getEnvAsDuration("WORKFLOW_CACHE_TTL", 5*time.Minute),
			CleanupInterval: getEnvAsDuration("WORKFLOW_CACHE_CLEANUP_INTERVAL", time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("MODEL_RATE_LIMIT_PER_MINUTE", 0),
			Burst:             getEnvAsInt("MODEL_RATE_LIMIT_BURST", 0),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultPipelineConfig returns the pipeline settings used when nothing overrides them
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		PrimaryModel:       "gemini-2.0-flash",
		MaxCandidates:      2,
		PerRequestTimeout:  10 * time.Second,
		TotalTimeout:       45 * time.Second,
		AllowLocalFallback: false,
	}
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	switch c.Providers.Backend {
	case BackendGemini, BackendOpenRouter:
	default:
		return fmt.Errorf("unsupported provider backend %q", c.Providers.Backend)
	}

	// The selected backend needs credentials in production
	if c.IsProduction() && c.Providers.APIKey() == "" {
		return fmt.Errorf("%s API key is required in production", c.Providers.Backend)
	}

	if err := c.Pipeline.Validate(); err != nil {
		return err
	}

	if c.Cache.Size < 1 {
		return fmt.Errorf("workflow cache size must be at least 1")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// Validate checks the pipeline settings
func (p *PipelineConfig) Validate() error {
	if strings.TrimSpace(p.PrimaryModel) == "" {
		return fmt.Errorf("pipeline primary model is required")
	}
	if p.MaxCandidates < 1 {
		return fmt.Errorf("pipeline max candidates must be at least 1")
	}
	if p.PerRequestTimeout <= 0 {
		return fmt.Errorf("pipeline per-request timeout must be positive")
	}
	if p.TotalTimeout <= 0 {
		return fmt.Errorf("pipeline total timeout must be positive")
	}
	return nil
}

// APIKey returns the credential of the selected backend
func (p *ProvidersConfig) APIKey() string {
	switch p.Backend {
	case BackendOpenRouter:
		return p.OpenRouter.APIKey
	default:
		return p.Gemini.APIKey
	}
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", "dev"),
		Database:        getEnv("DB_NAME", "workflows"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma separated value, dropping blank entries
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
