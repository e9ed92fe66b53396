package providers

import (
	"context"
	"errors"
	"time"
)

// ProviderClient issues a single bounded text generation request against one
// named model of a generative language backend.
type ProviderClient interface {
	// Name returns the backend name (e.g., "gemini", "openrouter")
	Name() string

	// Generate sends one prompt to one model and returns the generated text.
	// Failures are reported as *ProviderError whenever the backend produced a
	// status or message worth classifying.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is a single prompt addressed to a single model
type GenerateRequest struct {
	// Model identifier (e.g., "gemini-2.0-flash", "meta-llama/llama-3.1-8b-instruct")
	Model string `json:"model"`

	// Prompt is the full instruction plus embedded text
	Prompt string `json:"prompt"`

	// Temperature controls randomness; zero leaves the backend default
	Temperature float64 `json:"temperature,omitempty"`
}

// GenerateResponse is the text produced for a GenerateRequest
type GenerateResponse struct {
	// Text is the generated output, untrimmed
	Text string `json:"text"`

	// Model that served the request
	Model string `json:"model"`

	// Provider that handled the request
	Provider string `json:"provider"`

	// Latency of the request
	Latency time.Duration `json:"latency"`
}

// ProviderConfig holds common configuration for providers
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout is an upper bound for the underlying HTTP client. The fallback
	// chain applies tighter per-request deadlines through the context.
	Timeout time.Duration

	// RequestsPerSecond paces outbound requests; zero disables pacing
	RequestsPerSecond float64

	// SiteURL and SiteName identify the calling application to backends
	// that support attribution headers
	SiteURL  string
	SiteName string

	// Additional headers
	Headers map[string]string
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 30 * time.Second,
		Headers: make(map[string]string),
	}
}

// ProviderError represents an error reported by a backend
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Model the request was addressed to
	Model string

	// Code is the backend error code or status text
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, model, code, message string, statusCode int, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Model:      model,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// StatusAndMessage extracts the status code and message carried by err.
// Errors that are not provider errors report status 0 and their text.
func StatusAndMessage(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.StatusCode, provErr.Error()
	}
	return 0, err.Error()
}
