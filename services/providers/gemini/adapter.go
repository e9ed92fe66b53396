package gemini

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/upb/workflow-runner/services/providers"
)

// ProviderName is the registry name of this backend
const ProviderName = "gemini"

// contentGenerator is the subset of *genai.Models the adapter uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Adapter implements providers.ProviderClient on top of the Gemini API
type Adapter struct {
	models contentGenerator
}

// NewAdapter creates a Gemini adapter backed by a genai client
func NewAdapter(ctx context.Context, config providers.ProviderConfig) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, err
	}

	return &Adapter{models: client.Models}, nil
}

// Builder adapts NewAdapter to the registry builder signature
func Builder(config providers.ProviderConfig) (providers.ProviderClient, error) {
	return NewAdapter(context.Background(), config)
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return ProviderName
}

// Generate sends the prompt as a single user turn
func (a *Adapter) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	startTime := time.Now()

	var genConfig *genai.GenerateContentConfig
	if req.Temperature > 0 {
		genConfig = &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(req.Temperature))}
	}

	resp, err := a.models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), genConfig)
	if err != nil {
		return nil, a.mapError(ctx, req.Model, err)
	}

	text := ""
	if resp != nil {
		text = resp.Text()
	}

	return &providers.GenerateResponse{
		Text:     text,
		Model:    req.Model,
		Provider: a.Name(),
		Latency:  time.Since(startTime),
	}, nil
}

// mapError turns a genai failure into a ProviderError carrying the HTTP status
func (a *Adapter) mapError(ctx context.Context, model string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.NewProviderError(a.Name(), model, apiErr.Status, apiErr.Message, apiErr.Code, nil)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return providers.NewProviderError(a.Name(), model, apiErrPtr.Status, apiErrPtr.Message, apiErrPtr.Code, nil)
	}

	return providers.NewProviderError(a.Name(), model, "UNKNOWN_ERROR", err.Error(), 0, nil)
}
