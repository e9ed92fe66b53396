package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/upb/workflow-runner/services/providers"
)

const (
	// ProviderName is the registry name of this backend
	ProviderName = "openrouter"

	defaultBaseURL = "https://openrouter.ai/api/v1"
)

// Adapter implements providers.ProviderClient for the OpenRouter chat completions API
type Adapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAdapter creates a new OpenRouter adapter
func NewAdapter(config providers.ProviderConfig) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("openrouter API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: limiter,
	}, nil
}

// Builder adapts NewAdapter to the registry builder signature
func Builder(config providers.ProviderConfig) (providers.ProviderClient, error) {
	return NewAdapter(config)
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return ProviderName
}

// Generate sends the prompt as a single user message
func (a *Adapter) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	startTime := time.Now()

	// Wait fails at once when the next slot lies past the request deadline
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, providers.NewProviderError(a.Name(), req.Model, "PACING_TIMEOUT",
			"timed out waiting for request pacing", http.StatusGatewayTimeout, err)
	}

	chatReq := ChatRequest{
		Model:    req.Model,
		Messages: []Message{{Role: "user", Content: req.Prompt}},
	}
	if req.Temperature > 0 {
		chatReq.Temperature = &req.Temperature
	}

	reqBody, err := json.Marshal(chatReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), req.Model, "MARSHAL_ERROR", "failed to marshal request", 0, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), req.Model, "REQUEST_ERROR", "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	if a.config.SiteURL != "" {
		httpReq.Header.Set("HTTP-Referer", a.config.SiteURL)
	}
	if a.config.SiteName != "" {
		httpReq.Header.Set("X-Title", a.config.SiteName)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		// Let the caller see its own cancellation untouched.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, providers.NewProviderError(a.Name(), req.Model, "HTTP_ERROR", "HTTP request failed", 0, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), req.Model, "READ_ERROR", "failed to read response", httpResp.StatusCode, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(req.Model, httpResp.StatusCode, respBody)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), req.Model, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, err)
	}

	// OpenRouter reports some upstream failures inside a 200 body.
	if chatResp.Error != nil {
		status := chatResp.Error.status()
		if status == 0 {
			status = http.StatusBadGateway
		}
		return nil, providers.NewProviderError(a.Name(), req.Model, chatResp.Error.codeString(), chatResp.Error.Message, status, nil)
	}

	text := ""
	if len(chatResp.Choices) > 0 {
		text = chatResp.Choices[0].Message.Content
	}

	model := chatResp.Model
	if model == "" {
		model = req.Model
	}

	return &providers.GenerateResponse{
		Text:     text,
		Model:    model,
		Provider: a.Name(),
		Latency:  time.Since(startTime),
	}, nil
}

// handleErrorResponse converts an OpenRouter error body into a ProviderError
func (a *Adapter) handleErrorResponse(model string, statusCode int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(statusCode)
		}
		return providers.NewProviderError(a.Name(), model, "UNKNOWN_ERROR", msg, statusCode, nil)
	}

	return providers.NewProviderError(
		a.Name(),
		model,
		errResp.Error.codeString(),
		errResp.Error.Message,
		statusCode,
		nil,
	)
}

// OpenRouter request/response types

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID      string     `json:"id"`
	Model   string     `json:"model"`
	Choices []Choice   `json:"choices"`
	Error   *ErrorBody `json:"error,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries either a numeric or a string code depending on the upstream
type ErrorBody struct {
	Code    json.RawMessage `json:"code,omitempty"`
	Message string          `json:"message"`
	Type    string          `json:"type,omitempty"`
}

func (e *ErrorBody) codeString() string {
	if len(e.Code) == 0 {
		return e.Type
	}
	var s string
	if err := json.Unmarshal(e.Code, &s); err == nil {
		return s
	}
	return string(e.Code)
}

func (e *ErrorBody) status() int {
	n, err := strconv.Atoi(string(e.Code))
	if err != nil {
		return 0
	}
	return n
}
