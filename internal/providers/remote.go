package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// RemoteConfig holds configuration for an OpenAI-compatible OCR backend.
type RemoteConfig struct {
	Label       string // Provider label used in logs and errors
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	MaxRetries  int          // SDK transport retries; 0 disables
	RateLimit   int          // Requests per minute; 0 disables
	HTTPClient  *http.Client // Optional (tests)
	Logger      *slog.Logger
}

// RemoteProvider implements OCRProvider against a chat-completions endpoint
// that accepts inline image content. Cloud and self-hosted kinds differ only
// in endpoint and credential.
type RemoteProvider struct {
	label       string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	limiter     *RateLimiter
	logger      *slog.Logger
	client      openai.Client
}

// NewRemoteProvider creates a remote provider.
func NewRemoteProvider(cfg RemoteConfig) *RemoteProvider {
	if cfg.Label == "" {
		cfg.Label = cfg.BaseURL
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &RemoteProvider{
		label:       cfg.Label,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		limiter:     NewRateLimiter(cfg.RateLimit),
		logger:      cfg.Logger,
		client:      openai.NewClient(opts...),
	}
}

// Name returns the provider label.
func (p *RemoteProvider) Name() string {
	return p.label
}

// BaseURL returns the resolved endpoint.
func (p *RemoteProvider) BaseURL() string {
	return p.baseURL
}

// Model returns the configured model identifier.
func (p *RemoteProvider) Model() string {
	return p.model
}

// RateLimiter returns the limiter, or nil when rate limiting is disabled.
func (p *RemoteProvider) RateLimiter() *RateLimiter {
	return p.limiter
}

// HealthCheck verifies the endpoint is reachable and the credential is accepted.
func (p *RemoteProvider) HealthCheck(ctx context.Context) error {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%s models list failed: %w", p.label, p.mapAPIError(err))
	}
	if page == nil {
		return fmt.Errorf("%s models list returned nil response", p.label)
	}
	return nil
}

// ProcessImage sends the image as a data URI followed by the instruction
// and returns the first choice's text.
func (p *RemoteProvider) ProcessImage(ctx context.Context, imagePath, instruction string) (*OCRResult, error) {
	start := time.Now()

	uri, err := ImageDataURI(imagePath)
	if err != nil {
		return nil, p.ocrError(imagePath, err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, p.ocrError(imagePath, err)
	}

	requestID := uuid.New().String()
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: uri}),
				openai.TextContentPart(instruction),
			}),
		},
		MaxTokens:   openai.Int(int64(p.maxTokens)),
		Temperature: openai.Float(p.temperature),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, option.WithHeader("X-Request-Id", requestID))
	if err != nil {
		return nil, p.ocrError(imagePath, p.mapAPIError(err))
	}

	if len(resp.Choices) == 0 {
		return nil, p.ocrError(imagePath, fmt.Errorf("%w: no choices", ErrEmptyResponse))
	}
	msg := resp.Choices[0].Message
	// A null, missing or non-string content field decodes to "" or raw JSON.
	if !msg.JSON.Content.Valid() {
		return nil, p.ocrError(imagePath, fmt.Errorf("%w: content is not a string", ErrEmptyResponse))
	}
	text := msg.Content
	if strings.TrimSpace(text) == "" {
		return nil, p.ocrError(imagePath, fmt.Errorf("%w: no content", ErrEmptyResponse))
	}

	elapsed := time.Since(start)
	p.logger.Debug("ocr complete",
		"provider", p.label,
		"image", imagePath,
		"request_id", requestID,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed", elapsed)

	return &OCRResult{
		Text: text,
		Metadata: map[string]any{
			"model_used":        resp.Model,
			"request_id":        requestID,
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		},
		ExecutionTime: elapsed,
	}, nil
}

func (p *RemoteProvider) ocrError(imagePath string, err error) error {
	return &OCRError{Provider: p.label, Image: imagePath, Cause: err}
}

func (p *RemoteProvider) mapAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			p.limiter.Record429(retryAfter)
			return &RateLimitError{
				Message:    fmt.Sprintf("rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("api error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("api error (status %d)", apiErr.StatusCode)
	}
	return err
}

var (
	_ OCRProvider   = (*RemoteProvider)(nil)
	_ HealthChecker = (*RemoteProvider)(nil)
)
