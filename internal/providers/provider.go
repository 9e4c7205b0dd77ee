package providers

import (
	"context"
	"time"
)

// OCRProvider converts one page image plus an instruction into extracted text.
// Exactly one provider is active per run.
type OCRProvider interface {
	// Name returns a human-readable provider label (e.g., "cloud (singapore)").
	Name() string

	// ProcessImage extracts text from the image at imagePath.
	// All backend failures are returned as *OCRError.
	ProcessImage(ctx context.Context, imagePath, instruction string) (*OCRResult, error)
}

// HealthChecker is implemented by providers that can probe their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Kind selects a provider strategy.
type Kind string

const (
	KindLocal      Kind = "local"
	KindCloud      Kind = "cloud"
	KindSelfHosted Kind = "self-hosted"
)

// Kinds lists every valid provider kind.
func Kinds() []Kind {
	return []Kind{KindLocal, KindCloud, KindSelfHosted}
}

// Region selects the cloud endpoint.
type Region string

const (
	RegionSingapore Region = "singapore"
	RegionBeijing   Region = "beijing"
)

// Variant selects the local model architecture.
type Variant string

const (
	VariantDense Variant = "dense"
	VariantMoE   Variant = "moe"
)

const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.1
	DefaultTimeout     = 120 * time.Second
)

// ProviderConfig is the immutable configuration a provider is built from.
type ProviderConfig struct {
	Kind  Kind
	Model string

	// Generation limits
	MaxTokens   int
	Temperature float64

	// Remote endpoint and credential
	APIKey    string // Explicit credential; wins over APIKeyEnv
	APIKeyEnv string // Environment variable consulted when APIKey is empty
	Region    string // cloud only
	Host      string // self-hosted only
	Port      int    // self-hosted only
	BaseURL   string // self-hosted override

	// Remote transport
	Timeout    time.Duration
	MaxRetries int // SDK-level retries; 0 disables
	RateLimit  int // Requests per minute; 0 disables

	// Local runtime
	Runtime string
	Variant Variant
}

// OCRResult is the response from an OCR provider.
type OCRResult struct {
	Text string `json:"text"`

	// Metadata from provider (model used, token counts, request id)
	Metadata map[string]any `json:"metadata,omitempty"`

	ExecutionTime time.Duration `json:"execution_time"`
}
