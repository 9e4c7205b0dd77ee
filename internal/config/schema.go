package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/jackzampolin/pdfocr/internal/providers"
)

// DefaultInstruction is sent with every page unless configured otherwise.
const DefaultInstruction = "Extract all text from this image. Preserve the structure and formatting as much as possible. Output only the extracted text."

// Config holds pdfocr configuration.
// Stored at: {home}/config.yaml
type Config struct {
	DefaultProvider string                 `mapstructure:"default_provider" yaml:"default_provider" json:"default_provider"`
	Providers       map[string]ProviderCfg `mapstructure:"providers" yaml:"providers" json:"providers"`
	Workflow        WorkflowCfg            `mapstructure:"workflow" yaml:"workflow" json:"workflow"`
	VLLM            VLLMConfig             `mapstructure:"vllm" yaml:"vllm" json:"vllm"`
}

// ProviderCfg configures one OCR provider.
type ProviderCfg struct {
	Kind        string  `mapstructure:"kind" yaml:"kind" json:"kind"` // "local", "cloud", "self-hosted"
	Model       string  `mapstructure:"model" yaml:"model" json:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens" json:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature" json:"temperature"`

	// Remote kinds
	APIKey         string `mapstructure:"api_key" yaml:"api_key,omitempty" json:"api_key,omitempty"` // Supports ${ENV_VAR} syntax
	APIKeyEnv      string `mapstructure:"api_key_env" yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`
	Region         string `mapstructure:"region" yaml:"region,omitempty" json:"region,omitempty"`
	Host           string `mapstructure:"host" yaml:"host,omitempty" json:"host,omitempty"`
	Port           int    `mapstructure:"port" yaml:"port,omitempty" json:"port,omitempty"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url,omitempty" json:"base_url,omitempty"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	MaxRetries     int    `mapstructure:"max_retries" yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RateLimit      int    `mapstructure:"rate_limit" yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"` // Requests per minute

	// Local kind
	Runtime string `mapstructure:"runtime" yaml:"runtime,omitempty" json:"runtime,omitempty"`
	Variant string `mapstructure:"variant" yaml:"variant,omitempty" json:"variant,omitempty"` // "dense" or "moe"
}

// WorkflowCfg configures batch runs.
type WorkflowCfg struct {
	InputDir          string `mapstructure:"input_dir" yaml:"input_dir" json:"input_dir"`
	OutputDir         string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
	Extension         string `mapstructure:"extension" yaml:"extension" json:"extension"`
	TargetLongestSide int    `mapstructure:"target_longest_side" yaml:"target_longest_side" json:"target_longest_side"`
	ImageFormat       string `mapstructure:"image_format" yaml:"image_format" json:"image_format"` // "png" or "jpeg"
	Instruction       string `mapstructure:"instruction" yaml:"instruction" json:"instruction"`
	SkipExisting      bool   `mapstructure:"skip_existing" yaml:"skip_existing" json:"skip_existing"`
	Workers           int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	NormalizeText     bool   `mapstructure:"normalize_text" yaml:"normalize_text" json:"normalize_text"`
	Pdftoppm          string `mapstructure:"pdftoppm" yaml:"pdftoppm" json:"pdftoppm"` // Rasterizer binary
}

// VLLMConfig holds vLLM container configuration.
type VLLMConfig struct {
	// ContainerName is the Docker container name (default: pdfocr-vllm)
	ContainerName string `mapstructure:"container_name" yaml:"container_name" json:"container_name"`
	// Image is the Docker image to use (default: vllm/vllm-openai:latest)
	Image string `mapstructure:"image" yaml:"image" json:"image"`
	// Port is the host port to bind (default: 8000)
	Port string `mapstructure:"port" yaml:"port" json:"port"`
	// GPUs is passed as the device request count: "all" or a number
	GPUs string `mapstructure:"gpus" yaml:"gpus" json:"gpus"`
	// MaxModelLen bounds the server context length; 0 keeps the model default
	MaxModelLen int `mapstructure:"max_model_len" yaml:"max_model_len" json:"max_model_len"`
	// HFTokenEnv names the environment variable holding a Hugging Face token
	HFTokenEnv string `mapstructure:"hf_token_env" yaml:"hf_token_env" json:"hf_token_env"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultProvider: "local",
		Providers: map[string]ProviderCfg{
			"local": {
				Kind:        string(providers.KindLocal),
				Model:       "eng",
				Runtime:     "tesseract",
				Variant:     string(providers.VariantDense),
				MaxTokens:   8192,
				Temperature: providers.DefaultTemperature,
			},
			"cloud": {
				Kind:           string(providers.KindCloud),
				Model:          "qwen3-vl-30b-a3b",
				Region:         string(providers.RegionSingapore),
				APIKey:         "${DASHSCOPE_API_KEY}",
				MaxTokens:      providers.DefaultMaxTokens,
				Temperature:    providers.DefaultTemperature,
				TimeoutSeconds: 120,
				MaxRetries:     2,
			},
			"self-hosted": {
				Kind:           string(providers.KindSelfHosted),
				Model:          "Qwen/Qwen3-VL-30B-A3B-Instruct",
				Host:           providers.DefaultSelfHostedHost,
				Port:           providers.DefaultSelfHostedPort,
				MaxTokens:      providers.DefaultMaxTokens,
				Temperature:    providers.DefaultTemperature,
				TimeoutSeconds: 300,
				MaxRetries:     2,
			},
		},
		Workflow: WorkflowCfg{
			InputDir:          "data/pdfs",
			OutputDir:         "data/output",
			Extension:         ".pdf",
			TargetLongestSide: 1800,
			ImageFormat:       "png",
			Instruction:       DefaultInstruction,
			Workers:           1,
			Pdftoppm:          "pdftoppm",
		},
		VLLM: VLLMConfig{
			ContainerName: "pdfocr-vllm",
			Image:         "vllm/vllm-openai:latest",
			Port:          "8000",
			GPUs:          "all",
			HFTokenEnv:    "HF_TOKEN",
		},
	}
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

// ProviderNames returns configured provider names in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToProviderConfig converts a named provider entry into providers.ProviderConfig.
// An empty name selects DefaultProvider. ${ENV_VAR} references in the API key
// are resolved here.
func (c *Config) ToProviderConfig(name string) (providers.ProviderConfig, error) {
	if name == "" {
		name = c.DefaultProvider
	}
	p, ok := c.Providers[name]
	if !ok {
		return providers.ProviderConfig{}, fmt.Errorf("provider %q not configured (have: %v)", name, c.ProviderNames())
	}

	kind, err := providers.ParseKind(p.Kind)
	if err != nil {
		return providers.ProviderConfig{}, fmt.Errorf("provider %q: %w", name, err)
	}

	return providers.ProviderConfig{
		Kind:        kind,
		Model:       p.Model,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		APIKey:      ResolveEnvVars(p.APIKey),
		APIKeyEnv:   p.APIKeyEnv,
		Region:      p.Region,
		Host:        p.Host,
		Port:        p.Port,
		BaseURL:     p.BaseURL,
		Timeout:     time.Duration(p.TimeoutSeconds) * time.Second,
		MaxRetries:  p.MaxRetries,
		RateLimit:   p.RateLimit,
		Runtime:     p.Runtime,
		Variant:     providers.Variant(p.Variant),
	}, nil
}

// ProviderByKind returns the first configured provider name with the given kind.
func (c *Config) ProviderByKind(kind providers.Kind) (string, bool) {
	if p, ok := c.Providers[string(kind)]; ok && p.Kind == string(kind) {
		return string(kind), true
	}
	for _, name := range c.ProviderNames() {
		if c.Providers[name].Kind == string(kind) {
			return name, true
		}
	}
	return "", false
}

// Clone returns a copy that can be modified without affecting c.
func (c *Config) Clone() *Config {
	out := *c
	out.Providers = make(map[string]ProviderCfg, len(c.Providers))
	for k, v := range c.Providers {
		out.Providers[k] = v
	}
	return &out
}
