package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	AttentionFlash = "flash_attention_2"
	AttentionEager = "eager"

	DTypeBFloat16 = "bfloat16"
	DTypeAuto     = "auto"
)

// Runtime is an in-process model runtime. Implementations register
// themselves with RegisterRuntime, usually from an init function.
type Runtime interface {
	Name() string

	// FlashAttentionAvailable reports whether an accelerated attention
	// implementation can be used.
	FlashAttentionAvailable() bool

	LoadModel(ctx context.Context, name string, opts LoadOptions) (Model, error)
	LoadProcessor(ctx context.Context, name string) (Processor, error)
}

// LoadOptions selects how a model is loaded.
type LoadOptions struct {
	Attention string
	DType     string
	DeviceMap string
	Variant   Variant
}

// Model generates token ids from prepared inputs.
// A Model is not assumed safe for concurrent Generate calls.
type Model interface {
	// Generate returns the full sequence, prompt tokens included.
	Generate(ctx context.Context, in *Inputs, opts GenerateOptions) ([]int, error)
	Close() error
}

// GenerateOptions bounds one generation call.
type GenerateOptions struct {
	MaxNewTokens int
	Temperature  float64
}

// Processor formats chat messages into model inputs and decodes output ids.
type Processor interface {
	ApplyChatTemplate(msgs []Message, addGenerationPrompt bool) (*Inputs, error)
	Decode(ids []int, skipSpecialTokens bool) (string, error)
}

// Message is one chat turn made of ordered parts.
type Message struct {
	Role  string
	Parts []Part
}

// Part is either an image reference or text.
type Part struct {
	Image string // Path to an image file
	Text  string
}

// Inputs is a tokenized prompt plus the images it references.
type Inputs struct {
	InputIDs []int
	Images   []string
}

var (
	runtimesMu sync.RWMutex
	runtimes   = map[string]Runtime{}
)

// RegisterRuntime makes a runtime available to local providers by name.
// Registering the same name twice replaces the earlier runtime.
func RegisterRuntime(rt Runtime) {
	runtimesMu.Lock()
	defer runtimesMu.Unlock()
	runtimes[rt.Name()] = rt
}

// LookupRuntime returns a registered runtime.
func LookupRuntime(name string) (Runtime, error) {
	runtimesMu.RLock()
	defer runtimesMu.RUnlock()
	rt, ok := runtimes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrRuntimeUnavailable, name, strings.Join(runtimeNamesLocked(), ", "))
	}
	return rt, nil
}

// RuntimeNames lists registered runtimes in sorted order.
func RuntimeNames() []string {
	runtimesMu.RLock()
	defer runtimesMu.RUnlock()
	return runtimeNamesLocked()
}

func runtimeNamesLocked() []string {
	names := make([]string, 0, len(runtimes))
	for name := range runtimes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LocalProvider runs a model in-process. The model and processor are loaded
// once at construction; generation is serialized per provider.
type LocalProvider struct {
	mu sync.Mutex

	runtime     string
	modelName   string
	attention   string
	maxTokens   int
	temperature float64
	model       Model
	processor   Processor
	logger      *slog.Logger
}

// NewLocalProvider loads the configured model through its runtime.
func NewLocalProvider(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (*LocalProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)

	rt, err := LookupRuntime(cfg.Runtime)
	if err != nil {
		return nil, err
	}

	opts := LoadOptions{
		Attention: AttentionEager,
		DType:     DTypeAuto,
		DeviceMap: "auto",
		Variant:   cfg.Variant,
	}
	if rt.FlashAttentionAvailable() {
		opts.Attention = AttentionFlash
		opts.DType = DTypeBFloat16
		logger.Info("flash attention available", "runtime", rt.Name())
	} else {
		logger.Info("flash attention not available, using eager attention", "runtime", rt.Name())
	}

	start := time.Now()
	model, err := rt.LoadModel(ctx, cfg.Model, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %q: %w", cfg.Model, err)
	}
	processor, err := rt.LoadProcessor(ctx, cfg.Model)
	if err != nil {
		_ = model.Close()
		return nil, fmt.Errorf("failed to load processor %q: %w", cfg.Model, err)
	}

	logger.Info("local model loaded",
		"runtime", rt.Name(),
		"model", cfg.Model,
		"variant", cfg.Variant,
		"attention", opts.Attention,
		"dtype", opts.DType,
		"elapsed", time.Since(start))

	return &LocalProvider{
		runtime:     rt.Name(),
		modelName:   cfg.Model,
		attention:   opts.Attention,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		model:       model,
		processor:   processor,
		logger:      logger,
	}, nil
}

// Name returns the provider label.
func (p *LocalProvider) Name() string {
	return fmt.Sprintf("local (%s/%s)", p.runtime, p.modelName)
}

// Attention returns the attention implementation selected at load time.
func (p *LocalProvider) Attention() string {
	return p.attention
}

// ProcessImage runs one generation for the image and instruction.
func (p *LocalProvider) ProcessImage(ctx context.Context, imagePath, instruction string) (*OCRResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	msgs := []Message{{
		Role: "user",
		Parts: []Part{
			{Image: imagePath},
			{Text: instruction},
		},
	}}

	in, err := p.processor.ApplyChatTemplate(msgs, true)
	if err != nil {
		return nil, p.ocrError(imagePath, fmt.Errorf("apply chat template: %w", err))
	}

	out, err := p.model.Generate(ctx, in, GenerateOptions{
		MaxNewTokens: p.maxTokens,
		Temperature:  p.temperature,
	})
	if err != nil {
		return nil, p.ocrError(imagePath, fmt.Errorf("generate: %w", err))
	}

	// Strip the prompt prefix.
	generated := out
	if len(out) >= len(in.InputIDs) {
		generated = out[len(in.InputIDs):]
	}

	text, err := p.processor.Decode(generated, true)
	if err != nil {
		return nil, p.ocrError(imagePath, fmt.Errorf("decode: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		return nil, p.ocrError(imagePath, fmt.Errorf("%w: empty generation", ErrEmptyResponse))
	}

	elapsed := time.Since(start)
	p.logger.Debug("ocr complete", "provider", p.Name(), "image", imagePath, "tokens", len(generated), "elapsed", elapsed)

	return &OCRResult{
		Text: text,
		Metadata: map[string]any{
			"model_used":        p.modelName,
			"runtime":           p.runtime,
			"prompt_tokens":     len(in.InputIDs),
			"completion_tokens": len(generated),
		},
		ExecutionTime: elapsed,
	}, nil
}

// Close releases the model.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model.Close()
}

func (p *LocalProvider) ocrError(imagePath string, err error) error {
	return &OCRError{Provider: p.Name(), Image: imagePath, Cause: err}
}

var _ OCRProvider = (*LocalProvider)(nil)
