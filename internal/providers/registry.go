package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// New builds the provider selected by cfg.Kind.
// Construction errors are returned before any document is touched.
func New(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (OCRProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)

	switch cfg.Kind {
	case KindLocal:
		return NewLocalProvider(ctx, cfg, logger)
	case KindCloud, KindSelfHosted:
		ep, err := ResolveEndpoint(cfg)
		if err != nil {
			return nil, err
		}
		return NewRemoteProvider(RemoteConfig{
			Label:       ep.Label,
			BaseURL:     ep.BaseURL,
			APIKey:      ep.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			MaxRetries:  cfg.MaxRetries,
			RateLimit:   cfg.RateLimit,
			HTTPClient:  &http.Client{Timeout: cfg.Timeout},
			Logger:      logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownKind, cfg.Kind, kindList())
	}
}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range Kinds() {
		if k == valid {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q (valid: %s)", ErrUnknownKind, s, kindList())
}

func kindList() string {
	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func withDefaults(cfg ProviderConfig) ProviderConfig {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Variant == "" {
		cfg.Variant = VariantDense
	}
	return cfg
}
