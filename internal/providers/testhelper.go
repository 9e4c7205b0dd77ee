package providers

import (
	"os"
	"strings"
)

// TestConfig holds live backend settings loaded from environment variables.
// Tests that need a real backend skip when the relevant value is empty.
type TestConfig struct {
	CloudAPIKey     string
	CloudRegion     string
	CloudModel      string
	SelfHostedURL   string
	SelfHostedModel string
}

// LoadTestConfig reads live backend settings from the environment.
func LoadTestConfig() TestConfig {
	return TestConfig{
		CloudAPIKey:     os.Getenv(DefaultAPIKeyEnv),
		CloudRegion:     envOr("PDFOCR_TEST_REGION", string(RegionSingapore)),
		CloudModel:      envOr("PDFOCR_TEST_CLOUD_MODEL", "qwen3-vl-30b-a3b"),
		SelfHostedURL:   os.Getenv("PDFOCR_TEST_SELFHOSTED_URL"),
		SelfHostedModel: envOr("PDFOCR_TEST_SELFHOSTED_MODEL", "Qwen/Qwen3-VL-30B-A3B-Instruct"),
	}
}

// HasCloud returns true if a cloud credential is configured.
func (c TestConfig) HasCloud() bool {
	return c.CloudAPIKey != ""
}

// HasSelfHosted returns true if a self-hosted endpoint is configured.
func (c TestConfig) HasSelfHosted() bool {
	return c.SelfHostedURL != ""
}

// CloudConfig returns a cloud ProviderConfig from test settings.
func (c TestConfig) CloudConfig() ProviderConfig {
	return ProviderConfig{
		Kind:        KindCloud,
		Model:       c.CloudModel,
		APIKey:      c.CloudAPIKey,
		Region:      c.CloudRegion,
		Temperature: DefaultTemperature,
	}
}

// SelfHostedConfig returns a self-hosted ProviderConfig from test settings.
func (c TestConfig) SelfHostedConfig() ProviderConfig {
	return ProviderConfig{
		Kind:        KindSelfHosted,
		Model:       c.SelfHostedModel,
		BaseURL:     c.SelfHostedURL,
		Temperature: DefaultTemperature,
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
