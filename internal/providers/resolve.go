package providers

import (
	"fmt"
	"os"
	"strings"
)

const (
	// DefaultAPIKeyEnv is consulted for the cloud credential when none is configured.
	DefaultAPIKeyEnv = "DASHSCOPE_API_KEY"

	// SelfHostedPlaceholderKey is sent to self-hosted servers that ignore auth.
	SelfHostedPlaceholderKey = "dummy"

	DefaultSelfHostedHost = "localhost"
	DefaultSelfHostedPort = 8000
)

// regionBaseURLs maps each cloud region to its OpenAI-compatible endpoint.
var regionBaseURLs = map[Region]string{
	RegionSingapore: "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
	RegionBeijing:   "https://dashscope.aliyuncs.com/compatible-mode/v1",
}

// Regions lists the valid cloud regions.
func Regions() []Region {
	return []Region{RegionSingapore, RegionBeijing}
}

// RegionBaseURL returns the endpoint for a region, matched case-insensitively.
func RegionBaseURL(region string) (string, error) {
	url, ok := regionBaseURLs[Region(strings.ToLower(strings.TrimSpace(region)))]
	if !ok {
		return "", fmt.Errorf("%w: %q (valid: %s, %s)", ErrInvalidRegion, region, RegionSingapore, RegionBeijing)
	}
	return url, nil
}

// Endpoint is a resolved remote backend.
type Endpoint struct {
	BaseURL string
	APIKey  string
	Label   string
}

// LookupEnvFunc matches os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

type endpointResolver func(cfg ProviderConfig, lookup LookupEnvFunc) (Endpoint, error)

var endpointResolvers = map[Kind]endpointResolver{
	KindCloud:      resolveCloud,
	KindSelfHosted: resolveSelfHosted,
}

// ResolveEndpoint computes the base URL and credential for a remote kind
// using the process environment.
func ResolveEndpoint(cfg ProviderConfig) (Endpoint, error) {
	return resolveEndpoint(cfg, os.LookupEnv)
}

func resolveEndpoint(cfg ProviderConfig, lookup LookupEnvFunc) (Endpoint, error) {
	resolve, ok := endpointResolvers[cfg.Kind]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %q has no remote endpoint", ErrUnknownKind, cfg.Kind)
	}
	return resolve(cfg, lookup)
}

func resolveCloud(cfg ProviderConfig, lookup LookupEnvFunc) (Endpoint, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		env := cfg.APIKeyEnv
		if env == "" {
			env = DefaultAPIKeyEnv
		}
		if v, ok := lookup(env); ok {
			key = strings.TrimSpace(v)
		}
		if key == "" {
			return Endpoint{}, fmt.Errorf("%w: set api_key or %s", ErrMissingCredential, env)
		}
	}

	region := cfg.Region
	if region == "" {
		region = string(RegionSingapore)
	}
	url, err := RegionBaseURL(region)
	if err != nil {
		return Endpoint{}, err
	}

	return Endpoint{
		BaseURL: url,
		APIKey:  key,
		Label:   fmt.Sprintf("cloud (%s)", strings.ToLower(region)),
	}, nil
}

func resolveSelfHosted(cfg ProviderConfig, _ LookupEnvFunc) (Endpoint, error) {
	url := strings.TrimRight(cfg.BaseURL, "/")
	if url == "" {
		host := cfg.Host
		if host == "" {
			host = DefaultSelfHostedHost
		}
		port := cfg.Port
		if port == 0 {
			port = DefaultSelfHostedPort
		}
		url = fmt.Sprintf("http://%s:%d/v1", host, port)
	}

	key := cfg.APIKey
	if key == "" {
		key = SelfHostedPlaceholderKey
	}

	return Endpoint{
		BaseURL: url,
		APIKey:  key,
		Label:   fmt.Sprintf("self-hosted (%s)", url),
	}, nil
}
