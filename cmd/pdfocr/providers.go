package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pdfocr/internal/providers"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect configured OCR providers",
}

// providerStatus is the result of a provider check.
type providerStatus struct {
	Name    string `json:"name" yaml:"name"`
	Kind    string `json:"kind" yaml:"kind"`
	Model   string `json:"model" yaml:"model"`
	Backend string `json:"backend" yaml:"backend"`
	Healthy bool   `json:"healthy" yaml:"healthy"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

var checkProvider string

var providersCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Construct a provider and check that its backend answers",
	Long: `Construct the selected provider and run a single health check.

Remote providers list the backend's models. The local provider is healthy
once its runtime has loaded the model.

Examples:
  pdfocr providers check                        # Default provider
  pdfocr providers check --provider self-hosted`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		mgr, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfg := mgr.Get()

		name, err := selectProvider(cfg, checkProvider)
		if err != nil {
			return err
		}
		p := cfg.Providers[name]
		status := providerStatus{Name: name, Kind: p.Kind, Model: p.Model}

		provider, err := buildProvider(ctx, cfg, name, 0)
		if err != nil {
			status.Error = err.Error()
			if perr := printer.Print(status); perr != nil {
				return perr
			}
			return err
		}
		defer closeProvider(provider)
		status.Backend = provider.Name()

		if hc, ok := provider.(providers.HealthChecker); ok {
			if err := hc.HealthCheck(ctx); err != nil {
				status.Error = err.Error()
			}
		}
		status.Healthy = status.Error == ""

		if err := printer.Print(status); err != nil {
			return err
		}
		if !status.Healthy {
			return fmt.Errorf("provider %s is unhealthy", name)
		}
		return nil
	},
}

func init() {
	providersCheckCmd.Flags().StringVar(&checkProvider, "provider", "", "provider name or kind (default: config default_provider)")
	providersCmd.AddCommand(providersCheckCmd)
	rootCmd.AddCommand(providersCmd)
}
