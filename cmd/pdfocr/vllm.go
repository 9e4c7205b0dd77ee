package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pdfocr/internal/config"
	"github.com/jackzampolin/pdfocr/internal/home"
	"github.com/jackzampolin/pdfocr/internal/providers"
	"github.com/jackzampolin/pdfocr/internal/vllm"
)

var vllmCmd = &cobra.Command{
	Use:   "vllm",
	Short: "Manage the vLLM container",
	Long: `Manage a local vLLM container serving the self-hosted provider's model.

The server exposes an OpenAI-compatible API on 127.0.0.1:<vllm.port>. Model
weights are cached in ~/.pdfocr/models/ and survive container removal.

Examples:
  pdfocr vllm start   # Pull, create and start the container
  pdfocr vllm wait    # Block until the model is loaded
  pdfocr vllm status  # Check container status
  pdfocr vllm logs    # View container logs
  pdfocr vllm stop    # Stop the container (cache preserved)`,
}

var vllmStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the vLLM container",
	Long: `Start the vLLM container.

If the container doesn't exist, it will be created and started.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.

The first start downloads the model and can take several minutes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Starting vLLM...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start vLLM: %w", err)
		}

		fmt.Printf("vLLM is serving at %s\n", mgr.BaseURL())
		return nil
	},
}

var vllmStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the vLLM container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping vLLM...")
		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop vLLM: %w", err)
		}

		fmt.Println("vLLM stopped")
		return nil
	},
}

var vllmStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vLLM container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case vllm.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.BaseURL())

			if err := mgr.WaitReady(ctx, time.Second); err != nil {
				fmt.Printf("Health: not ready (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case vllm.StatusStopped:
			fmt.Printf("Status: %s (use 'pdfocr vllm start' to start)\n", status)
		case vllm.StatusNotFound:
			fmt.Printf("Status: %s (use 'pdfocr vllm start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var vllmLogsTail string

var vllmLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show vLLM container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(ctx, vllmLogsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Print(logs)
		return nil
	},
}

var vllmRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the vLLM container",
	Long: `Remove the vLLM container.

This stops and removes the container. Cached model weights in
~/.pdfocr/models/ are NOT deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing vLLM container...")
		if err := mgr.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("vLLM container removed (model cache preserved)")
		return nil
	},
}

var vllmWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for vLLM to be ready",
	Long: `Wait until the vLLM server answers its health endpoint.

Useful in scripts before 'pdfocr run --provider self-hosted'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := getVLLMManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for vLLM (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(ctx, timeout); err != nil {
			return fmt.Errorf("vLLM not ready: %w", err)
		}

		fmt.Println("vLLM is ready")
		return nil
	},
}

func init() {
	vllmCmd.AddCommand(vllmStartCmd)
	vllmCmd.AddCommand(vllmStopCmd)
	vllmCmd.AddCommand(vllmStatusCmd)
	vllmCmd.AddCommand(vllmLogsCmd)
	vllmCmd.AddCommand(vllmRemoveCmd)
	vllmCmd.AddCommand(vllmWaitCmd)

	vllmLogsCmd.Flags().StringVar(&vllmLogsTail, "tail", "100", "Number of lines to show from the end")
	vllmWaitCmd.Flags().Duration("timeout", vllm.DefaultReadyTimeout, "Timeout waiting for vLLM")

	rootCmd.AddCommand(vllmCmd)
}

// getVLLMManager creates a DockerManager serving the self-hosted provider's model.
func getVLLMManager() (*vllm.DockerManager, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	mgr, err := loadConfig(h)
	if err != nil {
		return nil, err
	}
	return newVLLMManager(h, mgr.Get())
}

func newVLLMManager(h *home.Dir, cfg *config.Config) (*vllm.DockerManager, error) {
	return vllm.NewDockerManager(vllmDockerConfig(h, cfg))
}

// vllmDockerConfig serves the first self-hosted provider's model.
func vllmDockerConfig(h *home.Dir, cfg *config.Config) vllm.DockerConfig {
	var model string
	if name, ok := cfg.ProviderByKind(providers.KindSelfHosted); ok {
		model = cfg.Providers[name].Model
	}
	return vllm.DockerConfig{
		ContainerName: cfg.VLLM.ContainerName,
		Image:         cfg.VLLM.Image,
		Model:         model,
		CachePath:     h.ModelCacheDir(),
		HostPort:      cfg.VLLM.Port,
		GPUs:          cfg.VLLM.GPUs,
		MaxModelLen:   cfg.VLLM.MaxModelLen,
		HFTokenEnv:    cfg.VLLM.HFTokenEnv,
	}
}
