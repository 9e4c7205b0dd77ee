package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pdfocr/internal/config"
	"github.com/jackzampolin/pdfocr/internal/output"
	"github.com/jackzampolin/pdfocr/internal/providers"
	_ "github.com/jackzampolin/pdfocr/internal/providers/tesseract"
	"github.com/jackzampolin/pdfocr/internal/render"
	"github.com/jackzampolin/pdfocr/internal/store"
	"github.com/jackzampolin/pdfocr/internal/workflow"
)

type runOptions struct {
	provider     string
	input        string
	output       string
	targetSide   int
	model        string
	promptFile   string
	workers      int
	skipExisting bool
	imageFormat  string
	watch        bool
	waitReady    time.Duration
}

func newRunCmd(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Render and OCR every PDF under the input directory",
		Long: `Render every PDF under the input directory to page images and extract
the text of each page with the selected provider.

For an input file <input>/<rel>/<name>.pdf the results land in
<output>/<rel>/<name>/image<i>.png and image<i>.txt.

Failed pages and documents are logged and reported in the run summary; they
do not stop the run. The summary is printed and saved under ~/.pdfocr/runs/.

Examples:
  pdfocr run                                  # Default provider and directories
  pdfocr run --provider cloud --workers 4     # DashScope, four documents at a time
  pdfocr run --provider self-hosted --wait-ready 10m
  pdfocr run --watch                          # Keep processing new PDFs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.provider, "provider", "", "provider name or kind: local, cloud or self-hosted (default: config default_provider)")
	f.StringVar(&opts.input, "input", "", "input directory of PDFs")
	f.StringVar(&opts.output, "output-dir", "", "output directory for images and text")
	f.IntVar(&opts.targetSide, "target-side", 0, "target pixel length of each page's longest side")
	f.StringVar(&opts.model, "model", "", "override the provider's model")
	f.StringVar(&opts.promptFile, "prompt-file", "", "read the OCR instruction from a file")
	f.IntVar(&opts.workers, "workers", 0, "documents processed concurrently")
	f.BoolVar(&opts.skipExisting, "skip-existing", false, "skip pages whose text file already exists")
	f.StringVar(&opts.imageFormat, "image-format", "", "page image format: png or jpeg")
	f.BoolVar(&opts.watch, "watch", false, "keep watching the input directory after the batch")
	f.DurationVar(&opts.waitReady, "wait-ready", 0, "wait up to this long for a remote backend before starting")
	return cmd
}

func init() {
	rootCmd.AddCommand(newRunCmd(&runOptions{}))
}

// apply copies explicitly set flags over cfg and returns the provider name to use.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) (string, error) {
	name, err := selectProvider(cfg, o.provider)
	if err != nil {
		return "", err
	}

	f := cmd.Flags()
	if f.Changed("model") {
		p := cfg.Providers[name]
		p.Model = o.model
		cfg.Providers[name] = p
	}
	if f.Changed("input") {
		cfg.Workflow.InputDir = o.input
	}
	if f.Changed("output-dir") {
		cfg.Workflow.OutputDir = o.output
	}
	if f.Changed("target-side") {
		cfg.Workflow.TargetLongestSide = o.targetSide
	}
	if f.Changed("workers") {
		cfg.Workflow.Workers = o.workers
	}
	if f.Changed("skip-existing") {
		cfg.Workflow.SkipExisting = o.skipExisting
	}
	if f.Changed("image-format") {
		cfg.Workflow.ImageFormat = o.imageFormat
	}
	if o.promptFile != "" {
		data, err := os.ReadFile(o.promptFile)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		cfg.Workflow.Instruction = strings.TrimSpace(string(data))
	}
	if cfg.Workflow.Instruction == "" {
		return "", errors.New("instruction is empty")
	}
	return name, nil
}

// selectProvider resolves a --provider value against configured names, then kinds.
func selectProvider(cfg *config.Config, flag string) (string, error) {
	if flag == "" {
		flag = cfg.DefaultProvider
	}
	if _, ok := cfg.GetProvider(flag); ok {
		return flag, nil
	}
	kind, err := providers.ParseKind(flag)
	if err != nil {
		return "", err
	}
	name, ok := cfg.ProviderByKind(kind)
	if !ok {
		return "", fmt.Errorf("no provider configured with kind %q", kind)
	}
	return name, nil
}

// buildProvider constructs the named provider and optionally waits for it.
func buildProvider(ctx context.Context, cfg *config.Config, name string, waitReady time.Duration) (providers.OCRProvider, error) {
	pcfg, err := cfg.ToProviderConfig(name)
	if err != nil {
		return nil, err
	}
	provider, err := providers.New(ctx, pcfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", name, err)
	}

	if waitReady > 0 {
		if hc, ok := provider.(providers.HealthChecker); ok {
			logger.Info("waiting for provider", "provider", provider.Name(), "timeout", waitReady)
			if err := providers.WaitReady(ctx, hc, providers.ReadyOptions{Timeout: waitReady}); err != nil {
				closeProvider(provider)
				return nil, fmt.Errorf("provider %s not ready: %w", provider.Name(), err)
			}
		}
	}
	return provider, nil
}

func closeProvider(p providers.OCRProvider) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close provider", "provider", p.Name(), "error", err)
		}
	}
}

func runWorkflow(cmd *cobra.Command, opts *runOptions) error {
	ctx := cmd.Context()

	h, err := getHome()
	if err != nil {
		return err
	}
	mgr, err := loadConfig(h)
	if err != nil {
		return err
	}
	cfg := mgr.Get().Clone()

	name, err := opts.apply(cmd, cfg)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	format, err := store.ParseFormat(cfg.Workflow.ImageFormat)
	if err != nil {
		return err
	}

	rasterizer := render.NewPDFRasterizer(render.PDFConfig{
		Binary: cfg.Workflow.Pdftoppm,
		Logger: logger,
	})
	if err := rasterizer.Available(); err != nil {
		return err
	}

	provider, err := buildProvider(ctx, cfg, name, opts.waitReady)
	if err != nil {
		return err
	}
	defer closeProvider(provider)

	wf, err := workflow.New(workflow.Config{
		InputRoot:         cfg.Workflow.InputDir,
		OutputRoot:        cfg.Workflow.OutputDir,
		Extension:         cfg.Workflow.Extension,
		TargetLongestSide: cfg.Workflow.TargetLongestSide,
		Instruction:       cfg.Workflow.Instruction,
		ImageFormat:       format,
		SkipExisting:      cfg.Workflow.SkipExisting,
		Workers:           cfg.Workflow.Workers,
		NormalizeText:     cfg.Workflow.NormalizeText,
		Logger:            logger,
	}, rasterizer, provider)
	if err != nil {
		return err
	}

	summary, err := wf.Run(ctx)
	if summary != nil {
		saveSummary(h.RunSummaryPath(summary.RunID, printer.Format().Ext()), summary)
		if perr := printer.Print(summary); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}

	if !opts.watch {
		return nil
	}

	// Instruction edits in the config file apply to pages not yet started.
	if opts.promptFile == "" {
		mgr.OnChange(func(c *config.Config) {
			wf.UpdateInstruction(c.Workflow.Instruction)
		})
		mgr.WatchConfig()
	}

	return wf.Watch(ctx, workflow.WatchOptions{
		OnResult: func(res workflow.DocumentResult) {
			if err := printer.Print(res); err != nil {
				logger.Warn("failed to print result", "error", err)
			}
		},
	})
}

func saveSummary(path string, summary *workflow.Summary) {
	if err := output.WriteFile(path, summary); err != nil {
		logger.Warn("failed to save run summary", "path", path, "error", err)
		return
	}
	logger.Debug("saved run summary", "path", path)
}
