// Package workflow drives documents through rasterization, persistence and OCR.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/pdfocr/internal/providers"
	"github.com/jackzampolin/pdfocr/internal/render"
	"github.com/jackzampolin/pdfocr/internal/store"
)

// Config configures a Workflow.
type Config struct {
	InputRoot         string
	OutputRoot        string
	Extension         string // Document extension, default ".pdf"
	TargetLongestSide int    // Pixels, default 1800
	Instruction       string
	ImageFormat       store.Format
	SkipExisting      bool // Skip pages whose text entry already exists
	Workers           int  // Documents processed concurrently, default 1
	NormalizeText     bool
	Logger            *slog.Logger
}

// Workflow runs batches against one provider.
type Workflow struct {
	cfg        Config
	rasterizer render.Rasterizer
	provider   providers.OCRProvider
	store      *store.Store
	logger     *slog.Logger

	mu          sync.RWMutex
	instruction string
}

// New creates a workflow. The provider must already be constructed.
func New(cfg Config, rasterizer render.Rasterizer, provider providers.OCRProvider) (*Workflow, error) {
	if cfg.InputRoot == "" {
		return nil, errors.New("input root is required")
	}
	if rasterizer == nil {
		return nil, errors.New("rasterizer is required")
	}
	if provider == nil {
		return nil, errors.New("provider is required")
	}
	cfg.Extension = normalizeExt(cfg.Extension)
	if cfg.TargetLongestSide <= 0 {
		cfg.TargetLongestSide = render.DefaultTargetLongestSide
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	st, err := store.New(store.Config{
		Root:          cfg.OutputRoot,
		Format:        cfg.ImageFormat,
		NormalizeText: cfg.NormalizeText,
	})
	if err != nil {
		return nil, err
	}

	return &Workflow{
		cfg:         cfg,
		rasterizer:  rasterizer,
		provider:    provider,
		store:       st,
		logger:      cfg.Logger.With("provider", provider.Name()),
		instruction: cfg.Instruction,
	}, nil
}

// Instruction returns the instruction sent with each page.
func (w *Workflow) Instruction() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.instruction
}

// UpdateInstruction replaces the instruction for pages not yet started.
func (w *Workflow) UpdateInstruction(s string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s != w.instruction {
		w.instruction = s
		w.logger.Info("instruction updated", "length", len(s))
	}
}

// Run processes every document under the input root.
// Document and page failures are recorded in the summary, not returned.
// Zero documents is a warning, not an error.
func (w *Workflow) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		RunID:      uuid.New().String(),
		Provider:   w.provider.Name(),
		InputRoot:  w.cfg.InputRoot,
		OutputRoot: w.store.Root(),
		StartedAt:  start.UTC(),
	}
	log := w.logger.With("run_id", summary.RunID)

	docs, err := Discover(w.cfg.InputRoot, w.cfg.Extension)
	if err != nil {
		return nil, err
	}
	summary.DocumentsFound = len(docs)

	if len(docs) == 0 {
		log.Warn("no documents found", "input", w.cfg.InputRoot, "extension", w.cfg.Extension)
		summary.Elapsed = time.Since(start).String()
		return summary, nil
	}

	log.Info("starting run", "documents", len(docs), "workers", w.cfg.Workers, "output", w.store.Root())

	results := make([]DocumentResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			results[i] = w.processDocument(gctx, log, doc)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		summary.add(r)
	}
	summary.Elapsed = time.Since(start).String()

	log.Info("run complete",
		"documents", summary.DocumentsFound,
		"documents_failed", summary.DocumentsFailed,
		"pages_ok", summary.PagesOK,
		"pages_failed", summary.PagesFailed,
		"pages_skipped", summary.PagesSkipped,
		"elapsed", summary.Elapsed)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// ProcessDocument rasterizes one document, persists its pages and runs OCR
// on each page in order.
func (w *Workflow) ProcessDocument(ctx context.Context, doc Document) DocumentResult {
	return w.processDocument(ctx, w.logger, doc)
}

func (w *Workflow) processDocument(ctx context.Context, log *slog.Logger, doc Document) DocumentResult {
	log = log.With("document", doc.RelPath)
	result := DocumentResult{Path: doc.RelPath}

	fail := func(err error) DocumentResult {
		log.Error("document failed", "error", err)
		result.err = err
		result.Error = err.Error()
		return result
	}

	geoms, err := w.rasterizer.PageGeometry(ctx, doc.Path)
	if err != nil {
		return fail(err)
	}
	if len(geoms) == 0 {
		return fail(&render.DocumentReadError{Path: doc.Path, Err: errors.New("document has no pages")})
	}

	dpi, err := render.ResolveDPI(geoms[0], w.cfg.TargetLongestSide)
	if err != nil {
		return fail(fmt.Errorf("%s: %w", doc.RelPath, err))
	}
	result.DPI = dpi
	log.Debug("resolved dpi", "dpi", dpi, "pages", len(geoms), "width", geoms[0].Width, "height", geoms[0].Height)

	pages, err := w.rasterizer.Rasterize(ctx, doc.Path, dpi)
	if err != nil {
		return fail(err)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })

	images := make([]image.Image, len(pages))
	for i, p := range pages {
		images[i] = p.Image
	}
	paths, err := w.store.Persist(doc.RelPath, images)
	if err != nil {
		return fail(err)
	}

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			log.Warn("document interrupted", "pages_done", i, "pages", len(paths))
			result.err = err
			result.Error = err.Error()
			return result
		}
		result.Pages = append(result.Pages, w.processPage(ctx, log, i, path))
	}

	log.Info("document complete", "dpi", dpi, "pages", len(paths))
	return result
}

func (w *Workflow) processPage(ctx context.Context, log *slog.Logger, index int, imagePath string) PageResult {
	page := PageResult{Index: index, Image: imagePath}

	if w.cfg.SkipExisting && store.HasText(imagePath) {
		log.Debug("page already has text, skipping", "page", index)
		page.Status = PageSkipped
		return page
	}

	res, err := w.provider.ProcessImage(ctx, imagePath, w.Instruction())
	if err == nil {
		err = w.store.WriteText(imagePath, res.Text)
	}
	if err != nil && ctx.Err() != nil {
		// Interrupted mid-call: keep whatever text an earlier run left.
		log.Warn("page interrupted", "page", index, "error", err)
		page.Status = PageFailed
		page.Error = err.Error()
		return page
	}
	if err != nil {
		log.Error("page failed", "page", index, "error", err)
		if rmErr := store.RemoveText(imagePath); rmErr != nil {
			log.Warn("failed to remove stale text", "page", index, "error", rmErr)
		}
		page.Status = PageFailed
		page.Error = err.Error()
		return page
	}

	log.Debug("page complete", "page", index, "chars", len(res.Text), "elapsed", res.ExecutionTime)
	page.Status = PageOK
	return page
}
