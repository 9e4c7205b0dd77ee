//go:build !tesseract

package tesseract

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackzampolin/pdfocr/internal/providers"
)

// ErrNotEnabled is returned when the runtime was not compiled in.
// Rebuild with -tags tesseract to enable it.
var ErrNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags tesseract")

func init() {
	providers.RegisterRuntime(&Runtime{})
}

// Runtime is a stub that fails to load.
type Runtime struct{}

func (r *Runtime) Name() string { return RuntimeName }

func (r *Runtime) FlashAttentionAvailable() bool { return false }

func (r *Runtime) LoadModel(ctx context.Context, name string, opts providers.LoadOptions) (providers.Model, error) {
	return nil, fmt.Errorf("%w: %w", providers.ErrRuntimeUnavailable, ErrNotEnabled)
}

func (r *Runtime) LoadProcessor(ctx context.Context, name string) (providers.Processor, error) {
	return processor{}, nil
}
