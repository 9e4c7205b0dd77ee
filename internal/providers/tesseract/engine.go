//go:build tesseract

package tesseract

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/jackzampolin/pdfocr/internal/providers"
)

func init() {
	providers.RegisterRuntime(&Runtime{clientFactory: gosseract.NewClient})
}

// Runtime is the gosseract-backed runtime.
type Runtime struct {
	clientFactory func() *gosseract.Client
}

func (r *Runtime) Name() string { return RuntimeName }

// FlashAttentionAvailable is always false; Tesseract has no attention layer.
func (r *Runtime) FlashAttentionAvailable() bool { return false }

// LoadModel opens a client for the languages named by name.
func (r *Runtime) LoadModel(ctx context.Context, name string, opts providers.LoadOptions) (providers.Model, error) {
	c := r.clientFactory()
	langs := languages(name)
	if err := c.SetLanguage(langs...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set languages %s: %w", strings.Join(langs, "+"), err)
	}
	if opts.Variant == providers.VariantMoE {
		// Sparse text mode finds scattered blocks such as table cells.
		if err := c.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
			c.Close()
			return nil, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	return &model{client: c}, nil
}

func (r *Runtime) LoadProcessor(ctx context.Context, name string) (providers.Processor, error) {
	return processor{}, nil
}

type model struct {
	client *gosseract.Client
}

// Generate recognizes the first referenced image and appends its text to the prompt.
func (m *model) Generate(ctx context.Context, in *providers.Inputs, opts providers.GenerateOptions) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(in.Images) == 0 {
		return nil, fmt.Errorf("no image in inputs")
	}
	if err := m.client.SetImage(in.Images[0]); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	text, err := m.client.Text()
	if err != nil {
		return nil, fmt.Errorf("recognize text: %w", err)
	}

	out := make([]int, 0, len(in.InputIDs)+len(text))
	out = append(out, in.InputIDs...)
	out = append(out, tokenize(strings.TrimSpace(text), opts.MaxNewTokens)...)
	return out, nil
}

func (m *model) Close() error {
	return m.client.Close()
}
