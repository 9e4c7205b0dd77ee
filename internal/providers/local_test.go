package providers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeRuntime struct {
	name     string
	flash    bool
	loadErr  error
	model    *fakeModel
	loadOpts LoadOptions
}

func (r *fakeRuntime) Name() string                  { return r.name }
func (r *fakeRuntime) FlashAttentionAvailable() bool { return r.flash }

func (r *fakeRuntime) LoadModel(ctx context.Context, name string, opts LoadOptions) (Model, error) {
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	r.loadOpts = opts
	return r.model, nil
}

func (r *fakeRuntime) LoadProcessor(ctx context.Context, name string) (Processor, error) {
	return fakeProcessor{}, nil
}

// fakeProcessor tokenizes the instruction as runes; images are not tokenized.
type fakeProcessor struct{}

func (fakeProcessor) ApplyChatTemplate(msgs []Message, addGenerationPrompt bool) (*Inputs, error) {
	in := &Inputs{}
	for _, m := range msgs {
		for _, p := range m.Parts {
			if p.Image != "" {
				in.Images = append(in.Images, p.Image)
			}
			for _, r := range p.Text {
				in.InputIDs = append(in.InputIDs, int(r))
			}
		}
	}
	return in, nil
}

func (fakeProcessor) Decode(ids []int, skipSpecialTokens bool) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		b.WriteRune(rune(id))
	}
	return b.String(), nil
}

type fakeModel struct {
	reply    string
	inFlight atomic.Int32
	overlap  atomic.Bool
	lastOpts GenerateOptions
	closed   bool
}

func (m *fakeModel) Generate(ctx context.Context, in *Inputs, opts GenerateOptions) ([]int, error) {
	if m.inFlight.Add(1) > 1 {
		m.overlap.Store(true)
	}
	defer m.inFlight.Add(-1)
	time.Sleep(5 * time.Millisecond)

	m.lastOpts = opts
	out := append([]int(nil), in.InputIDs...)
	for _, r := range m.reply {
		out = append(out, int(r))
	}
	return out, nil
}

func (m *fakeModel) Close() error {
	m.closed = true
	return nil
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("strips prompt prefix", func(t *testing.T) {
		rt := &fakeRuntime{name: "fake-strip", model: &fakeModel{reply: "page text"}}
		RegisterRuntime(rt)

		p, err := NewLocalProvider(ctx, ProviderConfig{Kind: KindLocal, Runtime: "fake-strip", Model: "m", MaxTokens: 64}, nil)
		if err != nil {
			t.Fatalf("NewLocalProvider() error = %v", err)
		}

		result, err := p.ProcessImage(ctx, "image0.png", "read this page")
		if err != nil {
			t.Fatalf("ProcessImage() error = %v", err)
		}
		if result.Text != "page text" {
			t.Errorf("Text = %q, want %q", result.Text, "page text")
		}
		if rt.model.lastOpts.MaxNewTokens != 64 {
			t.Errorf("MaxNewTokens = %d, want 64", rt.model.lastOpts.MaxNewTokens)
		}
		if err := p.Close(); err != nil || !rt.model.closed {
			t.Errorf("Close() = %v, closed = %v", err, rt.model.closed)
		}
	})

	t.Run("attention selection", func(t *testing.T) {
		flash := &fakeRuntime{name: "fake-flash", flash: true, model: &fakeModel{reply: "x"}}
		eager := &fakeRuntime{name: "fake-eager", model: &fakeModel{reply: "x"}}
		RegisterRuntime(flash)
		RegisterRuntime(eager)

		pf, err := NewLocalProvider(ctx, ProviderConfig{Runtime: "fake-flash", Variant: VariantMoE}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if pf.Attention() != AttentionFlash || flash.loadOpts.DType != DTypeBFloat16 {
			t.Errorf("flash runtime: attention=%q dtype=%q", pf.Attention(), flash.loadOpts.DType)
		}
		if flash.loadOpts.Variant != VariantMoE {
			t.Errorf("Variant = %q, want moe", flash.loadOpts.Variant)
		}

		pe, err := NewLocalProvider(ctx, ProviderConfig{Runtime: "fake-eager"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if pe.Attention() != AttentionEager || eager.loadOpts.DType != DTypeAuto {
			t.Errorf("eager runtime: attention=%q dtype=%q", pe.Attention(), eager.loadOpts.DType)
		}
		if eager.loadOpts.Variant != VariantDense {
			t.Errorf("default Variant = %q, want dense", eager.loadOpts.Variant)
		}
	})

	t.Run("load failure is fatal", func(t *testing.T) {
		RegisterRuntime(&fakeRuntime{name: "fake-broken", loadErr: errors.New("out of memory")})
		_, err := NewLocalProvider(ctx, ProviderConfig{Runtime: "fake-broken"}, nil)
		if err == nil || !strings.Contains(err.Error(), "out of memory") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("empty generation is an OCRError", func(t *testing.T) {
		RegisterRuntime(&fakeRuntime{name: "fake-empty", model: &fakeModel{reply: "  "}})
		p, err := NewLocalProvider(ctx, ProviderConfig{Runtime: "fake-empty"}, nil)
		if err != nil {
			t.Fatal(err)
		}
		_, err = p.ProcessImage(ctx, "image0.png", "read")
		if _, ok := IsOCRError(err); !ok {
			t.Fatalf("expected OCRError, got %T: %v", err, err)
		}
		if !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("err = %v, want ErrEmptyResponse", err)
		}
	})

	t.Run("generation is single-flight", func(t *testing.T) {
		model := &fakeModel{reply: "ok"}
		RegisterRuntime(&fakeRuntime{name: "fake-concurrent", model: model})
		p, err := NewLocalProvider(ctx, ProviderConfig{Runtime: "fake-concurrent"}, nil)
		if err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := p.ProcessImage(ctx, "image.png", "read"); err != nil {
					t.Errorf("ProcessImage() error = %v", err)
				}
			}()
		}
		wg.Wait()

		if model.overlap.Load() {
			t.Error("Generate was called concurrently")
		}
	})

	t.Run("runtime names are sorted", func(t *testing.T) {
		names := RuntimeNames()
		for i := 1; i < len(names); i++ {
			if names[i-1] > names[i] {
				t.Fatalf("RuntimeNames() not sorted: %v", names)
			}
		}
	})
}
