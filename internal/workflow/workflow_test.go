package workflow

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jackzampolin/pdfocr/internal/providers"
	"github.com/jackzampolin/pdfocr/internal/render"
	"github.com/jackzampolin/pdfocr/internal/store"
)

// fakeRasterizer serves page geometry by document base name.
type fakeRasterizer struct {
	mu    sync.Mutex
	docs  map[string][]render.PageGeometry
	fail  map[string]error
	dpis  map[string]int
	calls int
}

func newFakeRasterizer() *fakeRasterizer {
	return &fakeRasterizer{
		docs: map[string][]render.PageGeometry{},
		fail: map[string]error{},
		dpis: map[string]int{},
	}
}

func (f *fakeRasterizer) PageGeometry(ctx context.Context, path string) ([]render.PageGeometry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(path)
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	geoms, ok := f.docs[name]
	if !ok {
		return nil, &render.DocumentReadError{Path: path, Err: errors.New("unknown document")}
	}
	return geoms, nil
}

func (f *fakeRasterizer) Rasterize(ctx context.Context, path string, dpi int) ([]render.RenderedPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	name := filepath.Base(path)
	f.dpis[name] = dpi

	geoms := f.docs[name]
	pages := make([]render.RenderedPage, len(geoms))
	// Return pages out of order; the workflow must restore document order.
	for i := range geoms {
		idx := len(geoms) - 1 - i
		w := int(geoms[idx].Width * render.Scale(dpi))
		h := int(geoms[idx].Height * render.Scale(dpi))
		img := image.NewRGBA(image.Rect(0, 0, w/20+1, h/20+1))
		img.Set(0, 0, color.RGBA{R: uint8(idx), A: 255})
		pages[i] = render.RenderedPage{Index: idx, Image: img}
	}
	return pages, nil
}

func (f *fakeRasterizer) dpi(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dpis[name]
}

func touch(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("%PDF-1.7"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected %s to exist: %v", path, err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected %s to be absent, stat err = %v", path, err)
	}
}

func newTestWorkflow(t *testing.T, cfg Config, rz render.Rasterizer, p providers.OCRProvider) *Workflow {
	t.Helper()
	if cfg.Instruction == "" {
		cfg.Instruction = "Extract all text."
	}
	w, err := New(cfg, rz, p)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func portrait() render.PageGeometry  { return render.PageGeometry{Width: 612, Height: 792} }
func landscape() render.PageGeometry { return render.PageGeometry{Width: 792, Height: 612} }

func TestRunEndToEnd(t *testing.T) {
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "out")
	touch(t, in, "a/doc1.pdf")
	touch(t, in, "b/doc2.pdf")

	rz := newFakeRasterizer()
	rz.docs["doc1.pdf"] = []render.PageGeometry{portrait()}
	rz.docs["doc2.pdf"] = []render.PageGeometry{landscape(), landscape()}

	p := providers.NewMockOCRProvider()
	w := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out, TargetLongestSide: 1800}, rz, p)

	summary, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := rz.dpi("doc1.pdf"); got != 164 {
		t.Errorf("doc1 dpi = %d, want 164", got)
	}
	if got := rz.dpi("doc2.pdf"); got != 164 {
		t.Errorf("doc2 dpi = %d, want 164", got)
	}

	for _, rel := range []string{
		"a/doc1/image0.png", "a/doc1/image0.txt",
		"b/doc2/image0.png", "b/doc2/image0.txt",
		"b/doc2/image1.png", "b/doc2/image1.txt",
	} {
		assertExists(t, filepath.Join(out, filepath.FromSlash(rel)))
	}
	assertMissing(t, filepath.Join(out, "b", "doc2", "image2.png"))

	text, err := os.ReadFile(filepath.Join(out, "b", "doc2", "image1.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != "mock ocr text image1.png" {
		t.Errorf("image1.txt = %q", text)
	}

	if summary.DocumentsFound != 2 || summary.PagesOK != 3 || summary.PagesFailed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.RunID == "" {
		t.Error("missing run id")
	}
	if summary.Documents[0].Path != "a/doc1.pdf" || summary.Documents[0].DPI != 164 {
		t.Errorf("first document = %+v", summary.Documents[0])
	}
}

func TestRunPagesInDocumentOrder(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	touch(t, in, "doc.pdf")

	rz := newFakeRasterizer()
	rz.docs["doc.pdf"] = []render.PageGeometry{portrait(), portrait(), portrait(), portrait()}

	p := providers.NewMockOCRProvider()
	w := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out}, rz, p)
	if _, err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	calls := p.Calls()
	if len(calls) != 4 {
		t.Fatalf("calls = %d, want 4", len(calls))
	}
	for i, c := range calls {
		want := filepath.Join(out, "doc", "image"+string(rune('0'+i))+".png")
		if c != want {
			t.Errorf("call %d = %s, want %s", i, c, want)
		}
	}
}

func TestRunZeroDocuments(t *testing.T) {
	in := t.TempDir()
	touch(t, in, "notes/readme.txt")
	out := filepath.Join(t.TempDir(), "out")

	p := providers.NewMockOCRProvider()
	w := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out}, newFakeRasterizer(), p)

	summary, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.DocumentsFound != 0 {
		t.Errorf("DocumentsFound = %d", summary.DocumentsFound)
	}
	assertMissing(t, out)
	if p.RequestCount() != 0 {
		t.Errorf("provider called %d times", p.RequestCount())
	}
}

func TestRunMissingInputRoot(t *testing.T) {
	w := newTestWorkflow(t, Config{InputRoot: filepath.Join(t.TempDir(), "nope"), OutputRoot: t.TempDir()},
		newFakeRasterizer(), providers.NewMockOCRProvider())
	if _, err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing input root")
	}
}

func TestRunPageFailure(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	touch(t, in, "doc.pdf")

	rz := newFakeRasterizer()
	rz.docs["doc.pdf"] = []render.PageGeometry{portrait(), portrait(), portrait()}

	p := providers.NewMockOCRProvider()
	p.FailImages["image1.png"] = true
	w := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out}, rz, p)

	summary, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	dir := filepath.Join(out, "doc")
	assertExists(t, filepath.Join(dir, "image0.txt"))
	assertMissing(t, filepath.Join(dir, "image1.txt"))
	assertExists(t, filepath.Join(dir, "image1.png"))
	assertExists(t, filepath.Join(dir, "image2.txt"))

	if summary.PagesFailed != 1 || summary.PagesOK != 2 {
		t.Errorf("summary pages ok=%d failed=%d", summary.PagesOK, summary.PagesFailed)
	}
	page := summary.Documents[0].Pages[1]
	if page.Status != PageFailed || !strings.Contains(page.Error, "mock transport error") {
		t.Errorf("page 1 = %+v", page)
	}
}

func TestRunRemovesStaleTextOnFailure(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	touch(t, in, "doc.pdf")

	rz := newFakeRasterizer()
	rz.docs["doc.pdf"] = []render.PageGeometry{portrait()}

	ok := providers.NewMockOCRProvider()
	if _, err := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out}, rz, ok).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	txt := filepath.Join(out, "doc", "image0.txt")
	assertExists(t, txt)

	failing := providers.NewMockOCRProvider()
	failing.FailAll = true
	if _, err := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out}, rz, failing).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertMissing(t, txt)
}

// cancellingProvider cancels the run from inside its first call.
type cancellingProvider struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingProvider) Name() string { return "cancelling" }

func (c *cancellingProvider) ProcessImage(ctx context.Context, imagePath, instruction string) (*providers.OCRResult, error) {
	c.calls++
	c.cancel()
	return nil, &providers.OCRError{Provider: "cancelling", Image: imagePath, Cause: ctx.Err()}
}

func TestRunCancelledKeepsEarlierText(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	touch(t, in, "doc.pdf")

	rz := newFakeRasterizer()
	rz.docs["doc.pdf"] = []render.PageGeometry{portrait(), portrait(), portrait()}

	if _, err := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out}, rz, providers.NewMockOCRProvider()).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &cancellingProvider{cancel: cancel}

	summary, err := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out}, rz, p).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}
	for i := 0; i < 3; i++ {
		assertExists(t, filepath.Join(out, "doc", fmt.Sprintf("image%d.txt", i)))
	}

	if summary == nil || len(summary.Documents) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	doc := summary.Documents[0]
	if !errors.Is(doc.Err(), context.Canceled) {
		t.Errorf("document err = %v, want context.Canceled", doc.Err())
	}
	if len(doc.Pages) != 1 || doc.Pages[0].Status != PageFailed {
		t.Errorf("pages = %+v, want one interrupted page", doc.Pages)
	}
}

func TestRunDocumentFailuresAreIsolated(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	touch(t, in, "bad.pdf")
	touch(t, in, "empty.pdf")
	touch(t, in, "good.pdf")
	touch(t, in, "zero.pdf")

	rz := newFakeRasterizer()
	rz.fail["bad.pdf"] = &render.DocumentReadError{Path: "bad.pdf", Err: errors.New("corrupt xref")}
	rz.docs["empty.pdf"] = nil
	rz.docs["good.pdf"] = []render.PageGeometry{portrait()}
	rz.docs["zero.pdf"] = []render.PageGeometry{{Width: 0, Height: 0}}

	w := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out}, rz, providers.NewMockOCRProvider())
	summary, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.DocumentsFailed != 3 {
		t.Errorf("DocumentsFailed = %d, want 3", summary.DocumentsFailed)
	}
	byPath := map[string]DocumentResult{}
	for _, d := range summary.Documents {
		byPath[d.Path] = d
	}

	var dre *render.DocumentReadError
	if !errors.As(byPath["bad.pdf"].Err(), &dre) {
		t.Errorf("bad.pdf err = %v, want DocumentReadError", byPath["bad.pdf"].Err())
	}
	if !errors.As(byPath["empty.pdf"].Err(), &dre) {
		t.Errorf("empty.pdf err = %v, want DocumentReadError", byPath["empty.pdf"].Err())
	}
	if !errors.Is(byPath["zero.pdf"].Err(), render.ErrInvalidGeometry) {
		t.Errorf("zero.pdf err = %v, want ErrInvalidGeometry", byPath["zero.pdf"].Err())
	}
	assertMissing(t, filepath.Join(out, "zero"))
	assertExists(t, filepath.Join(out, "good", "image0.txt"))
}

func TestRunSkipExisting(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	touch(t, in, "doc.pdf")

	rz := newFakeRasterizer()
	rz.docs["doc.pdf"] = []render.PageGeometry{portrait(), portrait()}

	first := providers.NewMockOCRProvider()
	first.FailImages["image1.png"] = true
	if _, err := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out}, rz, first).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	second := providers.NewMockOCRProvider()
	summary, err := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out, SkipExisting: true}, rz, second).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", second.RequestCount())
	}
	if summary.PagesSkipped != 1 || summary.PagesOK != 1 {
		t.Errorf("skipped=%d ok=%d", summary.PagesSkipped, summary.PagesOK)
	}
	assertExists(t, filepath.Join(out, "doc", "image1.txt"))
}

func TestRunWorkers(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	rz := newFakeRasterizer()
	for _, name := range []string{"d1", "d2", "d3", "d4", "d5"} {
		touch(t, in, name+".pdf")
		rz.docs[name+".pdf"] = []render.PageGeometry{portrait(), portrait()}
	}

	p := providers.NewMockOCRProvider()
	w := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out, Workers: 3}, rz, p)
	summary, err := w.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.PagesOK != 10 {
		t.Errorf("PagesOK = %d, want 10", summary.PagesOK)
	}
	for i, d := range summary.Documents {
		if want := "d" + string(rune('1'+i)) + ".pdf"; d.Path != want {
			t.Errorf("document %d = %s, want %s", i, d.Path, want)
		}
	}
}

func TestRunJPEGFormat(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	touch(t, in, "doc.pdf")
	rz := newFakeRasterizer()
	rz.docs["doc.pdf"] = []render.PageGeometry{portrait()}

	w := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out, ImageFormat: store.FormatJPEG}, rz, providers.NewMockOCRProvider())
	if _, err := w.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertExists(t, filepath.Join(out, "doc", "image0.jpg"))
	assertExists(t, filepath.Join(out, "doc", "image0.txt"))
}

func TestUpdateInstruction(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	touch(t, in, "doc.pdf")
	rz := newFakeRasterizer()
	rz.docs["doc.pdf"] = []render.PageGeometry{portrait()}

	p := &instructionRecorder{}
	w := newTestWorkflow(t, Config{InputRoot: in, OutputRoot: out, Instruction: "first"}, rz, p)
	w.UpdateInstruction("second")
	if w.Instruction() != "second" {
		t.Fatalf("Instruction() = %q", w.Instruction())
	}
	if _, err := w.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.got != "second" {
		t.Errorf("provider saw instruction %q, want %q", p.got, "second")
	}
}

type instructionRecorder struct {
	got string
}

func (r *instructionRecorder) Name() string { return "recorder" }

func (r *instructionRecorder) ProcessImage(ctx context.Context, imagePath, instruction string) (*providers.OCRResult, error) {
	r.got = instruction
	return &providers.OCRResult{Text: "ok"}, nil
}

func TestNewValidation(t *testing.T) {
	rz := newFakeRasterizer()
	p := providers.NewMockOCRProvider()

	if _, err := New(Config{OutputRoot: "out"}, rz, p); err == nil {
		t.Error("expected error without input root")
	}
	if _, err := New(Config{InputRoot: "in"}, rz, p); err == nil {
		t.Error("expected error without output root")
	}
	if _, err := New(Config{InputRoot: "in", OutputRoot: "out"}, nil, p); err == nil {
		t.Error("expected error without rasterizer")
	}
	if _, err := New(Config{InputRoot: "in", OutputRoot: "out"}, rz, nil); err == nil {
		t.Error("expected error without provider")
	}
}
