package providers

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const MockProviderName = "mock"

// MockOCRProvider is an OCRProvider for testing.
type MockOCRProvider struct {
	// Configurable behavior
	Latency      time.Duration
	ResponseText string
	FailImages   map[string]bool // Base names of images that fail
	FailAll      bool

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	calls        []string
}

// NewMockOCRProvider creates a new mock OCR provider.
func NewMockOCRProvider() *MockOCRProvider {
	return &MockOCRProvider{
		ResponseText: "mock ocr text",
		FailImages:   map[string]bool{},
	}
}

// Name returns the provider identifier.
func (p *MockOCRProvider) Name() string {
	return MockProviderName
}

// ProcessImage returns ResponseText followed by the image base name.
func (p *MockOCRProvider) ProcessImage(ctx context.Context, imagePath, instruction string) (*OCRResult, error) {
	start := time.Now()
	p.requestCount.Add(1)

	p.mu.Lock()
	p.calls = append(p.calls, imagePath)
	p.mu.Unlock()

	if p.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, &OCRError{Provider: MockProviderName, Image: imagePath, Cause: ctx.Err()}
		case <-time.After(p.Latency):
		}
	}

	base := filepath.Base(imagePath)
	if p.FailAll || p.FailImages[base] {
		return nil, &OCRError{Provider: MockProviderName, Image: imagePath, Cause: fmt.Errorf("mock transport error")}
	}

	return &OCRResult{
		Text:          fmt.Sprintf("%s %s", p.ResponseText, base),
		Metadata:      map[string]any{"instruction": instruction},
		ExecutionTime: time.Since(start),
	}, nil
}

// RequestCount returns the number of ProcessImage calls.
func (p *MockOCRProvider) RequestCount() int64 {
	return p.requestCount.Load()
}

// Calls returns image paths in call order.
func (p *MockOCRProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

var _ OCRProvider = (*MockOCRProvider)(nil)
