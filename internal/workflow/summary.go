package workflow

import "time"

// Page outcomes.
const (
	PageOK      = "ok"
	PageFailed  = "failed"
	PageSkipped = "skipped"
)

// Summary reports the outcome of one run.
type Summary struct {
	RunID      string           `json:"run_id" yaml:"run_id"`
	Provider   string           `json:"provider" yaml:"provider"`
	InputRoot  string           `json:"input_root" yaml:"input_root"`
	OutputRoot string           `json:"output_root" yaml:"output_root"`
	StartedAt  time.Time        `json:"started_at" yaml:"started_at"`
	Elapsed    string           `json:"elapsed" yaml:"elapsed"`
	Documents  []DocumentResult `json:"documents" yaml:"documents"`

	DocumentsFound  int `json:"documents_found" yaml:"documents_found"`
	DocumentsFailed int `json:"documents_failed" yaml:"documents_failed"`
	PagesTotal      int `json:"pages_total" yaml:"pages_total"`
	PagesOK         int `json:"pages_ok" yaml:"pages_ok"`
	PagesFailed     int `json:"pages_failed" yaml:"pages_failed"`
	PagesSkipped    int `json:"pages_skipped" yaml:"pages_skipped"`
}

// DocumentResult reports one document.
type DocumentResult struct {
	Path  string       `json:"path" yaml:"path"`
	DPI   int          `json:"dpi,omitempty" yaml:"dpi,omitempty"`
	Pages []PageResult `json:"pages,omitempty" yaml:"pages,omitempty"`
	Error string       `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the document-level failure, if any.
func (d DocumentResult) Err() error {
	return d.err
}

// PageResult reports one page.
type PageResult struct {
	Index  int    `json:"index" yaml:"index"`
	Image  string `json:"image" yaml:"image"`
	Status string `json:"status" yaml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (s *Summary) add(d DocumentResult) {
	s.Documents = append(s.Documents, d)
	if d.err != nil {
		s.DocumentsFailed++
	}
	for _, p := range d.Pages {
		s.PagesTotal++
		switch p.Status {
		case PageOK:
			s.PagesOK++
		case PageFailed:
			s.PagesFailed++
		case PageSkipped:
			s.PagesSkipped++
		}
	}
}
