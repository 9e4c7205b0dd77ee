package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	RunID string `json:"run_id" yaml:"run_id"`
	Pages int    `json:"pages" yaml:"pages"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatYAML, false},
		{"yaml", FormatYAML, false},
		{"YML", FormatYAML, false},
		{"json", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWrite(t *testing.T) {
	data := sample{RunID: "r1", Pages: 3}

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatYAML, data); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "run_id: r1\npages: 3\n" {
			t.Errorf("yaml = %q", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, FormatJSON, data); err != nil {
			t.Fatal(err)
		}
		var got sample
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got != data {
			t.Errorf("json round trip = %+v", got)
		}
		if !strings.Contains(buf.String(), "\n  \"run_id\"") {
			t.Errorf("json not indented: %q", buf.String())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := Write(&bytes.Buffer{}, "toml", data); err == nil {
			t.Error("expected error")
		}
	})
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "runs", "r1.json")
	if err := WriteFile(jsonPath, sample{RunID: "r1"}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "{") {
		t.Errorf("expected json, got %q", data)
	}

	yamlPath := filepath.Join(dir, "r1.yaml")
	if err := WriteFile(yamlPath, sample{RunID: "r1"}); err != nil {
		t.Fatal(err)
	}
	data, err = os.ReadFile(yamlPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "run_id: r1") {
		t.Errorf("expected yaml, got %q", data)
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatJSON)
	if p.Format() != FormatJSON {
		t.Errorf("Format() = %q", p.Format())
	}
	if err := p.Print(map[string]string{"status": "running"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"status": "running"`) {
		t.Errorf("output = %q", buf.String())
	}
}
