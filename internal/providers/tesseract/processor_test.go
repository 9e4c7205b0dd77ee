package tesseract

import (
	"reflect"
	"testing"

	"github.com/jackzampolin/pdfocr/internal/providers"
)

func TestApplyChatTemplate(t *testing.T) {
	msgs := []providers.Message{{
		Role: "user",
		Parts: []providers.Part{
			{Image: "/out/doc/image0.png"},
			{Text: "Read"},
		},
	}}

	in, err := processor{}.ApplyChatTemplate(msgs, true)
	if err != nil {
		t.Fatalf("ApplyChatTemplate() error = %v", err)
	}
	if !reflect.DeepEqual(in.Images, []string{"/out/doc/image0.png"}) {
		t.Errorf("Images = %v", in.Images)
	}

	withMarkers, err := processor{}.Decode(in.InputIDs, false)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := "<|im_start|>user\n<|vision_start|><|image_pad|><|vision_end|>Read<|im_end|>\n<|im_start|>assistant\n"
	if withMarkers != want {
		t.Errorf("template = %q, want %q", withMarkers, want)
	}

	plain, err := processor{}.Decode(in.InputIDs, true)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if plain != "user\nRead\nassistant\n" {
		t.Errorf("decoded without specials = %q", plain)
	}
}

func TestApplyChatTemplateNoMessages(t *testing.T) {
	if _, err := (processor{}).ApplyChatTemplate(nil, true); err == nil {
		t.Error("expected error for empty messages")
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := (processor{}).Decode([]int{-1}, true); err == nil {
		t.Error("expected error for negative id")
	}
	if _, err := (processor{}).Decode([]int{specialBase + 99}, false); err == nil {
		t.Error("expected error for unknown special id")
	}
}

func TestTokenize(t *testing.T) {
	if got := tokenize("héllo", 0); len(got) != 5 {
		t.Errorf("tokenize unbounded = %d ids, want 5", len(got))
	}
	if got := tokenize("héllo", 2); len(got) != 2 {
		t.Errorf("tokenize bounded = %d ids, want 2", len(got))
	}
}

func TestLanguages(t *testing.T) {
	tests := []struct {
		model string
		want  []string
	}{
		{"eng", []string{"eng"}},
		{"eng+deu", []string{"eng", "deu"}},
		{" eng + fra ", []string{"eng", "fra"}},
		{"", []string{"eng"}},
	}
	for _, tt := range tests {
		if got := languages(tt.model); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("languages(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
