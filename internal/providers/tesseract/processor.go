// Package tesseract registers a "tesseract" runtime for the local provider.
//
// The engine wraps Tesseract via gosseract and is only compiled with the
// "tesseract" build tag:
//
//	go build -tags tesseract ./cmd/pdfocr
//
// This requires Tesseract to be installed. On macOS:
//
//	brew install tesseract
//
// On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr libtesseract-dev
//
// Without the tag the runtime is still registered but fails to load.
// Model names are Tesseract language codes ("eng", "eng+deu").
package tesseract

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/pdfocr/internal/providers"
)

// RuntimeName is the name the runtime registers under.
const RuntimeName = "tesseract"

// Tokens are unicode code points. Template markers use ids above the
// unicode range so they can be dropped on decode.
const specialBase = 0x110000

const (
	tokIMStart = specialBase + iota
	tokIMEnd
	tokVisionStart
	tokImagePad
	tokVisionEnd
)

var specialNames = map[int]string{
	tokIMStart:     "<|im_start|>",
	tokIMEnd:       "<|im_end|>",
	tokVisionStart: "<|vision_start|>",
	tokImagePad:    "<|image_pad|>",
	tokVisionEnd:   "<|vision_end|>",
}

// processor implements providers.Processor with a rune tokenizer.
type processor struct{}

func (processor) ApplyChatTemplate(msgs []providers.Message, addGenerationPrompt bool) (*providers.Inputs, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("no messages")
	}

	in := &providers.Inputs{}
	for _, m := range msgs {
		in.InputIDs = append(in.InputIDs, tokIMStart)
		in.InputIDs = appendText(in.InputIDs, m.Role+"\n")
		for _, p := range m.Parts {
			switch {
			case p.Image != "":
				in.InputIDs = append(in.InputIDs, tokVisionStart, tokImagePad, tokVisionEnd)
				in.Images = append(in.Images, p.Image)
			case p.Text != "":
				in.InputIDs = appendText(in.InputIDs, p.Text)
			}
		}
		in.InputIDs = append(in.InputIDs, tokIMEnd)
		in.InputIDs = appendText(in.InputIDs, "\n")
	}
	if addGenerationPrompt {
		in.InputIDs = append(in.InputIDs, tokIMStart)
		in.InputIDs = appendText(in.InputIDs, "assistant\n")
	}
	return in, nil
}

func (processor) Decode(ids []int, skipSpecialTokens bool) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		if id >= specialBase {
			if skipSpecialTokens {
				continue
			}
			name, ok := specialNames[id]
			if !ok {
				return "", fmt.Errorf("unknown token id %d", id)
			}
			b.WriteString(name)
			continue
		}
		if id < 0 {
			return "", fmt.Errorf("invalid token id %d", id)
		}
		b.WriteRune(rune(id))
	}
	return b.String(), nil
}

func appendText(ids []int, s string) []int {
	for _, r := range s {
		ids = append(ids, int(r))
	}
	return ids
}

// tokenize converts generated text to ids, bounded by maxNew.
func tokenize(text string, maxNew int) []int {
	ids := appendText(nil, text)
	if maxNew > 0 && len(ids) > maxNew {
		ids = ids[:maxNew]
	}
	return ids
}

// languages splits a model name into Tesseract language codes.
func languages(model string) []string {
	var langs []string
	for _, l := range strings.Split(model, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		return []string{"eng"}
	}
	return langs
}
