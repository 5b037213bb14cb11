package ocr

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/lehigh-university-libraries/platereader/internal/imageproc"
	"github.com/lehigh-university-libraries/platereader/internal/models"
	"github.com/lehigh-university-libraries/platereader/internal/providers"
)

const visionPrompt = `You are performing OCR on a cropped photo of a vehicle license plate.

Read every line of text on the plate. For each line, estimate how certain you are
that the reading is correct as a number between 0 and 1.

Return ONLY a JSON array in this exact format, with no other text:

[{"text": "<line as printed>", "confidence": <0..1>}]

If the image contains no legible text, return [].`

// VisionEngine asks a vision-capable LLM to read the plate.
type VisionEngine struct {
	name     string
	provider providers.Provider
	model    string
}

func NewVisionEngine(name string, provider providers.Provider, model string) *VisionEngine {
	return &VisionEngine{name: name, provider: provider, model: model}
}

func (e *VisionEngine) Recognize(ctx context.Context, img image.Image) ([]models.OCRCandidate, error) {
	data, err := imageproc.EncodePNG(img)
	if err != nil {
		return nil, &RecognitionError{Engine: e.name, Err: err}
	}

	response, err := e.provider.ExtractText(ctx, providers.Config{
		Model:       e.model,
		Temperature: 0.0,
		Prompt:      visionPrompt,
		Images:      [][]byte{data},
	})
	if err != nil {
		return nil, &RecognitionError{Engine: e.name, Err: err}
	}

	candidates, err := parseCandidates(response)
	if err != nil {
		return nil, &RecognitionError{Engine: e.name, Err: err}
	}
	slog.Debug("Vision OCR response parsed", "provider", e.name, "model", e.model, "candidates", len(candidates))
	return candidates, nil
}

func (e *VisionEngine) Close() error { return nil }

// parseCandidates pulls the first JSON array out of an LLM reply. A reply with
// no array at all is kept as one zero-confidence candidate.
func parseCandidates(response string) ([]models.OCRCandidate, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	if response == "" {
		return []models.OCRCandidate{}, nil
	}

	raw, ok := extractJSONArray(response)
	if !ok {
		slog.Warn("No JSON array in vision response, using raw output", "length", len(response))
		return []models.OCRCandidate{{Text: response, Confidence: 0}}, nil
	}

	var parsed []models.OCRCandidate
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("decoding candidates: %w", err)
	}

	candidates := make([]models.OCRCandidate, 0, len(parsed))
	for _, c := range parsed {
		c.Confidence = clampConfidence(c.Confidence)
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func extractJSONArray(text string) (string, bool) {
	start := strings.IndexByte(text, '[')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '[':
			depth++
		case ch == ']':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
