// Package ocr wraps text-recognition engines behind a single interface.
package ocr

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/lehigh-university-libraries/platereader/internal/config"
	"github.com/lehigh-university-libraries/platereader/internal/gemini"
	"github.com/lehigh-university-libraries/platereader/internal/models"
	"github.com/lehigh-university-libraries/platereader/internal/ollama"
	"github.com/lehigh-university-libraries/platereader/internal/openai"
)

// Engine recognizes text spans in a single plate crop.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) ([]models.OCRCandidate, error)
	Close() error
}

// RecognitionError reports an engine failure on one crop.
type RecognitionError struct {
	Engine string
	Err    error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("%s recognition failed: %v", e.Engine, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// NewEngine builds the engine named by cfg.Engine.
func NewEngine(ctx context.Context, cfg config.OCRConfig) (Engine, error) {
	switch cfg.Engine {
	case "tesseract", "":
		return NewTesseractEngine(cfg.Language, cfg.CacheDir), nil
	case "rekognition":
		return NewRekognitionEngine(ctx, cfg.AWSRegion)
	case "ollama":
		return NewVisionEngine("ollama", ollama.New(), modelOrDefault(cfg.Model, "OLLAMA_MODEL", "llama3.2-vision")), nil
	case "openai":
		return NewVisionEngine("openai", openai.New(), modelOrDefault(cfg.Model, "OPENAI_MODEL", "gpt-4o")), nil
	case "gemini":
		return NewVisionEngine("gemini", gemini.New(), modelOrDefault(cfg.Model, "GEMINI_MODEL", "gemini-1.5-flash")), nil
	default:
		return nil, fmt.Errorf("unknown OCR engine: %s", cfg.Engine)
	}
}

func modelOrDefault(model, envKey, fallback string) string {
	if model != "" {
		return model
	}
	if env := os.Getenv(envKey); env != "" {
		return env
	}
	return fallback
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
