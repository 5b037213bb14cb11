package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lehigh-university-libraries/platereader/internal/imageproc"
	"github.com/lehigh-university-libraries/platereader/internal/models"
	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine runs a single long-lived tesseract client.
type TesseractEngine struct {
	mu     sync.Mutex
	client *gosseract.Client
	lang   string
}

// NewTesseractEngine configures tesseract for one language. If tessdataDir
// holds <language>.traineddata it is used instead of the system data.
func NewTesseractEngine(language, tessdataDir string) *TesseractEngine {
	if language == "" {
		language = "eng"
	}
	client := gosseract.NewClient()
	if tessdataDir != "" {
		if _, err := os.Stat(filepath.Join(tessdataDir, language+".traineddata")); err == nil {
			if err := client.SetTessdataPrefix(tessdataDir); err != nil {
				slog.Warn("Unable to set tessdata prefix", "dir", tessdataDir, "err", err)
			}
		}
	}
	return &TesseractEngine{client: client, lang: language}
}

func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) ([]models.OCRCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RecognitionError{Engine: "tesseract", Err: err}
	}
	data, err := imageproc.EncodePNG(img)
	if err != nil {
		return nil, &RecognitionError{Engine: "tesseract", Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetLanguage(e.lang); err != nil {
		return nil, &RecognitionError{Engine: "tesseract", Err: fmt.Errorf("setting language %s: %w", e.lang, err)}
	}
	if err := e.client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return nil, &RecognitionError{Engine: "tesseract", Err: fmt.Errorf("setting page segmentation: %w", err)}
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return nil, &RecognitionError{Engine: "tesseract", Err: fmt.Errorf("loading image: %w", err)}
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, &RecognitionError{Engine: "tesseract", Err: err}
	}

	candidates := make([]models.OCRCandidate, 0, len(boxes))
	for _, b := range boxes {
		candidates = append(candidates, models.OCRCandidate{
			Text:       b.Word,
			Confidence: clampConfidence(b.Confidence / 100),
		})
	}
	slog.Debug("Tesseract recognized lines", "count", len(candidates))
	return candidates, nil
}

func (e *TesseractEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}
