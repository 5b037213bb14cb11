// Package detector locates license plates by calling an external YOLO
// inference service.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/lehigh-university-libraries/platereader/internal/config"
	"github.com/lehigh-university-libraries/platereader/internal/imageproc"
	"github.com/lehigh-university-libraries/platereader/internal/models"
)

// Detector finds plate boxes in an image. An image without plates yields an
// empty slice and a nil error.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
}

// DetectionError is returned when the inference service cannot process the input.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return "plate detection failed: " + e.Err.Error()
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

var errEmptyImage = errors.New("empty image")

type HTTPDetector struct {
	BaseURL    string
	ModelPath  string
	Confidence float64
	InputSize  int
	Client     *http.Client
}

func New(cfg config.DetectorConfig) *HTTPDetector {
	return &HTTPDetector{
		BaseURL:    strings.TrimSuffix(cfg.URL, "/"),
		ModelPath:  cfg.ModelPath,
		Confidence: cfg.Confidence,
		InputSize:  cfg.InputSize,
		Client:     &http.Client{Timeout: cfg.Timeout},
	}
}

type prediction struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
}

// Detect resizes a working copy to InputSize x InputSize, sends it for
// inference and maps the returned boxes back onto img.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, &DetectionError{Err: errEmptyImage}
	}
	bounds := img.Bounds()

	working := imaging.Resize(img, d.InputSize, d.InputSize, imaging.Linear)
	data, err := imageproc.EncodePNG(working)
	if err != nil {
		return nil, &DetectionError{Err: err}
	}

	preds, err := d.predict(ctx, data)
	if err != nil {
		return nil, &DetectionError{Err: err}
	}

	scaleX := float64(bounds.Dx()) / float64(d.InputSize)
	scaleY := float64(bounds.Dy()) / float64(d.InputSize)

	detections := make([]models.Detection, 0, len(preds))
	for _, p := range preds {
		if p.Confidence < d.Confidence {
			continue
		}
		box := models.BoundingBox{
			X1: bounds.Min.X + int(p.X1*scaleX),
			Y1: bounds.Min.Y + int(p.Y1*scaleY),
			X2: bounds.Min.X + int(p.X2*scaleX+0.5),
			Y2: bounds.Min.Y + int(p.Y2*scaleY+0.5),
		}.Clamp(bounds)
		if !box.Valid(bounds) {
			slog.Debug("Dropping degenerate detection", "box", box, "confidence", p.Confidence)
			continue
		}
		detections = append(detections, models.Detection{Box: box, Confidence: p.Confidence})
	}

	slog.Debug("Plate detection finished", "returned", len(preds), "kept", len(detections))
	return detections, nil
}

func (d *HTTPDetector) predict(ctx context.Context, data []byte) ([]prediction, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "image.png")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	fields := map[string]string{
		"model": d.ModelPath,
		"conf":  strconv.FormatFloat(d.Confidence, 'f', -1, 64),
		"imgsz": strconv.Itoa(d.InputSize),
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Detections []prediction `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	slog.Debug("Inference service responded", "detections", len(result.Detections), "duration", time.Since(start))
	return result.Detections, nil
}

// CheckHealth checks the inference service.
func (d *HTTPDetector) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detector service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
