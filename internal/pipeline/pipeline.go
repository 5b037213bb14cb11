// Package pipeline runs detection, cropping, OCR and annotation for one image.
package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/lehigh-university-libraries/platereader/internal/detector"
	"github.com/lehigh-university-libraries/platereader/internal/imageproc"
	"github.com/lehigh-university-libraries/platereader/internal/models"
	"github.com/lehigh-university-libraries/platereader/internal/ocr"
	"github.com/lehigh-university-libraries/platereader/internal/plate"
)

type State string

const (
	AwaitingUpload   State = "awaiting_upload"
	Detecting        State = "detecting"
	NoPlateFound     State = "no_plate_found"
	PerBoxProcessing State = "per_box_processing"
	Done             State = "done"
	Failed           State = "failed"
)

const (
	NoPlateMessage         = "No license plate detected. Try a clearer image or different angle."
	DetectionFailedMessage = "License plate detection is unavailable, please try again later."
	EmptyTextMarker        = "(no text recognized)"
)

// Outcome is the terminal state reached for one image plus one result per box.
type Outcome struct {
	State   State
	Message string
	Results []models.DetectionResult
}

// SessionState maps the terminal pipeline state onto the stored session state.
func (o Outcome) SessionState() models.SessionState {
	switch o.State {
	case NoPlateFound:
		return models.StateNoPlateFound
	case Done:
		return models.StateDone
	default:
		return models.StateFailed
	}
}

// Orchestrator processes one image at a time.
type Orchestrator struct {
	mu       sync.Mutex
	detector detector.Detector
	engine   ocr.Engine
	state    State
}

func New(det detector.Detector, engine ocr.Engine) *Orchestrator {
	return &Orchestrator{
		detector: det,
		engine:   engine,
		state:    AwaitingUpload,
	}
}

// State returns the state of the request in progress, or the terminal state
// of the last one.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Process runs the full pipeline on img. A detection failure is returned as
// a *detector.DetectionError together with a Failed outcome. OCR failures
// are recorded on the affected result only.
func (o *Orchestrator) Process(ctx context.Context, img image.Image) (Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	o.state = Detecting

	detections, err := o.detector.Detect(ctx, img)
	if err != nil {
		o.state = Failed
		var detErr *detector.DetectionError
		if !errors.As(err, &detErr) {
			err = &detector.DetectionError{Err: err}
		}
		slog.Error("Plate detection failed", "err", err)
		return Outcome{State: Failed, Message: DetectionFailedMessage}, err
	}

	if len(detections) == 0 {
		o.state = NoPlateFound
		slog.Info("No license plate detected", "duration", time.Since(start))
		return Outcome{State: NoPlateFound, Message: NoPlateMessage}, nil
	}

	o.state = PerBoxProcessing
	results := make([]models.DetectionResult, 0, len(detections))
	for i, det := range detections {
		result := o.processBox(ctx, img, det)
		slog.Info("Processed plate",
			"index", i,
			"box", det.Box,
			"text", result.Text,
			"confidence", result.Confidence,
			"err", result.Error)
		results = append(results, result)
	}

	o.state = Done
	slog.Info("Pipeline finished", "plates", len(results), "duration", time.Since(start))
	return Outcome{State: Done, Results: results}, nil
}

func (o *Orchestrator) processBox(ctx context.Context, img image.Image, det models.Detection) models.DetectionResult {
	result := models.DetectionResult{Box: det.Box}

	crop, err := imageproc.Crop(img, det.Box)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Crop = crop

	prepared, err := imageproc.Prepare(img, det.Box)
	if err != nil {
		result.Error = err.Error()
		result.Annotated = imageproc.Annotate(img, det.Box, "")
		return result
	}

	candidates, err := o.engine.Recognize(ctx, prepared)
	if err != nil {
		slog.Warn("OCR failed for plate", "box", det.Box, "err", err)
		result.Error = err.Error()
		result.Annotated = imageproc.Annotate(img, det.Box, "")
		return result
	}

	if best, ok := plate.SelectBest(candidates); ok {
		result.Raw = best.Text
		result.Confidence = best.Confidence
		result.Text = plate.Normalize(best.Text)
	}
	result.Annotated = imageproc.Annotate(img, det.Box, result.Text)
	return result
}
