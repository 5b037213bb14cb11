package pipeline

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/platereader/internal/detector"
	"github.com/lehigh-university-libraries/platereader/internal/imageproc"
	"github.com/lehigh-university-libraries/platereader/internal/models"
	"github.com/lehigh-university-libraries/platereader/internal/ocr"
)

type fakeDetector struct {
	detections []models.Detection
	err        error
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	return f.detections, f.err
}

type fakeEngine struct {
	// responses are consumed in call order
	responses [][]models.OCRCandidate
	errs      []error
	calls     int
	widths    []int
}

func (f *fakeEngine) Recognize(ctx context.Context, img image.Image) ([]models.OCRCandidate, error) {
	i := f.calls
	f.calls++
	f.widths = append(f.widths, img.Bounds().Dx())
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return nil, nil
}

func (f *fakeEngine) Close() error { return nil }

func newTestImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 200, 120))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 30, 60, 90, 255
	}
	return img
}

func TestProcessNoPlate(t *testing.T) {
	engine := &fakeEngine{}
	o := New(&fakeDetector{}, engine)

	outcome, err := o.Process(context.Background(), newTestImage())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome.State != NoPlateFound {
		t.Errorf("Expected NoPlateFound, got %s", outcome.State)
	}
	if outcome.Message != NoPlateMessage {
		t.Errorf("Unexpected message %q", outcome.Message)
	}
	if len(outcome.Results) != 0 {
		t.Errorf("Expected no results, got %d", len(outcome.Results))
	}
	if engine.calls != 0 {
		t.Errorf("Expected OCR not to run, got %d calls", engine.calls)
	}
	if outcome.SessionState() != models.StateNoPlateFound {
		t.Errorf("Unexpected session state %s", outcome.SessionState())
	}
}

func TestProcessSinglePlate(t *testing.T) {
	box := models.BoundingBox{X1: 10, Y1: 40, X2: 110, Y2: 70}
	engine := &fakeEngine{responses: [][]models.OCRCandidate{{
		{Text: "ind", Confidence: 0.3},
		{Text: "abc-123", Confidence: 0.95},
		{Text: "ABC 12", Confidence: 0.95},
	}}}
	o := New(&fakeDetector{detections: []models.Detection{{Box: box, Confidence: 0.88}}}, engine)

	img := newTestImage()
	outcome, err := o.Process(context.Background(), img)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if outcome.State != Done || o.State() != Done {
		t.Errorf("Expected Done, got %s / %s", outcome.State, o.State())
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(outcome.Results))
	}

	r := outcome.Results[0]
	if r.Text != "ABC123" {
		t.Errorf("Expected ABC123, got %q", r.Text)
	}
	if r.Raw != "abc-123" || r.Confidence != 0.95 {
		t.Errorf("Unexpected selection raw=%q confidence=%v", r.Raw, r.Confidence)
	}
	if r.Box != box {
		t.Errorf("Expected box %+v, got %+v", box, r.Box)
	}
	if engine.widths[0] != 90 {
		t.Errorf("Expected OCR input width 90, got %d", engine.widths[0])
	}
	if r.Crop == nil || r.Crop.Bounds().Dx() != 100 || r.Crop.Bounds().Dy() != 30 {
		t.Errorf("Unexpected crop %v", r.Crop)
	}
	annotated, ok := r.Annotated.(*image.NRGBA)
	if !ok {
		t.Fatalf("Expected *image.NRGBA annotation, got %T", r.Annotated)
	}
	if annotated.NRGBAAt(box.X1, box.Y1) != imageproc.BoxColor {
		t.Error("Expected box outline on annotated image")
	}
	if img.NRGBAAt(box.X1, box.Y1) == imageproc.BoxColor {
		t.Error("Original image was modified")
	}
}

func TestProcessResultPerBox(t *testing.T) {
	boxes := []models.BoundingBox{
		{X1: 0, Y1: 0, X2: 50, Y2: 20},
		{X1: 60, Y1: 30, X2: 120, Y2: 60},
		{X1: 130, Y1: 80, X2: 200, Y2: 120},
	}
	var detections []models.Detection
	for _, b := range boxes {
		detections = append(detections, models.Detection{Box: b, Confidence: 0.7})
	}
	engine := &fakeEngine{
		responses: [][]models.OCRCandidate{
			{{Text: "KA01AB1234", Confidence: 0.8}},
			nil,
			{{Text: "---", Confidence: 0.6}},
		},
		errs: []error{nil, &ocr.RecognitionError{Engine: "fake", Err: errors.New("timeout")}},
	}
	o := New(&fakeDetector{detections: detections}, engine)

	outcome, err := o.Process(context.Background(), newTestImage())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(outcome.Results) != len(boxes) {
		t.Fatalf("Expected %d results, got %d", len(boxes), len(outcome.Results))
	}

	tests := []struct {
		text    string
		wantErr bool
	}{
		{text: "KA01AB1234"},
		{text: "", wantErr: true},
		{text: ""},
	}
	for i, tt := range tests {
		r := outcome.Results[i]
		if r.Box != boxes[i] {
			t.Errorf("Result %d: expected box %+v, got %+v", i, boxes[i], r.Box)
		}
		if r.Text != tt.text {
			t.Errorf("Result %d: expected text %q, got %q", i, tt.text, r.Text)
		}
		if (r.Error != "") != tt.wantErr {
			t.Errorf("Result %d: unexpected error state %q", i, r.Error)
		}
		if r.Annotated == nil {
			t.Errorf("Result %d: expected annotated image", i)
		}
	}
}

func TestProcessDetectionFailure(t *testing.T) {
	det := &fakeDetector{err: errors.New("connection refused")}
	engine := &fakeEngine{responses: [][]models.OCRCandidate{{{Text: "XY12", Confidence: 0.5}}}}
	o := New(det, engine)

	outcome, err := o.Process(context.Background(), newTestImage())
	var detErr *detector.DetectionError
	if !errors.As(err, &detErr) {
		t.Fatalf("Expected DetectionError, got %v", err)
	}
	if outcome.State != Failed || outcome.SessionState() != models.StateFailed {
		t.Errorf("Expected Failed, got %s", outcome.State)
	}
	if outcome.Message != DetectionFailedMessage {
		t.Errorf("Expected generic failure message, got %q", outcome.Message)
	}
	if strings.Contains(outcome.Message, "connection refused") {
		t.Error("Failure message leaks the detector error")
	}

	// the orchestrator keeps working after a failure
	det.err = nil
	det.detections = []models.Detection{{Box: models.BoundingBox{X1: 10, Y1: 10, X2: 60, Y2: 30}, Confidence: 0.9}}
	outcome, err = o.Process(context.Background(), newTestImage())
	if err != nil {
		t.Fatalf("Process after failure: %v", err)
	}
	if outcome.State != Done || len(outcome.Results) != 1 || outcome.Results[0].Text != "XY12" {
		t.Errorf("Unexpected outcome after recovery %+v", outcome)
	}
}

func TestProcessSerializesRequests(t *testing.T) {
	engine := &fakeEngine{}
	o := New(&fakeDetector{detections: []models.Detection{{Box: models.BoundingBox{X1: 0, Y1: 0, X2: 40, Y2: 20}}}}, engine)

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			if _, err := o.Process(context.Background(), newTestImage()); err != nil {
				t.Errorf("Process failed: %v", err)
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	if engine.calls != 4 {
		t.Errorf("Expected 4 OCR calls, got %d", engine.calls)
	}
}

func TestProcessBlankTopCandidateGivesEmptyText(t *testing.T) {
	engine := &fakeEngine{responses: [][]models.OCRCandidate{{
		{Text: "AB12", Confidence: 0.4},
		{Text: "   ", Confidence: 0.9},
	}}}
	o := New(&fakeDetector{detections: []models.Detection{{Box: models.BoundingBox{X1: 10, Y1: 10, X2: 80, Y2: 30}}}}, engine)

	outcome, err := o.Process(context.Background(), newTestImage())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	r := outcome.Results[0]
	if r.Text != "" || r.Raw != "   " || r.Confidence != 0.9 {
		t.Errorf("Expected the blank top candidate to win, got text=%q raw=%q confidence=%v", r.Text, r.Raw, r.Confidence)
	}
	if r.Error != "" {
		t.Errorf("Expected no error, got %q", r.Error)
	}
}
