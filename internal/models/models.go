package models

import (
	"image"
	"time"
)

// BoundingBox is an axis-aligned plate region in source image pixels.
// X2 and Y2 are exclusive.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b BoundingBox) Width() int  { return b.X2 - b.X1 }
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Valid reports whether the box is non-degenerate and lies inside bounds.
func (b BoundingBox) Valid(bounds image.Rectangle) bool {
	if b.X1 >= b.X2 || b.Y1 >= b.Y2 {
		return false
	}
	return b.Rect().In(bounds)
}

// Clamp returns the box intersected with bounds.
func (b BoundingBox) Clamp(bounds image.Rectangle) BoundingBox {
	r := b.Rect().Canon().Intersect(bounds)
	return BoundingBox{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Detection is a single plate box returned by the detector.
type Detection struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
}

// OCRCandidate is one text span recognized in a crop.
type OCRCandidate struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// DetectionResult is the outcome for one detected box.
type DetectionResult struct {
	Box        BoundingBox `json:"box"`
	Text       string      `json:"text"`
	Raw        string      `json:"raw,omitempty"`
	Confidence float64     `json:"confidence"`
	Error      string      `json:"error,omitempty"`

	Crop      image.Image `json:"-"`
	Annotated image.Image `json:"-"`
}

// SessionState mirrors the pipeline state reached for an upload.
type SessionState string

const (
	StateNoPlateFound SessionState = "no_plate_found"
	StateDone         SessionState = "done"
	StateFailed       SessionState = "failed"
)

// PlateSession represents one processed upload
type PlateSession struct {
	ID               string            `json:"id"`
	OriginalFilename string            `json:"original_filename"`
	ImagePath        string            `json:"image_path"`
	ImageURL         string            `json:"image_url"`
	ImageWidth       int               `json:"image_width"`
	ImageHeight      int               `json:"image_height"`
	State            SessionState      `json:"state"`
	Message          string            `json:"message,omitempty"`
	Results          []DetectionResult `json:"results"`
	Engine           string            `json:"engine,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}
