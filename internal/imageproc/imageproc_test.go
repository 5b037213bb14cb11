package imageproc

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/lehigh-university-libraries/platereader/internal/models"
)

func newTestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func TestPrepareDimensions(t *testing.T) {
	img := newTestImage(200, 120)

	tests := []struct {
		name  string
		box   models.BoundingBox
		width int
	}{
		{name: "multiple of ten", box: models.BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 50}, width: 90},
		{name: "odd width", box: models.BoundingBox{X1: 0, Y1: 0, X2: 15, Y2: 8}, width: 13},
		{name: "touches right and bottom edge", box: models.BoundingBox{X1: 150, Y1: 100, X2: 200, Y2: 120}, width: 45},
		{name: "whole image", box: models.BoundingBox{X1: 0, Y1: 0, X2: 200, Y2: 120}, width: 180},
		{name: "narrow crop is not trimmed", box: models.BoundingBox{X1: 5, Y1: 5, X2: 9, Y2: 15}, width: 4},
		{name: "single column", box: models.BoundingBox{X1: 5, Y1: 5, X2: 6, Y2: 15}, width: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Prepare(img, tt.box)
			if err != nil {
				t.Fatalf("Prepare returned error: %v", err)
			}
			if out.Bounds().Dx() != tt.width {
				t.Errorf("Expected width %d, got %d", tt.width, out.Bounds().Dx())
			}
			if out.Bounds().Dy() != tt.box.Height() {
				t.Errorf("Expected height %d, got %d", tt.box.Height(), out.Bounds().Dy())
			}
		})
	}
}

func TestPrepareLuminanceAndTrim(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 20; x++ {
			c := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			if x < 2 {
				c = color.NRGBA{R: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}

	out, err := Prepare(img, models.BoundingBox{X1: 0, Y1: 0, X2: 20, Y2: 4})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	if out.Bounds().Dx() != 18 {
		t.Fatalf("Expected width 18, got %d", out.Bounds().Dx())
	}
	// the red border columns are discarded, leaving only white
	for y := 0; y < 4; y++ {
		for x := 0; x < 18; x++ {
			if v := out.GrayAt(x, y).Y; v != 255 {
				t.Fatalf("Expected white at (%d,%d), got %d", x, y, v)
			}
		}
	}

	red, err := Prepare(img, models.BoundingBox{X1: 0, Y1: 0, X2: 2, Y2: 4})
	if err != nil {
		t.Fatalf("Prepare returned error: %v", err)
	}
	// 0.299 * 255 rounds to 76
	if v := red.GrayAt(0, 0).Y; v != 76 {
		t.Errorf("Expected luminance 76 for pure red, got %d", v)
	}
}

func TestPrepareInvalidBox(t *testing.T) {
	img := newTestImage(50, 50)
	boxes := []models.BoundingBox{
		{X1: 10, Y1: 10, X2: 10, Y2: 20},
		{X1: 20, Y1: 10, X2: 10, Y2: 20},
		{X1: 40, Y1: 40, X2: 60, Y2: 45},
		{X1: -1, Y1: 0, X2: 10, Y2: 10},
	}
	for _, box := range boxes {
		if _, err := Prepare(img, box); !errors.Is(err, ErrInvalidBox) {
			t.Errorf("Expected ErrInvalidBox for %+v, got %v", box, err)
		}
	}
}

func TestAnnotateDoesNotMutateInput(t *testing.T) {
	img := newTestImage(120, 80)
	before := append([]uint8(nil), img.Pix...)
	box := models.BoundingBox{X1: 20, Y1: 40, X2: 90, Y2: 70}

	out := Annotate(img, box, "ABC123")

	if !bytes.Equal(before, img.Pix) {
		t.Fatal("Annotate modified its input image")
	}
	if out.Bounds() != img.Bounds() {
		t.Errorf("Expected bounds %v, got %v", img.Bounds(), out.Bounds())
	}
	if got := out.NRGBAAt(box.X1, box.Y1); got != BoxColor {
		t.Errorf("Expected box colour at top-left corner, got %v", got)
	}
	if got := out.NRGBAAt(box.X2-1, box.Y2-1); got != BoxColor {
		t.Errorf("Expected box colour at bottom-right corner, got %v", got)
	}
	inside := out.NRGBAAt(50, 55)
	if inside != img.NRGBAAt(50, 55) {
		t.Errorf("Expected interior pixel unchanged, got %v", inside)
	}

	var labelPixels int
	for y := 0; y < box.Y1; y++ {
		for x := 0; x < out.Bounds().Dx(); x++ {
			if out.NRGBAAt(x, y) != img.NRGBAAt(x, y) {
				labelPixels++
			}
		}
	}
	if labelPixels == 0 {
		t.Error("Expected label pixels above the box")
	}
}

func TestAnnotateIndependentPerBox(t *testing.T) {
	img := newTestImage(100, 100)
	first := Annotate(img, models.BoundingBox{X1: 5, Y1: 30, X2: 40, Y2: 50}, "ONE")
	second := Annotate(img, models.BoundingBox{X1: 50, Y1: 60, X2: 95, Y2: 90}, "TWO")

	if second.NRGBAAt(5, 30) == BoxColor {
		t.Error("Second annotation contains the first box")
	}
	if first.NRGBAAt(50, 60) == BoxColor {
		t.Error("First annotation contains the second box")
	}
}

func TestAnnotateEmptyTextAndTopEdge(t *testing.T) {
	img := newTestImage(60, 40)
	box := models.BoundingBox{X1: 0, Y1: 0, X2: 60, Y2: 40}

	out := Annotate(img, box, "")
	if out.NRGBAAt(0, 0) != BoxColor {
		t.Error("Expected outline at image corner")
	}
	if out.NRGBAAt(30, 20) != img.NRGBAAt(30, 20) {
		t.Error("Expected no label drawn for empty text")
	}

	// label would fall above the image; it must be clamped, not panic
	_ = Annotate(img, box, "EDGE")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	img := newTestImage(16, 9)
	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	decoded, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Bounds().Dx() != 16 || decoded.Bounds().Dy() != 9 {
		t.Errorf("Unexpected decoded size %v", decoded.Bounds())
	}

	if _, err := Decode(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("Expected error decoding garbage")
	}
}

func TestCheckDimensions(t *testing.T) {
	data, err := EncodePNG(newTestImage(200, 120))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		data      []byte
		maxPixels int64
		tooLarge  bool
		wantErr   bool
	}{
		{name: "within limit", data: data, maxPixels: 200 * 120},
		{name: "one pixel over", data: data, maxPixels: 200*120 - 1, tooLarge: true, wantErr: true},
		{name: "not an image", data: []byte("plain text"), maxPixels: 1 << 30, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := CheckDimensions(bytes.NewReader(tt.data), tt.maxPixels)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if cfg.Width != 200 || cfg.Height != 120 {
					t.Errorf("Unexpected config %dx%d", cfg.Width, cfg.Height)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if errors.Is(err, ErrImageTooLarge) != tt.tooLarge {
				t.Errorf("Unexpected error kind: %v", err)
			}
		})
	}
}
