// Package imageproc crops, preprocesses and annotates plate images.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/lehigh-university-libraries/platereader/internal/models"
)

// MinCropWidth is the narrowest crop that still gets its left border trimmed.
const MinCropWidth = 10

var (
	ErrInvalidBox    = errors.New("bounding box outside image")
	ErrImageTooLarge = errors.New("image dimensions exceed limit")
)

// CheckDimensions reads only the image header and fails with
// ErrImageTooLarge when width*height is above maxPixels.
func CheckDimensions(r io.Reader, maxPixels int64) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return cfg, fmt.Errorf("reading image header: %w", err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return cfg, fmt.Errorf("%w: %dx%d is over %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}
	return cfg, nil
}

// Decode reads an uploaded image, applying EXIF orientation.
func Decode(r io.Reader) (*image.NRGBA, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return imaging.Clone(img), nil
}

// EncodePNG returns img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// Crop returns a copy of the colour region under box.
func Crop(img image.Image, box models.BoundingBox) (*image.NRGBA, error) {
	if img == nil || !box.Valid(img.Bounds()) {
		return nil, ErrInvalidBox
	}
	return imaging.Crop(img, box.Rect()), nil
}

// Prepare crops box out of img, converts it to luminance and drops the
// leftmost tenth of the columns. The result is floor(0.9*w) wide and as tall
// as the box. Crops narrower than MinCropWidth are returned untrimmed.
func Prepare(img image.Image, box models.BoundingBox) (*image.Gray, error) {
	crop, err := Crop(img, box)
	if err != nil {
		return nil, err
	}
	gray := imaging.Grayscale(crop)

	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	start := 0
	if w >= MinCropWidth {
		start = w - w*9/10
	}

	out := image.NewGray(image.Rect(0, 0, w-start, h))
	for y := 0; y < h; y++ {
		src := gray.Pix[y*gray.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w-start; x++ {
			dst[x] = src[(x+start)*4]
		}
	}
	return out, nil
}
