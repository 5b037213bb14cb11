package imageproc

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/lehigh-university-libraries/platereader/internal/models"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	// BoxThickness is the outline width in pixels.
	BoxThickness = 2
	// LabelOffset is the gap between the label baseline and the box top.
	LabelOffset = 10
	// LabelScale sizes the label relative to labelBaseHeight.
	LabelScale      = 0.8
	labelBaseHeight = 22.0
)

var (
	BoxColor   = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
	LabelColor = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
)

// Annotate returns a copy of img with box outlined and text written above it.
// img itself is left untouched.
func Annotate(img image.Image, box models.BoundingBox, text string) *image.NRGBA {
	dst := imaging.Clone(img)
	origin := img.Bounds().Min
	r := box.Rect().Sub(origin)

	outline(dst, r)

	if text == "" {
		return dst
	}
	label := renderLabel(text)
	ascent := int(float64(basicfont.Face7x13.Metrics().Ascent.Ceil()) * labelScaleFactor())

	pos := image.Pt(r.Min.X, r.Min.Y-LabelOffset-ascent)
	if pos.Y < 0 {
		pos.Y = 0
	}
	if pos.X < 0 {
		pos.X = 0
	}
	return imaging.Overlay(dst, label, pos, 1.0)
}

func outline(dst *image.NRGBA, r image.Rectangle) {
	src := image.NewUniform(BoxColor)
	t := BoxThickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

func labelScaleFactor() float64 {
	return LabelScale * labelBaseHeight / float64(basicfont.Face7x13.Metrics().Height.Ceil())
}

// renderLabel draws text on a transparent canvas scaled to the label size.
func renderLabel(text string) *image.NRGBA {
	face := basicfont.Face7x13
	m := face.Metrics()
	width := font.MeasureString(face, text).Ceil()
	height := m.Height.Ceil()

	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(LabelColor),
		Face: face,
		Dot:  fixed.P(0, m.Ascent.Ceil()),
	}
	d.DrawString(text)

	scale := labelScaleFactor()
	w := int(float64(width)*scale + 0.5)
	h := int(float64(height)*scale + 0.5)
	if w < 1 || h < 1 {
		return canvas
	}
	return imaging.Resize(canvas, w, h, imaging.Linear)
}
