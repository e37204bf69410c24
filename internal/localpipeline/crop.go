package localpipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"
)

// Crop is a detected table region rendered as a PNG image.
type Crop struct {
	// Page is the zero-based page within the submitted document.
	Page   int
	Bounds image.Rectangle
	Score  float64
	PNG    []byte
}

// Box is a detection in page pixel coordinates.
type Box struct {
	X0    float64 `json:"x0"`
	Y0    float64 `json:"y0"`
	X1    float64 `json:"x1"`
	Y1    float64 `json:"y1"`
	Score float64 `json:"score"`
}

// Pad grows the box around its center by factor and clips it to bounds.
func (b Box) Pad(factor float64, bounds image.Rectangle) image.Rectangle {
	cx, cy := (b.X0+b.X1)/2, (b.Y0+b.Y1)/2
	hw, hh := math.Abs(b.X1-b.X0)*factor/2, math.Abs(b.Y1-b.Y0)*factor/2
	r := image.Rect(
		int(math.Floor(cx-hw)), int(math.Floor(cy-hh)),
		int(math.Ceil(cx+hw)), int(math.Ceil(cy+hh)),
	)
	return r.Intersect(bounds)
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// cropPage cuts each box out of a rendered page.
func cropPage(page int, img image.Image, boxes []Box, padding float64) ([]Crop, error) {
	si, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("page %d image does not support cropping", page)
	}

	crops := make([]Crop, 0, len(boxes))
	for _, b := range boxes {
		r := b.Pad(padding, img.Bounds())
		if r.Empty() {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, si.SubImage(r)); err != nil {
			return nil, fmt.Errorf("encode crop on page %d: %w", page, err)
		}
		crops = append(crops, Crop{Page: page, Bounds: r, Score: b.Score, PNG: buf.Bytes()})
	}
	return crops, nil
}
