package imageproc

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// CropRect is a crop region in source pixels.
type CropRect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Adjustments are the photo editor operations, applied crop first, then
// geometry, then tone, then filters.
type Adjustments struct {
	Brightness float64   `json:"brightness"` // -100..100
	Contrast   float64   `json:"contrast"`   // -100..100
	Saturation float64   `json:"saturation"` // -100..500
	Blur       float64   `json:"blur"`       // gaussian sigma
	Sharpen    float64   `json:"sharpen"`    // gaussian sigma
	Grayscale  bool      `json:"grayscale"`
	Invert     bool      `json:"invert"`
	Rotate     int       `json:"rotate"` // degrees counter-clockwise, multiple of 90
	FlipH      bool      `json:"flip_h"`
	FlipV      bool      `json:"flip_v"`
	Crop       *CropRect `json:"crop,omitempty"`
}

// Validate rejects out of range values.
func (a Adjustments) Validate() error {
	if a.Brightness < -100 || a.Brightness > 100 {
		return fmt.Errorf("brightness must be within [-100, 100]")
	}
	if a.Contrast < -100 || a.Contrast > 100 {
		return fmt.Errorf("contrast must be within [-100, 100]")
	}
	if a.Saturation < -100 || a.Saturation > 500 {
		return fmt.Errorf("saturation must be within [-100, 500]")
	}
	if a.Blur < 0 || a.Sharpen < 0 {
		return fmt.Errorf("blur and sharpen must not be negative")
	}
	if a.Rotate%90 != 0 {
		return fmt.Errorf("rotate must be a multiple of 90 degrees")
	}
	if c := a.Crop; c != nil && (c.Width <= 0 || c.Height <= 0 || c.X < 0 || c.Y < 0) {
		return fmt.Errorf("crop must have a positive size inside the image")
	}
	return nil
}

// Edit applies the adjustments and returns a PNG.
func Edit(imgBytes []byte, adj Adjustments) ([]byte, error) {
	if err := adj.Validate(); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	img := imaging.Clone(src)
	if c := adj.Crop; c != nil {
		rect := image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height).Intersect(img.Bounds())
		if rect.Empty() {
			return nil, fmt.Errorf("crop region lies outside the image")
		}
		img = imaging.Crop(img, rect)
	}

	switch ((adj.Rotate % 360) + 360) % 360 {
	case 90:
		img = imaging.Rotate90(img)
	case 180:
		img = imaging.Rotate180(img)
	case 270:
		img = imaging.Rotate270(img)
	}
	if adj.FlipH {
		img = imaging.FlipH(img)
	}
	if adj.FlipV {
		img = imaging.FlipV(img)
	}

	if adj.Brightness != 0 {
		img = imaging.AdjustBrightness(img, adj.Brightness)
	}
	if adj.Contrast != 0 {
		img = imaging.AdjustContrast(img, adj.Contrast)
	}
	if adj.Saturation != 0 {
		img = imaging.AdjustSaturation(img, adj.Saturation)
	}

	if adj.Grayscale {
		img = imaging.Grayscale(img)
	}
	if adj.Invert {
		img = imaging.Invert(img)
	}
	if adj.Blur > 0 {
		img = imaging.Blur(img, adj.Blur)
	}
	if adj.Sharpen > 0 {
		img = imaging.Sharpen(img, adj.Sharpen)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode edited image: %w", err)
	}
	return buf.Bytes(), nil
}
