// Package imageproc prepares reference images for providers, renders gallery
// thumbnails and applies photo-editor adjustments.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Keep for decoding pngs

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

// MaxReferenceSide is the longest side a reference image is sent with.
const MaxReferenceSide = 1920

// PrepareReference shrinks images larger than MaxReferenceSide and converts
// png and webp input to JPEG. Images that need neither are returned unchanged.
func PrepareReference(imgBytes []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	log := zap.S()
	log.Debugf("Decoded image format: %s", format)

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	needsResize := width > MaxReferenceSide || height > MaxReferenceSide
	needsConversion := format == "png" || format == "webp"
	if !needsResize && !needsConversion {
		return imgBytes, nil
	}

	processed := img
	if needsResize {
		processed = resize.Thumbnail(MaxReferenceSide, MaxReferenceSide, img, resize.Lanczos3)
		log.Infof("Reference image resized from %dx%d to %dx%d", width, height, processed.Bounds().Dx(), processed.Bounds().Dy())
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, processed, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode image to jpeg: %w", err)
	}
	if needsConversion {
		log.Infof("Converted %s reference image to JPEG.", format)
	}
	return buf.Bytes(), nil
}

// Thumbnail renders a WebP preview that fits in a size x size box.
func Thumbnail(imgBytes []byte, size uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	thumb := resize.Thumbnail(size, size, img, resize.Bilinear)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, thumb, &webp.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode webp thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// Dimensions reports the pixel size of an encoded image.
func Dimensions(imgBytes []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(imgBytes))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
