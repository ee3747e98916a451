package upload

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	thumbnailMaxSide = 200
	thumbnailQuality = 80

	// MaxThumbnailPixels bounds the source images we are willing to decode.
	MaxThumbnailPixels = 40_000_000
)

// Thumbnail decodes an image and re-encodes it as a JPEG whose longest side
// is at most 200px, keeping the aspect ratio. Smaller images keep their size.
// Images above MaxThumbnailPixels are rejected from their header alone.
func Thumbnail(data []byte) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > MaxThumbnailPixels {
		return nil, fmt.Errorf("image is %dx%d, over the %d pixel limit", cfg.Width, cfg.Height, MaxThumbnailPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	thumb := imaging.Fit(img, thumbnailMaxSide, thumbnailMaxSide, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
