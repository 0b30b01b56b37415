package verify

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// EncodeJPEG downscales img so its longest side is at most maxEdge and
// encodes it as JPEG. Keeping uploads small matters more than fidelity
// here; the verifier only needs to see the wiring.
func EncodeJPEG(img image.Image, maxEdge, quality int) ([]byte, error) {
	if maxEdge <= 0 {
		maxEdge = 1024
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	b := img.Bounds()
	if b.Dx() > maxEdge || b.Dy() > maxEdge {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
