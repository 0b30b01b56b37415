package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"testing"
	"time"
)

func testImage(shade uint8) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.NRGBA{shade, shade, shade, 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func writeJPEG(t *testing.T, path string, shade uint8) {
	t.Helper()
	if err := os.WriteFile(path, jpegBytes(t, testImage(shade)), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// frameShade samples one pixel; JPEG compression keeps solid fills close
// to the original value.
func frameShade(f Frame) uint8 {
	r, _, _, _ := f.Image.At(2, 2).RGBA()
	return uint8(r >> 8)
}

func nearShade(got, want uint8) bool {
	d := int(got) - int(want)
	if d < 0 {
		d = -d
	}
	return d <= 15
}

func readFrame(t *testing.T, ch <-chan Frame, timeout time.Duration) Frame {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			t.Fatal("frame channel closed early")
		}
		return f
	case <-time.After(timeout):
		t.Fatal("timed out waiting for frame")
	}
	return Frame{}
}

func expectClosed(t *testing.T, ch <-chan Frame, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("frame channel did not close")
		}
	}
}
