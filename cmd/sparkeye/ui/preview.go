package ui

import (
	"fmt"
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/disintegration/imaging"
)

// FitPreview returns the cell grid that fits an imgW by imgH frame into
// at most maxCols by maxRows terminal cells. Each cell shows two pixels
// stacked, which roughly squares them against the usual cell aspect.
func FitPreview(imgW, imgH, maxCols, maxRows int) (cols, rows int) {
	if imgW <= 0 || imgH <= 0 || maxCols <= 0 || maxRows <= 0 {
		return 0, 0
	}
	maxPx := maxRows * 2
	scaleW := float64(maxCols) / float64(imgW)
	scaleH := float64(maxPx) / float64(imgH)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	cols = int(float64(imgW) * scale)
	px := int(float64(imgH) * scale)
	if cols < 1 {
		cols = 1
	}
	if px < 2 {
		px = 2
	}
	rows = (px + 1) / 2
	return cols, rows
}

// RenderPreview draws the frame as colored half blocks, cols wide and
// rows tall. With mirror set the image is flipped horizontally, which
// reads naturally when the camera faces the builder.
func RenderPreview(img image.Image, cols, rows int, mirror bool) string {
	if img == nil || cols <= 0 || rows <= 0 {
		return ""
	}
	small := imaging.Resize(img, cols, rows*2, imaging.Box)
	if mirror {
		small = imaging.FlipH(small)
	}

	var sb strings.Builder
	for row := 0; row < rows; row++ {
		if row > 0 {
			sb.WriteByte('\n')
		}
		for col := 0; col < cols; col++ {
			top := hexAt(small, col, row*2)
			bottom := hexAt(small, col, row*2+1)
			cell := lipgloss.NewStyle().
				Foreground(lipgloss.Color(top)).
				Background(lipgloss.Color(bottom)).
				Render("▀")
			sb.WriteString(cell)
		}
	}
	return sb.String()
}

func hexAt(img *image.NRGBA, x, y int) string {
	c := img.NRGBAAt(img.Rect.Min.X+x, img.Rect.Min.Y+y)
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
