package testgen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

const cellSize = 10

// Fingerprint is the average hash expected for a PNG first page drawn from
// pattern. It holds for any non-zero pattern.
func Fingerprint(pattern uint64) string {
	return fmt.Sprintf("%016x", pattern)
}

// PatternImage draws pattern as an 8x8 grid of light and dark cells.
func PatternImage(pattern uint64) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8*cellSize, 8*cellSize))
	light := color.RGBA{230, 230, 230, 255}
	dark := color.RGBA{20, 40, 60, 255}
	for cell := 0; cell < 64; cell++ {
		c := dark
		if pattern&(1<<(63-cell)) != 0 {
			c = light
		}
		cx, cy := (cell%8)*cellSize, (cell/8)*cellSize
		for y := cy; y < cy+cellSize; y++ {
			for x := cx; x < cx+cellSize; x++ {
				img.Set(x, y, c)
			}
		}
	}
	return img
}

// EncodeImage encodes img as "png", "jpeg"/"jpg" or "gif".
func EncodeImage(t *testing.T, img image.Image, format string) []byte {
	t.Helper()

	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg", "jpg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100})
	case "gif":
		err = gif.Encode(&buf, img, nil)
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		t.Fatalf("failed to encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func pageImages(t *testing.T, opts BookOptions) map[string][]byte {
	t.Helper()

	pages := make(map[string][]byte, opts.pageCount())
	for i := 0; i < opts.pageCount(); i++ {
		// Later pages only need to be valid images.
		pattern := opts.Pattern
		if i > 0 {
			pattern = ^pattern
		}
		name := fmt.Sprintf("%03d.%s", i+1, opts.ext())
		pages[name] = EncodeImage(t, PatternImage(pattern), opts.ImageFormat)
	}
	return pages
}
