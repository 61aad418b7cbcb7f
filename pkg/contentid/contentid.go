// Package contentid derives the content identity of a book from its first
// page: an average-hash fingerprint, the page count and a thumbnail.
package contentid

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	_ "image/jpeg"
	"image/png"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
	"github.com/shishobooks/shelfscan/pkg/pages"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const hashSize = 8

// Identity is what a book is recognized by regardless of where it lives.
type Identity struct {
	Fingerprint string
	PageCount   int
	Thumbnail   []byte
}

type Calculator struct {
	pages           pages.Source
	thumbnailWidth  int
	thumbnailHeight int
}

func NewCalculator(src pages.Source, thumbnailWidth, thumbnailHeight int) *Calculator {
	return &Calculator{
		pages:           src,
		thumbnailWidth:  thumbnailWidth,
		thumbnailHeight: thumbnailHeight,
	}
}

// Compute decodes only the first page of the book at bookPath. A book with no
// pages yields an errcodes.EmptyContent error and an undecodable first page
// an errcodes.DecodeFailure error.
func (c *Calculator) Compute(ctx context.Context, bookPath string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := c.pages.ListPageEntries(bookPath)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errcodes.EmptyContent(bookPath)
	}

	data, err := c.pages.ReadPageBytes(bookPath, 0)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(errcodes.DecodeFailure(bookPath), "%s: %s", entries[0], err)
	}

	thumb, err := Thumbnail(img, c.thumbnailWidth, c.thumbnailHeight)
	if err != nil {
		return nil, err
	}

	return &Identity{
		Fingerprint: AverageHash(img),
		PageCount:   len(entries),
		Thumbnail:   thumb,
	}, nil
}

// AverageHash downsamples img to an 8x8 grayscale grid and sets bit i (most
// significant first, row-major) when pixel i is at least the mean luminance.
// The result is 16 lowercase hex characters.
func AverageHash(img image.Image) string {
	gray := image.NewGray(image.Rect(0, 0, hashSize, hashSize))
	draw.BiLinear.Scale(gray, gray.Bounds(), img, img.Bounds(), draw.Src, nil)

	var sum int
	for _, p := range gray.Pix {
		sum += int(p)
	}

	var hash uint64
	n := len(gray.Pix)
	for _, p := range gray.Pix {
		hash <<= 1
		// p >= sum/n without losing the fraction.
		if int(p)*n >= sum {
			hash |= 1
		}
	}
	return fmt.Sprintf("%016x", hash)
}

// Thumbnail scales img to fit inside width x height keeping its aspect
// ratio, centers it on a transparent canvas and encodes it as PNG.
func Thumbnail(img image.Image, width, height int) ([]byte, error) {
	src := img.Bounds()
	if src.Empty() {
		return nil, errors.New("image has no pixels")
	}

	scale := min(float64(width)/float64(src.Dx()), float64(height)/float64(src.Dy()))
	w := max(1, int(float64(src.Dx())*scale+0.5))
	h := max(1, int(float64(src.Dy())*scale+0.5))
	x := (width - w) / 2
	y := (height - h) / 2

	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(canvas, image.Rect(x, y, x+w, y+h), img, src, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, errors.WithStack(err)
	}
	return buf.Bytes(), nil
}
