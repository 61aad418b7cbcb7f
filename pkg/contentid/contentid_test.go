package contentid

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfscan/internal/testgen"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
	"github.com/shishobooks/shelfscan/pkg/pages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCalculator() *Calculator {
	return NewCalculator(pages.NewSource(), 200, 300)
}

func TestAverageHash_Pattern(t *testing.T) {
	for _, pattern := range []uint64{1, 0xff00ff00ff00ff00, 0x8000000000000001, ^uint64(0)} {
		assert.Equal(t, testgen.Fingerprint(pattern), AverageHash(testgen.PatternImage(pattern)))
	}
}

func TestAverageHash_UniformImageIsAllOnes(t *testing.T) {
	assert.Equal(t, "ffffffffffffffff", AverageHash(testgen.PatternImage(0)))
}

func TestAverageHash_LeadingZerosPadded(t *testing.T) {
	h := AverageHash(testgen.PatternImage(0x00000000000000ff))
	assert.Len(t, h, 16)
	assert.Equal(t, "00000000000000ff", h)
}

func TestCompute_Deterministic(t *testing.T) {
	dir := t.TempDir()
	a := testgen.GenerateZip(t, dir, "a.zip", testgen.BookOptions{Pattern: 0x0f0f0f0f00000000, PageCount: 4})
	b := testgen.GenerateFolder(t, dir, "b", testgen.BookOptions{Pattern: 0x0f0f0f0f00000000, PageCount: 4})

	ctx := context.Background()
	c := newCalculator()
	idA, err := c.Compute(ctx, a)
	require.NoError(t, err)
	idA2, err := c.Compute(ctx, a)
	require.NoError(t, err)
	idB, err := c.Compute(ctx, b)
	require.NoError(t, err)

	assert.Equal(t, idA.Fingerprint, idA2.Fingerprint)
	assert.Equal(t, idA.Fingerprint, idB.Fingerprint)
	assert.Equal(t, testgen.Fingerprint(0x0f0f0f0f00000000), idA.Fingerprint)
	assert.Equal(t, 4, idA.PageCount)
	assert.Equal(t, idA.Thumbnail, idA2.Thumbnail)
}

func TestCompute_JPEGAndGIF(t *testing.T) {
	dir := t.TempDir()
	for _, format := range []string{"jpeg", "gif"} {
		p := testgen.GenerateFolder(t, dir, format, testgen.BookOptions{Pattern: 0xffff0000ffff0000, ImageFormat: format})
		id, err := newCalculator().Compute(context.Background(), p)
		require.NoError(t, err, format)
		assert.Len(t, id.Fingerprint, 16)
		assert.Equal(t, 3, id.PageCount)
	}
}

func TestCompute_EmptyContent(t *testing.T) {
	dir := t.TempDir()
	empty := testgen.CreateSubDir(t, dir, "empty")
	testgen.WriteFile(t, empty, "readme.txt", []byte("hi"))

	_, err := newCalculator().Compute(context.Background(), empty)
	assert.True(t, errors.Is(err, errcodes.EmptyContent(empty)))
}

func TestCompute_DecodeFailure(t *testing.T) {
	dir := t.TempDir()
	book := testgen.CreateSubDir(t, dir, "broken")
	testgen.WriteFile(t, book, "001.jpg", []byte("not really a jpeg"))

	_, err := newCalculator().Compute(context.Background(), book)
	assert.Equal(t, errcodes.CodeDecodeFailure, errcodes.Code(err))
}

func TestCompute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCalculator().Compute(ctx, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestThumbnail_Contain(t *testing.T) {
	// A wide 80x40 image fits 200 wide, so it is letterboxed top and bottom.
	wide := image.NewRGBA(image.Rect(0, 0, 80, 40))
	for i := range wide.Pix {
		wide.Pix[i] = 255
	}

	data, err := Thumbnail(wide, 200, 300)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 300), img.Bounds())

	_, _, _, corner := img.At(0, 0).RGBA()
	assert.Zero(t, corner, "letterbox is transparent")
	_, _, _, center := img.At(100, 150).RGBA()
	assert.Equal(t, uint32(0xffff), center)
}
