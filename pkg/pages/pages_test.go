package pages

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfscan/internal/testgen"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListPageEntries_Folder(t *testing.T) {
	dir := t.TempDir()
	book := testgen.GenerateFolder(t, dir, "book", testgen.BookOptions{Pattern: 1, PageCount: 3})
	testgen.WriteFile(t, book, "notes.txt", []byte("not a page"))
	testgen.CreateSubDir(t, book, "extras.png")

	names, err := NewSource().ListPageEntries(book)
	require.NoError(t, err)
	assert.Equal(t, []string{"001.png", "002.png", "003.png"}, names)
}

func TestListPageEntries_FolderSkipsAppleDouble(t *testing.T) {
	dir := t.TempDir()
	book := testgen.GenerateFolder(t, dir, "book", testgen.BookOptions{Pattern: 0x5a, PageCount: 2})
	testgen.WriteFile(t, book, "._001.png", []byte("resource fork"))
	testgen.WriteFile(t, book, "._002.png", []byte("resource fork"))
	testgen.WriteFile(t, book, ".DS_Store", []byte("finder"))

	names, err := NewSource().ListPageEntries(book)
	require.NoError(t, err)
	assert.Equal(t, []string{"001.png", "002.png"}, names)

	data, err := NewSource().ReadPageBytes(book, 0)
	require.NoError(t, err)
	assert.Equal(t, testgen.EncodeImage(t, testgen.PatternImage(0x5a), "png"), data)
}

func TestIsPageFile(t *testing.T) {
	assert.True(t, IsPageFile("001.jpg"))
	assert.False(t, IsPageFile("._001.jpg"))
	assert.False(t, IsPageFile(".cover.png"))
	assert.False(t, IsPageFile("notes.txt"))
}

func TestListPageEntries_ZipSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.zip")

	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	img := testgen.EncodeImage(t, testgen.PatternImage(0xf0), "png")
	for _, name := range []string{"b/002.PNG", "a/010.jpg", "__MACOSX/a/._010.jpg", "ComicInfo.xml", "a/001.webp"} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(img)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	names, err := NewSource().ListPageEntries(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/001.webp", "a/010.jpg", "b/002.PNG"}, names)
}

func TestReadPageBytes(t *testing.T) {
	dir := t.TempDir()
	archive := testgen.GenerateZip(t, dir, "book.cbz", testgen.BookOptions{Pattern: 0xabc})
	folder := testgen.GenerateFolder(t, dir, "folder", testgen.BookOptions{Pattern: 0xabc})
	want := testgen.EncodeImage(t, testgen.PatternImage(0xabc), "png")

	for _, p := range []string{archive, folder} {
		data, err := NewSource().ReadPageBytes(p, 0)
		require.NoError(t, err)
		assert.Equal(t, want, data, p)

		_, err = NewSource().ReadPageBytes(p, 3)
		assert.Error(t, err)
	}
}

func TestListPageEntries_CorruptArchive(t *testing.T) {
	dir := t.TempDir()
	path := testgen.WriteFile(t, dir, "broken.zip", []byte("definitely not a zip"))

	_, err := NewSource().ListPageEntries(path)
	assert.True(t, errors.Is(err, errcodes.DecodeFailure(path)))
}

func TestIsArchive(t *testing.T) {
	dir := t.TempDir()
	archive := testgen.GenerateZip(t, dir, "book.cbz", testgen.BookOptions{Pattern: 1})
	fake := testgen.WriteFile(t, dir, "fake.zip", []byte("plain text"))
	other := testgen.WriteFile(t, dir, "book.rar", []byte("Rar!"))

	ok, err := IsArchive(archive)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsArchive(fake)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = IsArchive(other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsImageName(t *testing.T) {
	assert.True(t, IsImageName("cover.JPG"))
	assert.True(t, IsImageName("p.webp"))
	assert.False(t, IsImageName("ComicInfo.xml"))
	assert.True(t, IsArchiveName("x.CBZ"))
	assert.False(t, IsArchiveName("x.rar"))
}
