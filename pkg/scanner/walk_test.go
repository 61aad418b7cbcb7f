package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/internal/testgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walk(t *testing.T, root string) []Candidate {
	t.Helper()
	ctx := logger.New().WithContext(context.Background())
	out, err := Walk(ctx, root)
	require.NoError(t, err)
	return out
}

func TestIsBookDirectory(t *testing.T) {
	dir := t.TempDir()
	testgen.WriteFile(t, dir, "notes.txt", []byte("x"))
	testgen.CreateSubDir(t, dir, "cover.jpg")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.False(t, IsBookDirectory(entries), "a directory named like an image is not a page")

	testgen.WriteFile(t, dir, "page.WEBP", []byte("x"))
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.True(t, IsBookDirectory(entries))
}

func TestIsBookDirectory_IgnoresResourceForks(t *testing.T) {
	dir := t.TempDir()
	testgen.WriteFile(t, dir, "._001.png", []byte("resource fork"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.False(t, IsBookDirectory(entries))
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	book := testgen.GenerateFolder(t, root, "series/book", testgen.BookOptions{Pattern: 1})
	testgen.GenerateFolder(t, book, "extras", testgen.BookOptions{Pattern: 2})
	bonus := testgen.GenerateZip(t, book, "bonus.cbz", testgen.BookOptions{Pattern: 3})
	deep := testgen.GenerateZip(t, root, "a/b/c/deep.zip", testgen.BookOptions{Pattern: 4})
	testgen.WriteFile(t, root, "fake.zip", []byte("this is not an archive"))
	testgen.GenerateZip(t, root, ".hidden/book.zip", testgen.BookOptions{Pattern: 5})
	testgen.GenerateFolder(t, root, ".trash", testgen.BookOptions{Pattern: 6})
	require.NoError(t, os.Symlink(book, filepath.Join(root, "link")))

	assert.Equal(t, []Candidate{
		{Path: deep, IsArchive: true},
		{Path: book},
		{Path: bonus, IsArchive: true},
	}, walk(t, root))
}

func TestWalk_RootIsBook(t *testing.T) {
	root := t.TempDir()
	testgen.WriteFile(t, root, "001.png", testgen.EncodeImage(t, testgen.PatternImage(1), "png"))

	assert.Equal(t, []Candidate{{Path: root}}, walk(t, root))
}

func TestWalk_MissingRoot(t *testing.T) {
	ctx := logger.New().WithContext(context.Background())
	_, err := Walk(ctx, filepath.Join(t.TempDir(), "gone"))
	assert.Error(t, err)
}

func TestWalk_Cancelled(t *testing.T) {
	root := t.TempDir()
	testgen.GenerateZip(t, root, "book.zip", testgen.BookOptions{Pattern: 1})

	ctx, cancel := context.WithCancel(logger.New().WithContext(context.Background()))
	cancel()
	_, err := Walk(ctx, root)
	assert.ErrorIs(t, err, context.Canceled)
}
