// Package testgen generates books (image folders and zip archives) with
// predictable page images for tests.
package testgen

import (
	"os"
	"path/filepath"
	"testing"
)

// BookOptions configures a generated book.
type BookOptions struct {
	// Pattern selects the first page image. Bit 63 is the top-left cell of
	// an 8x8 grid and bit 0 the bottom-right; set bits are drawn light.
	Pattern uint64
	// PageCount defaults to 3.
	PageCount int
	// ImageFormat is "png" (default), "jpeg" or "gif".
	ImageFormat string
}

func (o BookOptions) pageCount() int {
	if o.PageCount <= 0 {
		return 3
	}
	return o.PageCount
}

func (o BookOptions) ext() string {
	switch o.ImageFormat {
	case "jpeg", "jpg":
		return "jpg"
	case "gif":
		return "gif"
	default:
		return "png"
	}
}

// CreateSubDir creates a subdirectory within the given parent directory.
// Returns the full path to the created subdirectory.
func CreateSubDir(t *testing.T, parent, name string) string {
	t.Helper()
	dir := filepath.Join(parent, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create subdirectory %s: %v", dir, err)
	}
	return dir
}

// WriteFile creates a file with the given content in the specified directory.
// Returns the full path to the created file.
func WriteFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// Move renames oldPath to newPath, creating newPath's parent directory.
func Move(t *testing.T, oldPath, newPath string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(newPath), err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatalf("failed to move %s: %v", oldPath, err)
	}
}

// Remove deletes a file or directory tree.
func Remove(t *testing.T, path string) {
	t.Helper()
	if err := os.RemoveAll(path); err != nil {
		t.Fatalf("failed to remove %s: %v", path, err)
	}
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
