package testgen

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// GenerateZip writes a zip archive book at dir/filename and returns its path.
func GenerateZip(t *testing.T, dir, filename string, opts BookOptions) string {
	t.Helper()

	path := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create zip file: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	pages := pageImages(t, opts)
	names := make([]string, 0, len(pages))
	for name := range pages {
		names = append(names, name)
	}
	// Write out of order so readers must sort.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write(pages[name]); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip file: %v", err)
	}

	return path
}

// GenerateFolder writes a folder book at dir/name and returns its path.
func GenerateFolder(t *testing.T, dir, name string, opts BookOptions) string {
	t.Helper()

	path := CreateSubDir(t, dir, name)
	for page, data := range pageImages(t, opts) {
		WriteFile(t, path, page, data)
	}
	return path
}
