// Package pages lists and reads the page images of a book, which is either a
// directory of images or a zip archive of them.
package pages

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
)

// maxPageSize caps how much of one page is read, so a hostile archive cannot
// exhaust memory.
const maxPageSize = 100 * 1024 * 1024

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".gif":  {},
	".bmp":  {},
}

var archiveExtensions = map[string]struct{}{
	".zip": {},
	".cbz": {},
}

// IsImageName reports whether name has a page image extension.
func IsImageName(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsPageFile reports whether a file inside a book directory is a page.
// Hidden files, including the ._ resource forks macOS leaves on FAT and
// exFAT drives, never are.
func IsPageFile(name string) bool {
	return !strings.HasPrefix(name, ".") && IsImageName(name)
}

// IsArchiveName reports whether name has a supported archive extension.
func IsArchiveName(name string) bool {
	_, ok := archiveExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// IsArchive reports whether the file at p has an archive extension and
// actually holds zip data.
func IsArchive(p string) (bool, error) {
	if !IsArchiveName(p) {
		return false, nil
	}
	mtype, err := mimetype.DetectFile(p)
	if err != nil {
		return false, errors.WithStack(err)
	}
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return true, nil
		}
	}
	return false, nil
}

// Source gives access to the ordered page images of a book.
type Source interface {
	// ListPageEntries returns the page entry names in lexicographic order.
	ListPageEntries(bookPath string) ([]string, error)
	// ReadPageBytes returns the raw bytes of the page at index.
	ReadPageBytes(bookPath string, index int) ([]byte, error)
}

// FSSource reads books from the local filesystem.
type FSSource struct{}

var _ Source = FSSource{}

func NewSource() FSSource {
	return FSSource{}
}

func (FSSource) ListPageEntries(bookPath string) ([]string, error) {
	info, err := os.Stat(bookPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if info.IsDir() {
		return listFolder(bookPath)
	}

	zr, err := zip.OpenReader(bookPath)
	if err != nil {
		return nil, errors.Wrap(errcodes.DecodeFailure(bookPath), err.Error())
	}
	defer zr.Close()

	files := sortedImageFiles(&zr.Reader)
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names, nil
}

func (FSSource) ReadPageBytes(bookPath string, index int) ([]byte, error) {
	info, err := os.Stat(bookPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if info.IsDir() {
		names, err := listFolder(bookPath)
		if err != nil {
			return nil, err
		}
		if index < 0 || index >= len(names) {
			return nil, errors.Errorf("page %d out of range (%d pages)", index, len(names))
		}
		f, err := os.Open(filepath.Join(bookPath, names[index]))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		defer f.Close()
		return readLimited(f)
	}

	zr, err := zip.OpenReader(bookPath)
	if err != nil {
		return nil, errors.Wrap(errcodes.DecodeFailure(bookPath), err.Error())
	}
	defer zr.Close()

	files := sortedImageFiles(&zr.Reader)
	if index < 0 || index >= len(files) {
		return nil, errors.Errorf("page %d out of range (%d pages)", index, len(files))
	}
	rc, err := files[index].Open()
	if err != nil {
		return nil, errors.Wrap(errcodes.DecodeFailure(bookPath), err.Error())
	}
	defer rc.Close()
	return readLimited(rc)
}

func listFolder(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsPageFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func sortedImageFiles(zr *zip.Reader) []*zip.File {
	var files []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || isMetadataEntry(f.Name) || !IsImageName(f.Name) {
			continue
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})
	return files
}

// isMetadataEntry matches resource-fork entries written by macOS archivers.
func isMetadataEntry(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._")
}

func readLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxPageSize+1))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if n > maxPageSize {
		return nil, errors.Errorf("page exceeds %d bytes", maxPageSize)
	}
	return buf.Bytes(), nil
}
