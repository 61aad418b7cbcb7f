package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/pkg/pages"
)

// Candidate is a path that may hold a book: a directory that directly
// contains page images, or a zip archive.
type Candidate struct {
	Path      string
	IsArchive bool
}

// IsBookDirectory reports whether a directory listing contains at least one
// page image file. Hidden files do not count.
func IsBookDirectory(entries []fs.DirEntry) bool {
	for _, e := range entries {
		if !e.IsDir() && pages.IsPageFile(e.Name()) {
			return true
		}
	}
	return false
}

// Walk lists the candidates under root in lexical order. A book directory's
// subdirectories are not descended into, but archives directly inside it are
// still candidates. Hidden entries and symlinks are ignored. Unreadable
// subdirectories are logged and skipped; an unreadable root is an error.
func Walk(ctx context.Context, root string) ([]Candidate, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var out []Candidate
	if err := walkEntries(ctx, root, entries, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkEntries(ctx context.Context, dir string, entries []fs.DirEntry, out *[]Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := logger.FromContext(ctx)

	isBook := IsBookDirectory(entries)
	if isBook {
		*out = append(*out, Candidate{Path: dir})
	}

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || e.Type()&fs.ModeSymlink != 0 {
			continue
		}
		p := filepath.Join(dir, e.Name())

		if e.IsDir() {
			if isBook {
				continue
			}
			sub, err := os.ReadDir(p)
			if err != nil {
				log.Warn("skipping unreadable directory", logger.Data{"path": p, "error": err.Error()})
				continue
			}
			if err := walkEntries(ctx, p, sub, out); err != nil {
				return err
			}
			continue
		}

		if !e.Type().IsRegular() || !pages.IsArchiveName(e.Name()) {
			continue
		}
		ok, err := pages.IsArchive(p)
		if err != nil {
			log.Warn("can't detect the mime type of an archive", logger.Data{"path": p, "error": err.Error()})
			continue
		}
		if !ok {
			log.Warn("archive extension without zip content", logger.Data{"path": p})
			continue
		}
		*out = append(*out, Candidate{Path: p, IsArchive: true})
	}
	return nil
}
