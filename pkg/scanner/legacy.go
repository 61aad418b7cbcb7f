package scanner

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/shishobooks/shelfscan/pkg/contentid"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
	"github.com/shishobooks/shelfscan/pkg/models"
	"github.com/shishobooks/shelfscan/pkg/registry"
	"golang.org/x/text/unicode/norm"
)

// titleFromPath is the display title of a new book: the archive name
// without its extension, or the directory name.
func titleFromPath(c Candidate) string {
	name := filepath.Base(c.Path)
	if c.IsArchive {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return norm.NFC.String(name)
}

// legacyTitles are the titles a pre-fingerprint catalog row for c may carry.
func legacyTitles(c Candidate) []string {
	name := filepath.Base(c.Path)
	stripped := strings.TrimSuffix(name, filepath.Ext(name))

	candidates := []string{stripped, norm.NFC.String(stripped)}
	if !c.IsArchive {
		// Directory names with a dot lost their tail in old rows; newer
		// rows kept the whole name.
		candidates = append(candidates, name, norm.NFC.String(name))
	}

	var titles []string
	seen := map[string]struct{}{}
	for _, t := range candidates {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		titles = append(titles, t)
	}
	return titles
}

// matchLegacyBook upgrades the unique pre-fingerprint row matching c by title
// and page count, giving it ident's fingerprint and thumbnail. It returns
// nil when nothing matches and an errcodes.AmbiguousLegacyMatch error when
// more than one row does.
func matchLegacyBook(ctx context.Context, reg registry.Registry, c Candidate, ident *contentid.Identity) (*models.Book, error) {
	var matches []*models.Book
	seen := map[int]struct{}{}
	for _, title := range legacyTitles(c) {
		books, err := reg.FindLegacyBooksByTitleAndPageCount(ctx, title, ident.PageCount)
		if err != nil {
			return nil, err
		}
		for _, b := range books {
			if !b.IsLegacy() {
				continue
			}
			if _, ok := seen[b.ID]; ok {
				continue
			}
			seen[b.ID] = struct{}{}
			matches = append(matches, b)
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, errcodes.AmbiguousLegacyMatch(matches[0].Title, ident.PageCount)
	}

	book := matches[0]
	if err := reg.BackfillBookIdentity(ctx, book, ident.Fingerprint, ident.Thumbnail); err != nil {
		return nil, err
	}
	return book, nil
}
