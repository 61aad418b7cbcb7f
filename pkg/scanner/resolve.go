package scanner

import (
	"context"

	"github.com/shishobooks/shelfscan/pkg/errcodes"
	"github.com/shishobooks/shelfscan/pkg/registry"
)

// ResolveBookPath returns the path of the first active location of a book
// whose file is present right now.
func (s *Scanner) ResolveBookPath(ctx context.Context, bookID int) (string, error) {
	book, err := s.registry.RetrieveBook(ctx, registry.RetrieveBookOptions{ID: &bookID, IncludeLocations: true})
	if err != nil {
		return "", err
	}
	for _, loc := range book.Locations {
		if !loc.IsActive() {
			continue
		}
		if gone, err := isGone(loc.FullPath()); err == nil && !gone {
			return loc.FullPath(), nil
		}
	}
	return "", errcodes.NotFound("Location")
}
