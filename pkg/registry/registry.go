// Package registry persists books and their on-disk locations.
package registry

import (
	"context"

	"github.com/shishobooks/shelfscan/pkg/models"
)

// Registry is the catalog store used by the scanner. Lookups that find
// nothing return an errcodes.NotFound error.
type Registry interface {
	FindActiveLocation(ctx context.Context, volumeID, basePath, relativePath string) (*models.Location, error)
	FindMissingLocation(ctx context.Context, volumeID, basePath, relativePath string) (*models.Location, error)
	FindBookByFingerprint(ctx context.Context, fingerprint string, pageCount int) (*models.Book, error)
	FindLegacyBooksByTitleAndPageCount(ctx context.Context, title string, pageCount int) ([]*models.Book, error)
	RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error)

	CreateBook(ctx context.Context, book *models.Book) error
	BackfillBookIdentity(ctx context.Context, book *models.Book, fingerprint string, thumbnail []byte) error
	AddLocation(ctx context.Context, bookID int, volumeID, basePath, relativePath string) (*models.Location, error)
	UpdateLocationPath(ctx context.Context, locationID int, basePath, relativePath string) error
	SetLocationStatus(ctx context.Context, locationID int, status string) error
	DeleteLocation(ctx context.Context, locationID int) error
	DeleteOrphanBooks(ctx context.Context) (int, error)

	ListLocations(ctx context.Context, opts ListLocationsOptions) ([]*models.Location, error)
	CountFingerprintCollisions(ctx context.Context) (int, error)

	// RunInTx calls fn with a Registry bound to one transaction. Nested calls
	// reuse the outer transaction.
	RunInTx(ctx context.Context, fn func(ctx context.Context, reg Registry) error) error
}
