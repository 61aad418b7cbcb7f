package registry

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
	"github.com/shishobooks/shelfscan/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveBookOptions struct {
	ID               *int
	IncludeLocations bool
}

type ListLocationsOptions struct {
	BookID   *int
	BasePath *string
	VolumeID *string
	Statuses []string
	Limit    *int
}

type Service struct {
	db bun.IDB
}

var _ Registry = (*Service)(nil)

func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) RunInTx(ctx context.Context, fn func(ctx context.Context, reg Registry) error) error {
	if _, ok := svc.db.(bun.Tx); ok {
		return fn(ctx, svc)
	}
	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Service{db: tx})
	})
}

func (svc *Service) FindActiveLocation(ctx context.Context, volumeID, basePath, relativePath string) (*models.Location, error) {
	return svc.findLocation(ctx, volumeID, basePath, relativePath, models.LocationStatusActive)
}

func (svc *Service) FindMissingLocation(ctx context.Context, volumeID, basePath, relativePath string) (*models.Location, error) {
	return svc.findLocation(ctx, volumeID, basePath, relativePath, models.LocationStatusMissing)
}

func (svc *Service) findLocation(ctx context.Context, volumeID, basePath, relativePath, status string) (*models.Location, error) {
	loc := &models.Location{}
	err := svc.db.
		NewSelect().
		Model(loc).
		Where("bl.volume_id = ?", volumeID).
		Where("bl.base_path = ?", basePath).
		Where("bl.relative_path = ?", relativePath).
		Where("bl.status = ?", status).
		Order("bl.id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Location")
		}
		return nil, errors.WithStack(err)
	}
	return loc, nil
}

func (svc *Service) FindBookByFingerprint(ctx context.Context, fingerprint string, pageCount int) (*models.Book, error) {
	book := &models.Book{}
	err := svc.db.
		NewSelect().
		Model(book).
		Where("b.fingerprint = ?", fingerprint).
		Where("b.page_count = ?", pageCount).
		Order("b.id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}
	return book, nil
}

// FindLegacyBooksByTitleAndPageCount returns every book without a fingerprint
// that matches title and pageCount, oldest first.
func (svc *Service) FindLegacyBooksByTitleAndPageCount(ctx context.Context, title string, pageCount int) ([]*models.Book, error) {
	books := []*models.Book{}
	err := svc.db.
		NewSelect().
		Model(&books).
		Where("b.title = ?", title).
		Where("b.page_count = ?", pageCount).
		Where("b.fingerprint IS NULL").
		Order("b.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return books, nil
}

func (svc *Service) RetrieveBook(ctx context.Context, opts RetrieveBookOptions) (*models.Book, error) {
	book := &models.Book{}

	q := svc.db.
		NewSelect().
		Model(book)

	if opts.ID != nil {
		q = q.Where("b.id = ?", *opts.ID)
	}
	if opts.IncludeLocations {
		q = q.Relation("Locations", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("bl.id ASC")
		})
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}
	return book, nil
}

func (svc *Service) CreateBook(ctx context.Context, book *models.Book) error {
	now := time.Now()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = book.CreatedAt

	_, err := svc.db.
		NewInsert().
		Model(book).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// BackfillBookIdentity sets the fingerprint and thumbnail of a legacy book.
// It refuses to overwrite a fingerprint that is already set.
func (svc *Service) BackfillBookIdentity(ctx context.Context, book *models.Book, fingerprint string, thumbnail []byte) error {
	now := time.Now()
	res, err := svc.db.
		NewUpdate().
		Model((*models.Book)(nil)).
		Set("fingerprint = ?", fingerprint).
		Set("thumbnail = ?", thumbnail).
		Set("updated_at = ?", now).
		Where("id = ?", book.ID).
		Where("fingerprint IS NULL").
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("Book")
	}

	book.Fingerprint = &fingerprint
	book.Thumbnail = thumbnail
	book.UpdatedAt = now
	return nil
}

func (svc *Service) AddLocation(ctx context.Context, bookID int, volumeID, basePath, relativePath string) (*models.Location, error) {
	now := time.Now()
	loc := &models.Location{
		CreatedAt:    now,
		UpdatedAt:    now,
		BookID:       bookID,
		VolumeID:     volumeID,
		BasePath:     basePath,
		RelativePath: relativePath,
		Status:       models.LocationStatusActive,
	}
	_, err := svc.db.
		NewInsert().
		Model(loc).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return loc, nil
}

// UpdateLocationPath rewrites a location in place after a move. The row is
// made active again if it had been marked missing.
func (svc *Service) UpdateLocationPath(ctx context.Context, locationID int, basePath, relativePath string) error {
	res, err := svc.db.
		NewUpdate().
		Model((*models.Location)(nil)).
		Set("base_path = ?", basePath).
		Set("relative_path = ?", relativePath).
		Set("status = ?", models.LocationStatusActive).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", locationID).
		Exec(ctx)
	return checkAffected(res, err, "Location")
}

func (svc *Service) SetLocationStatus(ctx context.Context, locationID int, status string) error {
	if status != models.LocationStatusActive && status != models.LocationStatusMissing {
		return errors.Errorf("invalid location status %q", status)
	}
	res, err := svc.db.
		NewUpdate().
		Model((*models.Location)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", locationID).
		Exec(ctx)
	return checkAffected(res, err, "Location")
}

func (svc *Service) DeleteLocation(ctx context.Context, locationID int) error {
	res, err := svc.db.
		NewDelete().
		Model((*models.Location)(nil)).
		Where("id = ?", locationID).
		Exec(ctx)
	return checkAffected(res, err, "Location")
}

// DeleteOrphanBooks removes books that have no location rows at all and
// returns how many were removed. Books whose only locations are missing are
// kept.
func (svc *Service) DeleteOrphanBooks(ctx context.Context) (int, error) {
	res, err := svc.db.
		NewDelete().
		Model((*models.Book)(nil)).
		Where("NOT EXISTS (SELECT 1 FROM book_locations AS bl WHERE bl.book_id = b.id)").
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return int(n), errors.WithStack(err)
}

func (svc *Service) ListLocations(ctx context.Context, opts ListLocationsOptions) ([]*models.Location, error) {
	locs := []*models.Location{}

	q := svc.db.
		NewSelect().
		Model(&locs).
		Order("bl.id ASC")

	if opts.BookID != nil {
		q = q.Where("bl.book_id = ?", *opts.BookID)
	}
	if opts.BasePath != nil {
		q = q.Where("bl.base_path = ?", *opts.BasePath)
	}
	if opts.VolumeID != nil {
		q = q.Where("bl.volume_id = ?", *opts.VolumeID)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("bl.status IN (?)", bun.In(opts.Statuses))
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return locs, nil
}

// CountFingerprintCollisions returns the number of (fingerprint, page count)
// keys shared by more than one book. The scanner never creates such rows, so
// a non-zero count means books were merged or inserted outside a scan.
func (svc *Service) CountFingerprintCollisions(ctx context.Context) (int, error) {
	var count int
	err := svc.db.
		NewRaw(`SELECT count(*) FROM (
			SELECT 1 FROM books
			WHERE fingerprint IS NOT NULL
			GROUP BY fingerprint, page_count
			HAVING count(*) > 1
		)`).
		Scan(ctx, &count)
	return count, errors.WithStack(err)
}

func checkAffected(res sql.Result, err error, resource string) error {
	if err != nil {
		return errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if n == 0 {
		return errcodes.NotFound(resource)
	}
	return nil
}
