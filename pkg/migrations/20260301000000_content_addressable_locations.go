package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`ALTER TABLE books ADD COLUMN fingerprint TEXT`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_books_fingerprint_page_count ON books (fingerprint, page_count)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE book_locations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				book_id INTEGER REFERENCES books (id) ON DELETE CASCADE NOT NULL,
				volume_id TEXT NOT NULL,
				base_path TEXT NOT NULL,
				relative_path TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'active'
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_book_locations_book_id ON book_locations (book_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_book_locations_base_path ON book_locations (base_path, volume_id)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE UNIQUE INDEX ux_book_locations_active_path
			ON book_locations (volume_id, base_path, relative_path)
			WHERE status = 'active'
`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP TABLE IF EXISTS book_locations")
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec("DROP INDEX IF EXISTS ix_books_fingerprint_page_count")
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec("ALTER TABLE books DROP COLUMN fingerprint")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
