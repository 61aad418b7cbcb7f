package models

import (
	"path/filepath"
	"time"

	"github.com/uptrace/bun"
)

const (
	LocationStatusActive  = "active"
	LocationStatusMissing = "missing"
)

// Location is one placement of a book on disk. (VolumeID, BasePath,
// RelativePath) is unique among active rows.
type Location struct {
	bun.BaseModel `bun:"table:book_locations,alias:bl"`

	ID           int       `bun:",pk,nullzero" json:"id"`
	CreatedAt    time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	BookID       int       `bun:",notnull" json:"book_id"`
	Book         *Book     `bun:"rel:belongs-to,join:book_id=id" json:"book,omitempty"`
	VolumeID     string    `bun:",notnull" json:"volume_id"`
	BasePath     string    `bun:",notnull" json:"base_path"`
	RelativePath string    `bun:",notnull" json:"relative_path"`
	Status       string    `bun:",notnull" json:"status"`
}

// FullPath joins the base and relative paths as last observed. The volume
// may have been remounted elsewhere since.
func (l *Location) FullPath() string {
	return filepath.Join(l.BasePath, filepath.FromSlash(l.RelativePath))
}

func (l *Location) IsActive() bool {
	return l.Status == LocationStatusActive
}
