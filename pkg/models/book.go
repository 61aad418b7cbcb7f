package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Book is one logical work. Once Fingerprint is set, (Fingerprint, PageCount)
// is its identity; Title is display only.
type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID          int         `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time   `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time   `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	Title       string      `bun:",notnull" json:"title"`
	Fingerprint *string     `json:"fingerprint"`
	PageCount   int         `bun:",notnull" json:"page_count"`
	Thumbnail   []byte      `json:"-"`
	Rating      int         `bun:",notnull,default:0" json:"rating"`
	Favorite    bool        `bun:",notnull,default:false" json:"favorite"`
	ReadCount   int         `bun:",notnull,default:0" json:"read_count"`
	Locations   []*Location `bun:"rel:has-many,join:id=book_id" json:"locations,omitempty"`

	// Path is the pre-fingerprint location column; rows created by this
	// module never set it.
	Path *string `json:"-"`
}

// IsLegacy reports whether the book predates content fingerprinting.
func (b *Book) IsLegacy() bool {
	return b.Fingerprint == nil
}
