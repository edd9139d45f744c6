package loader

import (
	"context"

	"gorm.io/gorm"

	"github.com/ammar0144/postloader/pkg/db"
)

// Store executes the loader's SQL. *db.Manager implements it.
type Store interface {
	// Select runs a parameterized query and scans all rows into dest
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error

	// DB is the handle loaded posts are bound to
	DB() *gorm.DB

	// Dialect renders the backend specific expressions
	Dialect() db.Dialect
}

var _ Store = (*db.Manager)(nil)
