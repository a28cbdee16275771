// Package option holds composable gorm query modifiers.
package option

import (
	pkgdb "github.com/smallbiznis/dongi/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QueryOption interface {
	Apply(*gorm.DB) *gorm.DB
}

type queryFunc func(*gorm.DB) *gorm.DB

func (f queryFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// OrderBy sorts by a trusted column expression.
func OrderBy(expr string) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB { return db.Order(expr) })
}

func Where(query string, args ...any) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) })
}

func Limit(n int) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB { return db.Limit(n) })
}

// ForUpdate row-locks the matched rows on dialects that support it.
func ForUpdate() QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if !pkgdb.SupportsRowLocks(db) {
			return db
		}
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	})
}
