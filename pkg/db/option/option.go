package option

import (
	"strconv"

	"github.com/smallbiznis/jukubill/pkg/db/pagination"
	"gorm.io/gorm"
)

// QueryOption mutates a query before it is executed.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryFunc func(db *gorm.DB) *gorm.DB

func (f queryFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

func WithOrder(order string) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB { return db.Order(order) })
}

func WithLimit(limit int) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithWhere(query string, args ...any) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) })
}

func WithIDs(ids any) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB { return db.Where("id IN ?", ids) })
}

// ApplyPagination fetches one row beyond the page size, newest id first,
// starting after the cursor carried by the page token.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return queryFunc(func(db *gorm.DB) *gorm.DB {
		if page.PageToken != "" {
			if cursor, err := pagination.DecodeCursor(page.PageToken); err == nil {
				if id, err := strconv.ParseInt(cursor.ID, 10, 64); err == nil {
					db = db.Where("id < ?", id)
				}
			}
		}
		return db.Order("id desc").Limit(page.Limit() + 1)
	})
}
