package option

import (
	"fmt"

	"github.com/croplytics/croplytics/pkg/db/pagination"
	"gorm.io/gorm"
)

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

// QueryOption mutates a gorm statement before it is executed.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(cond Condition) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if cond.Field == "" || cond.Value == nil {
			return db
		}
		return db.Where(fmt.Sprintf("%s %s ?", cond.Field, cond.Operator), cond.Value)
	})
}

// ApplyPagination applies a cursor page token and fetches one extra row so
// callers can detect whether more pages remain.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		size := page.PageSize
		if size <= 0 {
			size = 10
		}

		if page.PageToken != "" {
			cursor, err := pagination.DecodeCursor(page.PageToken)
			if err == nil && cursor.CreatedAt != "" {
				db = db.Where("created_at < ?", cursor.CreatedAt)
			}
		}

		return db.Limit(size + 1)
	})
}

type QuerySortBy struct {
	Field string
	Order string
	Allow map[string]bool
}

func WithQuerySortBy(field, order string, allow map[string]bool) QuerySortBy {
	return QuerySortBy{Field: field, Order: order, Allow: allow}
}

func WithSortBy(sort QuerySortBy) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		field := sort.Field
		if field == "" || !sort.Allow[field] {
			field = "created_at"
		}

		order := sort.Order
		if order != "asc" && order != "desc" {
			order = "desc"
		}

		return db.Order(fmt.Sprintf("%s %s", field, order))
	})
}
