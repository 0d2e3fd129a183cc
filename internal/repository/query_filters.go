package repository

import (
	"proctor_backend/internal/util"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// filterBuilder turns the recognised request filters of one kind into gorm
// scopes. All filters are ANDed together.
type filterBuilder struct {
	filters map[string]string
	dialect string
	scopes  []func(*gorm.DB) *gorm.DB
	invalid []string
	applied int
}

func newFilterBuilder(filters map[string]string, dialect string) *filterBuilder {
	return &filterBuilder{filters: filters, dialect: dialect}
}

func (b *filterBuilder) value(key string) (string, bool) {
	v, ok := b.filters[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (b *filterBuilder) add(scope func(*gorm.DB) *gorm.DB) {
	b.scopes = append(b.scopes, scope)
	b.applied++
}

func (b *filterBuilder) reject(key string) {
	b.invalid = append(b.invalid, key)
}

func (b *filterBuilder) uintEq(key, column string) {
	raw, ok := b.value(key)
	if !ok {
		return
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		b.reject(key)
		return
	}
	b.add(func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" = ?", v)
	})
}

func (b *filterBuilder) boolEq(key, column string) {
	raw, ok := b.value(key)
	if !ok {
		return
	}
	v, ok := util.ParseBool(raw)
	if !ok {
		b.reject(key)
		return
	}
	b.add(func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" = ?", v)
	})
}

// isNull filters on whether column is NULL: key=true keeps NULL rows.
func (b *filterBuilder) isNull(key, column string) {
	raw, ok := b.value(key)
	if !ok {
		return
	}
	v, ok := util.ParseBool(raw)
	if !ok {
		b.reject(key)
		return
	}
	b.add(func(db *gorm.DB) *gorm.DB {
		if v {
			return db.Where(column + " IS NULL")
		}
		return db.Where(column + " IS NOT NULL")
	})
}

// prefix is a case-sensitive starts-with test. LIKE is case-insensitive on
// both mysql's default collation and sqlite, so each dialect gets its own form.
func (b *filterBuilder) prefix(key, column string) {
	v, ok := b.value(key)
	if !ok {
		return
	}
	if b.dialect == "mysql" {
		b.add(func(db *gorm.DB) *gorm.DB {
			return db.Where(column+" LIKE BINARY ?", escapeLike(v)+"%")
		})
		return
	}
	b.add(func(db *gorm.DB) *gorm.DB {
		return db.Where("substr("+column+", 1, length(?)) = ?", v, v)
	})
}

// period applies period_start to startColumn and period_end to endColumn.
func (b *filterBuilder) period(startColumn, endColumn string) {
	if raw, ok := b.value("period_start"); ok {
		t, err := util.ParseTime(raw)
		if err != nil {
			b.reject("period_start")
		} else {
			b.add(func(db *gorm.DB) *gorm.DB {
				return db.Where(startColumn+" >= ?", t)
			})
		}
	}
	if raw, ok := b.value("period_end"); ok {
		t, err := util.ParseTime(raw)
		if err != nil {
			b.reject("period_end")
		} else {
			b.add(func(db *gorm.DB) *gorm.DB {
				return db.Where(endColumn+" <= ?", t)
			})
		}
	}
}

// warningCount adds the HAVING filters on the aggregated warning count.
func (b *filterBuilder) warningCount(expr string) {
	having := func(key, op string) {
		raw, ok := b.value(key)
		if !ok {
			return
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			b.reject(key)
			return
		}
		b.add(func(db *gorm.DB) *gorm.DB {
			return db.Having(expr+" "+op+" ?", n)
		})
	}
	having("warning_count", "=")
	having("min_warnings", ">=")
	having("max_warnings", "<=")

	if raw, ok := b.value("has_warnings"); ok {
		v, ok := util.ParseBool(raw)
		if !ok {
			b.reject("has_warnings")
			return
		}
		b.add(func(db *gorm.DB) *gorm.DB {
			if v {
				return db.Having(expr + " > 0")
			}
			return db.Having(expr + " = 0")
		})
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
