package model

import (
	"time"
)

// Timestamps is embedded by every table. Records are hard-deleted, so there
// is no DeletedAt.
type Timestamps struct {
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Now returns the current instant at the precision the store keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
