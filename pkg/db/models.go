package db

import "time"

// Dictionary is the stored record of one imported archive.
type Dictionary struct {
	ID         int64
	ImportID   string
	Title      string
	Revision   string
	Format     int
	ImportedAt time.Time
}
