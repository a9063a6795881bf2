package site

import "time"

// Record mirrors one row in the persistent `site` table.  The operational
// state is captured by two nullable timestamps:
//
//   - SuspendedAt – site is temporarily disabled (e.g., billing).
//   - DeletedAt   – site is permanently removed.
//
// Either timestamp being non-NULL removes the site from ActiveIDs and from
// host resolution.  The plugin host never writes this table.
type Record struct {
	ID          int64      `db:"id"`
	Host        string     `db:"host"`
	Title       string     `db:"title"`
	Locale      string     `db:"locale"`
	SuspendedAt *time.Time `db:"suspended_at"`
	DeletedAt   *time.Time `db:"deleted_at"`
}

// Active reports whether the record is neither suspended nor deleted.
func (r Record) Active() bool { return r.SuspendedAt == nil && r.DeletedAt == nil }
