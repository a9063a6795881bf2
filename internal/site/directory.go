// internal/site/directory.go
//
// Read-only view of the `site` table.
//
// Context
// -------
// Tenant lifecycle is owned elsewhere (the admin surface).  The host only
// needs two questions answered:
//
//   • Which sites are active right now?  (cron fan-out)
//   • Which active site serves this host?  (tenant hint for global principals)
//
// Notes
// -----
// • Both queries filter on suspended_at / deleted_at so a suspended site
//   drops out of the next cron tick without a restart.
// • Oxford commas, two spaces after periods.
package site

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no active site matches.
var ErrNotFound = errors.New("site: not found")

// Directory answers site queries against the global database.
type Directory struct {
	db *sqlx.DB
}

// NewDirectory wraps db.
func NewDirectory(db *sqlx.DB) *Directory { return &Directory{db: db} }

// ActiveIDs returns the id of every site that is neither suspended nor
// deleted, in ascending order.
func (d *Directory) ActiveIDs(ctx context.Context) ([]int64, error) {
	const q = `
        SELECT id
        FROM   site
        WHERE  suspended_at IS NULL
          AND  deleted_at   IS NULL
        ORDER  BY id`
	ids := make([]int64, 0, 16)
	if err := d.db.SelectContext(ctx, &ids, q); err != nil {
		return nil, err
	}
	return ids, nil
}

// ByHost fetches the active site serving host.  Matching is
// case-insensitive on the bare host name.
func (d *Directory) ByHost(ctx context.Context, host string) (*Record, error) {
	const q = `
        SELECT id, host, title, locale, suspended_at, deleted_at
        FROM   site
        WHERE  host = ?
          AND  suspended_at IS NULL
          AND  deleted_at   IS NULL
        LIMIT  1`
	var rec Record
	if err := d.db.GetContext(ctx, &rec, q, strings.ToLower(host)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}
