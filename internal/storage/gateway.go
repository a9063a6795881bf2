// internal/storage/gateway.go
//
// Tenant-scoped storage gateway.
//
// Context
// -------
// Plugins never see the raw *sqlx.DB.  They call the gateway through their
// capability object, which fixes the plugin slug:
//
//	CreateTable(slug, logical, cols)  – idempotent DDL on plugin_<slug>_<logical>.
//	TableName(slug, logical)          – pure naming, see naming.go.
//	Query(slug, stmt, args…)          – rows as []Row.
//	Exec(slug, stmt, args…)           – statements without rows.
//
// Trust boundary
// --------------
// The gateway does not parse or rewrite statements.  Tenant filtering of
// plugin data is the plugin's job, using the site id from its request or
// job context.  The host only guarantees that a logical name resolves to a
// physical table that no other plugin can collide with.
//
// Notes
// -----
// • One shared pool for every plugin and tenant.
// • Driver errors are wrapped in *QueryError and returned; no retries.
// • Oxford commas, two spaces after periods.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// MySQL server error numbers the gateway recognises.
const (
	erTableExists = 1050
	erNoSuchTable = 1146
)

var (
	// ErrInvalidSpec covers bad slugs, logical names, and column specs.
	ErrInvalidSpec = errors.New("storage: invalid table spec")
	// ErrIncompatibleTable means the table exists without a declared column.
	ErrIncompatibleTable = errors.New("storage: incompatible table shape")
	// ErrNoSuchTable marks a QueryError caused by a missing table, usually a
	// plugin querying a logical name it never created.
	ErrNoSuchTable = errors.New("storage: no such table")
)

// QueryError wraps a driver failure with the plugin that issued it.
type QueryError struct {
	Plugin    string
	Statement string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("storage: query failed for plugin %q: %v", e.Plugin, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNoSuchTable) see through the driver error.
func (e *QueryError) Is(target error) bool {
	return target == ErrNoSuchTable && mysqlErrno(e.Err) == erNoSuchTable
}

func mysqlErrno(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// Row is one result row keyed by column name.  Text and blob columns are
// returned as string.
type Row map[string]any

// Gateway executes plugin storage calls against the shared pool.
type Gateway struct {
	db  *sqlx.DB
	log *zap.SugaredLogger
}

// NewGateway wraps db.  log may be nil.
func NewGateway(db *sqlx.DB, log *zap.SugaredLogger) *Gateway {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Gateway{db: db, log: log.Named("storage")}
}

// TableName is the pure naming function bound to the gateway for
// capability wiring.
func (g *Gateway) TableName(slug, logical string) string { return TableName(slug, logical) }

// CreateTable creates plugin_<slug>_<logical> if missing.  An existing table
// that already has every declared column is left alone.  One that lacks a
// column yields ErrIncompatibleTable and is not altered.
func (g *Gateway) CreateTable(ctx context.Context, slug, logical string, cols []Column) error {
	if !ValidSlug(slug) {
		return fmt.Errorf("%w: slug %q", ErrInvalidSpec, slug)
	}
	if LogicalPart(logical) == "" {
		return fmt.Errorf("%w: logical name %q", ErrInvalidSpec, logical)
	}
	table := TableName(slug, logical)
	if len(table) > MaxIdentLen {
		return fmt.Errorf("%w: table name %q exceeds %d characters", ErrInvalidSpec, table, MaxIdentLen)
	}
	if err := validateColumns(cols); err != nil {
		return err
	}

	existing, err := g.existingColumns(ctx, table)
	if err != nil {
		return &QueryError{Plugin: slug, Statement: "information_schema.columns", Err: err}
	}

	if len(existing) > 0 {
		var missing []string
		for _, c := range cols {
			if _, ok := existing[c.Name]; !ok {
				missing = append(missing, c.Name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s lacks column(s) %s",
				ErrIncompatibleTable, table, strings.Join(missing, ", "))
		}
		g.log.Debugw("table already present", "plugin", slug, "table", table)
		return nil
	}

	ddl := createDDL(table, cols)
	if _, err := g.db.ExecContext(ctx, ddl); err != nil {
		if mysqlErrno(err) == erTableExists {
			// Another instance won the race between the probe and the DDL.
			g.log.Debugw("table created concurrently", "plugin", slug, "table", table)
			return nil
		}
		return &QueryError{Plugin: slug, Statement: ddl, Err: err}
	}
	g.log.Infow("table created", "plugin", slug, "table", table)
	return nil
}

func (g *Gateway) existingColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	const q = `SELECT column_name
                 FROM information_schema.columns
                WHERE table_schema = DATABASE() AND table_name = ?`

	var names []string
	if err := g.db.SelectContext(ctx, &names, q, table); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = struct{}{}
	}
	return set, nil
}

// Query runs stmt and returns every row.
func (g *Gateway) Query(ctx context.Context, slug, stmt string, args ...any) ([]Row, error) {
	rows, err := g.db.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, &QueryError{Plugin: slug, Statement: stmt, Err: err}
	}
	defer rows.Close()

	out := make([]Row, 0, 8)
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, &QueryError{Plugin: slug, Statement: stmt, Err: err}
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Plugin: slug, Statement: stmt, Err: err}
	}
	return out, nil
}

// Exec runs a statement that returns no rows.
func (g *Gateway) Exec(ctx context.Context, slug, stmt string, args ...any) (sql.Result, error) {
	res, err := g.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, &QueryError{Plugin: slug, Statement: stmt, Err: err}
	}
	return res, nil
}
