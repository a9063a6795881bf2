// internal/storage/columns.go
//
// Column specs and DDL rendering.
//
// Context
// -------
// Plugins describe their tables as a list of Column values instead of raw
// DDL.  Each field is validated with go-playground/validator using three
// custom rules:
//
//	ident       – [a-z][a-z0-9_]*, max 64.
//	sqltype     – a bare MySQL type with optional (n) or (n,m) and UNSIGNED.
//	sqldefault  – a numeric literal, a single-quoted string, NULL, or an
//	              upper-case keyword such as CURRENT_TIMESTAMP.
//
// Anything else is rejected before it can reach the database.

package storage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Column describes one column of a plugin table.
type Column struct {
	Name          string `validate:"required,max=64,ident"`
	Type          string `validate:"required,max=64,sqltype"`
	NotNull       bool
	PrimaryKey    bool
	AutoIncrement bool
	Default       string `validate:"omitempty,max=128,sqldefault"`
}

var (
	identRe   = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	sqlTypeRe = regexp.MustCompile(`^(?i)[a-z]+(\(\d+(,\s*\d+)?\))?( unsigned)?$`)
	defaultRe = regexp.MustCompile(`^(-?\d+(\.\d+)?|'([^'\\]|\\.)*'|NULL|[A-Z_]+(\(\))?)$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	must := func(tag string, re *regexp.Regexp) {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	}
	must("ident", identRe)
	must("sqltype", sqlTypeRe)
	must("sqldefault", defaultRe)
	return v
}

// validateColumns checks every column and rejects duplicates.
func validateColumns(cols []Column) error {
	if len(cols) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidSpec)
	}
	seen := make(map[string]struct{}, len(cols))
	for i := range cols {
		if err := validate.Struct(&cols[i]); err != nil {
			return fmt.Errorf("%w: column %d: %v", ErrInvalidSpec, i, err)
		}
		if _, dup := seen[cols[i].Name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidSpec, cols[i].Name)
		}
		seen[cols[i].Name] = struct{}{}
	}
	return nil
}

// createDDL renders a single-line CREATE TABLE IF NOT EXISTS statement.
func createDDL(table string, cols []Column) string {
	defs := make([]string, 0, len(cols)+1)
	var pk []string
	for _, c := range cols {
		var b strings.Builder
		b.WriteString(quoteIdent(c.Name))
		b.WriteByte(' ')
		b.WriteString(strings.ToUpper(c.Type))
		if c.NotNull || c.PrimaryKey {
			b.WriteString(" NOT NULL")
		}
		if c.AutoIncrement {
			b.WriteString(" AUTO_INCREMENT")
		}
		if c.Default != "" {
			b.WriteString(" DEFAULT ")
			b.WriteString(c.Default)
		}
		defs = append(defs, b.String())
		if c.PrimaryKey {
			pk = append(pk, quoteIdent(c.Name))
		}
	}
	if len(pk) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}
	return "CREATE TABLE IF NOT EXISTS " + quoteIdent(table) + " (" + strings.Join(defs, ", ") + ")"
}
