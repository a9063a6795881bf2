// internal/plugin/schedule.go
//
// Cron expression parsing shared by registration and the scheduler.
//
// Expressions are parsed once, when a plugin calls Cron().Schedule, so an
// invalid one fails that plugin's load instead of its first tick.  The
// parsed cron.Schedule travels with the Job into the sealed tables.

package plugin

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// parser accepts standard five-field expressions plus descriptors such as
// "@hourly" and "@every 5m".
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseSchedule validates expr.  Errors match both ErrInvalidSchedule and
// ErrRegistrationConflict.
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: %w: empty expression", ErrRegistrationConflict, ErrInvalidSchedule)
	}
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %q: %v", ErrRegistrationConflict, ErrInvalidSchedule, expr, err)
	}
	return s, nil
}
