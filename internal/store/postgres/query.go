package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// windowQuery appends the ListOpts time window, newest-first ordering and
// pagination to base, numbering placeholders after the args already bound.
func windowQuery(base, timeCol string, opts domain.ListOpts, args []any) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	if !strings.Contains(strings.ToUpper(base), " WHERE ") {
		b.WriteString(" WHERE 1=1")
	}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Since != nil {
		fmt.Fprintf(&b, " AND %s >= %s", timeCol, next(*opts.Since))
	}
	if opts.Until != nil {
		fmt.Fprintf(&b, " AND %s <= %s", timeCol, next(*opts.Until))
	}
	fmt.Fprintf(&b, " ORDER BY %s DESC", timeCol)
	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %s", next(opts.Limit))
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %s", next(opts.Offset))
	}
	return b.String(), args
}
