package repository

import (
	"fmt"
	"strings"
)

// queryFilter accumulates WHERE conditions with incrementing positional args.
// Conditions reference their placeholder as $%d, or $%[1]d when the same arg
// appears more than once.
type queryFilter struct {
	where string
	args  []interface{}
}

func newQueryFilter(base string, args ...interface{}) *queryFilter {
	return &queryFilter{where: base, args: args}
}

func (f *queryFilter) And(expr string, arg interface{}) {
	f.args = append(f.args, arg)
	f.where += " AND " + fmt.Sprintf(expr, len(f.args))
}

// sortColumn whitelists the requested sort column against known columns.
func sortColumn(requested string, allowed map[string]bool, fallback string) string {
	if allowed[requested] {
		return requested
	}
	return fallback
}

// sortDirection normalises the requested direction to ASC or DESC.
func sortDirection(requested, fallback string) string {
	dir := strings.ToUpper(requested)
	if dir != "ASC" && dir != "DESC" {
		return fallback
	}
	return dir
}

// clampPage bounds page and size and returns the LIMIT and OFFSET to apply.
func clampPage(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}
