package db

import (
	"fmt"
	"strings"
)

// Changes is an ordered set of column assignments for a partial UPDATE.
type Changes struct {
	cols []string
	vals []any
}

// Set assigns v to col. A repeated column keeps the last value.
func (c *Changes) Set(col string, v any) {
	for i, existing := range c.cols {
		if existing == col {
			c.vals[i] = v
			return
		}
	}
	c.cols = append(c.cols, col)
	c.vals = append(c.vals, v)
}

// Len is the number of assigned columns.
func (c *Changes) Len() int { return len(c.cols) }

// Each calls fn for every assignment in insertion order.
func (c *Changes) Each(fn func(col string, v any)) {
	for i, col := range c.cols {
		fn(col, c.vals[i])
	}
}

// SetClause renders "a=$n, b=$n+1" starting at placeholder n, and returns
// the matching arguments. Columns must come from code, never from input.
func (c *Changes) SetClause(n int) (string, []any) {
	parts := make([]string, len(c.cols))
	for i, col := range c.cols {
		parts[i] = fmt.Sprintf("%s=$%d", col, n+i)
	}
	args := make([]any, len(c.vals))
	copy(args, c.vals)
	return strings.Join(parts, ", "), args
}
