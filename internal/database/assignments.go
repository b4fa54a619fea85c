package database

import (
	"fmt"
	"strings"
)

// Assignments collects the SET list of a partial UPDATE in the order columns
// were given.
type Assignments struct {
	cols []string
	args []any
}

// Set assigns col, replacing an earlier assignment of the same column.
func (a *Assignments) Set(col string, v any) {
	for i, c := range a.cols {
		if c == col {
			a.args[i] = v
			return
		}
	}
	a.cols = append(a.cols, col)
	a.args = append(a.args, v)
}

func (a *Assignments) Len() int { return len(a.cols) }

// Build renders "UPDATE table SET c1 = $1, ... WHERE id = $n".
func (a *Assignments) Build(table string, id int64) (string, []any) {
	sets := make([]string, len(a.cols))
	for i, c := range a.cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+1)
	}
	args := append(append([]any{}, a.args...), id)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args)), args
}
