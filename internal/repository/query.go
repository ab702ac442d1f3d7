package repository

import (
	"fmt"
	"strings"
	"time"
)

// whereBuilder collects AND-ed conditions with positional arguments.
type whereBuilder struct {
	clauses []string
	args    []any
}

// add appends a condition; cond must contain a single %d for the placeholder index.
func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) dateRange(column string, from, to *time.Time) {
	if from != nil {
		w.add(column+" >= $%d", *from)
	}
	if to != nil {
		w.add(column+" < $%d", *to)
	}
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// next returns the placeholder index for an argument appended after the conditions.
func (w *whereBuilder) next(arg any) int {
	w.args = append(w.args, arg)
	return len(w.args)
}
