package db

import (
	"fmt"
	"strings"
)

// Predicates accumulates AND-ed SQL conditions with positional placeholders.
// Values are only ever passed as arguments, never formatted into the SQL text.
type Predicates struct {
	names   []string
	clauses []string
	args    []interface{}
}

// Add appends a condition. clause must contain exactly one "$%d" verb, which is
// replaced with the placeholder index assigned to arg.
func (p *Predicates) Add(name, clause string, arg interface{}) {
	p.args = append(p.args, arg)
	p.clauses = append(p.clauses, fmt.Sprintf(clause, len(p.args)))
	p.names = append(p.names, name)
}

// Where renders " WHERE a AND b", or "" when no predicate was added.
func (p *Predicates) Where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.clauses, " AND ")
}

func (p *Predicates) Args() []interface{} {
	return p.args
}

// Names lists the predicates in the order they were added, for logging.
func (p *Predicates) Names() []string {
	return p.names
}

func (p *Predicates) Len() int {
	return len(p.clauses)
}
