// Package sqlbuilder is a minimal, composable SQL expression builder: a
// where-tree of Query fragments and a Select that renders them into a full
// statement. Trees are immutable and parent-less (see DESIGN.md for why);
// mutation is expressed as rebuilding a new tree rather than editing one
// in place.
package sqlbuilder

import (
	"fmt"
	"strings"
)

// Query is a WHERE-clause fragment.
type Query interface {
	ToSQL() string
}

// TrueQuery is the constant "1", the identity element for AND/OR
// composition.
type TrueQuery struct{}

func (TrueQuery) ToSQL() string { return "1" }

// True is the shared TrueQuery value.
var True = TrueQuery{}

// SimpleQuery is an opaque SQL fragment, e.g. "c.published >= ?".
type SimpleQuery struct {
	Text string
}

func (q SimpleQuery) ToSQL() string { return q.Text }

// CompoundQuery is an AND or OR of child fragments.
type CompoundQuery struct {
	Operand  string // "AND" or "OR"
	Children []Query
}

func (q CompoundQuery) ToSQL() string {
	if len(q.Children) == 0 {
		return True.ToSQL()
	}
	if len(q.Children) == 1 {
		return q.Children[0].ToSQL()
	}
	parts := make([]string, len(q.Children))
	for i, c := range q.Children {
		parts[i] = "(" + c.ToSQL() + ")"
	}
	return strings.Join(parts, " "+q.Operand+" ")
}

// And builds the conjunction of qs: TrueQuery children are dropped, nested
// ANDs are flattened, an empty result is TrueQuery, and a singleton is
// returned unwrapped.
func And(qs ...Query) Query { return create("AND", qs) }

// Or builds the disjunction of qs with the same simplification rules as
// And.
func Or(qs ...Query) Query { return create("OR", qs) }

func create(operand string, qs []Query) Query {
	var flat []Query
	for _, q := range qs {
		if q == nil {
			continue
		}
		switch v := q.(type) {
		case TrueQuery:
			continue
		case CompoundQuery:
			if v.Operand == operand {
				flat = append(flat, v.Children...)
				continue
			}
		}
		flat = append(flat, q)
	}
	switch len(flat) {
	case 0:
		return True
	case 1:
		return flat[0]
	default:
		return CompoundQuery{Operand: operand, Children: flat}
	}
}

// Select assembles a full SELECT statement. Where may be nil, meaning no
// filter; OrderBy and Limit are optional.
type Select struct {
	Columns    string
	FromTables string
	Where      Query
	OrderBy    string
	Descending bool
	Limit      *int
	Params     []any
}

func (s Select) ToSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", s.Columns, s.FromTables)
	if s.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(s.Where.ToSQL())
	}
	if s.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(s.OrderBy)
		if s.Descending {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	if s.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *s.Limit)
	}
	return b.String()
}

// CPEPlaceholder is a placeholder left in a where-tree by the query
// compiler for a CPE predicate that cannot be expressed as a plain SQL
// fragment until the schema's join shape is known. Its ToSQL must never be
// called: callers extract it with ExtractCPEQueries before finalizing the
// tree. Pattern is opaque here (interpreted by the compiler package).
type CPEPlaceholder struct {
	Pattern any
}

func (CPEPlaceholder) ToSQL() string {
	panic("sqlbuilder: CPEPlaceholder.ToSQL must never be called")
}

// ExtractCPEQueries walks q, removing every CPEPlaceholder and returning
// the rebuilt tree (nil if nothing remains) alongside the extracted
// placeholders, in the order encountered.
func ExtractCPEQueries(q Query) (Query, []CPEPlaceholder) {
	switch v := q.(type) {
	case nil:
		return nil, nil
	case CPEPlaceholder:
		return nil, []CPEPlaceholder{v}
	case CompoundQuery:
		var kept []Query
		var extracted []CPEPlaceholder
		for _, c := range v.Children {
			newC, ex := ExtractCPEQueries(c)
			extracted = append(extracted, ex...)
			if newC != nil {
				kept = append(kept, newC)
			}
		}
		if len(kept) == 0 {
			return nil, extracted
		}
		return create(v.Operand, kept), extracted
	default:
		return q, nil
	}
}
