// Package compiler translates a search.Query into a sqlbuilder.Select,
// with an in-memory fallback for predicates that cannot be expressed in
// SQL, and performs the schema-specific finalization (join shape, CPE
// predicate folding, feed scoping, sort) described in §4.8.
package compiler

import (
	"fmt"
	"strings"

	"github.com/trailofbits/cvedb/src/cpe"
	"github.com/trailofbits/cvedb/src/schema"
	"github.com/trailofbits/cvedb/src/search"
	"github.com/trailofbits/cvedb/src/sqlbuilder"
)

// ToQuery translates q into a where-tree fragment, or returns ok=false if
// q (or any sub-query) cannot be expressed in SQL, in which case the
// caller must fall back to an in-memory filter.
func ToQuery(q search.Query) (frag sqlbuilder.Query, params []any, ok bool) {
	switch v := q.(type) {
	case nil:
		return sqlbuilder.True, nil, true

	case search.TermQuery:
		if v.CaseSensitive {
			return sqlbuilder.SimpleQuery{Text: "(d.description LIKE ? OR c.id LIKE ?)"},
				[]any{"%" + v.Text + "%", "%" + v.Text + "%"}, true
		}
		return sqlbuilder.SimpleQuery{Text: "(UPPER(d.description) LIKE ? OR UPPER(c.id) LIKE ?)"},
			[]any{"%" + strings.ToUpper(v.Text) + "%", "%" + strings.ToUpper(v.Text) + "%"}, true

	case search.DescriptionQuery:
		if v.CaseSensitive {
			return sqlbuilder.SimpleQuery{Text: "d.description LIKE ?"}, []any{"%" + v.Text + "%"}, true
		}
		return sqlbuilder.SimpleQuery{Text: "UPPER(d.description) LIKE ?"}, []any{"%" + strings.ToUpper(v.Text) + "%"}, true

	case search.AfterPublishedDateQuery:
		return sqlbuilder.SimpleQuery{Text: "c.published >= ?"}, []any{v.Date.Unix()}, true
	case search.BeforePublishedDateQuery:
		return sqlbuilder.SimpleQuery{Text: "c.published <= ?"}, []any{v.Date.Unix()}, true
	case search.AfterModifiedDateQuery:
		return sqlbuilder.SimpleQuery{Text: "c.last_modified >= ?"}, []any{v.Date.Unix()}, true
	case search.BeforeModifiedDateQuery:
		return sqlbuilder.SimpleQuery{Text: "c.last_modified <= ?"}, []any{v.Date.Unix()}, true

	case search.CPEQuery:
		return sqlbuilder.CPEPlaceholder{Pattern: v.Pattern}, nil, true

	case search.AndQuery:
		return compoundToQuery("AND", v.Sub)
	case search.OrQuery:
		return compoundToQuery("OR", v.Sub)

	default:
		return nil, nil, false
	}
}

func compoundToQuery(operand string, subs []search.Query) (sqlbuilder.Query, []any, bool) {
	var frags []sqlbuilder.Query
	var params []any
	for _, s := range subs {
		f, p, ok := ToQuery(s)
		if !ok {
			return nil, nil, false
		}
		frags = append(frags, f)
		params = append(params, p...)
	}
	if operand == "AND" {
		return sqlbuilder.And(frags...), params, true
	}
	return sqlbuilder.Or(frags...), params, true
}

// Compile lowers a search.Query into a ready-to-execute Select against sc,
// scoped to feedIDs and ordered by sorts. It returns ok=false if q cannot
// be translated.
func Compile(sc schema.Schema, q search.Query, feedIDs []int64, sorts []search.Sort, descending bool, limit *int) (sqlbuilder.Select, bool) {
	frag, params, ok := ToQuery(q)
	if !ok {
		return sqlbuilder.Select{}, false
	}

	where, placeholders := sqlbuilder.ExtractCPEQueries(frag)
	if len(placeholders) > 0 && !sc.SupportsCPEQuery() {
		return sqlbuilder.Select{}, false
	}

	columns, fromTables := sc.Columns(), sc.FromTables()
	if len(placeholders) > 0 {
		fromTables = "(((" + fromTables + ") INNER JOIN configurations f ON f.cve = c.id) INNER JOIN cpes p ON p.rowid = f.cpe)"
		for _, ph := range placeholders {
			pattern := ph.Pattern.(cpe.CPE)
			for _, pred := range concreteFieldPredicates(pattern) {
				where = sqlbuilder.And(where, pred.frag)
				params = append(params, pred.param)
			}
		}
	}

	if len(feedIDs) > 0 {
		args := make([]any, len(feedIDs))
		marks := make([]string, len(feedIDs))
		for i, id := range feedIDs {
			args[i] = id
			marks[i] = "?"
		}
		where = sqlbuilder.And(where, sqlbuilder.SimpleQuery{Text: fmt.Sprintf("c.feed IN (%s)", strings.Join(marks, ", "))})
		params = append(params, args...)
	}

	orderBy := ""
	if len(sorts) > 0 {
		cols := make([]string, len(sorts))
		for i, s := range sorts {
			cols[i] = sc.SortColumn(s)
		}
		orderBy = strings.Join(cols, ", ")
	}

	return sqlbuilder.Select{
		Columns:    columns,
		FromTables: fromTables,
		Where:      where,
		OrderBy:    orderBy,
		Descending: descending,
		Limit:      limit,
		Params:     params,
	}, true
}

type fieldPredicate struct {
	frag  sqlbuilder.Query
	param any
}

// concreteFieldPredicates appends "p.<field> = ?" for every non-ANY field
// of pattern, per §4.8's CPE predicate folding.
func concreteFieldPredicates(pattern cpe.CPE) []fieldPredicate {
	var preds []fieldPredicate
	add := func(column string, logical cpe.Logical, value string) {
		if logical == cpe.Any {
			return
		}
		preds = append(preds, fieldPredicate{
			frag:  sqlbuilder.SimpleQuery{Text: fmt.Sprintf("p.%s = ?", column)},
			param: value,
		})
	}
	add("part", pattern.Part.Logical, pattern.Part.String())
	add("vendor", pattern.Vendor.Logical, pattern.Vendor.String())
	add("product", pattern.Product.Logical, pattern.Product.String())
	add("version", pattern.Version.Logical, pattern.Version.String())
	add("update_str", pattern.Update.Logical, pattern.Update.String())
	add("edition", pattern.Edition.Logical, pattern.Edition.String())
	add("language", pattern.Lang.Logical, pattern.Lang.String())
	add("sw_edition", pattern.SWEdition.Logical, pattern.SWEdition.String())
	add("target_sw", pattern.TargetSW.Logical, pattern.TargetSW.String())
	add("target_hw", pattern.TargetHW.Logical, pattern.TargetHW.String())
	add("other", pattern.Other.Logical, pattern.Other.String())
	return preds
}
