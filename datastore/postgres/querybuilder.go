package postgres

import (
	"fmt"

	"github.com/doug-martin/goqu/v8"
	_ "github.com/doug-martin/goqu/v8/dialect/postgres"
	"github.com/doug-martin/goqu/v8/exp"

	dlist "github.com/jcailloux/relais-sub002"
	"github.com/jcailloux/relais-sub002/pkg/keybuilder"
)

// buildListQuery validates a Query against the descriptor and creates a
// query string for one page of a list.
//
// The window is over-fetched by one row so the caller can tell a complete
// page from an incomplete one without a second count query.
func buildListQuery[E any](desc dlist.Descriptor[E], cfg Config[E], q dlist.Query) (string, error) {
	psql := goqu.Dialect("postgres")
	exps := []goqu.Expression{}

	if len(q.Filters) != len(desc.Filters) {
		return "", fmt.Errorf("query supplies %d filter values, descriptor declares %d", len(q.Filters), len(desc.Filters))
	}
	for i, fv := range q.Filters {
		if !fv.Present {
			continue
		}
		ex, err := filterExpr(desc.Filters[i], fv)
		if err != nil {
			return "", err
		}
		exps = append(exps, ex)
	}

	sortIdx, dir := resolveSort(desc, q)
	sortCol := desc.Sorts[sortIdx].Column

	// A cursor pins the window below (descending) or above (ascending) the
	// previous page's last row, with the id column as tiebreaker for rows
	// sharing a sort value.
	if q.CursorPos != nil {
		v, id := q.CursorPos.Value, q.CursorPos.ID
		var ex goqu.Expression
		if dir == keybuilder.Desc {
			ex = goqu.Or(
				goqu.C(sortCol).Lt(v),
				goqu.And(goqu.C(sortCol).Eq(v), goqu.C(cfg.IDColumn).Lt(id)),
			)
		} else {
			ex = goqu.Or(
				goqu.C(sortCol).Gt(v),
				goqu.And(goqu.C(sortCol).Eq(v), goqu.C(cfg.IDColumn).Gt(id)),
			)
		}
		exps = append(exps, ex)
	}

	order := []exp.OrderedExpression{
		orderExpr(sortCol, dir),
		orderExpr(cfg.IDColumn, dir),
	}

	query := psql.Select(columnList(cfg.Columns)...).
		From(cfg.Table).
		Where(exps...).
		Order(order...).
		Limit(uint(q.Limit) + 1)
	if q.CursorPos == nil && q.Offset > 0 {
		query = query.Offset(uint(q.Offset))
	}

	sql, _, err := query.ToSQL()
	if err != nil {
		return "", err
	}
	return sql, nil
}

// buildGetQuery creates a query string selecting a single entity by id.
func buildGetQuery[E any](cfg Config[E], id string) (string, error) {
	psql := goqu.Dialect("postgres")
	sql, _, err := psql.Select(columnList(cfg.Columns)...).
		From(cfg.Table).
		Where(goqu.C(cfg.IDColumn).Eq(id)).
		Limit(1).
		ToSQL()
	return sql, err
}

// filterExpr maps one declared filter and its supplied value onto a goqu
// expression using the filter's fixed comparison.
func filterExpr[E any](def dlist.FilterDef[E], v keybuilder.Value) (goqu.Expression, error) {
	col := goqu.C(def.Column)
	val := filterValue(v)
	switch def.Op {
	case dlist.OpEQ:
		return col.Eq(val), nil
	case dlist.OpNE:
		return col.Neq(val), nil
	case dlist.OpGT:
		return col.Gt(val), nil
	case dlist.OpGE:
		return col.Gte(val), nil
	case dlist.OpLT:
		return col.Lt(val), nil
	case dlist.OpLE:
		return col.Lte(val), nil
	default:
		return nil, fmt.Errorf("was provided unknown comparison: %v", def.Op)
	}
}

func filterValue(v keybuilder.Value) any {
	if v.Kind == keybuilder.KindString {
		return v.Str
	}
	return v.Int
}

// resolveSort picks the sort field and direction for q: the query's own
// clause when present, otherwise the descriptor's first declared sort with
// its default direction.
func resolveSort[E any](desc dlist.Descriptor[E], q dlist.Query) (int, keybuilder.Direction) {
	if q.Sort.Present {
		return q.Sort.Field, q.Sort.Direction
	}
	return 0, desc.Sorts[0].DefaultDirection
}

func orderExpr(col string, dir keybuilder.Direction) exp.OrderedExpression {
	if dir == keybuilder.Desc {
		return goqu.C(col).Desc()
	}
	return goqu.C(col).Asc()
}

func columnList(cols []string) []interface{} {
	out := make([]interface{}, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}
