package query

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
)

// RankColumn is the helper column added by LimitPerGroup. Readers drop it.
const RankColumn = "preload_rank"

// Unordered returns q without ORDER BY.
func (q *Query) Unordered() *Query {
	c := q.clone()
	c.orders = nil
	return c
}

// LimitPerGroup keeps at most n rows of q per value of column, in q's
// order (primary key when q is unordered).
func LimitPerGroup(q *Query, column string, n int) squirrel.Sqlizer {
	order := q.Orders()
	if len(order) == 0 {
		order = []string{q.PrimaryKey() + " ASC"}
	}
	rank := fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s) AS %s",
		q.Column(column), strings.Join(order, ", "), Ident(RankColumn))

	cols := q.columns
	if len(cols) == 0 {
		cols = []string{q.Table() + ".*"}
	}
	inner := q.Unordered().Select(append(append([]string(nil), cols...), rank)...)

	ranked := Ident("ranked")
	return squirrel.Select(ranked+".*").
		FromSelect(inner.builder(), "ranked").
		Where(squirrel.LtOrEq{ranked + "." + Ident(RankColumn): n}).
		OrderBy(ranked+"."+Ident(column), ranked+"."+Ident(RankColumn)).
		PlaceholderFormat(squirrel.Dollar)
}
