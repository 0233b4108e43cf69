package query

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
)

// SearchColumn is a column matched by free-text search. A column with an
// Association is looked up in that has_many table through EXISTS.
type SearchColumn struct {
	Column      string
	Association string
}

// SearchPredicate ORs a case-insensitive substring match over all columns.
// It returns nil when term is blank or there are no columns.
func SearchPredicate(q *Query, columns []SearchColumn, term string) (squirrel.Sqlizer, error) {
	if strings.TrimSpace(term) == "" || len(columns) == 0 {
		return nil, nil
	}
	pattern := "%" + term + "%"

	or := make(squirrel.Or, 0, len(columns))
	for _, sc := range columns {
		if sc.Association == "" {
			or = append(or, squirrel.ILike{q.Column(sc.Column): pattern})
			continue
		}
		rel := q.Model.GetRelation(sc.Association)
		if rel == nil || rel.GetModelRef() == nil {
			return nil, fmt.Errorf("unknown association %q for %s", sc.Association, q.Model.Name)
		}
		if !rel.IsToMany() {
			// to-one columns are expected to be reachable through a registered join
			or = append(or, squirrel.ILike{qualify(rel.Table, sc.Column): pattern})
			continue
		}
		related := rel.GetModelRef()
		sub := From(related).
			Where(squirrel.Expr(qualify(related.Table, rel.FK) + " = " + qualify(q.Model.Table, rel.PK))).
			WhereRaw(rel.Where).
			Where(squirrel.ILike{qualify(related.Table, sc.Column): pattern})
		or = append(or, Exists(sub))
	}
	return or, nil
}
