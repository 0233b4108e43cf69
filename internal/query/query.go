package query

import (
	"fmt"
	"strings"

	"ResourceAPI/internal/model"

	"github.com/Masterminds/squirrel"
)

// Scope narrows a query. Scopes are plain functions so they compose.
type Scope func(q *Query) *Query

type joinClause struct {
	kind   string // "JOIN" or "LEFT JOIN"
	name   string // relation name, used to avoid joining twice
	clause string
	toMany bool
}

// Query is an immutable description of a SELECT over one model's table.
// Every builder method returns a modified copy, the receiver is never changed.
type Query struct {
	Model *model.Model

	columns  []string
	joins    []joinClause
	wheres   []squirrel.Sqlizer
	orders   []string
	includes []Include
	limit    uint64
	offset   uint64
	distinct bool
}

// From starts a query over m's table selecting every column of it.
func From(m *model.Model) *Query {
	return &Query{Model: m}
}

func (q *Query) clone() *Query {
	c := *q
	c.columns = append([]string(nil), q.columns...)
	c.joins = append([]joinClause(nil), q.joins...)
	c.wheres = append([]squirrel.Sqlizer(nil), q.wheres...)
	c.orders = append([]string(nil), q.orders...)
	c.includes = append([]Include(nil), q.includes...)
	return &c
}

// Table returns the quoted base table.
func (q *Query) Table() string {
	return Ident(q.Model.Table)
}

// PrimaryKey returns the quoted, table-qualified primary key column.
func (q *Query) PrimaryKey() string {
	return Ident(q.Model.Table + "." + q.Model.GetPrimaryKey())
}

// Column qualifies an unqualified column with the base table and quotes it.
func (q *Query) Column(name string) string {
	return qualify(q.Model.Table, name)
}

// Select replaces the selected columns. Expressions are used verbatim.
func (q *Query) Select(columns ...string) *Query {
	c := q.clone()
	c.columns = append([]string(nil), columns...)
	return c
}

// Where ANDs a predicate onto the query.
func (q *Query) Where(pred squirrel.Sqlizer) *Query {
	if pred == nil {
		return q
	}
	c := q.clone()
	c.wheres = append(c.wheres, pred)
	return c
}

// WhereRaw ANDs a raw SQL fragment with ? placeholders.
func (q *Query) WhereRaw(sql string, args ...any) *Query {
	if strings.TrimSpace(sql) == "" {
		return q
	}
	return q.Where(squirrel.Expr("("+sql+")", args...))
}

// Join adds an INNER JOIN on the named relation of the base model.
// A dotted path ("author.publisher") joins every hop along the way.
func (q *Query) Join(relation string) (*Query, error) {
	return q.addJoin("JOIN", relation)
}

// LeftJoin adds a LEFT JOIN on the named relation (or dotted path) of the base model.
func (q *Query) LeftJoin(relation string) (*Query, error) {
	return q.addJoin("LEFT JOIN", relation)
}

func (q *Query) addJoin(kind, path string) (*Query, error) {
	c := q
	owner := q.Model
	hops := strings.Split(path, ".")
	for i, name := range hops {
		rel := owner.GetRelation(name)
		if rel == nil || rel.GetModelRef() == nil {
			return nil, fmt.Errorf("unknown association %q for %s", name, owner.Name)
		}
		key := strings.Join(hops[:i+1], ".")
		if !c.Joined(key) {
			c = c.clone()
			c.joins = append(c.joins, joinClause{
				kind:   kind,
				name:   key,
				clause: joinOn(owner, rel),
				toMany: rel.IsToMany(),
			})
		}
		owner = rel.GetModelRef()
	}
	return c, nil
}

// joinOn renders "<table> ON <condition>" for a relation of owner.
func joinOn(owner *model.Model, rel *model.ModelRelation) string {
	var on string
	if rel.Type == model.BelongsTo {
		on = fmt.Sprintf("%s = %s", qualify(rel.Table, rel.PK), qualify(owner.Table, rel.FK))
	} else {
		on = fmt.Sprintf("%s = %s", qualify(rel.Table, rel.FK), qualify(owner.Table, rel.PK))
	}
	if strings.TrimSpace(rel.Where) != "" {
		on = fmt.Sprintf("(%s) AND (%s)", on, rel.Where)
	}
	return fmt.Sprintf("%s ON %s", Ident(rel.Table), on)
}

// HasToManyJoin reports whether a joined relation can multiply base rows.
func (q *Query) HasToManyJoin() bool {
	for _, j := range q.joins {
		if j.toMany {
			return true
		}
	}
	return false
}

// Joined reports whether the relation is already joined.
func (q *Query) Joined(relation string) bool {
	for _, j := range q.joins {
		if j.name == relation {
			return true
		}
	}
	return false
}

// OrderBy appends ORDER BY expressions. Expressions are used verbatim.
func (q *Query) OrderBy(exprs ...string) *Query {
	c := q.clone()
	c.orders = append(c.orders, exprs...)
	return c
}

// Ordered reports whether any ordering has been applied.
func (q *Query) Ordered() bool {
	return len(q.orders) > 0
}

func (q *Query) Orders() []string {
	return append([]string(nil), q.orders...)
}

func (q *Query) Limit(n uint64) *Query {
	c := q.clone()
	c.limit = n
	return c
}

func (q *Query) Offset(n uint64) *Query {
	c := q.clone()
	c.offset = n
	return c
}

func (q *Query) Distinct() *Query {
	c := q.clone()
	c.distinct = true
	return c
}

// Preload records an association tree to be loaded after the query runs.
func (q *Query) Preload(inc Include) *Query {
	c := q.clone()
	c.includes = append(c.includes, inc)
	return c
}

func (q *Query) Includes() []Include {
	return append([]Include(nil), q.includes...)
}

// Merge ANDs the predicates of o onto q and adds the joins q lacks.
// o must be built over the same model.
func (q *Query) Merge(o *Query) *Query {
	if o == nil {
		return q
	}
	c := q.clone()
	for _, j := range o.joins {
		if !c.Joined(j.name) {
			c.joins = append(c.joins, j)
		}
	}
	c.wheres = append(c.wheres, o.wheres...)
	c.orders = append(c.orders, o.orders...)
	return c
}

// Predicate returns the AND of all WHERE predicates, nil when there are none.
func (q *Query) Predicate() squirrel.Sqlizer {
	if len(q.wheres) == 0 {
		return nil
	}
	return squirrel.And(append([]squirrel.Sqlizer(nil), q.wheres...))
}

// builder renders the query with ? placeholders so it can be nested.
func (q *Query) builder() squirrel.SelectBuilder {
	cols := q.columns
	if len(cols) == 0 {
		cols = []string{q.Table() + ".*"}
	}
	sb := squirrel.Select(cols...).From(q.Table())
	if q.distinct || q.HasToManyJoin() {
		sb = sb.Distinct()
	}
	for _, j := range q.joins {
		sb = sb.JoinClause(j.kind + " " + j.clause)
	}
	if len(q.wheres) > 0 {
		sb = sb.Where(q.Predicate())
	}
	if len(q.orders) > 0 {
		sb = sb.OrderBy(q.orders...)
	}
	if q.limit > 0 {
		sb = sb.Limit(q.limit)
	}
	if q.offset > 0 {
		sb = sb.Offset(q.offset)
	}
	return sb
}

// Builder returns the SELECT with Postgres placeholders.
func (q *Query) Builder() squirrel.SelectBuilder {
	return q.builder().PlaceholderFormat(squirrel.Dollar)
}

func (q *Query) ToSql() (string, []any, error) {
	return q.Builder().ToSql()
}

// CountSql renders a COUNT of the rows the query matches, ignoring order and paging.
func (q *Query) CountSql() (string, []any, error) {
	count := "COUNT(*)"
	if q.HasToManyJoin() || q.distinct {
		count = fmt.Sprintf("COUNT(DISTINCT %s)", q.PrimaryKey())
	}
	sb := squirrel.Select(count).From(q.Table()).PlaceholderFormat(squirrel.Dollar)
	for _, j := range q.joins {
		sb = sb.JoinClause(j.kind + " " + j.clause)
	}
	if len(q.wheres) > 0 {
		sb = sb.Where(q.Predicate())
	}
	return sb.ToSql()
}

// Exists renders "EXISTS (SELECT 1 ...)" for use as a predicate of an outer query.
func Exists(sub *Query) squirrel.Sqlizer {
	return existsExpr{sub: sub}
}

// NotExists renders "NOT EXISTS (SELECT 1 ...)".
func NotExists(sub *Query) squirrel.Sqlizer {
	return existsExpr{sub: sub, not: true}
}

type existsExpr struct {
	sub *Query
	not bool
}

func (e existsExpr) ToSql() (string, []any, error) {
	sql, args, err := e.sub.Select("1").builder().ToSql()
	if err != nil {
		return "", nil, err
	}
	prefix := "EXISTS"
	if e.not {
		prefix = "NOT EXISTS"
	}
	return fmt.Sprintf("%s (%s)", prefix, sql), args, nil
}
