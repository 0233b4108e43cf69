package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ResourceAPI/internal/model"
	"ResourceAPI/internal/query"
	"ResourceAPI/internal/resource"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	attributesSuffix = "_attributes"
	destroyKey       = "_destroy"
)

// Create inserts a row of m. Values under "<relation>_attributes" keys are
// written to the related tables in the same transaction.
func (s *Store) Create(ctx context.Context, m *model.Model, attrs map[string]any) (*model.Record, error) {
	var rec *model.Record
	err := s.InTx(ctx, func(tx *Store) error {
		var err error
		rec, err = tx.save(ctx, m, nil, attrs, nil)
		return err
	})
	return rec, err
}

// Update writes attrs to the row of m with primary key id.
func (s *Store) Update(ctx context.Context, m *model.Model, id any, attrs map[string]any) (*model.Record, error) {
	var rec *model.Record
	err := s.InTx(ctx, func(tx *Store) error {
		var err error
		rec, err = tx.save(ctx, m, id, attrs, nil)
		return err
	})
	return rec, err
}

// CreateMany inserts every payload in one transaction. The first failure
// rolls back all of them.
func (s *Store) CreateMany(ctx context.Context, m *model.Model, items []map[string]any) ([]*model.Record, error) {
	records := make([]*model.Record, 0, len(items))
	err := s.InTx(ctx, func(tx *Store) error {
		for i, item := range items {
			rec, err := tx.save(ctx, m, nil, item, nil)
			if err != nil {
				return fmt.Errorf("item %d: %w", i+1, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Destroy deletes the row of m with primary key id.
func (s *Store) Destroy(ctx context.Context, m *model.Model, id any) error {
	stmt := squirrel.Delete(query.Ident(m.Table)).
		Where(squirrel.Eq{query.Ident(m.GetPrimaryKey()): id}).
		PlaceholderFormat(squirrel.Dollar)
	n, err := s.exec(ctx, stmt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKey {
			v := &ValidationErrors{}
			v.Add("base", "is still referenced by "+pgErr.TableName)
			return v
		}
		return fmt.Errorf("delete %s: %w", m.Table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type nestedWrite struct {
	key   string
	rel   *model.ModelRelation
	value any
}

// splitNested separates column values from nested relation writes.
func splitNested(m *model.Model, attrs map[string]any) (map[string]any, []nestedWrite) {
	cols := make(map[string]any, len(attrs))
	var nested []nestedWrite
	for k, v := range attrs {
		if strings.HasSuffix(k, attributesSuffix) {
			if rel := m.GetRelation(strings.TrimSuffix(k, attributesSuffix)); rel != nil {
				nested = append(nested, nestedWrite{key: k, rel: rel, value: v})
				continue
			}
		}
		if k == destroyKey {
			continue
		}
		cols[k] = v
	}
	sort.Slice(nested, func(i, j int) bool { return nested[i].key < nested[j].key })
	return cols, nested
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// validateRequired checks the required columns of m. On update only the
// columns being written are checked.
func validateRequired(m *model.Model, cols map[string]any, creating bool) *ValidationErrors {
	v := &ValidationErrors{}
	for _, name := range m.Required {
		val, present := cols[name]
		if !present && !creating {
			continue
		}
		if blank(val) {
			v.Add(name, "can't be blank")
		}
	}
	return v
}

// save creates (id == nil) or updates one row of m plus its nested writes.
// scope further restricts the updated row.
func (s *Store) save(ctx context.Context, m *model.Model, id any, attrs map[string]any, scope squirrel.Sqlizer) (*model.Record, error) {
	cols, nested := splitNested(m, attrs)
	// parents first, their key is stored on this row
	for _, n := range nested {
		if n.rel.Type != model.BelongsTo {
			continue
		}
		item, ok := n.value.(map[string]any)
		if !ok {
			return nil, invalidNested(n.key)
		}
		related := n.rel.GetModelRef()
		parent, err := s.save(ctx, related, presentID(related, item), item, nil)
		if err != nil {
			return nil, prefixed(n.rel.Name, err)
		}
		cols[n.rel.FK] = parent.Fields[n.rel.PK]
	}

	if v := validateRequired(m, cols, id == nil); !v.Empty() {
		return nil, v
	}

	var (
		rec *model.Record
		err error
	)
	if id == nil {
		rec, err = s.insert(ctx, m, cols)
	} else {
		rec, err = s.update(ctx, m, id, cols, scope)
	}
	if err != nil {
		return nil, err
	}

	for _, n := range nested {
		if n.rel.Type == model.BelongsTo {
			continue
		}
		items, ok := nestedItems(n.value)
		if !ok {
			return nil, invalidNested(n.key)
		}
		if n.rel.Type == model.HasOne && len(items) > 1 {
			return nil, invalidNested(n.key)
		}
		for _, item := range items {
			if err := s.saveChild(ctx, n.rel, rec.Fields[n.rel.PK], item); err != nil {
				return nil, prefixed(n.rel.Name, err)
			}
		}
	}
	return rec, nil
}

// saveChild writes one item of a has_one/has_many relation owned by ownerKey.
// Items with an id update (or with _destroy delete) the owner's existing row.
func (s *Store) saveChild(ctx context.Context, rel *model.ModelRelation, ownerKey any, item map[string]any) error {
	related := rel.GetModelRef()
	owned := squirrel.Eq{query.Ident(rel.FK): ownerKey}
	id := presentID(related, item)

	if id != nil && resource.ToBool(item[destroyKey]) {
		stmt := squirrel.Delete(query.Ident(related.Table)).
			Where(squirrel.And{squirrel.Eq{query.Ident(related.GetPrimaryKey()): id}, owned}).
			PlaceholderFormat(squirrel.Dollar)
		_, err := s.exec(ctx, stmt)
		return err
	}

	child := make(map[string]any, len(item)+1)
	for k, v := range item {
		if k != related.GetPrimaryKey() {
			child[k] = v
		}
	}
	if id != nil {
		_, err := s.save(ctx, related, id, child, owned)
		return err
	}
	child[rel.FK] = ownerKey
	_, err := s.save(ctx, related, nil, child, nil)
	return err
}

func (s *Store) insert(ctx context.Context, m *model.Model, cols map[string]any) (*model.Record, error) {
	var stmt squirrel.Sqlizer
	if len(cols) == 0 {
		stmt = squirrel.Expr(fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", query.Ident(m.Table)))
	} else {
		stmt = squirrel.Insert(query.Ident(m.Table)).
			SetMap(quoteKeys(cols)).
			Suffix("RETURNING *").
			PlaceholderFormat(squirrel.Dollar)
	}
	return s.queryOne(ctx, m, stmt)
}

func (s *Store) update(ctx context.Context, m *model.Model, id any, cols map[string]any, scope squirrel.Sqlizer) (*model.Record, error) {
	where := squirrel.And{squirrel.Eq{query.Ident(m.GetPrimaryKey()): id}}
	if scope != nil {
		where = append(where, scope)
	}
	if len(cols) == 0 {
		stmt := squirrel.Select("*").From(query.Ident(m.Table)).Where(where).PlaceholderFormat(squirrel.Dollar)
		return s.queryOne(ctx, m, stmt)
	}
	stmt := squirrel.Update(query.Ident(m.Table)).
		SetMap(quoteKeys(cols)).
		Where(where).
		Suffix("RETURNING *").
		PlaceholderFormat(squirrel.Dollar)
	return s.queryOne(ctx, m, stmt)
}

func quoteKeys(cols map[string]any) map[string]any {
	out := make(map[string]any, len(cols))
	for k, v := range cols {
		out[query.Ident(k)] = v
	}
	return out
}

func presentID(m *model.Model, item map[string]any) any {
	id := item[m.GetPrimaryKey()]
	if blank(id) {
		return nil
	}
	return id
}

// nestedItems accepts a single object, an array of objects, or an object
// keyed by indexes ({"0": {...}, "1": {...}}) as forms submit them.
func nestedItems(v any) ([]map[string]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []map[string]any:
		return t, true
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	case map[string]any:
		if indexed, ok := indexedItems(t); ok {
			return indexed, true
		}
		return []map[string]any{t}, true
	}
	return nil, false
}

func indexedItems(m map[string]any) ([]map[string]any, bool) {
	if len(m) == 0 {
		return nil, false
	}
	type entry struct {
		idx  int
		item map[string]any
	}
	entries := make([]entry, 0, len(m))
	for k, v := range m {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return nil, false
		}
		item, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		entries = append(entries, entry{idx, item})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })
	out := make([]map[string]any, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out, true
}

func invalidNested(key string) error {
	v := &ValidationErrors{}
	v.Add(key, "is invalid")
	return v
}

// prefixed reports nested validation errors as "<relation>.<field>".
func prefixed(rel string, err error) error {
	var v *ValidationErrors
	if !errors.As(err, &v) {
		return err
	}
	out := &ValidationErrors{}
	for field, msgs := range v.Fields {
		for _, msg := range msgs {
			out.Add(rel+"."+field, msg)
		}
	}
	return out
}
