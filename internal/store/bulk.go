package store

import (
	"context"
	"fmt"
	"strings"

	"ResourceAPI/internal/model"
	"ResourceAPI/internal/query"

	"github.com/Masterminds/squirrel"
)

// Bulk operations run as one statement each and are not wrapped in a
// transaction. Failures come back as *BatchError.

// UpdateAll sets column to value on every row of m whose primary key is in ids.
func (s *Store) UpdateAll(ctx context.Context, m *model.Model, ids []any, column string, value any) (int64, error) {
	stmt := squirrel.Update(query.Ident(m.Table)).
		Set(query.Ident(column), value).
		Where(squirrel.Eq{query.Ident(m.GetPrimaryKey()): ids}).
		PlaceholderFormat(squirrel.Dollar)
	n, err := s.exec(ctx, stmt)
	if err != nil {
		return 0, &BatchError{Op: "update_all", Err: err}
	}
	return n, nil
}

// DeleteAll deletes every row of m whose primary key is in ids.
func (s *Store) DeleteAll(ctx context.Context, m *model.Model, ids []any) (int64, error) {
	stmt := squirrel.Delete(query.Ident(m.Table)).
		Where(squirrel.Eq{query.Ident(m.GetPrimaryKey()): ids}).
		PlaceholderFormat(squirrel.Dollar)
	n, err := s.exec(ctx, stmt)
	if err != nil {
		return 0, &BatchError{Op: "delete_all", Err: err}
	}
	return n, nil
}

// InsertAll inserts rows into table, skipping rows that hit the unique
// index over conflict.
func (s *Store) InsertAll(ctx context.Context, table string, columns []string, rows [][]any, conflict []string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = query.Ident(c)
	}
	ins := squirrel.Insert(query.Ident(table)).Columns(quoted...).PlaceholderFormat(squirrel.Dollar)
	for _, row := range rows {
		ins = ins.Values(row...)
	}
	if len(conflict) > 0 {
		target := make([]string, len(conflict))
		for i, c := range conflict {
			target[i] = query.Ident(c)
		}
		ins = ins.Suffix(fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", strings.Join(target, ", ")))
	}
	n, err := s.exec(ctx, ins)
	if err != nil {
		return 0, &BatchError{Op: "insert_all", Err: err}
	}
	return n, nil
}

// relationshipTarget resolves a has_many relation used by relationship batches.
func relationshipTarget(m *model.Model, association string) (*model.ModelRelation, error) {
	rel := m.GetRelation(association)
	if rel == nil || !rel.IsToMany() {
		return nil, &BatchError{Op: "relationship", Err: fmt.Errorf("unknown has_many association %q for %s", association, m.Name)}
	}
	return rel, nil
}

// AddRelationship links every owner in ownerIDs to every value through the
// has_many table of association. Existing links are kept.
func (s *Store) AddRelationship(ctx context.Context, m *model.Model, association, column string, ownerIDs, values []any) (int64, error) {
	rel, err := relationshipTarget(m, association)
	if err != nil {
		return 0, err
	}
	rows := make([][]any, 0, len(ownerIDs)*len(values))
	for _, owner := range ownerIDs {
		for _, v := range values {
			rows = append(rows, []any{owner, v})
		}
	}
	cols := []string{rel.FK, column}
	return s.InsertAll(ctx, rel.Table, cols, rows, cols)
}

// RemoveRelationship deletes the links between ownerIDs and values.
func (s *Store) RemoveRelationship(ctx context.Context, m *model.Model, association, column string, ownerIDs, values []any) (int64, error) {
	rel, err := relationshipTarget(m, association)
	if err != nil {
		return 0, err
	}
	stmt := squirrel.Delete(query.Ident(rel.Table)).
		Where(squirrel.Eq{
			query.Ident(rel.FK): ownerIDs,
			query.Ident(column): values,
		}).
		PlaceholderFormat(squirrel.Dollar)
	n, err := s.exec(ctx, stmt)
	if err != nil {
		return 0, &BatchError{Op: "remove_relationship", Err: err}
	}
	return n, nil
}
