// Package store executes composed queries and writes against PostgreSQL.
package store

import (
	"context"
	"fmt"

	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the part of pgx the store needs. *pgxpool.Pool and pgx.Tx satisfy it.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	conn Conn
}

func New(conn Conn) *Store {
	return &Store{conn: conn}
}

// InTx runs fn against a store bound to one transaction. Nested calls use savepoints.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		return fn(&Store{conn: tx})
	})
}

func toSql(stmt squirrel.Sqlizer) (string, []any, error) {
	sqlStr, args, err := stmt.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build sql: %w", err)
	}
	logger.Debug("sql", map[string]any{
		"sql":  sqlStr,
		"args": args,
	})
	return sqlStr, args, nil
}

// FetchRecords runs a SELECT and returns its rows as records of m.
func (s *Store) FetchRecords(ctx context.Context, m *model.Model, stmt squirrel.Sqlizer) ([]*model.Record, error) {
	sqlStr, args, err := toSql(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", m.Table, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", m.Table, err)
	}
	records := make([]*model.Record, len(maps))
	for i, fields := range maps {
		records[i] = model.NewRecord(m, fields)
	}
	return records, nil
}

// Count runs a single-value COUNT statement.
func (s *Store) Count(ctx context.Context, stmt squirrel.Sqlizer) (int64, error) {
	sqlStr, args, err := toSql(stmt)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.conn.QueryRow(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *Store) queryOne(ctx context.Context, m *model.Model, stmt squirrel.Sqlizer) (*model.Record, error) {
	records, err := s.FetchRecords(ctx, m, stmt)
	if err != nil {
		return nil, asValidation(err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

func (s *Store) exec(ctx context.Context, stmt squirrel.Sqlizer) (int64, error) {
	sqlStr, args, err := toSql(stmt)
	if err != nil {
		return 0, err
	}
	tag, err := s.conn.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
