package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a lookup by primary key matches no row.
var ErrNotFound = errors.New("record not found")

// ValidationErrors maps field names to messages. "base" holds row-level messages.
type ValidationErrors struct {
	Fields map[string][]string
}

func (v *ValidationErrors) Add(field, msg string) {
	if v.Fields == nil {
		v.Fields = map[string][]string{}
	}
	v.Fields[field] = append(v.Fields[field], msg)
}

func (v *ValidationErrors) Empty() bool {
	return v == nil || len(v.Fields) == 0
}

func (v *ValidationErrors) Error() string {
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+strings.Join(v.Fields[k], ", "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// BatchError wraps the failure of a bulk statement.
type BatchError struct {
	Op  string
	Err error
}

func (e *BatchError) Error() string {
	return e.Err.Error()
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Postgres error classes that are the client's fault.
const (
	codeNotNull      = "23502"
	codeForeignKey   = "23503"
	codeUnique       = "23505"
	codeCheck        = "23514"
	codeInvalidInput = "22P02"
	codeUndefinedCol = "42703"
)

// asValidation turns constraint violations into ValidationErrors.
// Other errors are returned unchanged.
func asValidation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	v := &ValidationErrors{}
	switch pgErr.Code {
	case codeNotNull:
		v.Add(fieldOr(pgErr.ColumnName), "can't be blank")
	case codeUnique:
		v.Add(fieldOr(pgErr.ColumnName), fmt.Sprintf("has already been taken (%s)", pgErr.ConstraintName))
	case codeForeignKey:
		v.Add(fieldOr(pgErr.ColumnName), "must exist")
	case codeCheck:
		v.Add("base", fmt.Sprintf("violates %s", pgErr.ConstraintName))
	case codeInvalidInput, codeUndefinedCol:
		v.Add("base", pgErr.Message)
	default:
		return err
	}
	return v
}

func fieldOr(column string) string {
	if column == "" {
		return "base"
	}
	return column
}
