package query

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// Ident quotes a possibly dotted identifier ("books.title" -> "books"."title").
func Ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// qualify prefixes an unqualified column with table before quoting it.
// Already qualified references are kept as given.
func qualify(table, column string) string {
	if strings.Contains(column, ".") {
		return Ident(column)
	}
	return Ident(table + "." + column)
}
