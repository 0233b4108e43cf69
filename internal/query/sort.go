package query

import "strings"

// Sort directions
const (
	Ascending  = "ascending"
	Descending = "descending"
)

// SortSpec is the user-requested ordering.
type SortSpec struct {
	SortBy    []string
	Direction string
}

// ParseDirection maps a sort_direction value onto Ascending or Descending.
// Anything unrecognized sorts ascending.
func ParseDirection(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case Descending, "desc":
		return Descending
	}
	return Ascending
}

// ApplySort orders q by the requested columns.
func ApplySort(q *Query, s SortSpec) *Query {
	dir := "ASC"
	if s.Direction == Descending {
		dir = "DESC"
	}
	for _, col := range s.SortBy {
		if strings.TrimSpace(col) == "" {
			continue
		}
		q = q.OrderBy(q.Column(col) + " " + dir)
	}
	return q
}

// TieBreak appends the primary key ascending so paging is deterministic.
func TieBreak(q *Query) *Query {
	return q.OrderBy(q.PrimaryKey() + " ASC")
}
