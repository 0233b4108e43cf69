package query

import (
	"fmt"
	"strings"
	"time"

	"ResourceAPI/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
)

// Filter types
const (
	TypeBoolean      = "boolean"
	TypeDate         = "date"
	TypeRelationship = "relationship"
	TypeString       = "string"
	TypeText         = "text"
)

// Filter operators
const (
	OperatorEqual       = "equal"
	OperatorNotEqual    = "not_equal"
	OperatorContain     = "contain"
	OperatorNotContain  = "not_contain"
	OperatorEmpty       = "empty"
	OperatorNotEmpty    = "not_empty"
	OperatorLessThan    = "less_than"
	OperatorGreaterThan = "greater_than"
)

// FilterClause is one user-supplied filter.
type FilterClause struct {
	AttributeName     string `json:"attribute_name"`
	AssociationName   string `json:"association_name,omitempty"`
	AssociationColumn string `json:"association_column,omitempty"`
	Type              string `json:"type,omitempty"`
	Operator          string `json:"operator,omitempty"`
	Value             any    `json:"value,omitempty"`
}

// DateRange is the value of a date filter.
type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate accepts RFC 3339 timestamps and plain dates.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// dateRange pulls {startDate, endDate} out of a decoded filter value.
func dateRange(v any) (DateRange, bool) {
	switch r := v.(type) {
	case DateRange:
		return r, true
	case *DateRange:
		if r == nil {
			return DateRange{}, false
		}
		return *r, true
	case map[string]any:
		start, _ := r["startDate"].(string)
		end, _ := r["endDate"].(string)
		return DateRange{StartDate: start, EndDate: end}, true
	case string:
		var dr DateRange
		if err := json.Unmarshal([]byte(r), &dr); err != nil {
			return DateRange{}, false
		}
		return dr, true
	}
	return DateRange{}, false
}

// ApplyFilter ANDs one built-in filter onto q. Custom filter hooks are handled by the caller.
func ApplyFilter(q *Query, c FilterClause) (*Query, error) {
	switch {
	case c.AssociationName != "":
		return filterAssociation(q, c)
	case c.Type == TypeBoolean:
		return q.Where(squirrel.Eq{q.Column(c.AttributeName): c.Value}), nil
	case c.Type == TypeDate:
		return filterDate(q, c)
	default:
		return q.Where(predicate(q.Column(c.AttributeName), c.Operator, c.Value)), nil
	}
}

func filterDate(q *Query, c FilterClause) (*Query, error) {
	r, ok := dateRange(c.Value)
	if !ok || strings.TrimSpace(r.StartDate) == "" || strings.TrimSpace(r.EndDate) == "" {
		return q, nil
	}
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", c.AttributeName, err)
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", c.AttributeName, err)
	}
	col := q.Column(c.AttributeName)
	return q.Where(squirrel.Expr(col+" BETWEEN ? AND ?", start, end)), nil
}

// predicate maps an operator to a condition on col. Unknown operators yield nil (no-op).
func predicate(col, operator string, value any) squirrel.Sqlizer {
	switch operator {
	case OperatorEqual:
		return squirrel.Eq{col: value}
	case OperatorNotEqual:
		return squirrel.NotEq{col: value}
	case OperatorContain:
		return squirrel.ILike{col: containsPattern(value)}
	case OperatorNotContain:
		return squirrel.NotILike{col: containsPattern(value)}
	case OperatorEmpty:
		return squirrel.Eq{col: nil}
	case OperatorNotEmpty:
		return squirrel.NotEq{col: nil}
	case OperatorLessThan:
		return squirrel.Lt{col: value}
	case OperatorGreaterThan:
		return squirrel.Gt{col: value}
	}
	return nil
}

func containsPattern(v any) string {
	return "%" + fmt.Sprint(v) + "%"
}

func filterAssociation(q *Query, c FilterClause) (*Query, error) {
	rel := q.Model.GetRelation(c.AssociationName)
	if rel == nil {
		return nil, fmt.Errorf("unknown association %q for %s", c.AssociationName, q.Model.Name)
	}
	if rel.IsToMany() {
		return filterHasMany(q, rel, c)
	}

	joined, err := q.Join(rel.Name)
	if err != nil {
		return nil, err
	}
	col := qualify(rel.Table, c.AttributeName)
	return joined.Where(predicate(col, c.Operator, c.Value)), nil
}

// filterHasMany correlates an EXISTS subquery on the related table with the parent row.
func filterHasMany(q *Query, rel *model.ModelRelation, c FilterClause) (*Query, error) {
	related := rel.GetModelRef()
	if related == nil {
		return nil, fmt.Errorf("association %q of %s is not linked", rel.Name, q.Model.Name)
	}

	column := c.AssociationColumn
	if column == "" {
		column = rel.FK
	}
	sub := From(related).
		Where(squirrel.Expr(qualify(related.Table, column) + " = " + q.PrimaryKey())).
		WhereRaw(rel.Where)

	col := qualify(related.Table, c.AttributeName)
	switch c.Operator {
	case OperatorEmpty:
		return q.Where(NotExists(sub)), nil
	case OperatorNotEmpty:
		return q.Where(Exists(sub)), nil
	}
	pred := predicate(col, c.Operator, c.Value)
	if pred == nil {
		return q, nil
	}
	return q.Where(Exists(sub.Where(pred))), nil
}
