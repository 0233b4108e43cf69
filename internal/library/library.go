// Package library wires the example book catalogue. The tables, relations,
// resources and serializers are declared in resources/*.yml; this package
// adds the parts that need Go: named scopes, computed attributes, hooks and
// policies.
package library

import (
	"fmt"
	"strings"

	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/query"
	"ResourceAPI/internal/resource"
	"ResourceAPI/internal/serializer"

	"github.com/Masterminds/squirrel"
)

// Names the declarations refer to.
const (
	ScopePublished = "published"
	ScopeByTitle   = "by_title"

	ComputeBookLabel   = "book_label"
	ComputeReviewCount = "review_count"

	PolicyBooks   = "books"
	PolicyReviews = "reviews"
)

// Prepare registers the scopes and computed attributes the declarations
// name. It must run before the declarations are loaded.
func Prepare(resources *resource.Registry, serializers *serializer.Registry) error {
	scopes := map[string]query.Scope{
		ScopePublished: func(q *query.Query) *query.Query {
			return q.Where(squirrel.Eq{q.Column("published"): true})
		},
		ScopeByTitle: func(q *query.Query) *query.Query {
			return q.OrderBy(q.Column("title") + " ASC")
		},
	}
	for name, s := range scopes {
		if err := resources.RegisterScope(name, s); err != nil {
			return fmt.Errorf("scope %s: %w", name, err)
		}
	}

	computes := map[string]serializer.ComputeFunc{
		ComputeBookLabel:   bookLabel,
		ComputeReviewCount: reviewCount,
	}
	for name, fn := range computes {
		if err := serializers.RegisterCompute(name, fn); err != nil {
			return fmt.Errorf("compute %s: %w", name, err)
		}
	}
	return nil
}

// Extend adds the hooks of the catalogue resources. It must run after the
// declarations are loaded and before the registry is frozen.
func Extend(resources *resource.Registry) error {
	if err := resources.Extend("Book", func(b *resource.Builder) {
		b.SearchMethods(statusParam).
			SortMethods(sortByAuthorName).
			FilterWith(filterBooks).
			Hooks(resource.Hooks{
				AfterCreate:  logWrite("book_created"),
				AfterUpdate:  logWrite("book_updated"),
				AfterDestroy: logWrite("book_destroyed"),
			})
	}); err != nil {
		return err
	}
	return resources.Extend("Review", func(b *resource.Builder) {
		b.Hooks(resource.Hooks{
			PrepareItem: func(_ *resource.Context, rec *model.Record) error {
				if body, ok := rec.Fields["body"].(string); ok {
					rec.Fields["body"] = strings.TrimSpace(body)
				}
				return nil
			},
		})
	})
}

func bookLabel(rec *model.Record, _ any, _ serializer.Options) (any, error) {
	title, _ := rec.Fields["title"].(string)
	isbn, _ := rec.Fields["isbn"].(string)
	if isbn == "" {
		return title, nil
	}
	return fmt.Sprintf("%s (ISBN %s)", title, isbn), nil
}

// reviewCount counts the loaded reviews, nil when they were not loaded.
func reviewCount(rec *model.Record, _ any, _ serializer.Options) (any, error) {
	reviews, ok := rec.Association("reviews")
	if !ok {
		return nil, nil
	}
	return len(reviews), nil
}

// statusParam narrows the list by the status query parameter.
func statusParam(rc *resource.Context, q *query.Query) (*query.Query, error) {
	status, _ := rc.Params.Raw["status"].(string)
	if status = strings.TrimSpace(status); status == "" {
		return q, nil
	}
	return q.Where(squirrel.Eq{q.Column("status"): status}), nil
}

// sortByAuthorName handles sort_by=author_name. Other sort columns are
// dropped when it is present.
func sortByAuthorName(rc *resource.Context, q *query.Query) (*query.Query, error) {
	for _, col := range rc.Params.Sort.SortBy {
		if col != "author_name" {
			continue
		}
		q, err := q.LeftJoin("author")
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if rc.Params.Sort.Direction == query.Descending {
			dir = "DESC"
		}
		return q.OrderBy(query.Ident("authors.name") + " " + dir + " NULLS LAST"), nil
	}
	return q, nil
}

// filterBooks handles min_rating: books with at least one review rated at
// least the value.
func filterBooks(_ *resource.Context, q *query.Query, c query.FilterClause) (*query.Query, bool, error) {
	if c.AttributeName != "min_rating" {
		return q, false, nil
	}
	if c.Value == nil {
		return q, true, nil
	}
	return q.WhereRaw(
		`EXISTS (SELECT 1 FROM "reviews" WHERE "reviews"."book_id" = `+q.PrimaryKey()+` AND "reviews"."rating" >= ?)`,
		c.Value,
	), true, nil
}

func logWrite(event string) resource.ItemHook {
	return func(rc *resource.Context, rec *model.Record) error {
		logger.Info(event, map[string]any{
			"id":       rec.ID(),
			"identity": rc.Identity,
		})
		return nil
	}
}
