package library

import (
	"errors"
	"path/filepath"
	"testing"

	"ResourceAPI/internal"
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/policy"
	"ResourceAPI/internal/query"
	"ResourceAPI/internal/resource"

	"github.com/stretchr/testify/require"
)

func loadCatalogue(t *testing.T) *Registries {
	t.Helper()
	root, err := internal.FindRepoRoot()
	require.NoError(t, err)
	regs, err := Load(filepath.Join(root, "resources"), 10)
	require.NoError(t, err)
	return regs
}

func TestLoadCatalogue(t *testing.T) {
	regs := loadCatalogue(t)

	var plurals []string
	for _, def := range regs.Resources.Definitions() {
		plurals = append(plurals, def.Plural)
	}
	require.Equal(t, []string{"authors", "books", "reviews", "tags"}, plurals)

	books := regs.Resources.ByPlural("books")
	require.Equal(t, 20, books.PageSize)
	require.Equal(t, PolicyBooks, books.Policy)
	require.True(t, books.Batch)
	require.True(t, books.Upload)
	require.NotNil(t, books.FilterHook)
	require.Len(t, books.SearchHooks, 1)

	require.Equal(t, 10, regs.Resources.ByPlural("tags").PageSize)
	require.NotNil(t, regs.Serializers.Get("Book"))
	require.Nil(t, regs.Resources.Get("BookTag"), "BookTag is a model only")

	rel := regs.Models.Get("Book").GetRelation("tags")
	require.Equal(t, "book_tags", rel.Table)
	require.Equal(t, "book_id", rel.FK)
}

func TestBookIndexQuery(t *testing.T) {
	regs := loadCatalogue(t)
	def := regs.Resources.ByPlural("books")
	rc := &resource.Context{
		Action: resource.Index,
		Params: resource.Params{
			Search:  "dune",
			Filters: []query.FilterClause{{AttributeName: "min_rating", Value: int64(4)}},
			Sort:    query.SortSpec{SortBy: []string{"author_name"}, Direction: query.Descending},
			Raw:     map[string]any{"status": "active"},
		},
	}

	q, err := resource.BuildQuery(def, rc, query.From(def.Model))
	require.NoError(t, err)
	q, err = resource.ComposeIndex(def, rc, q)
	require.NoError(t, err)
	sql, args, err := q.ToSql()
	require.NoError(t, err)

	require.Contains(t, sql, `LEFT JOIN "authors"`)
	require.Contains(t, sql, `"books"."title" ILIKE`)
	require.Contains(t, sql, `"authors"."name" ILIKE`)
	require.Contains(t, sql, `"books"."status" = `)
	require.Contains(t, sql, `"reviews"."rating" >= `)
	require.Contains(t, sql, `ORDER BY "authors"."name" DESC NULLS LAST, "books"."id" ASC`)
	require.Contains(t, args, "active")
	require.Contains(t, args, int64(4))

	var names []string
	for _, inc := range q.Includes() {
		names = append(names, inc.Name)
	}
	require.Empty(t, names, "to-many preloads are skipped on index")
}

func TestBookShowPreloadsDependOnIdentity(t *testing.T) {
	regs := loadCatalogue(t)
	def := regs.Resources.ByPlural("books")

	anonymous, err := resource.BuildQuery(def, &resource.Context{Action: resource.Show}, query.From(def.Model))
	require.NoError(t, err)
	incs := anonymous.Includes()
	require.Len(t, incs, 2)
	require.Equal(t, "reviews", incs[0].Name)
	require.Equal(t, 5, incs[0].Limit)
	require.NotNil(t, incs[0].Scope)

	signedIn, err := resource.BuildQuery(def, &resource.Context{Action: resource.Show, Identity: "7"}, query.From(def.Model))
	require.NoError(t, err)
	incs = signedIn.Includes()
	require.Equal(t, "reviews", incs[0].Name)
	require.Equal(t, 20, incs[0].Limit)
	require.Nil(t, incs[0].Scope)
}

func TestBookPolicy(t *testing.T) {
	regs := loadCatalogue(t)
	def := regs.Resources.ByPlural("books")
	p := regs.Policies.For(PolicyBooks)

	err := p.Authorize(&resource.Context{Action: resource.Destroy}, nil)
	require.True(t, errors.Is(err, policy.ErrDenied))
	require.NoError(t, p.Authorize(&resource.Context{Action: resource.Destroy, Identity: "1"}, nil))
	require.NoError(t, p.Authorize(&resource.Context{Action: resource.BatchUpdate}, nil))

	var anonymous []string
	for _, param := range p.PermittedAttributes(&resource.Context{Action: resource.Create}, def) {
		anonymous = append(anonymous, param.Name)
	}
	require.Equal(t, []string{"title", "isbn", "status", "archived", "author_id"}, anonymous)
	require.Len(t, p.PermittedAttributes(&resource.Context{Action: resource.Create, Identity: "1"}, def), 7)
}

func TestReviewPolicyScopesAnonymousCallers(t *testing.T) {
	regs := loadCatalogue(t)
	def := regs.Resources.ByPlural("reviews")
	p := regs.Policies.For(PolicyReviews)

	q, err := p.Scope(&resource.Context{Action: resource.Index}, query.From(def.Model))
	require.NoError(t, err)
	sql, args, err := q.ToSql()
	require.NoError(t, err)
	require.Contains(t, sql, `"reviews"."published" = $1`)
	require.Equal(t, []any{true}, args)

	q, err = p.Scope(&resource.Context{Action: resource.Index, Identity: "1"}, query.From(def.Model))
	require.NoError(t, err)
	sql, _, err = q.ToSql()
	require.NoError(t, err)
	require.NotContains(t, sql, "published")

	require.Error(t, p.Authorize(&resource.Context{Action: resource.Update}, nil))
}

func TestComputedAttributes(t *testing.T) {
	book := model.NewRecord(nil, map[string]any{"title": "Dune", "isbn": "9780441013593"})
	label, err := bookLabel(book, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "Dune (ISBN 9780441013593)", label)

	label, err = bookLabel(model.NewRecord(nil, map[string]any{"title": "Emma"}), nil, nil)
	require.NoError(t, err)
	require.Equal(t, "Emma", label)

	count, err := reviewCount(book, nil, nil)
	require.NoError(t, err)
	require.Nil(t, count)

	book.SetAssociation("reviews", []*model.Record{model.NewRecord(nil, nil), model.NewRecord(nil, nil)})
	count, err = reviewCount(book, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
