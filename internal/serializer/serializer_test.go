package serializer

import (
	"errors"
	"strings"
	"testing"

	"ResourceAPI/internal/model"
	"ResourceAPI/internal/model/modeltest"
	"ResourceAPI/internal/query"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type graph struct {
	lib     *model.Registry
	book    *model.Record
	author  *model.Record
	reviews []*model.Record
}

// newGraph builds a book with its author and two reviews, all associations loaded.
func newGraph() graph {
	lib := modeltest.Library()
	author := model.NewRecord(lib.Get("Author"), map[string]any{"id": int64(1), "name": "Herbert", "email": "fh@example.com"})
	book := model.NewRecord(lib.Get("Book"), map[string]any{"id": int64(10), "title": "Dune", "author_id": int64(1)})
	r1 := model.NewRecord(lib.Get("Review"), map[string]any{"id": int64(100), "body": "great", "book_id": int64(10)})
	r2 := model.NewRecord(lib.Get("Review"), map[string]any{"id": int64(101), "body": "long", "book_id": int64(10)})
	book.SetAssociation("author", []*model.Record{author})
	book.SetAssociation("reviews", []*model.Record{r1, r2})
	book.SetAssociation("publisher", nil)
	r1.SetAssociation("reviewer", []*model.Record{author})
	r2.SetAssociation("reviewer", nil)
	author.SetAssociation("books", []*model.Record{book})
	return graph{lib: lib, book: book, author: author, reviews: []*model.Record{r1, r2}}
}

func freeze(t *testing.T, r *Registry) {
	t.Helper()
	if err := r.Freeze(); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
}

func TestRenderNilInputs(t *testing.T) {
	g := newGraph()
	r := NewRegistry()
	require.NoError(t, r.Register(NewBuilder("Book", g.lib.Get("Book")).Index(Fields("id")...)))
	freeze(t, r)
	s, err := r.For("Book", nil, nil)
	require.NoError(t, err)

	list, err := s.RenderIndex(nil)
	require.NoError(t, err)
	require.NotNil(t, list)
	require.Len(t, list, 0)

	one, err := s.RenderShow(nil)
	require.NoError(t, err)
	require.NotNil(t, one)
	require.Len(t, one, 0)
}

func TestRenderAllAttributeKinds(t *testing.T) {
	g := newGraph()
	r := NewRegistry()
	redacted := func(rec *model.Record, identity any, _ Options) (any, error) {
		if identity == nil {
			return nil, nil
		}
		return rec.Get("email")
	}
	require.NoError(t, r.Register(NewBuilder("Author", g.lib.Get("Author")).
		Index(Field("name"), Computed("email", redacted))))
	require.NoError(t, r.Register(NewBuilder("BookBase", g.lib.Get("Book")).
		Index(Fields("id", "title")...)))
	require.NoError(t, r.Register(NewBuilder("Book", g.lib.Get("Book")).
		Index(
			Field("title"),
			Delegate("author", "Author", Auto),
			Embedded("reviews", Field("body"), Embedded("reviewer", Field("name"))),
			Embedded("publisher", Field("name")),
			Delegate("base", "BookBase", Auto),
		)))
	freeze(t, r)

	s, err := r.For("Book", nil, nil)
	require.NoError(t, err)
	got, err := s.RenderIndex([]*model.Record{g.book})
	require.NoError(t, err)

	want := []map[string]any{{
		"title":  "Dune",
		"author": map[string]any{"name": "Herbert", "email": nil},
		"reviews": []map[string]any{
			{"body": "great", "reviewer": map[string]any{"name": "Herbert"}},
			{"body": "long", "reviewer": map[string]any{}},
		},
		"publisher": map[string]any{},
		"base":      []map[string]any{{"id": int64(10), "title": "Dune"}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("render mismatch (-want +got):\n%s", diff)
	}

	// the identity reaches computed attributes
	s, _ = r.For("Book", "user-1", nil)
	got, err = s.RenderIndex([]*model.Record{g.book})
	require.NoError(t, err)
	require.Equal(t, "fh@example.com", got[0]["author"].(map[string]any)["email"])
}

func TestDelegateToMany(t *testing.T) {
	g := newGraph()
	r := NewRegistry()
	require.NoError(t, r.Register(NewBuilder("Review", g.lib.Get("Review")).Index(Field("body"))))
	require.NoError(t, r.Register(NewBuilder("Book", g.lib.Get("Book")).Index(Delegate("reviews", "Review", Auto))))
	freeze(t, r)

	require.Equal(t, Many, r.Get("Book").Index[0].Cardinality)

	s, _ := r.For("Book", nil, nil)
	got, err := s.RenderOne(g.book)
	require.NoError(t, err)
	require.Equal(t, []map[string]any{{"body": "great"}, {"body": "long"}}, got["reviews"])
}

func TestShowReplacesAndFallsBack(t *testing.T) {
	g := newGraph()
	r := NewRegistry()
	require.NoError(t, r.Register(NewBuilder("Book", g.lib.Get("Book")).
		Index(Field("id")).
		Show(Field("title")).
		Show(Field("id"), Field("title"))))
	require.NoError(t, r.Register(NewBuilder("Author", g.lib.Get("Author")).Index(Field("name"))))
	freeze(t, r)

	s, _ := r.For("Book", nil, nil)
	show, err := s.RenderShow(g.book)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": int64(10), "title": "Dune"}, show)

	a, _ := r.For("Author", nil, nil)
	show, err = a.RenderShow(g.author)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"name": "Herbert"}, show)
}

func TestRenderDoesNotMutateRecords(t *testing.T) {
	g := newGraph()
	r := NewRegistry()
	require.NoError(t, r.Register(NewBuilder("Book", g.lib.Get("Book")).
		Index(Field("title"), Embedded("reviews", Field("body")))))
	freeze(t, r)

	before := len(g.book.Fields)
	s, _ := r.For("Book", nil, nil)
	out, err := s.RenderIndex([]*model.Record{g.book})
	require.NoError(t, err)
	out[0]["title"] = "changed"
	require.Equal(t, "Dune", g.book.Fields["title"])
	require.Equal(t, before, len(g.book.Fields))
}

func TestRenderErrors(t *testing.T) {
	g := newGraph()
	r := NewRegistry()
	boom := func(*model.Record, any, Options) (any, error) { return nil, errors.New("boom") }
	require.NoError(t, r.Register(NewBuilder("Missing", g.lib.Get("Book")).Index(Field("subtitle"))))
	require.NoError(t, r.Register(NewBuilder("Failing", g.lib.Get("Book")).Index(Computed("x", boom))))
	require.NoError(t, r.Register(NewBuilder("Unloaded", g.lib.Get("Book")).Index(Embedded("book_tags", Field("tag_id")))))
	freeze(t, r)

	for name, frag := range map[string]string{
		"Missing":  "undefined attribute",
		"Failing":  "boom",
		"Unloaded": "not loaded",
	} {
		s, _ := r.For(name, nil, nil)
		_, err := s.RenderIndex([]*model.Record{g.book})
		if err == nil || !strings.Contains(err.Error(), frag) {
			t.Fatalf("%s: expected error containing %q, got %v", name, frag, err)
		}
	}
}

func TestLinkErrors(t *testing.T) {
	lib := modeltest.Library()
	cases := map[string]*Builder{
		"unknown serializer":    NewBuilder("Book", lib.Get("Book")).Index(Delegate("author", "Nope", Auto)),
		"embedded non relation": NewBuilder("Book", lib.Get("Book")).Index(Embedded("title", Field("x"))),
		"wrong model":           NewBuilder("Book", lib.Get("Book")).Index(Delegate("reviews", "Book", Many).WithMaxDepth(1)),
		"self on embedded":      NewBuilder("Book", lib.Get("Book")).Index(Attribute{Key: "author", Kind: KindEmbedded, Cardinality: Self}),
		"computed without func": NewBuilder("Book", lib.Get("Book")).Index(Attribute{Key: "x", Kind: KindComputed}),
	}
	for name, b := range cases {
		r := NewRegistry()
		require.NoError(t, r.Register(b))
		if err := r.Freeze(); err == nil {
			t.Fatalf("%s: expected link error", name)
		}
	}
}

func TestCycleWithoutMaxDepthIsRejected(t *testing.T) {
	lib := modeltest.Library()
	r := NewRegistry()
	require.NoError(t, r.Register(NewBuilder("Book", lib.Get("Book")).Index(Field("title"), Delegate("author", "Author", Auto))))
	require.NoError(t, r.Register(NewBuilder("Author", lib.Get("Author")).Index(Field("name"), Delegate("books", "Book", Auto))))
	err := r.Freeze()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle detected")
}

func TestCycleWithMaxDepthIsBounded(t *testing.T) {
	g := newGraph()
	r := NewRegistry()
	require.NoError(t, r.Register(NewBuilder("Book", g.lib.Get("Book")).
		Index(Field("title"), Delegate("author", "Author", Auto).WithMaxDepth(1))))
	require.NoError(t, r.Register(NewBuilder("Author", g.lib.Get("Author")).
		Index(Field("name"), Delegate("books", "Book", Auto).WithMaxDepth(1))))
	freeze(t, r)

	s, _ := r.For("Book", nil, nil)
	got, err := s.RenderOne(g.book)
	require.NoError(t, err)

	// Book → Author → Book → Author(one re-entry each) → books truncated
	author := got["author"].(map[string]any)
	books := author["books"].([]map[string]any)
	require.Len(t, books, 1)
	inner := books[0]["author"].(map[string]any)
	require.Equal(t, "Herbert", inner["name"])
	require.Equal(t, []map[string]any{}, inner["books"])
}

func TestIncludesFollowAttributeTree(t *testing.T) {
	lib := modeltest.Library()
	r := NewRegistry()
	require.NoError(t, r.Register(NewBuilder("Author", lib.Get("Author")).Index(Field("name"))))
	require.NoError(t, r.Register(NewBuilder("BookBase", lib.Get("Book")).Index(Field("id"), Delegate("publisher", "Publisher", Auto))))
	require.NoError(t, r.Register(NewBuilder("Publisher", lib.Get("Publisher")).Index(Field("name"))))
	require.NoError(t, r.Register(NewBuilder("Book", lib.Get("Book")).
		Index(
			Delegate("author", "Author", Auto),
			Embedded("reviews", Field("body"), Delegate("reviewer", "Author", Auto)),
			Delegate("base", "BookBase", Self),
		).
		Show(Field("title"))))
	freeze(t, r)

	s, _ := r.For("Book", nil, nil)
	want := []query.Include{
		{Name: "author"},
		{Name: "reviews", Children: []query.Include{{Name: "reviewer"}}},
		{Name: "publisher"},
	}
	if diff := cmp.Diff(want, s.Includes(), cmp.Comparer(func(a, b query.Scope) bool { return a == nil && b == nil })); diff != "" {
		t.Fatalf("includes (-want +got):\n%s", diff)
	}
	if len(s.ShowIncludes()) != 0 {
		t.Fatalf("show attributes read no associations")
	}
}

const bookSerializer = `
table: books
serializer:
  index:
    - id
    - title
    - key: author
      serializer: Author
    - key: reviews
      attributes: [body]
    - key: shout
      computed: shout
  show:
    - title
`

func TestLoadDocuments(t *testing.T) {
	g := newGraph()
	bookDoc, err := model.ParseDocument("Book", []byte(bookSerializer))
	require.NoError(t, err)
	authorDoc, err := model.ParseDocument("Author", []byte("table: authors\nserializer:\n  index: [name]\n"))
	require.NoError(t, err)

	r := NewRegistry()
	require.NoError(t, r.RegisterCompute("shout", func(rec *model.Record, _ any, _ Options) (any, error) {
		v, err := rec.Get("title")
		return strings.ToUpper(v.(string)), err
	}))
	require.NoError(t, r.LoadDocuments(g.lib, []model.Document{bookDoc, authorDoc}))
	freeze(t, r)

	s, err := r.For("Book", nil, nil)
	require.NoError(t, err)
	got, err := s.RenderOne(g.book)
	require.NoError(t, err)
	require.Equal(t, "DUNE", got["shout"])
	require.Equal(t, map[string]any{"name": "Herbert"}, got["author"])
	require.Equal(t, []map[string]any{{"body": "great"}, {"body": "long"}}, got["reviews"])

	show, err := s.RenderShow(g.book)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"title": "Dune"}, show)
}

func TestLoadDocumentsUnknownCompute(t *testing.T) {
	doc, err := model.ParseDocument("Book", []byte(bookSerializer))
	require.NoError(t, err)
	require.Error(t, NewRegistry().LoadDocuments(modeltest.Library(), []model.Document{doc}))
}
