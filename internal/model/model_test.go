package model

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestInitRegistryLinksDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "BookTag.yml", `
table: book_tags
relations:
  book:
    type: belongs_to
    model: Book
`)
	writeFile(t, dir, "Book.yml", `
table: books
primary_key: book_id
relations:
  book_tags:
    type: has_many
    model: BookTag
  cover:
    type: has_one
    model: Cover
    fk: owner_id
`)
	writeFile(t, dir, "Cover.yml", `
table: covers
`)

	r, err := InitRegistry(dir)
	if err != nil {
		t.Fatalf("InitRegistry: %v", err)
	}
	if got := strings.Join(r.Names(), ","); got != "Book,BookTag,Cover" {
		t.Fatalf("names = %s", got)
	}

	belongs := r.Get("BookTag").GetRelation("book")
	if belongs.FK != "book_id" || belongs.PK != "book_id" || belongs.Table != "books" {
		t.Fatalf("belongs_to defaults: %+v", belongs)
	}
	if belongs.GetModelRef() != r.Get("Book") {
		t.Fatalf("belongs_to not linked")
	}

	many := r.Get("Book").GetRelation("book_tags")
	if many.FK != "book_id" || many.PK != "book_id" || many.Table != "book_tags" || many.Name != "book_tags" {
		t.Fatalf("has_many defaults: %+v", many)
	}
	if !many.IsToMany() || many.IsToOne() {
		t.Fatalf("has_many cardinality")
	}
	if one := r.Get("Book").GetRelation("cover"); one.FK != "owner_id" || !one.IsToOne() {
		t.Fatalf("has_one: %+v", one)
	}
}

func TestLinkRejectsUnknownModel(t *testing.T) {
	r := NewRegistry()
	doc, err := ParseDocument("Book", []byte(`
table: books
relations:
  author:
    type: belongs_to
    model: Author
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := r.AddDocument(doc); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := r.Link(); err == nil || !strings.Contains(err.Error(), "model 'Author' not found") {
		t.Fatalf("expected unknown model error, got %v", err)
	}
}

func TestParseDocumentValidatesKeys(t *testing.T) {
	cases := map[string]string{
		"unknown top-level key": "table: books\npresets: {}\n",
		"unknown relation key":  "table: books\nrelations:\n  a:\n    model: A\n    type: has_many\n    through: x\n",
		"unknown relation type": "table: books\nrelations:\n  a:\n    model: A\n    type: many_to_many\n",
		"unknown resource key":  "table: books\nresource:\n  plural: books\n  per_page: 3\n",
		"unknown cardinality":   "table: books\nserializer:\n  index:\n    - key: a\n      serializer: A\n      cardinality: lots\n",
		"empty":                 "",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseDocument("Book", []byte(src)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	doc, err := ParseDocument("Book", []byte(`
table: books
resource:
  plural: books
  search: [title, {association: author, column: name}]
  preloads:
    - reviews
    - name: tags
      nested: [tag]
serializer:
  index: [id, {key: author, attributes: [name]}]
`))
	if err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}
	if doc.Section("resource") == nil || doc.Section("serializer") == nil || doc.Section("missing") != nil {
		t.Fatalf("sections not found")
	}
}

func TestRecord(t *testing.T) {
	m := &Model{Name: "Book", PrimaryKey: "book_id"}
	rec := NewRecord(m, map[string]any{"book_id": int64(3), "title": "Dune"})

	if rec.ID() != int64(3) {
		t.Fatalf("ID = %v", rec.ID())
	}
	if v, err := rec.Get("title"); err != nil || v != "Dune" {
		t.Fatalf("Get(title) = %v, %v", v, err)
	}
	if _, err := rec.Get("isbn"); err == nil {
		t.Fatalf("expected undefined attribute error")
	}

	if rec.IsLoaded("author") || rec.One("author") != nil {
		t.Fatalf("author should not be loaded")
	}
	rec.SetAssociation("author", nil)
	if !rec.IsLoaded("author") || rec.One("author") != nil {
		t.Fatalf("empty association should count as loaded")
	}
	author := NewRecord(nil, map[string]any{"id": int64(1)})
	rec.SetAssociation("author", []*Record{author})
	if rec.One("author") != author {
		t.Fatalf("One returned the wrong record")
	}
	if author.ID() != int64(1) {
		t.Fatalf("ID without model = %v", author.ID())
	}
}

func TestSnakeName(t *testing.T) {
	for in, want := range map[string]string{"Book": "book", "BookTag": "book_tag", "ISBN": "i_s_b_n"} {
		if got := (&Model{Name: in}).SnakeName(); got != want {
			t.Fatalf("SnakeName(%s) = %s, want %s", in, got, want)
		}
	}
}
