// Package modeltest provides a linked model registry for tests.
package modeltest

import (
	"ResourceAPI/internal/model"
)

var librarySources = map[string]string{
	"Author": `
table: authors
relations:
  books:
    type: has_many
    model: Book
`,
	"Book": `
table: books
required: [title]
relations:
  author:
    type: belongs_to
    model: Author
  publisher:
    type: belongs_to
    model: Publisher
  reviews:
    type: has_many
    model: Review
    order: created_at DESC
  published_reviews:
    type: has_many
    model: Review
    where: reviews.published = true
  book_tags:
    type: has_many
    model: BookTag
  cover:
    type: has_one
    model: Cover
`,
	"Publisher": `
table: publishers
`,
	"Review": `
table: reviews
relations:
  book:
    type: belongs_to
    model: Book
  reviewer:
    type: belongs_to
    model: Author
    fk: reviewer_id
`,
	"BookTag": `
table: book_tags
relations:
  book:
    type: belongs_to
    model: Book
  tag:
    type: belongs_to
    model: Tag
`,
	"Tag": `
table: tags
`,
	"Cover": `
table: covers
`,
}

// Library returns a linked registry with Author, Book, Publisher, Review, BookTag, Tag and Cover.
func Library() *model.Registry {
	r := model.NewRegistry()
	for name, src := range librarySources {
		doc, err := model.ParseDocument(name, []byte(src))
		if err != nil {
			panic(err)
		}
		if err := r.AddDocument(doc); err != nil {
			panic(err)
		}
	}
	if err := r.Link(); err != nil {
		panic(err)
	}
	return r
}
