package query

// Page describes one page of a paginated list.
type Page struct {
	Count   int64 `json:"count"`
	Page    int   `json:"page"`
	Pages   int   `json:"pages"`
	PerPage int   `json:"-"`
}

// NewPage clamps page to at least 1 and computes the page count.
// An empty result still has one (empty) page.
func NewPage(count int64, page, perPage int) Page {
	if perPage <= 0 {
		perPage = 1
	}
	if page < 1 {
		page = 1
	}
	pages := int((count + int64(perPage) - 1) / int64(perPage))
	if pages < 1 {
		pages = 1
	}
	return Page{Count: count, Page: page, Pages: pages, PerPage: perPage}
}

func (p Page) Offset() uint64 {
	return uint64(p.Page-1) * uint64(p.PerPage)
}

// Paginate applies LIMIT/OFFSET of p to q.
func Paginate(q *Query, p Page) *Query {
	return q.Limit(uint64(p.PerPage)).Offset(p.Offset())
}
