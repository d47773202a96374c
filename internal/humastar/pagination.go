// pagination.go: HATEOAS pagination via RFC 8288 Link headers.
//
// Response bodies implement the Pager interface to emit next/prev/first/last
// Link headers. The LinkTransformer reads these and sets the headers.
package humastar

import (
	"fmt"
	"net/url"
	"strconv"
)

// DefaultLimit is the page size used when a request gives none.
const DefaultLimit = 100

// Pager is implemented by response bodies that carry pagination metadata.
type Pager interface {
	PaginationLinks(base *url.URL) []string
}

// PageBody is a generic paginated response envelope.
// Any handler returning PageBody[T] gets automatic pagination Link headers.
type PageBody[T any] struct {
	Total  int `json:"total" doc:"Total number of items"`
	Offset int `json:"offset" doc:"Current offset"`
	Limit  int `json:"limit" doc:"Page size"`
	Data   []T `json:"data" doc:"Items"`
}

// Page slices items into a PageBody. Out-of-range offsets yield an empty page.
func Page[T any](items []T, offset, limit int) PageBody[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	start := min(offset, len(items))
	end := min(start+limit, len(items))
	data := make([]T, end-start)
	copy(data, items[start:end])
	return PageBody[T]{Total: len(items), Offset: offset, Limit: limit, Data: data}
}

// PaginationLinks returns RFC 8288 Link header values for pagination rels.
// Query parameters other than offset and limit are preserved.
func (p PageBody[T]) PaginationLinks(base *url.URL) []string {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	link := func(offset int, rel string) string {
		q := base.Query()
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(limit))
		return fmt.Sprintf(`<%s?%s>; rel="%s"`, base.Path, q.Encode(), rel)
	}

	links := []string{link(0, "first")}

	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-limit, 0), "prev"))
	}

	if p.Offset+limit < p.Total {
		links = append(links, link(p.Offset+limit, "next"))
	}

	lastOffset := max(((p.Total-1)/limit)*limit, 0)
	links = append(links, link(lastOffset, "last"))

	return links
}
