package http

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PaginatedResponse wraps one page of results with its pagination metadata.
// The zone catalog is the only collection large enough to need paging, but
// the shape is kept generic.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination is offset-based. Total is the size of the whole collection,
// not of the returned page.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

func pageLink(base string, offset, limit int, rel string) string {
	return fmt.Sprintf(`<%s?offset=%d&limit=%d>; rel=%q`, base, offset, limit, rel)
}

// SetLinkHeaders emits RFC 8288 Link relations (first, prev, next, last) so
// clients can walk the collection without computing offsets themselves.
func SetLinkHeaders(c *fiber.Ctx, p Pagination) {
	base := c.Path()

	links := []string{pageLink(base, 0, p.Limit, "first")}

	if p.Offset > 0 {
		prev := p.Offset - p.Limit
		if prev < 0 {
			prev = 0
		}
		links = append(links, pageLink(base, prev, p.Limit, "prev"))
	}

	if next := p.Offset + p.Limit; next < p.Total {
		links = append(links, pageLink(base, next, p.Limit, "next"))
	}

	last := p.Total - p.Limit
	if last < 0 {
		last = 0
	}
	links = append(links, pageLink(base, last, p.Limit, "last"))

	c.Set("Link", strings.Join(links, ", "))
}
