package listing

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page describes one page of a collection and the navigation around it.
type Page struct {
	Number     int  `json:"page"`
	Size       int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
	From       int  `json:"from"`
	To         int  `json:"to"`
}

// ParsePage reads ?page=&page_size= from the query, clamping bad values.
func ParsePage(q url.Values, defaultSize int) Page {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	p := Page{Number: 1, Size: defaultSize}

	if sizeStr := strings.TrimSpace(q.Get("page_size")); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil {
			switch {
			case size <= 0:
				p.Size = defaultSize
			case size > MaxPageSize:
				p.Size = MaxPageSize
			default:
				p.Size = size
			}
		}
	}

	if pageStr := strings.TrimSpace(q.Get("page")); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			p.Number = page
		}
	}
	return p
}

// Offset is the zero-based index of the first item on the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// WithTotal fills the metadata once the item count is known.
func (p Page) WithTotal(total int) Page {
	p.Total = total
	p.TotalPages = TotalPages(total, p.Size)
	p.HasPrev = p.Number > 1
	p.HasNext = p.Number < p.TotalPages
	if total == 0 || p.Offset() >= total {
		p.From, p.To = 0, 0
		return p
	}
	p.From = p.Offset() + 1
	p.To = p.Offset() + p.Size
	if p.To > total {
		p.To = total
	}
	return p
}

// TotalPages is ceil(n/size).
func TotalPages(n, size int) int {
	if size <= 0 || n <= 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / float64(size)))
}

// Slice returns the items of the requested page from a fully fetched
// collection, along with the completed page metadata.
func Slice[T any](items []T, p Page) ([]T, Page) {
	p = p.WithTotal(len(items))
	if p.From == 0 {
		return []T{}, p
	}
	return items[p.From-1 : p.To], p
}

// Numbers lists the page numbers for a pager.
func (p Page) Numbers() []int {
	out := make([]int, p.TotalPages)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Query encodes the page back into query parameters.
func (p Page) Query(q url.Values) url.Values {
	out := url.Values{}
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	out.Set("page", strconv.Itoa(p.Number))
	out.Set("page_size", strconv.Itoa(p.Size))
	return out
}
