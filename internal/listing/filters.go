package listing

import (
	"net/url"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Filters is the filter bar shared by list screens.
type Filters struct {
	Search   string `json:"search,omitempty"`
	Category string `json:"category,omitempty"`
	Status   string `json:"status,omitempty"`
	From     string `json:"date_from,omitempty"`
	To       string `json:"date_to,omitempty"`
}

func ParseFilters(q url.Values) Filters {
	f := Filters{
		Search:   strings.TrimSpace(q.Get("search")),
		Category: strings.TrimSpace(q.Get("category")),
		Status:   strings.TrimSpace(q.Get("status")),
		From:     strings.TrimSpace(q.Get("date_from")),
		To:       strings.TrimSpace(q.Get("date_to")),
	}
	if _, err := time.Parse(dateLayout, f.From); err != nil {
		f.From = ""
	}
	if _, err := time.Parse(dateLayout, f.To); err != nil {
		f.To = ""
	}
	return f
}

func (f Filters) IsZero() bool { return f == Filters{} }

// Apply moves from the current filters to next and returns the page number
// to show: any change goes back to page 1.
func (f Filters) Apply(next Filters, current int) int {
	if f != next || current < 1 {
		return 1
	}
	return current
}

// Values encodes the filters for the backend query string, skipping empty
// fields.
func (f Filters) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("search", f.Search)
	set("category", f.Category)
	set("status", f.Status)
	set("date_from", f.From)
	set("date_to", f.To)
	return v
}

// Matches is a case-insensitive substring test over the given fields.
func (f Filters) Matches(fields ...string) bool {
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// FilterBy keeps items for which keep returns true.
func FilterBy[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// State is the list state carried between requests: the filters that
// produced the current page and the page itself.
type State struct {
	Filters Filters
	Page    Page
}

// Resolve computes the state for a request. The previous filters come from
// the "prev" form values written by the filter bar; a mismatch resets the
// page.
func Resolve(q url.Values, defaultSize int) State {
	page := ParsePage(q, defaultSize)
	filters := ParseFilters(q)
	prev := Filters{
		Search:   strings.TrimSpace(q.Get("prev_search")),
		Category: strings.TrimSpace(q.Get("prev_category")),
		Status:   strings.TrimSpace(q.Get("prev_status")),
		From:     strings.TrimSpace(q.Get("prev_date_from")),
		To:       strings.TrimSpace(q.Get("prev_date_to")),
	}
	if q.Has("prev_search") || q.Has("prev_category") || q.Has("prev_status") || q.Has("prev_date_from") || q.Has("prev_date_to") {
		page.Number = prev.Apply(filters, page.Number)
	}
	return State{Filters: filters, Page: page}
}
