package listing_test

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/frahmantamala/taxfree-console/internal/listing"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestListing(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Listing Suite")
}

func borders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("border-%02d", i+1)
	}
	return out
}

var _ = Describe("Pagination", func() {
	DescribeTable("total pages is ceil(N/P)",
		func(n, size, expected int) {
			Expect(listing.TotalPages(n, size)).To(Equal(expected))
		},
		Entry("empty", 0, 5, 0),
		Entry("exact", 10, 5, 2),
		Entry("remainder", 12, 5, 3),
		Entry("single short page", 3, 5, 1),
		Entry("page size one", 7, 1, 7),
	)

	It("slices 12 borders into pages of 5", func() {
		items := borders(12)
		filtered := listing.FilterBy(items, func(s string) bool { return listing.Filters{}.Matches(s) })

		first, meta := listing.Slice(filtered, listing.Page{Number: 1, Size: 5})
		Expect(meta.TotalPages).To(Equal(3))
		Expect(first).To(Equal(items[0:5]))
		Expect(meta.HasPrev).To(BeFalse())
		Expect(meta.HasNext).To(BeTrue())

		last, meta := listing.Slice(filtered, listing.Page{Number: 3, Size: 5})
		Expect(last).To(Equal([]string{"border-11", "border-12"}))
		Expect(meta.From).To(Equal(11))
		Expect(meta.To).To(Equal(12))
		Expect(meta.HasNext).To(BeFalse())
	})

	It("returns an empty page past the end", func() {
		out, meta := listing.Slice(borders(4), listing.Page{Number: 9, Size: 5})
		Expect(out).To(BeEmpty())
		Expect(meta.TotalPages).To(Equal(1))
	})

	It("parses and clamps page parameters", func() {
		p := listing.ParsePage(url.Values{"page": {"-2"}, "page_size": {"1000"}}, 5)
		Expect(p.Number).To(Equal(1))
		Expect(p.Size).To(Equal(listing.MaxPageSize))

		p = listing.ParsePage(url.Values{"page": {"4"}}, 5)
		Expect(p.Number).To(Equal(4))
		Expect(p.Size).To(Equal(5))
		Expect(p.Offset()).To(Equal(15))
	})
})

var _ = Describe("Filters", func() {
	It("resets to page 1 when any filter changes", func() {
		prev := listing.Filters{Search: "kin"}
		Expect(prev.Apply(listing.Filters{Search: "kin"}, 3)).To(Equal(3))
		Expect(prev.Apply(listing.Filters{Search: "kins"}, 3)).To(Equal(1))
		Expect(prev.Apply(listing.Filters{Search: "kin", Status: "VALIDATED"}, 3)).To(Equal(1))
		Expect(prev.Apply(listing.Filters{Search: "kin", From: "2025-01-01"}, 2)).To(Equal(1))
	})

	It("resets the page from the filter bar's previous values", func() {
		q := url.Values{"page": {"3"}, "search": {"goma"}, "prev_search": {"bukavu"}}
		Expect(listing.Resolve(q, 5).Page.Number).To(Equal(1))

		q = url.Values{"page": {"3"}, "search": {"goma"}, "prev_search": {"goma"}}
		Expect(listing.Resolve(q, 5).Page.Number).To(Equal(3))
	})

	It("drops malformed dates and encodes only set fields", func() {
		f := listing.ParseFilters(url.Values{"date_from": {"yesterday"}, "date_to": {"2025-02-01"}, "status": {"ISSUED"}})
		Expect(f.From).To(BeEmpty())
		Expect(f.Values().Encode()).To(Equal("date_to=2025-02-01&status=ISSUED"))
	})

	It("matches search text case-insensitively across fields", func() {
		f := listing.Filters{Search: "KASUMBALESA"}
		Expect(f.Matches("Poste Kasumbalesa", "LBB")).To(BeTrue())
		Expect(f.Matches("Goma", "GOM")).To(BeFalse())
	})
})
