package auditlog

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/listing"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

const (
	logsPath    = "/api/audit/logs/"
	filtersPath = "/api/audit/logs/filters/"
	exportPath  = "/api/audit/logs/export/"

	cacheResource = "audit"
)

type BackendAPI interface {
	DoJSON(ctx context.Context, req apiclient.Request, out any) error
	Download(ctx context.Context, method, p string, query url.Values, body any) (*apiclient.Download, error)
}

type Service struct {
	backend BackendAPI
	cache   *querycache.Cache
}

func NewService(backend BackendAPI, cache *querycache.Cache) *Service {
	return &Service{backend: backend, cache: cache}
}

func cacheKey(ctx context.Context, parts ...string) string {
	return querycache.Key(append([]string{cacheResource, session.CacheScope(ctx)}, parts...)...)
}

// filterQuery maps the filter bar onto the audit filters. Status carries
// the action and Category the entity type.
func filterQuery(f listing.Filters) url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("search", f.Search)
	set("action", f.Status)
	set("entity", f.Category)
	set("start_date", f.From)
	set("end_date", f.To)
	return q
}

// List fetches one page of the trail; the backend paginates. A page past
// the end, which the backend answers with 404, falls back to the first.
func (s *Service) List(ctx context.Context, f listing.Filters, page listing.Page) ([]Entry, listing.Page, error) {
	entries, out, err := s.list(ctx, f, page)
	if err != nil && page.Number > 1 && internal.IsType(err, internal.ErrorTypeNotFound) {
		page.Number = 1
		return s.list(ctx, f, page)
	}
	return entries, out, err
}

func (s *Service) list(ctx context.Context, f listing.Filters, page listing.Page) ([]Entry, listing.Page, error) {
	q := filterQuery(f)
	q.Set("page", strconv.Itoa(page.Number))
	q.Set("page_size", strconv.Itoa(page.Size))

	res, err := querycache.Fetch(ctx, s.cache, cacheKey(ctx, "list", q.Encode()), func(ctx context.Context) (entryPage, error) {
		var out entryPage
		err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: logsPath, Query: q}, &out)
		return out, err
	})
	if err != nil {
		return nil, page, err
	}
	return res.Results, page.WithTotal(res.Count), nil
}

func (s *Service) Options(ctx context.Context) (Options, error) {
	return querycache.Fetch(ctx, s.cache, cacheKey(ctx, "options"), func(ctx context.Context) (Options, error) {
		var out Options
		err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: filtersPath}, &out)
		return out, err
	})
}

func (s *Service) Get(ctx context.Context, id string) (*Entry, error) {
	return querycache.Fetch(ctx, s.cache, cacheKey(ctx, "detail", id), func(ctx context.Context) (*Entry, error) {
		var out Entry
		if err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: logsPath + url.PathEscape(id) + "/"}, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// Export asks the backend for the filtered trail as a file. The caller
// owns the returned body.
func (s *Service) Export(ctx context.Context, f listing.Filters) (*apiclient.Download, error) {
	return s.backend.Download(ctx, http.MethodGet, exportPath, filterQuery(f), nil)
}
