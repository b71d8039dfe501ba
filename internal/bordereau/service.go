package bordereau

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/core/events"
	"github.com/frahmantamala/taxfree-console/internal/listing"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

const (
	formsPath     = "/api/taxfree/admin/forms/"
	overridesPath = "/api/taxfree/admin/overrides/"

	cacheResource = "forms"
)

type BackendAPI interface {
	DoJSON(ctx context.Context, req apiclient.Request, out any) error
}

type Service struct {
	backend BackendAPI
	cache   *querycache.Cache
	bus     *events.Bus
	logger  *slog.Logger
}

func NewService(backend BackendAPI, cache *querycache.Cache, bus *events.Bus, logger *slog.Logger) *Service {
	return &Service{backend: backend, cache: cache, bus: bus, logger: logger}
}

func cacheKey(ctx context.Context, parts ...string) string {
	return querycache.Key(append([]string{cacheResource, session.CacheScope(ctx)}, parts...)...)
}

// formQuery maps the filter bar: Category "high" keeps the forms flagged
// for control.
func formQuery(f listing.Filters) url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("search", f.Search)
	set("status", f.Status)
	set("date_from", f.From)
	set("date_to", f.To)
	if f.Category == "high" {
		q.Set("high_risk", "true")
	}
	return q
}

// List fetches one page; the backend paginates forms.
func (s *Service) List(ctx context.Context, f listing.Filters, page listing.Page) ([]Form, listing.Page, error) {
	q := formQuery(f)
	q.Set("page", strconv.Itoa(page.Number))
	q.Set("page_size", strconv.Itoa(page.Size))

	res, err := querycache.Fetch(ctx, s.cache, cacheKey(ctx, "list", q.Encode()), func(ctx context.Context) (formPage, error) {
		var out formPage
		err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: formsPath, Query: q}, &out)
		return out, err
	})
	if err != nil {
		return nil, page, err
	}
	return res.Results, page.WithTotal(res.Count), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	return querycache.Fetch(ctx, s.cache, cacheKey(ctx, "detail", id), func(ctx context.Context) (*Detail, error) {
		var out Detail
		if err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: formsPath + id + "/"}, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// Correct records a status override against the form's current status.
func (s *Service) Correct(ctx context.Context, d CorrectionDTO, current string) (*Override, error) {
	if appErr := d.Validate(current); appErr != nil {
		return nil, appErr
	}
	var out Override
	if err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodPost, Path: overridesPath, Body: d}, &out); err != nil {
		return nil, err
	}
	if err := s.bus.PublishSync(ctx, events.ResourceMutated(cacheResource, d.FormID, "override")); err != nil {
		s.logger.Warn("mutation event failed", "resource", cacheResource, "id", d.FormID, "error", err)
	}
	s.logger.Info("form status corrected", "form_id", d.FormID, "from", current, "to", d.NewStatus)
	return &out, nil
}
