package dashboard

import (
	"context"
	"net/http"
	"net/url"

	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

const (
	formStatsPath     = "/api/taxfree/admin/stats/"
	merchantStatsPath = "/api/merchants/admin/stats/"
	borderStatsPath   = "/api/customs/admin/borders/stats/"
	formsPath         = "/api/taxfree/admin/forms/"

	cacheResource = "dashboard"
	riskyLimit    = "5"
)

type BackendAPI interface {
	DoJSON(ctx context.Context, req apiclient.Request, out any) error
}

type Service struct {
	backend BackendAPI
	cache   *querycache.Cache
}

func NewService(backend BackendAPI, cache *querycache.Cache) *Service {
	return &Service{backend: backend, cache: cache}
}

func scope(ctx context.Context) string {
	return querycache.Key(cacheResource, session.CacheScope(ctx))
}

func fetch[T any](ctx context.Context, s *Service, name, path string, query url.Values) (T, error) {
	return querycache.Fetch(ctx, s.cache, querycache.Key(scope(ctx), name), func(ctx context.Context) (T, error) {
		var out T
		err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: path, Query: query}, &out)
		return out, err
	})
}

func (s *Service) Forms(ctx context.Context) (FormStats, error) {
	return fetch[FormStats](ctx, s, "forms", formStatsPath, nil)
}

func (s *Service) Merchants(ctx context.Context) (MerchantStats, error) {
	return fetch[MerchantStats](ctx, s, "merchants", merchantStatsPath, nil)
}

func (s *Service) Borders(ctx context.Context) (BorderStats, error) {
	list, err := fetch[borderList](ctx, s, "borders", borderStatsPath, nil)
	if err != nil {
		return BorderStats{}, err
	}
	return sumBorders(list.Borders), nil
}

// RiskyForms returns the latest forms flagged for control.
func (s *Service) RiskyForms(ctx context.Context) ([]RiskyForm, error) {
	q := url.Values{"high_risk": {"true"}, "page": {"1"}, "page_size": {riskyLimit}}
	page, err := fetch[riskyPage](ctx, s, "risky", formsPath, q)
	return page.Results, err
}

// Refresh drops the caller's cached tiles so the next read hits the backend.
func (s *Service) Refresh(ctx context.Context) {
	s.cache.Invalidate(scope(ctx) + ":")
}
