package report

import (
	"context"
	"net/http"
	"net/url"

	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

const (
	summaryPath = "/api/reports/summary/"
	exportPath  = "/api/reports/export/"
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

func (s *Service) Summary(ctx context.Context, p PeriodDTO) (*Summary, error) {
	if appErr := p.Validate(); appErr != nil {
		return nil, appErr
	}
	q := p.Query()
	key := querycache.Key("reports", session.CacheScope(ctx), "summary", q.Encode())
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) (*Summary, error) {
		var out Summary
		if err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: summaryPath, Query: q}, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// Export requests a generated CSV. The caller owns the returned body.
func (s *Service) Export(ctx context.Context, e ExportDTO) (*apiclient.Download, error) {
	if appErr := e.Validate(); appErr != nil {
		return nil, appErr
	}
	return s.backend.Download(ctx, http.MethodGet, exportPath, e.Query(), nil)
}
