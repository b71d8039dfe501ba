package border

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/core/events"
	"github.com/frahmantamala/taxfree-console/internal/listing"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"golang.org/x/sync/errgroup"
)

const (
	bordersPath = "/api/customs/points-of-exit/"
	statsPath   = "/api/customs/admin/borders/stats/"

	cacheResource = "borders"
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

// List returns the points of exit matching f. Type and status filter on
// the backend; the search runs here over code, name and city.
func (s *Service) List(ctx context.Context, f listing.Filters) ([]PointOfExit, error) {
	q := url.Values{}
	if f.Category != "" {
		q.Set("type", f.Category)
	}
	switch f.Status {
	case "active":
		q.Set("is_active", "true")
	case "inactive":
		q.Set("is_active", "false")
	}
	items, err := querycache.Fetch(ctx, s.cache, cacheKey(ctx, "list", q.Encode()), func(ctx context.Context) ([]PointOfExit, error) {
		var out []PointOfExit
		err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: bordersPath, Query: q}, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return listing.FilterBy(items, func(p PointOfExit) bool {
		return f.Matches(p.Code, p.Name, p.City)
	}), nil
}

func (s *Service) Stats(ctx context.Context) ([]Stats, error) {
	return querycache.Fetch(ctx, s.cache, cacheKey(ctx, "stats"), func(ctx context.Context) ([]Stats, error) {
		var out statsList
		if err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: statsPath}, &out); err != nil {
			return nil, err
		}
		return out.Borders, nil
	})
}

// Get loads a point of exit and its activity row together. The page still
// renders when only the report fails.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	var (
		d     Detail
		stats []Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := querycache.Fetch(gctx, s.cache, cacheKey(ctx, "detail", id), func(ctx context.Context) (PointOfExit, error) {
			var out PointOfExit
			err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: bordersPath + url.PathEscape(id) + "/"}, &out)
			return out, err
		})
		d.PointOfExit = p
		return err
	})
	g.Go(func() error {
		var err error
		if stats, err = s.Stats(gctx); err != nil {
			s.logger.Warn("border stats unavailable", "border_id", id, "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i := range stats {
		if stats[i].ID == id {
			d.Stats = &stats[i]
			break
		}
	}
	return &d, nil
}

// SetActive opens or closes a point of exit.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*PointOfExit, error) {
	var out PointOfExit
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method: http.MethodPatch,
		Path:   bordersPath + url.PathEscape(id) + "/",
		Body:   map[string]bool{"is_active": active},
	}, &out)
	if err != nil {
		return nil, err
	}
	action := "deactivate"
	if active {
		action = "activate"
	}
	if err := s.bus.PublishSync(ctx, events.ResourceMutated(cacheResource, id, action)); err != nil {
		s.logger.Error("failed to publish border mutation", "border_id", id, "error", err)
	}
	return &out, nil
}
