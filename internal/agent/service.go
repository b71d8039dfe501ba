package agent

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
)

const (
	agentsPath      = "/api/customs/admin/agents/"
	invitationsPath = "/api/customs/admin/invitations/"
	bordersPath     = "/api/customs/points-of-exit/"

	// cacheResource is the prefix every agents cache key starts with.
	cacheResource = "agents"
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

// agentQuery maps the filter bar onto the backend's agent filters: Category
// carries the point of exit and Status the active flag.
func agentQuery(f listing.Filters) url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("point_of_exit", f.Category)
	}
	switch f.Status {
	case "active":
		q.Set("is_active", "true")
	case "inactive":
		q.Set("is_active", "false")
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	return q
}

// List returns every agent matching f. The backend does not paginate this
// collection; the caller slices it.
func (s *Service) List(ctx context.Context, f listing.Filters) ([]Agent, error) {
	q := agentQuery(f)
	return querycache.Fetch(ctx, s.cache, cacheKey(ctx, "list", q.Encode()), func(ctx context.Context) ([]Agent, error) {
		var out agentList
		if err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: agentsPath, Query: q}, &out); err != nil {
			return nil, err
		}
		return out.Agents, nil
	})
}

// Borders lists the points of exit offered by the agent filter. The entry
// lives under the borders prefix so border changes refresh it.
func (s *Service) Borders(ctx context.Context) ([]Border, error) {
	key := querycache.Key("borders", session.CacheScope(ctx), "options")
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]Border, error) {
		var out []Border
		err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: bordersPath}, &out)
		return out, err
	})
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	return querycache.Fetch(ctx, s.cache, cacheKey(ctx, "detail", id), func(ctx context.Context) (*Detail, error) {
		var out Detail
		if err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: agentsPath + url.PathEscape(id) + "/"}, &out); err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// SetActive enables or disables an agent's account.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Agent, error) {
	var out Agent
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method: http.MethodPatch,
		Path:   agentsPath + url.PathEscape(id) + "/",
		Body:   map[string]bool{"is_active": active},
	}, &out)
	if err != nil {
		return nil, err
	}
	action := "deactivate"
	if active {
		action = "activate"
	}
	s.mutated(ctx, id, action)
	return &out, nil
}

func (s *Service) Invitations(ctx context.Context, f listing.Filters) ([]Invitation, error) {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Category != "" {
		q.Set("point_of_exit", f.Category)
	}
	items, err := querycache.Fetch(ctx, s.cache, cacheKey(ctx, "invitations", q.Encode()), func(ctx context.Context) ([]Invitation, error) {
		var out invitationList
		if err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: invitationsPath, Query: q}, &out); err != nil {
			return nil, err
		}
		return out.Invitations, nil
	})
	if err != nil {
		return nil, err
	}
	return listing.FilterBy(items, func(i Invitation) bool {
		return f.Matches(i.Email, i.FirstName, i.LastName, i.Matricule)
	}), nil
}

// ResendInvitation sends the activation link again and returns the
// backend's confirmation message.
func (s *Service) ResendInvitation(ctx context.Context, id string) (string, error) {
	var out struct {
		Detail string `json:"detail"`
	}
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   invitationsPath + url.PathEscape(id) + "/resend/",
	}, &out)
	if err != nil {
		return "", err
	}
	s.mutated(ctx, id, "resend")
	if out.Detail == "" {
		out.Detail = "Invitation renvoyée."
	}
	return out.Detail, nil
}

// CancelInvitation revokes a pending invitation.
func (s *Service) CancelInvitation(ctx context.Context, id string) error {
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method: http.MethodDelete,
		Path:   invitationsPath + url.PathEscape(id) + "/",
	}, nil)
	if err != nil {
		return err
	}
	s.mutated(ctx, id, "cancel")
	return nil
}

// mutated drops the cached agent data before the caller renders again.
func (s *Service) mutated(ctx context.Context, id, action string) {
	if err := s.bus.PublishSync(ctx, events.ResourceMutated(cacheResource, id, action)); err != nil {
		s.logger.Error("failed to publish agent mutation", "agent_id", id, "action", action, "error", err)
	}
}

