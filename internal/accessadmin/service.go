package accessadmin

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/core/events"
	"github.com/frahmantamala/taxfree-console/internal/listing"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"golang.org/x/sync/errgroup"
)

const (
	usersPath   = "/api/auth/admin/permissions/"
	presetsPath = "/api/auth/admin/presets/"

	cacheResource = "accessadmin"
)

func userPath(id string) string   { return "/api/auth/admin/users/" + url.PathEscape(id) + "/permissions/" }
func presetPath(id string) string { return "/api/auth/admin/users/" + url.PathEscape(id) + "/apply_preset/" }

type BackendAPI interface {
	DoJSON(ctx context.Context, req apiclient.Request, out any) error
}

// SessionsAPI refreshes the editor's own grants when they edit themselves.
type SessionsAPI interface {
	InvalidatePermissions(ctx context.Context, s *session.Session) error
}

type Service struct {
	backend  BackendAPI
	sessions SessionsAPI
	cache    *querycache.Cache
	bus      *events.Bus
	logger   *slog.Logger
}

func NewService(backend BackendAPI, sessions SessionsAPI, cache *querycache.Cache, bus *events.Bus, logger *slog.Logger) *Service {
	return &Service{backend: backend, sessions: sessions, cache: cache, bus: bus, logger: logger}
}

func cacheKey(ctx context.Context, parts ...string) string {
	return querycache.Key(append([]string{cacheResource, session.CacheScope(ctx)}, parts...)...)
}

// Users lists the ADMIN and AUDITOR accounts. The backend returns them
// all at once; role and search filter here.
func (s *Service) Users(ctx context.Context, f listing.Filters) ([]SystemUser, error) {
	users, err := s.allUsers(ctx)
	if err != nil {
		return nil, err
	}
	return listing.FilterBy(users, func(u SystemUser) bool {
		if f.Category != "" && string(u.Role) != f.Category {
			return false
		}
		return f.Matches(u.FullName, u.Email)
	}), nil
}

func (s *Service) allUsers(ctx context.Context) ([]SystemUser, error) {
	return querycache.Fetch(ctx, s.cache, cacheKey(ctx, "users"), func(ctx context.Context) ([]SystemUser, error) {
		var out []SystemUser
		err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: usersPath}, &out)
		return out, err
	})
}

// User joins the overview entry with the user's current grants, which the
// permissions endpoint returns as a bare list.
func (s *Service) User(ctx context.Context, id string) (*SystemUser, error) {
	var (
		users  []SystemUser
		grants permission.GrantSet
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.allUsers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		grants, err = querycache.Fetch(gctx, s.cache, cacheKey(ctx, "grants", id), func(ctx context.Context) (permission.GrantSet, error) {
			var out permission.GrantSet
			err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: userPath(id)}, &out)
			return out, err
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.ID.String() == id {
			u.Permissions = grants
			u.PermissionsCount = grants.Len()
			return &u, nil
		}
	}
	return nil, internal.NewNotFoundError("Utilisateur introuvable.", internal.ErrCodeResourceNotFound)
}

// Presets returns the active presets.
func (s *Service) Presets(ctx context.Context) ([]Preset, error) {
	presets, err := querycache.Fetch(ctx, s.cache, cacheKey(ctx, "presets"), func(ctx context.Context) ([]Preset, error) {
		var out presetList
		err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: presetsPath}, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return listing.FilterBy(presets, func(p Preset) bool { return p.IsActive }), nil
}

func (s *Service) Grant(ctx context.Context, id string, g permission.Grant) error {
	err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodPost, Path: userPath(id), Body: payloadFor(g)}, nil)
	if err != nil {
		return err
	}
	s.changed(ctx, id, "grant")
	return nil
}

// Revoke removes one grant. It is called once per confirmed removal.
func (s *Service) Revoke(ctx context.Context, id string, g permission.Grant) error {
	err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodDelete, Path: userPath(id), Body: payloadFor(g)}, nil)
	if err != nil {
		return err
	}
	s.changed(ctx, id, "revoke")
	return nil
}

// ApplyPreset replaces the user's grants with the preset's.
func (s *Service) ApplyPreset(ctx context.Context, id string, d PresetDTO) (*PresetResult, error) {
	if appErr := d.Validate(); appErr != nil {
		return nil, appErr
	}
	var out PresetResult
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   presetPath(id),
		Body:   map[string]any{"preset_id": d.PresetID, "replace": true},
	}, &out)
	if err != nil {
		return nil, err
	}
	s.changed(ctx, id, "apply_preset")
	return &out, nil
}

// changed drops the cached listings and, when the editor changed their own
// account, the grants held on their session.
func (s *Service) changed(ctx context.Context, id, action string) {
	if err := s.bus.PublishSync(ctx, events.ResourceMutated(cacheResource, id, action)); err != nil {
		s.logger.Warn("mutation event failed", "resource", cacheResource, "id", id, "error", err)
	}
	sess, ok := session.FromContext(ctx)
	if !ok || sess.UserIDString() != id {
		return
	}
	if err := s.sessions.InvalidatePermissions(ctx, sess); err != nil {
		s.logger.Warn("own permissions not refreshed", "user_id", id, "error", err)
	}
}
