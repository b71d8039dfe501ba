package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

// PermissionLoader fetches the signed-in user's grants once per session
// and stores them on it. It backs the route guard while grants are
// missing.
type PermissionLoader struct {
	backend  BackendAPI
	sessions *session.Manager
	cache    *querycache.Cache
	wait     time.Duration
	logger   *slog.Logger
}

func NewPermissionLoader(backend BackendAPI, sessions *session.Manager, cache *querycache.Cache, wait time.Duration, logger *slog.Logger) *PermissionLoader {
	if wait <= 0 {
		wait = 1500 * time.Millisecond
	}
	return &PermissionLoader{
		backend:  backend,
		sessions: sessions,
		cache:    cache,
		wait:     wait,
		logger:   logger,
	}
}

func permissionsKey(sessionID string) string {
	return querycache.Key("permissions", sessionID)
}

// Ensure loads grants when the session lacks them. When the backend is
// slower than the configured wait it returns nil with the session still
// loading; the fetch keeps running and a later request finds it cached.
func (l *PermissionLoader) Ensure(ctx context.Context, s *session.Session) error {
	if s == nil || !s.IsAuthenticated || s.PermissionsLoaded {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	p, err := querycache.Fetch(waitCtx, l.cache, permissionsKey(s.ID), func(ctx context.Context) (Permissions, error) {
		var p Permissions
		err := l.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: myPermissionsPath}, &p)
		return p, err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			l.logger.Debug("permissions still loading", "session_id", s.ID)
			return nil
		}
		return err
	}
	return l.apply(ctx, s, p)
}

func (l *PermissionLoader) apply(ctx context.Context, s *session.Session, p Permissions) error {
	grants := p.Grants
	if !p.HasGranularPermissions {
		grants = permission.GrantSet{}
	}
	superAdmin := p.IsSuperAdmin
	if err := l.sessions.SetUser(ctx, s, session.UserPatch{Permissions: &grants, IsSuperAdmin: &superAdmin}); err != nil {
		return internal.NewInternalError("Impossible d'enregistrer les permissions.", err)
	}
	l.logger.Info("permissions loaded",
		"session_id", s.ID,
		"granular", p.HasGranularPermissions,
		"super_admin", p.IsSuperAdmin,
		"grants", grants.Len())
	return nil
}

// Reload drops the cached grants and fetches them again, used after the
// user's own permissions were edited.
func (l *PermissionLoader) Reload(ctx context.Context, s *session.Session) error {
	l.cache.Invalidate(permissionsKey(s.ID))
	if err := l.sessions.InvalidatePermissions(ctx, s); err != nil {
		return err
	}
	return l.Ensure(ctx, s)
}
