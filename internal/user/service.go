package user

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

const profilePath = "/api/auth/users/me/"

type BackendAPI interface {
	DoJSON(ctx context.Context, req apiclient.Request, out any) error
}

type SessionStore interface {
	SetUser(ctx context.Context, s *session.Session, patch session.UserPatch) error
}

type Service struct {
	backend  BackendAPI
	sessions SessionStore
	logger   *slog.Logger
}

func NewService(backend BackendAPI, sessions SessionStore, logger *slog.Logger) *Service {
	return &Service{backend: backend, sessions: sessions, logger: logger}
}

// Get fetches the account and refreshes the identity kept in the session,
// so the header shows changes made elsewhere.
func (s *Service) Get(ctx context.Context, sess *session.Session) (*Profile, error) {
	var p Profile
	if err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodGet, Path: profilePath}, &p); err != nil {
		return nil, err
	}
	if err := s.sync(ctx, sess, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Update saves the editable fields and returns the stored account.
func (s *Service) Update(ctx context.Context, sess *session.Session, dto UpdateProfileDTO) (*Profile, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}
	var p Profile
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method: http.MethodPatch,
		Path:   profilePath,
		Body:   dto,
	}, &p)
	if err != nil {
		return nil, err
	}
	if err := s.sync(ctx, sess, p); err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", "user_id", sess.UserIDString())
	return &p, nil
}

func (s *Service) sync(ctx context.Context, sess *session.Session, p Profile) error {
	if sess == nil || sess.CurrentUser == nil {
		return nil
	}
	if err := s.sessions.SetUser(ctx, sess, p.Patch()); err != nil {
		return internal.NewInternalError("Impossible d'enregistrer la session.", err)
	}
	return nil
}
