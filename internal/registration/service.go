package registration

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/wizard"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
)

// BackendAPI is the slice of the API client the public forms need.
type BackendAPI interface {
	DoJSON(ctx context.Context, req apiclient.Request, out any) error
}

type Service struct {
	backend  BackendAPI
	sessions *session.Manager
	cache    *querycache.Cache
	wait     time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(backend BackendAPI, sessions *session.Manager, cache *querycache.Cache, wait time.Duration, logger *slog.Logger) *Service {
	if wait <= 0 {
		wait = 1500 * time.Millisecond
	}
	return &Service{
		backend:  backend,
		sessions: sessions,
		cache:    cache,
		wait:     wait,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func tokenKey(kind wizard.Kind, token string) string {
	return querycache.Key("token", string(kind), token)
}

// CheckToken looks up the token of a link. A lookup slower than the wait
// reports loading and keeps running so the next reload finds it cached.
func (s *Service) CheckToken(ctx context.Context, kind wizard.Kind, token string) wizard.TokenCheck {
	f, ok := flows[kind]
	if !ok || !f.needsToken() {
		return wizard.TokenCheck{Phase: wizard.TokenValid}
	}
	if appErr := (TokenDTO{Token: token}).Validate(); appErr != nil {
		return wizard.TokenCheck{Phase: wizard.TokenInvalid, Message: internal.ErrInvalidToken.Message}
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()
	return wizard.CheckToken(waitCtx, s.now(), func(ctx context.Context) (wizard.TokenInfo, error) {
		return querycache.Fetch(ctx, s.cache, tokenKey(kind, token), func(ctx context.Context) (wizard.TokenInfo, error) {
			var info tokenInfo
			err := s.backend.DoJSON(ctx, apiclient.Request{
				Method:    http.MethodGet,
				Path:      expand(f.lookup, token),
				Anonymous: true,
			}, &info)
			return info.normalize(), err
		})
	})
}

// Submit sends the completed form. payload must be taken before the state
// is persisted, since persisting drops the secret values.
func (s *Service) Submit(ctx context.Context, sess *session.Session, kind wizard.Kind, token string, payload map[string]string) (*Result, error) {
	f, ok := flows[kind]
	if !ok {
		return nil, internal.NewNotFoundError("Formulaire inconnu.", internal.ErrCodeResourceNotFound)
	}
	if f.needsToken() {
		if appErr := (TokenDTO{Token: token}).Validate(); appErr != nil {
			return nil, internal.NewAuthenticationError(internal.ErrInvalidToken.Message, internal.ErrCodeInvalidToken).WithCause(appErr)
		}
	}

	var res Result
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      expand(f.submit, token),
		Body:      payload,
		Anonymous: true,
	}, &res)
	if err != nil {
		logger.From(ctx).Info("form rejected", "kind", kind, "error", err)
		return nil, submitError(kind, err)
	}
	if f.needsToken() {
		s.cache.Invalidate(tokenKey(kind, token))
	}

	if f.autoLogin && res.signsIn() && sess != nil {
		if err := s.sessions.SetAuth(ctx, sess, res.Access, res.Refresh, res.User); err != nil {
			return nil, internal.NewInternalError("Impossible d'enregistrer la session.", err)
		}
		s.logger.Info("account activated and signed in", "kind", kind, "user_id", sess.UserIDString())
		return &res, nil
	}
	s.logger.Info("form submitted", "kind", kind)
	return &res, nil
}

// submitError narrows backend rejections to the account categories where
// the form has one.
func submitError(kind wizard.Kind, err error) error {
	appErr, ok := internal.IsAppError(err)
	if !ok {
		return err
	}
	if kind == wizard.KindForgotPassword {
		switch {
		case appErr.Type == internal.ErrorTypeNotFound:
			out := internal.NewAuthenticationError(appErr.Message, internal.ErrCodeUnknownAccount).WithCause(err)
			out.StatusCode = http.StatusNotFound
			return out
		case appErr.Type == internal.ErrorTypeValidation && len(appErr.FieldErrors()) == 0:
			out := internal.NewAuthenticationError(appErr.Message, internal.ErrCodeInactiveAccount).WithCause(err)
			out.StatusCode = http.StatusBadRequest
			return out
		}
		return err
	}

	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || len(apiErr.Fields) > 0 {
		return err
	}
	if kind != wizard.KindMerchantRegistration && mentionsToken(apiErr.Detail) {
		out := internal.NewAuthenticationError(apiErr.Detail, internal.ErrCodeInvalidToken).WithCause(err)
		out.StatusCode = http.StatusBadRequest
		return out
	}
	return err
}

// mentionsToken recognises the backend's expired or used link messages.
func mentionsToken(detail string) bool {
	d := strings.ToLower(detail)
	for _, word := range []string{"lien", "invitation", "expiré", "token"} {
		if strings.Contains(d, word) {
			return true
		}
	}
	return false
}
