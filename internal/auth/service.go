package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
)

// BackendAPI is the slice of the API client the auth flows need.
type BackendAPI interface {
	DoJSON(ctx context.Context, req apiclient.Request, out any) error
}

var errNoChallenge = internal.NewValidationError("Aucune vérification en cours, veuillez vous reconnecter.", internal.ErrCodeOTPExpired)

type Service struct {
	backend  BackendAPI
	sessions *session.Manager
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(backend BackendAPI, sessions *session.Manager, logger *slog.Logger) *Service {
	return &Service{
		backend:  backend,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Login checks the password and opens the OTP challenge on the session.
func (s *Service) Login(ctx context.Context, sess *session.Session, dto LoginDTO) (*Challenge, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	var ch Challenge
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      loginPath,
		Body:      dto,
		Anonymous: true,
	}, &ch)
	if err != nil {
		logger.From(ctx).Info("password step rejected", "email", dto.Email, "error", err)
		return nil, err
	}
	if ch.OTPID == "" {
		return nil, internal.NewInternalError("Réponse de connexion incomplète.", errors.New("login response without otp_id"))
	}
	if ch.Email == "" {
		ch.Email = dto.Email
	}

	if err := s.sessions.StartOTP(ctx, sess, ch.OTPID, ch.Email, ch.ExpiresIn); err != nil {
		return nil, internal.NewInternalError("Impossible d'enregistrer la session.", err)
	}
	s.logger.Info("otp challenge started", "session_id", sess.ID, "expires_in", ch.ExpiresIn)
	return &ch, nil
}

// VerifyOTP exchanges the code for a token pair. A code entered after the
// local countdown ran out is refused without calling the backend; the
// backend stays the authority while time remains.
func (s *Service) VerifyOTP(ctx context.Context, sess *session.Session, dto VerifyOTPDTO) (*LoginResult, error) {
	if sess.OTP == nil {
		return nil, errNoChallenge
	}
	if sess.OTP.Countdown.Expired(s.now()) {
		return nil, internal.ErrOTPExpired
	}
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	var res LoginResult
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      verifyOTPPath,
		Body:      map[string]string{"otp_id": sess.OTP.OTPID, "code": dto.Code},
		Anonymous: true,
	}, &res)
	if err != nil {
		return nil, otpError(err)
	}
	if res.Access == "" || res.Refresh == "" || res.User == nil {
		return nil, internal.NewInternalError("Réponse de vérification incomplète.", errors.New("verify-otp response without tokens"))
	}

	if err := s.sessions.SetAuth(ctx, sess, res.Access, res.Refresh, res.User); err != nil {
		return nil, internal.NewInternalError("Impossible d'enregistrer la session.", err)
	}
	if res.MustChangePassword() {
		if err := s.sessions.SetPasswordExpired(ctx, sess, true); err != nil {
			return nil, internal.NewInternalError("Impossible d'enregistrer la session.", err)
		}
	}
	s.logger.Info("user signed in", "session_id", sess.ID, "user_id", sess.UserIDString(), "role", sess.Role())
	return &res, nil
}

// otpError turns a rejected code into the OTP categories.
func otpError(err error) error {
	appErr, ok := internal.IsAppError(err)
	if !ok || appErr.Type != internal.ErrorTypeValidation {
		return err
	}
	out := internal.NewAuthenticationError(appErr.Message, internal.ErrCodeOTPInvalid).WithCause(err)
	out.StatusCode = http.StatusBadRequest
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.RemainingAttempts > 0 {
		out.WithDetails(internal.LockoutDetails{AttemptsRemaining: apiErr.RemainingAttempts})
	}
	return out
}

// ResendOTP asks for a new code and restarts the countdown.
func (s *Service) ResendOTP(ctx context.Context, sess *session.Session) (*Challenge, error) {
	if sess.OTP == nil {
		return nil, errNoChallenge
	}
	email := sess.OTP.Email

	var ch Challenge
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method:    http.MethodPost,
		Path:      resendOTPPath,
		Body:      map[string]string{"email": email},
		Anonymous: true,
	}, &ch)
	if err != nil {
		return nil, err
	}
	// the backend answers the same way for unknown accounts, without an id
	if ch.OTPID == "" {
		ch.OTPID = sess.OTP.OTPID
	}
	if err := s.sessions.StartOTP(ctx, sess, ch.OTPID, email, ch.ExpiresIn); err != nil {
		return nil, internal.NewInternalError("Impossible d'enregistrer la session.", err)
	}
	ch.Email = email
	return &ch, nil
}

// CancelOTP abandons the pending challenge.
func (s *Service) CancelOTP(ctx context.Context, sess *session.Session) error {
	if sess.OTP == nil {
		return nil
	}
	return s.sessions.ClearOTP(ctx, sess)
}

// Logout tells the backend, then clears the session whatever it answered.
func (s *Service) Logout(ctx context.Context, sess *session.Session) error {
	if sess.IsAuthenticated {
		err := s.backend.DoJSON(ctx, apiclient.Request{Method: http.MethodPost, Path: logoutPath}, nil)
		if err != nil {
			logger.From(ctx).Warn("backend logout failed", "session_id", sess.ID, "error", err)
		}
	}
	if err := s.sessions.Logout(ctx, sess); err != nil {
		return internal.NewInternalError("Impossible de fermer la session.", err)
	}
	return nil
}

// ChangePassword replaces an expired or current password.
func (s *Service) ChangePassword(ctx context.Context, sess *session.Session, dto ChangePasswordDTO) error {
	if appErr := dto.Validate(); appErr != nil {
		return appErr
	}
	err := s.backend.DoJSON(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   changePasswordPath,
		Body:   map[string]string{"old_password": dto.OldPassword, "new_password": dto.NewPassword},
	}, nil)
	if err != nil {
		return err
	}
	if err := s.sessions.SetPasswordExpired(ctx, sess, false); err != nil {
		return internal.NewInternalError("Impossible d'enregistrer la session.", err)
	}
	s.logger.Info("password changed", "user_id", sess.UserIDString())
	return nil
}
