package auth

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/guard"
	"github.com/frahmantamala/taxfree-console/internal/poller"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
)

const (
	homePath           = "/admin/dashboard"
	otpPath            = "/login/otp"
	changePasswordPage = "/account/password"
)

type ServiceAPI interface {
	Login(ctx context.Context, s *session.Session, dto LoginDTO) (*Challenge, error)
	VerifyOTP(ctx context.Context, s *session.Session, dto VerifyOTPDTO) (*LoginResult, error)
	ResendOTP(ctx context.Context, s *session.Session) (*Challenge, error)
	CancelOTP(ctx context.Context, s *session.Session) error
	Logout(ctx context.Context, s *session.Session) error
	ChangePassword(ctx context.Context, s *session.Session, dto ChangePasswordDTO) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI

	now  func() time.Time
	tick time.Duration
}

func NewHandler(base *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: base,
		Service:     service,
		now:         time.Now,
		tick:        time.Second,
	}
}

// SetClock replaces the countdown clock and tick interval, used by tests.
func (h *Handler) SetClock(now func() time.Time, tick time.Duration) {
	h.now = now
	h.tick = tick
}

func withNext(path, next string) string {
	if next = guard.SafeNext(next); next == "" {
		return path
	}
	return path + "?next=" + url.QueryEscape(next)
}

func loginForm(next, email string) view.Form {
	return view.Form{
		Title:   "Connexion à la console",
		Action:  withNext("/login", next),
		Submit:  "Se connecter",
		Enabled: true,
		Fields: []view.FormField{
			{Name: "email", Label: "Email", Type: "email", Value: email, Required: true},
			{Name: "password", Label: "Mot de passe", Type: "password", Required: true},
		},
	}
}

// LoginPage shows the password step, or moves signed-in users on.
func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	if s := h.Session(r); s != nil && s.IsAuthenticated {
		h.Redirect(w, r, landing(next))
		return
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "login", Title: "Connexion", Data: loginForm(next, "")})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	s := h.Session(r)
	next := r.URL.Query().Get("next")
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, withNext("/login", next))
		return
	}
	dto := loginFromValues(values)

	ch, err := h.Service.Login(r.Context(), s, dto)
	if err != nil {
		h.loginFailed(w, r, err, next, dto.Email)
		return
	}
	if h.WantsJSON(r) {
		h.WriteJSON(w, http.StatusOK, map[string]any{
			"email":      ch.Email,
			"expires_in": ch.ExpiresIn,
			"redirect":   withNext(otpPath, next),
		})
		return
	}
	h.Flash(r, session.FlashInfo, ch.Detail)
	h.Redirect(w, r, withNext(otpPath, next))
}

// loginFailed re-renders the password step with the error, keeping the
// email. Errors outside the credential categories follow the common policy.
func (h *Handler) loginFailed(w http.ResponseWriter, r *http.Request, err error, next, email string) {
	appErr, ok := internal.IsAppError(err)
	if !ok || (appErr.Type != internal.ErrorTypeAuthentication && appErr.Type != internal.ErrorTypeValidation) {
		h.HandleError(w, r, err, withNext("/login", next))
		return
	}
	if h.WantsJSON(r) {
		h.WriteAppError(w, appErr)
		return
	}
	form := loginForm(next, email)
	form.Message = appErr.GetDetailedMessage()
	form.ApplyErrors(appErr.FieldErrors())
	h.Render(w, r, appErr.StatusCode, view.Page{Template: "login", Title: "Connexion", Data: form})
}

// Throttled answers login attempts refused by the rate limiter.
func (h *Handler) Throttled(w http.ResponseWriter, r *http.Request) {
	appErr := internal.NewAuthenticationError("Trop de tentatives de connexion. Réessayez dans une minute.", internal.ErrCodeAccountLocked)
	appErr.StatusCode = http.StatusTooManyRequests
	if h.WantsJSON(r) {
		h.WriteAppError(w, appErr)
		return
	}
	form := loginForm(r.URL.Query().Get("next"), "")
	form.Message = appErr.Message
	h.Render(w, r, http.StatusTooManyRequests, view.Page{Template: "login", Title: "Connexion", Data: form})
}

func (h *Handler) otpPrompt(s *session.Session, next, errMsg string) view.OTPPrompt {
	tick := s.OTP.Countdown.Tick(h.now())
	return view.OTPPrompt{
		Email:        s.OTP.Email,
		Display:      tick.Display,
		Remaining:    tick.Remaining,
		Expired:      tick.Expired,
		StreamURL:    otpPath + "/countdown",
		VerifyAction: withNext(otpPath, next),
		ResendAction: withNext(otpPath+"/resend", next),
		CancelAction: withNext(otpPath+"/cancel", next),
		Error:        errMsg,
	}
}

// OTPPage is the second step. Without a pending challenge it goes back to
// the password step.
func (h *Handler) OTPPage(w http.ResponseWriter, r *http.Request) {
	s := h.Session(r)
	next := r.URL.Query().Get("next")
	if s == nil || s.OTP == nil {
		h.Redirect(w, r, withNext("/login", next))
		return
	}
	h.Render(w, r, http.StatusOK, view.Page{Template: "otp", Title: "Vérification", Data: h.otpPrompt(s, next, "")})
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	s := h.Session(r)
	next := r.URL.Query().Get("next")
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, withNext(otpPath, next))
		return
	}

	res, err := h.Service.VerifyOTP(r.Context(), s, VerifyOTPDTO{Code: values["code"]})
	if err != nil {
		h.otpFailed(w, r, s, err, next)
		return
	}

	target := landing(next)
	switch {
	case res.MustChangePassword():
		target = changePasswordPage
		h.Flash(r, session.FlashWarning, orDefault(res.Message, "Votre mot de passe a expiré. Veuillez le changer."))
	case res.PasswordExpiryWarning != "":
		h.Flash(r, session.FlashWarning, res.PasswordExpiryWarning)
	}
	if h.WantsJSON(r) {
		h.WriteJSON(w, http.StatusOK, map[string]any{
			"user":             s.CurrentUser,
			"password_expired": res.MustChangePassword(),
			"redirect":         target,
		})
		return
	}
	h.Redirect(w, r, target)
}

func (h *Handler) otpFailed(w http.ResponseWriter, r *http.Request, s *session.Session, err error, next string) {
	appErr, ok := internal.IsAppError(err)
	if !ok || (appErr.Type != internal.ErrorTypeAuthentication && appErr.Type != internal.ErrorTypeValidation) {
		h.HandleError(w, r, err, withNext(otpPath, next))
		return
	}
	if h.WantsJSON(r) {
		h.WriteAppError(w, appErr)
		return
	}
	if s == nil || s.OTP == nil {
		h.Flash(r, session.FlashError, appErr.Message)
		h.Redirect(w, r, withNext("/login", next))
		return
	}
	h.Render(w, r, appErr.StatusCode, view.Page{
		Template: "otp",
		Title:    "Vérification",
		Data:     h.otpPrompt(s, next, appErr.GetDetailedMessage()),
	})
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	s := h.Session(r)
	next := r.URL.Query().Get("next")
	ch, err := h.Service.ResendOTP(r.Context(), s)
	if err != nil {
		if internal.IsType(err, internal.ErrorTypeValidation) && (s == nil || s.OTP == nil) {
			h.HandleError(w, r, err, withNext("/login", next))
			return
		}
		h.HandleError(w, r, err, withNext(otpPath, next))
		return
	}
	h.Success(w, r, orDefault(ch.Detail, "Un nouveau code a été envoyé."), withNext(otpPath, next))
}

// CancelOTP goes back to the password step.
func (h *Handler) CancelOTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.CancelOTP(r.Context(), h.Session(r)); err != nil {
		h.HandleError(w, r, err, "/login")
		return
	}
	h.Redirect(w, r, withNext("/login", r.URL.Query().Get("next")))
}

// Countdown streams the remaining OTP time every tick and ends with an
// "expired" event. The stream stops when the client goes away.
func (h *Handler) Countdown(w http.ResponseWriter, r *http.Request) {
	s := h.Session(r)
	if s == nil || s.OTP == nil {
		h.WriteError(w, http.StatusNotFound, "no pending verification")
		return
	}
	countdown := s.OTP.Countdown
	es, ok := h.Stream(w, r)
	if !ok {
		return
	}

	err := poller.Run(r.Context(), h.tick, func(ctx context.Context) error {
		tick := countdown.Tick(h.now())
		if tick.Expired {
			if err := es.Send("expired", tick); err != nil {
				return err
			}
			return poller.ErrStop
		}
		return es.Send("tick", tick)
	})
	if err != nil {
		h.Logger.Debug("countdown stream ended", "session_id", s.ID, "error", err)
	}
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s := h.Session(r)
	if s != nil {
		if err := h.Service.Logout(r.Context(), s); err != nil {
			h.Logger.Error("logout failed", "session_id", s.ID, "error", err)
		}
	}
	if h.Sessions != nil {
		h.Sessions.ClearCookie(w)
	}
	if h.WantsJSON(r) {
		h.WriteJSON(w, http.StatusOK, map[string]string{"redirect": "/login"})
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func changePasswordForm(expired bool) view.Form {
	f := view.Form{
		Title:   "Changer le mot de passe",
		Action:  changePasswordPage,
		Submit:  "Enregistrer",
		Enabled: true,
		Fields: []view.FormField{
			{Name: "old_password", Label: "Mot de passe actuel", Type: "password", Required: true},
			{Name: "new_password", Label: "Nouveau mot de passe", Type: "password", Required: true},
			{Name: "new_password_confirm", Label: "Confirmer le mot de passe", Type: "password", Required: true},
		},
	}
	if expired {
		f.Message = "Votre mot de passe a expiré. Choisissez-en un nouveau pour continuer."
	} else {
		f.Cancel = homePath
	}
	return f
}

func (h *Handler) ChangePasswordPage(w http.ResponseWriter, r *http.Request) {
	s := h.Session(r)
	h.Render(w, r, http.StatusOK, view.Page{
		Template: "form",
		Title:    "Mot de passe",
		Data:     changePasswordForm(s != nil && s.PasswordExpired),
	})
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	s := h.Session(r)
	values, err := h.Values(r)
	if err != nil {
		h.HandleError(w, r, err, changePasswordPage)
		return
	}
	if err := h.Service.ChangePassword(r.Context(), s, changePasswordFromValues(values)); err != nil {
		appErr, ok := internal.IsAppError(err)
		if !ok || appErr.Type != internal.ErrorTypeValidation || h.WantsJSON(r) {
			h.HandleError(w, r, err, changePasswordPage)
			return
		}
		form := changePasswordForm(s.PasswordExpired)
		form.Message = appErr.GetDetailedMessage()
		form.ApplyErrors(appErr.FieldErrors())
		h.Render(w, r, http.StatusBadRequest, view.Page{Template: "form", Title: "Mot de passe", Data: form})
		return
	}
	h.Success(w, r, "Mot de passe modifié avec succès.", homePath)
}

// RequirePasswordChange keeps a user whose password expired on the change
// screen until it is replaced.
func (h *Handler) RequirePasswordChange(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := h.Session(r)
		if s != nil && s.IsAuthenticated && s.PasswordExpired {
			h.Redirect(w, r, changePasswordPage)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func landing(next string) string {
	if next = guard.SafeNext(next); next != "" && next != "/" {
		return next
	}
	return homePath
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
