package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/apiclient/apiclienttest"
	"github.com/frahmantamala/taxfree-console/internal/auth"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/session/sessiontest"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAuth(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth Suite")
}

var discard = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func verifyOK(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{
		"access":           "new-access",
		"refresh":          "new-refresh",
		"password_expired": false,
		"user":             map[string]any{"id": 9, "email": "admin@taxfree.test", "role": "ADMIN", "first_name": "Awa"},
	}
	for k, v := range extra {
		body[k] = v
	}
	apiclienttest.WriteJSON(w, http.StatusOK, body)
}

var _ = Describe("Service", func() {
	var (
		env     *sessiontest.Env
		backend *apiclienttest.Backend
		service *auth.Service
		sess    *session.Session
		ctx     context.Context
		now     time.Time
	)

	BeforeEach(func() {
		var err error
		env, err = sessiontest.New()
		Expect(err).NotTo(HaveOccurred())
		backend, err = apiclienttest.New(env.Manager)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(backend.Close)

		now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
		env.Manager.SetClock(func() time.Time { return now })
		service = auth.NewService(backend.Client, env.Manager, discard)
		service.SetClock(func() time.Time { return now })

		sess, err = env.Anonymous()
		Expect(err).NotTo(HaveOccurred())
		ctx = session.WithSession(context.Background(), sess)

		backend.Mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Header.Get("Authorization")).To(BeEmpty())
			body := apiclienttest.ReadJSON(r)
			switch body["password"] {
			case "right":
				apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{
					"detail": "Code envoyé", "email": body["email"], "otp_id": "otp-1", "expires_in": 300,
				})
			case "locked":
				apiclienttest.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"detail": "Compte verrouillé.", "code": "account_locked", "lockout_minutes": 15,
				})
			default:
				apiclienttest.WriteJSON(w, http.StatusUnauthorized, map[string]any{
					"detail": "Email ou mot de passe incorrect.", "attempts_remaining": 3,
				})
			}
		})
	})

	Describe("Login", func() {
		It("should open an OTP challenge on the session", func() {
			ch, err := service.Login(ctx, sess, auth.LoginDTO{Email: " Admin@TaxFree.test ", Password: "right"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ch.OTPID).To(Equal("otp-1"))
			Expect(sess.OTP).NotTo(BeNil())
			Expect(sess.OTP.Email).To(Equal("admin@taxfree.test"))
			Expect(sess.OTP.Countdown.Remaining(now)).To(Equal(300 * time.Second))
			Expect(sess.IsAuthenticated).To(BeFalse())
		})

		It("should reject an incomplete form without calling the backend", func() {
			_, err := service.Login(ctx, sess, auth.LoginDTO{Email: "not-an-email"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
			Expect(appErr.FieldErrors()).To(HaveKey("email"))
			Expect(appErr.FieldErrors()).To(HaveKey("password"))
		})

		It("should report remaining attempts on bad credentials", func() {
			_, err := service.Login(ctx, sess, auth.LoginDTO{Email: "a@b.sn", Password: "wrong"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidCredentials))
			Expect(appErr.GetDetailedMessage()).To(ContainSubstring("3 tentative(s)"))
			Expect(sess.OTP).To(BeNil())
		})

		It("should surface the lockout duration", func() {
			_, err := service.Login(ctx, sess, auth.LoginDTO{Email: "a@b.sn", Password: "locked"})
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.Code).To(Equal(internal.ErrCodeAccountLocked))
			Expect(appErr.GetDetailedMessage()).To(ContainSubstring("15 minute(s)"))
		})
	})

	Describe("VerifyOTP", func() {
		var calls atomic.Int32

		BeforeEach(func() {
			calls.Store(0)
			_, err := service.Login(ctx, sess, auth.LoginDTO{Email: "admin@taxfree.test", Password: "right"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should authenticate the session with the returned tokens", func() {
			backend.Mux.HandleFunc("/api/auth/verify-otp/", func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				body := apiclienttest.ReadJSON(r)
				Expect(body["otp_id"]).To(Equal("otp-1"))
				Expect(body["code"]).To(Equal("123456"))
				verifyOK(w, map[string]any{"password_expiry_warning": "Votre mot de passe expire dans 3 jour(s)."})
			})
			res, err := service.VerifyOTP(ctx, sess, auth.VerifyOTPDTO{Code: "123456"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.PasswordExpiryWarning).To(ContainSubstring("3 jour(s)"))
			Expect(sess.IsAuthenticated).To(BeTrue())
			Expect(sess.OTP).To(BeNil())
			Expect(sess.CurrentUser.Role).To(Equal(permission.RoleAdmin))
			Expect(sess.PermissionsLoaded).To(BeFalse())
			Expect(sess.PasswordExpired).To(BeFalse())
		})

		It("should flag an expired password", func() {
			backend.Mux.HandleFunc("/api/auth/verify-otp/", func(w http.ResponseWriter, r *http.Request) {
				verifyOK(w, map[string]any{"password_expired": true, "password_change_required": true})
			})
			res, err := service.VerifyOTP(ctx, sess, auth.VerifyOTPDTO{Code: "123456"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.MustChangePassword()).To(BeTrue())
			Expect(sess.PasswordExpired).To(BeTrue())
		})

		It("should map a rejected code to OTP_INVALID with the attempts left", func() {
			backend.Mux.HandleFunc("/api/auth/verify-otp/", func(w http.ResponseWriter, r *http.Request) {
				apiclienttest.WriteJSON(w, http.StatusBadRequest, map[string]any{
					"detail": "Code incorrect.", "remaining_attempts": 2,
				})
			})
			_, err := service.VerifyOTP(ctx, sess, auth.VerifyOTPDTO{Code: "000000"})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeOTPInvalid))
			Expect(appErr.GetDetailedMessage()).To(ContainSubstring("2 tentative(s)"))
			Expect(sess.IsAuthenticated).To(BeFalse())
			Expect(sess.OTP).NotTo(BeNil())
		})

		It("should refuse a code once the countdown ran out", func() {
			backend.Mux.HandleFunc("/api/auth/verify-otp/", func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				verifyOK(w, nil)
			})
			now = now.Add(301 * time.Second)
			_, err := service.VerifyOTP(ctx, sess, auth.VerifyOTPDTO{Code: "123456"})
			Expect(err).To(MatchError(internal.ErrOTPExpired))
			Expect(calls.Load()).To(BeZero())
		})

		It("should reject malformed codes locally", func() {
			_, err := service.VerifyOTP(ctx, sess, auth.VerifyOTPDTO{Code: "12ab"})
			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})
	})

	Describe("ResendOTP", func() {
		It("should restart the countdown with the new challenge", func() {
			backend.Mux.HandleFunc("/api/auth/resend-otp/", func(w http.ResponseWriter, r *http.Request) {
				Expect(apiclienttest.ReadJSON(r)["email"]).To(Equal("admin@taxfree.test"))
				apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{"detail": "Code renvoyé", "otp_id": "otp-2", "expires_in": 300})
			})
			_, err := service.Login(ctx, sess, auth.LoginDTO{Email: "admin@taxfree.test", Password: "right"})
			Expect(err).NotTo(HaveOccurred())

			now = now.Add(4 * time.Minute)
			_, err = service.ResendOTP(ctx, sess)
			Expect(err).NotTo(HaveOccurred())
			Expect(sess.OTP.OTPID).To(Equal("otp-2"))
			Expect(sess.OTP.Countdown.Remaining(now)).To(Equal(300 * time.Second))
		})

		It("should need a pending challenge", func() {
			_, err := service.ResendOTP(ctx, sess)
			Expect(internal.IsType(err, internal.ErrorTypeValidation)).To(BeTrue())
		})
	})

	Describe("Logout", func() {
		It("should clear the session even when the backend fails", func() {
			backend.Mux.HandleFunc("/api/auth/logout/", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			})
			signed, err := env.SignIn(permission.RoleAdmin)
			Expect(err).NotTo(HaveOccurred())
			sctx := session.WithSession(context.Background(), signed)

			Expect(service.Logout(sctx, signed)).To(Succeed())
			Expect(signed.IsAuthenticated).To(BeFalse())
			_, err = env.Manager.Load(context.Background(), signed.ID)
			Expect(err).To(MatchError(session.ErrNotFound))
		})
	})

	Describe("ChangePassword", func() {
		It("should validate strength and confirmation before calling the backend", func() {
			err := service.ChangePassword(ctx, sess, auth.ChangePasswordDTO{OldPassword: "x", NewPassword: "weak", ConfirmPassword: "weak"})
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.FieldErrors()).To(HaveKey("new_password"))

			err = service.ChangePassword(ctx, sess, auth.ChangePasswordDTO{OldPassword: "x", NewPassword: "Str0ng!pass", ConfirmPassword: "Str0ng!pasS"})
			appErr, _ = internal.IsAppError(err)
			Expect(appErr.FieldErrors()).To(HaveKey("new_password_confirm"))
		})

		It("should clear the expired flag on success", func() {
			backend.Mux.HandleFunc("/api/auth/users/me/change_password/", func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer access-token"))
				apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{"detail": "ok"})
			})
			signed, err := env.SignIn(permission.RoleAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Manager.SetPasswordExpired(context.Background(), signed, true)).To(Succeed())
			sctx := session.WithSession(context.Background(), signed)

			Expect(service.ChangePassword(sctx, signed, auth.ChangePasswordDTO{
				OldPassword: "old", NewPassword: "Str0ng!pass", ConfirmPassword: "Str0ng!pass",
			})).To(Succeed())
			Expect(signed.PasswordExpired).To(BeFalse())
		})
	})
})

var _ = Describe("PermissionLoader", func() {
	var (
		env     *sessiontest.Env
		backend *apiclienttest.Backend
		cache   *querycache.Cache
		sess    *session.Session
		ctx     context.Context
		calls   atomic.Int32
	)

	BeforeEach(func() {
		var err error
		env, err = sessiontest.New()
		Expect(err).NotTo(HaveOccurred())
		backend, err = apiclienttest.New(env.Manager)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(backend.Close)
		cache = querycache.New(time.Minute, discard)
		calls.Store(0)

		sess, err = env.SignIn(permission.RoleAuditor)
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Manager.InvalidatePermissions(context.Background(), sess)).To(Succeed())
		ctx = session.WithSession(context.Background(), sess)
	})

	It("should store granular grants on the session", func() {
		backend.Mux.HandleFunc("/api/auth/my-permissions/", func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{
				"has_granular_permissions": true,
				"is_super_admin":           false,
				"role":                     "AUDITOR",
				"permissions":              map[string][]string{"AUDIT": {"VIEW", "EXPORT"}},
			})
		})
		loader := auth.NewPermissionLoader(backend.Client, env.Manager, cache, time.Second, discard)
		Expect(loader.Ensure(ctx, sess)).To(Succeed())
		Expect(sess.PermissionsLoaded).To(BeTrue())
		Expect(sess.CurrentUser.Permissions.Has(permission.ModuleAudit, permission.ActionExport)).To(BeTrue())

		Expect(loader.Ensure(ctx, sess)).To(Succeed())
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("should treat roles without granular permissions as loaded and empty", func() {
		backend.Mux.HandleFunc("/api/auth/my-permissions/", func(w http.ResponseWriter, r *http.Request) {
			apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{"has_granular_permissions": false, "role": "OPERATOR"})
		})
		loader := auth.NewPermissionLoader(backend.Client, env.Manager, cache, time.Second, discard)
		Expect(loader.Ensure(ctx, sess)).To(Succeed())
		Expect(sess.PermissionsLoaded).To(BeTrue())
		Expect(sess.CurrentUser.Permissions.IsEmpty()).To(BeTrue())
	})

	It("should leave the session loading when the backend is slow", func() {
		release := make(chan struct{})
		backend.Mux.HandleFunc("/api/auth/my-permissions/", func(w http.ResponseWriter, r *http.Request) {
			<-release
			apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{"has_granular_permissions": true, "permissions": []any{}})
		})
		loader := auth.NewPermissionLoader(backend.Client, env.Manager, cache, 20*time.Millisecond, discard)
		Expect(loader.Ensure(ctx, sess)).To(Succeed())
		Expect(sess.PermissionsLoaded).To(BeFalse())

		close(release)
		Eventually(func() int { return cache.Len() }).Should(Equal(1))
		Expect(loader.Ensure(ctx, sess)).To(Succeed())
		Expect(sess.PermissionsLoaded).To(BeTrue())
	})
})
