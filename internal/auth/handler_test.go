package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/apiclient/apiclienttest"
	"github.com/frahmantamala/taxfree-console/internal/auth"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/session/sessiontest"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Handler", func() {
	var (
		env     *sessiontest.Env
		backend *apiclienttest.Backend
		handler *auth.Handler
		sess    *session.Session
		now     time.Time
	)

	BeforeEach(func() {
		var err error
		env, err = sessiontest.New()
		Expect(err).NotTo(HaveOccurred())
		backend, err = apiclienttest.New(env.Manager)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(backend.Close)

		views, err := view.New()
		Expect(err).NotTo(HaveOccurred())
		now = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
		env.Manager.SetClock(func() time.Time { return now })

		service := auth.NewService(backend.Client, env.Manager, discard)
		service.SetClock(func() time.Time { return now })
		base := transport.NewBaseHandler(discard, views, env.Manager, permission.DefaultPolicy())
		handler = auth.NewHandler(base, service)
		handler.SetClock(func() time.Time { return now }, time.Millisecond)

		sess, err = env.Anonymous()
		Expect(err).NotTo(HaveOccurred())

		backend.Mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
			if apiclienttest.ReadJSON(r)["password"] != "right" {
				apiclienttest.WriteJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Email ou mot de passe incorrect."})
				return
			}
			apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{"detail": "Code envoyé.", "email": "admin@taxfree.test", "otp_id": "otp-1", "expires_in": 300})
		})
		backend.Mux.HandleFunc("/api/auth/verify-otp/", func(w http.ResponseWriter, r *http.Request) {
			verifyOK(w, map[string]any{"password_expiry_warning": "Votre mot de passe expire dans 2 jour(s)."})
		})
	})

	login := func() {
		rec := httptest.NewRecorder()
		handler.Login(rec, sessiontest.Form(sess, "/login", "email=admin%40taxfree.test&password=right"))
		Expect(rec.Code).To(Equal(http.StatusSeeOther))
	}

	Describe("password step", func() {
		It("should render the login form", func() {
			rec := httptest.NewRecorder()
			handler.LoginPage(rec, sessiontest.Request(sess, http.MethodGet, "/login", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`name="password"`))
		})

		It("should send signed-in users to the page they asked for", func() {
			signed, err := env.SignIn(permission.RoleAdmin)
			Expect(err).NotTo(HaveOccurred())
			rec := httptest.NewRecorder()
			handler.LoginPage(rec, sessiontest.Request(signed, http.MethodGet, "/login?next=%2Fadmin%2Fagents", nil))
			Expect(rec.Code).To(Equal(http.StatusSeeOther))
			Expect(rec.Header().Get("Location")).To(Equal("/admin/agents"))
		})

		It("should move to the code step keeping next", func() {
			rec := httptest.NewRecorder()
			handler.Login(rec, sessiontest.Form(sess, "/login?next=%2Fadmin%2Faudit", "email=admin%40taxfree.test&password=right"))
			Expect(rec.Code).To(Equal(http.StatusSeeOther))
			Expect(rec.Header().Get("Location")).To(Equal("/login/otp?next=%2Fadmin%2Faudit"))
		})

		It("should drop an external next", func() {
			rec := httptest.NewRecorder()
			handler.Login(rec, sessiontest.Form(sess, "/login?next=https%3A%2F%2Fevil.test", "email=admin%40taxfree.test&password=right"))
			Expect(rec.Header().Get("Location")).To(Equal("/login/otp"))
		})

		It("should re-render the form with the server message", func() {
			rec := httptest.NewRecorder()
			handler.Login(rec, sessiontest.Form(sess, "/login", "email=admin%40taxfree.test&password=nope"))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Body.String()).To(ContainSubstring("Email ou mot de passe incorrect."))
			Expect(rec.Body.String()).To(ContainSubstring(`value="admin@taxfree.test"`))
		})

		It("should answer JSON clients with the error body", func() {
			rec := httptest.NewRecorder()
			handler.Login(rec, sessiontest.JSON(sess, http.MethodPost, "/login", `{"email":"admin@taxfree.test","password":"nope"}`))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Body.String()).To(ContainSubstring("INVALID_CREDENTIALS"))
		})

		It("should refuse throttled attempts", func() {
			rec := httptest.NewRecorder()
			handler.Throttled(rec, sessiontest.Request(sess, http.MethodPost, "/login", nil))
			Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
			Expect(rec.Body.String()).To(ContainSubstring("Trop de tentatives"))
		})
	})

	Describe("code step", func() {
		It("should send users without a challenge back to login", func() {
			rec := httptest.NewRecorder()
			handler.OTPPage(rec, sessiontest.Request(sess, http.MethodGet, "/login/otp", nil))
			Expect(rec.Header().Get("Location")).To(Equal("/login"))
		})

		It("should show the countdown", func() {
			login()
			rec := httptest.NewRecorder()
			handler.OTPPage(rec, sessiontest.Request(sess, http.MethodGet, "/login/otp", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("5:00"))
		})

		It("should sign in and keep the expiry warning for the next page", func() {
			login()
			rec := httptest.NewRecorder()
			handler.VerifyOTP(rec, sessiontest.Form(sess, "/login/otp?next=%2Fadmin%2Fforms", "code=123456"))
			Expect(rec.Code).To(Equal(http.StatusSeeOther))
			Expect(rec.Header().Get("Location")).To(Equal("/admin/forms"))
			Expect(sess.IsAuthenticated).To(BeTrue())
			Expect(sess.Flashes).To(ContainElement(session.Flash{Kind: session.FlashWarning, Message: "Votre mot de passe expire dans 2 jour(s)."}))
		})

		It("should disable entry once expired", func() {
			login()
			now = now.Add(6 * time.Minute)
			rec := httptest.NewRecorder()
			handler.VerifyOTP(rec, sessiontest.Form(sess, "/login/otp", "code=123456"))
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(rec.Body.String()).To(ContainSubstring("Le code a expiré."))
			Expect(sess.IsAuthenticated).To(BeFalse())
		})

		It("should stream ticks then stop at expiry", func() {
			login()
			start := now
			calls := 0
			handler.SetClock(func() time.Time {
				calls++
				return start.Add(time.Duration(calls) * 100 * time.Second)
			}, time.Millisecond)

			rec := httptest.NewRecorder()
			handler.Countdown(rec, sessiontest.Request(sess, http.MethodGet, "/login/otp/countdown", nil))
			body := rec.Body.String()
			Expect(rec.Header().Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(strings.Count(body, "event: tick")).To(Equal(2))
			Expect(body).To(ContainSubstring("event: expired"))
		})

		It("should stop streaming when the client leaves", func() {
			login()
			ctx, cancel := context.WithCancel(context.Background())
			req := sessiontest.Request(sess, http.MethodGet, "/login/otp/countdown", nil).WithContext(session.WithSession(ctx, sess))
			done := make(chan struct{})
			go func() {
				defer close(done)
				handler.Countdown(httptest.NewRecorder(), req)
			}()
			cancel()
			Eventually(done).Should(BeClosed())
		})
	})

	Describe("password change", func() {
		It("should keep users with an expired password on the change screen", func() {
			signed, err := env.SignIn(permission.RoleAdmin)
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Manager.SetPasswordExpired(context.Background(), signed, true)).To(Succeed())

			reached := false
			h := handler.RequirePasswordChange(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { reached = true }))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, sessiontest.Request(signed, http.MethodGet, "/admin/dashboard", nil))
			Expect(reached).To(BeFalse())
			Expect(rec.Header().Get("Location")).To(Equal("/account/password"))
		})

		It("should show field errors next to the inputs", func() {
			signed, err := env.SignIn(permission.RoleAdmin)
			Expect(err).NotTo(HaveOccurred())
			rec := httptest.NewRecorder()
			handler.ChangePassword(rec, sessiontest.Form(signed, "/account/password", "old_password=x&new_password=weak&new_password_confirm=weak"))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("trop faible"))
		})
	})

	It("should log out and clear the cookie", func() {
		backend.Mux.HandleFunc("/api/auth/logout/", func(w http.ResponseWriter, r *http.Request) {
			apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{"detail": "ok"})
		})
		signed, err := env.SignIn(permission.RoleAdmin)
		Expect(err).NotTo(HaveOccurred())
		rec := httptest.NewRecorder()
		handler.Logout(rec, sessiontest.Request(signed, http.MethodPost, "/logout", nil))
		Expect(rec.Code).To(Equal(http.StatusSeeOther))
		Expect(rec.Header().Get("Location")).To(Equal("/login"))
		Expect(signed.IsAuthenticated).To(BeFalse())
		cookies := rec.Result().Cookies()
		Expect(cookies).NotTo(BeEmpty())
		Expect(cookies[0].MaxAge).To(BeNumerically("<", 0))
	})
})
