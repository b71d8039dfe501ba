package registration_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/apiclient/apiclienttest"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/registration"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/session/sessiontest"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/internal/wizard"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Handler", func() {
	var (
		env     *sessiontest.Env
		backend *apiclienttest.Backend
		handler *registration.Handler
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

		service := registration.NewService(backend.Client, env.Manager, querycache.New(time.Minute, discard), time.Second, discard)
		service.SetClock(func() time.Time { return now })
		base := transport.NewBaseHandler(discard, views, env.Manager, permission.DefaultPolicy())
		handler = registration.NewHandler(base, service)
		handler.SetClock(func() time.Time { return now })

		sess, err = env.Anonymous()
		Expect(err).NotTo(HaveOccurred())
	})

	start := func(kind wizard.Kind, token string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := sessiontest.Request(sess, http.MethodGet, "/start", nil)
		if token != "" {
			req = sessiontest.WithParams(req, "token", token)
		}
		handler.Start(kind)(rec, req)
		return rec
	}

	onlyWizard := func() *wizard.State {
		Expect(sess.Wizards).To(HaveLen(1))
		for _, st := range sess.Wizards {
			return st
		}
		return nil
	}

	post := func(id, encoded string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.Advance(rec, sessiontest.WithParams(sessiontest.Form(sess, "/wizard/"+id, encoded), "id", id))
		return rec
	}

	Describe("merchant registration", func() {
		var (
			calls int32
			sent  map[string]any
		)

		BeforeEach(func() {
			calls = 0
			backend.Mux.HandleFunc("/api/auth/register/merchant/", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				sent = apiclienttest.ReadJSON(r)
				apiclienttest.WriteJSON(w, http.StatusCreated, map[string]any{"detail": "Demande envoyée."})
			})
		})

		fill := func(id string) {
			Expect(post(id, "first_name=Jean&last_name=Mbala&email=shop%40taxfree.test&phone=%2B243810000000").Code).To(Equal(http.StatusSeeOther))
			Expect(post(id, "company_name=Kin+Shop&registration_number=CD%2FKIN%2F1&tax_id=A123&business_sector=Retail").Code).To(Equal(http.StatusSeeOther))
			Expect(post(id, "address=1+Bd+du+30+juin&city=Kinshasa&province=Kinshasa&company_phone=%2B243810000001&company_email=contact%40kinshop.test").Code).To(Equal(http.StatusSeeOther))
		}

		It("should open on the first step", func() {
			rec := start(wizard.KindMerchantRegistration, "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`name="first_name"`))
			Expect(onlyWizard().Step).To(Equal(1))
		})

		It("should resume the same form when reopened", func() {
			start(wizard.KindMerchantRegistration, "")
			id := onlyWizard().ID
			post(id, "first_name=Jean&last_name=Mbala&email=shop%40taxfree.test&phone=%2B243810000000")

			rec := start(wizard.KindMerchantRegistration, "")
			Expect(rec.Body.String()).To(ContainSubstring(`name="company_name"`))
			Expect(onlyWizard().ID).To(Equal(id))
		})

		It("should hold the step while required fields are empty", func() {
			start(wizard.KindMerchantRegistration, "")
			st := onlyWizard()

			rec := post(st.ID, "first_name=Jean")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("Ce champ est obligatoire"))
			Expect(rec.Body.String()).To(ContainSubstring(`value="Jean"`))
			Expect(st.Step).To(Equal(1))
		})

		It("should reject a malformed email on the step", func() {
			start(wizard.KindMerchantRegistration, "")
			st := onlyWizard()

			rec := post(st.ID, "first_name=Jean&last_name=Mbala&email=nope&phone=%2B243810000000")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("Adresse email invalide"))
		})

		It("should go back without losing values", func() {
			start(wizard.KindMerchantRegistration, "")
			st := onlyWizard()
			post(st.ID, "first_name=Jean&last_name=Mbala&email=shop%40taxfree.test&phone=%2B243810000000")
			Expect(st.Step).To(Equal(2))

			rec := httptest.NewRecorder()
			handler.Back(rec, sessiontest.WithParams(sessiontest.Request(sess, http.MethodPost, "/wizard/"+st.ID+"/back", nil), "id", st.ID))
			Expect(rec.Code).To(Equal(http.StatusSeeOther))
			Expect(st.Step).To(Equal(1))
			Expect(st.Values).To(HaveKeyWithValue("first_name", "Jean"))
		})

		It("should submit once and redirect to login after the delay", func() {
			start(wizard.KindMerchantRegistration, "")
			st := onlyWizard()
			fill(st.ID)

			rec := post(st.ID, "bank_name=Rawbank")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Refresh")).To(Equal("3; url=/login"))
			Expect(rec.Body.String()).To(ContainSubstring("Demande envoyée"))
			Expect(st.Phase).To(Equal(wizard.PhaseSucceeded))
			Expect(sent).To(HaveKeyWithValue("company_name", "Kin Shop"))
			Expect(sent).To(HaveKeyWithValue("city", "Kinshasa"))

			again := post(st.ID, "bank_name=Rawbank")
			Expect(again.Code).To(Equal(http.StatusOK))
			Expect(atomic.LoadInt32(&calls)).To(Equal(int32(1)))
		})
	})

	Describe("merchant activation", func() {
		BeforeEach(func() {
			backend.Mux.HandleFunc("/api/auth/validate-token/tok-1/", func(w http.ResponseWriter, r *http.Request) {
				apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{
					"valid": true, "email": "shop@taxfree.test", "first_name": "Jean", "last_name": "Mbala",
				})
			})
			backend.Mux.HandleFunc("/api/auth/validate-token/bad/", func(w http.ResponseWriter, r *http.Request) {
				apiclienttest.WriteJSON(w, http.StatusBadRequest, map[string]any{"detail": "Lien invalide."})
			})
		})

		It("should show the invalid screen for a rejected link", func() {
			rec := start(wizard.KindMerchantActivation, "bad")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("Lien invalide."))
			Expect(sess.Wizards).To(BeEmpty())
		})

		It("should prefill the identity as read-only", func() {
			rec := start(wizard.KindMerchantActivation, "tok-1")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`value="shop@taxfree.test"`))
			Expect(rec.Body.String()).To(ContainSubstring("readonly"))
		})

		It("should refuse a weak password without calling the backend", func() {
			var calls int32
			backend.Mux.HandleFunc("/api/auth/activate/tok-1/", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				activated(w)
			})
			start(wizard.KindMerchantActivation, "tok-1")
			st := onlyWizard()
			Expect(post(st.ID, "").Code).To(Equal(http.StatusSeeOther))

			rec := post(st.ID, "password=weak&password_confirm=weak")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("trop faible"))
			Expect(st.Values).NotTo(HaveKey("password"))
			Expect(atomic.LoadInt32(&calls)).To(BeZero())
		})

		It("should sign in and head to the dashboard", func() {
			backend.Mux.HandleFunc("/api/auth/activate/tok-1/", func(w http.ResponseWriter, r *http.Request) {
				activated(w)
			})
			start(wizard.KindMerchantActivation, "tok-1")
			st := onlyWizard()
			post(st.ID, "")

			rec := post(st.ID, "password=Str0ng!pass&password_confirm=Str0ng!pass")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Header().Get("Refresh")).To(Equal("3; url=/admin/dashboard"))
			Expect(sess.IsAuthenticated).To(BeTrue())
		})

		It("should put backend field errors back on the password step", func() {
			backend.Mux.HandleFunc("/api/auth/activate/tok-1/", func(w http.ResponseWriter, r *http.Request) {
				apiclienttest.WriteJSON(w, http.StatusBadRequest, map[string]any{"password": []string{"Ce mot de passe est trop courant."}})
			})
			start(wizard.KindMerchantActivation, "tok-1")
			st := onlyWizard()
			post(st.ID, "")

			rec := post(st.ID, "password=Str0ng!pass&password_confirm=Str0ng!pass")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("Ce mot de passe est trop courant."))
			Expect(st.Phase).To(Equal(wizard.PhaseFailed))
			Expect(st.Step).To(Equal(2))
			Expect(st.Values).NotTo(HaveKey("password"))
		})
	})

	It("should answer the live password indicator", func() {
		rec := httptest.NewRecorder()
		handler.PasswordCheck(rec, sessiontest.JSON(sess, http.MethodPost, "/wizard/password-check", `{"password":"Abcdefg1","password_confirm":"Abcdefg1"}`))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"score":4`))
		Expect(rec.Body.String()).To(ContainSubstring(`"can_submit":true`))
	})

	It("should tell the user when a form is gone", func() {
		rec := httptest.NewRecorder()
		handler.Show(rec, sessiontest.WithParams(sessiontest.Request(sess, http.MethodGet, "/wizard/missing", nil), "id", "missing"))
		Expect(rec.Code).To(Equal(http.StatusNotFound))
		Expect(rec.Body.String()).To(ContainSubstring("Formulaire expiré"))
	})
})
