package bordereau_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/apiclient/apiclienttest"
	"github.com/frahmantamala/taxfree-console/internal/bordereau"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/session/sessiontest"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBordereau(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Bordereau Suite")
}

var discard = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

const formID = "3f2b8c1e-6d4a-4b7e-9a1c-2e5f7d9b0c3a"

func formJSON(status string, risk int) map[string]any {
	return map[string]any{
		"id": formID, "form_number": "TF-2026-000123", "status": status,
		"merchant_name": "Kin Shop", "traveler_name": "Marie Curie",
		"refund_amount": 12500, "currency": "CDF", "risk_score": risk,
		"created_at": "2026-05-02T10:30:00Z",
	}
}

var _ = Describe("Bordereau", func() {
	var (
		env     *sessiontest.Env
		backend *apiclienttest.Backend
		handler *bordereau.Handler
		sess    *session.Session
	)

	BeforeEach(func() {
		var err error
		env, err = sessiontest.New()
		Expect(err).NotTo(HaveOccurred())
		backend, err = apiclienttest.New(env.Manager)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(backend.Close)

		cache := querycache.New(time.Minute, discard)
		cache.Subscribe(env.Bus)
		service := bordereau.NewService(backend.Client, cache, env.Bus, discard)
		views, err := view.New()
		Expect(err).NotTo(HaveOccurred())
		handler = bordereau.NewHandler(transport.NewBaseHandler(discard, views, env.Manager, permission.DefaultPolicy()), service)

		sess, err = env.SignIn(permission.RoleAdmin,
			permission.Grant{Module: permission.ModuleForms, Action: permission.ActionView},
			permission.Grant{Module: permission.ModuleForms, Action: permission.ActionEdit},
		)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("CorrectionDTO", func() {
		It("should require a reason of ten characters", func() {
			appErr := bordereau.CorrectionDTO{FormID: formID, NewStatus: bordereau.StatusValidated, Reason: "erreur"}.Validate(bordereau.StatusRefused)
			Expect(appErr).NotTo(BeNil())
			Expect(appErr.FieldErrors()).To(HaveKey("reason"))
		})

		It("should refuse the current status", func() {
			appErr := bordereau.CorrectionDTO{FormID: formID, NewStatus: bordereau.StatusRefused, Reason: "Refus confirmé par le chef de poste"}.Validate(bordereau.StatusRefused)
			Expect(appErr).NotTo(BeNil())
			Expect(appErr.FieldErrors()).To(HaveKey("new_status"))
		})

		DescribeTable("should refuse a status forms never take",
			func(status string) {
				appErr := bordereau.CorrectionDTO{FormID: formID, NewStatus: status, Reason: "Bordereau perdu par le voyageur"}.Validate(bordereau.StatusIssued)
				Expect(appErr).NotTo(BeNil())
				Expect(appErr.FieldErrors()).To(HaveKey("new_status"))
			},
			Entry("unknown", "LOST"),
			Entry("refund step", "REFUND_PENDING"),
		)
	})

	It("should page through the backend and flag risky forms", func() {
		var query string
		backend.Mux.HandleFunc("/api/taxfree/admin/forms/", func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.RawQuery
			apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{"count": 45, "results": []any{formJSON("ISSUED", 85)}})
		})

		rec := httptest.NewRecorder()
		handler.List(rec, sessiontest.Request(sess, http.MethodGet, "/admin/forms?page=2&status=ISSUED&category=high", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(query).To(Equal("high_risk=true&page=2&page_size=20&status=ISSUED"))
		Expect(rec.Body.String()).To(ContainSubstring("85 - à contrôler"))
		Expect(rec.Body.String()).To(ContainSubstring("12500.00 CDF"))
		Expect(rec.Body.String()).To(ContainSubstring("21–40 sur 45"))
	})

	Describe("Correct", func() {
		var (
			posts int32
			sent  map[string]any
			lists int32
		)

		BeforeEach(func() {
			posts, lists = 0, 0
			status := "REFUSED"
			backend.Mux.HandleFunc("/api/taxfree/admin/forms/"+formID+"/", func(w http.ResponseWriter, r *http.Request) {
				apiclienttest.WriteJSON(w, http.StatusOK, formJSON(status, 10))
			})
			backend.Mux.HandleFunc("/api/taxfree/admin/forms/", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&lists, 1)
				apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{"count": 1, "results": []any{formJSON(status, 10)}})
			})
			backend.Mux.HandleFunc("/api/taxfree/admin/overrides/", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&posts, 1)
				sent = apiclienttest.ReadJSON(r)
				status = "VALIDATED"
				apiclienttest.WriteJSON(w, http.StatusCreated, map[string]any{"id": "ov-1", "previous_status": "REFUSED", "new_status": "VALIDATED"})
			})
		})

		correct := func(encoded string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			req := sessiontest.Form(sess, "/admin/forms/"+formID+"/status", encoded)
			handler.Correct(rec, sessiontest.WithParams(req, "id", formID))
			return rec
		}
		list := func() {
			rec := httptest.NewRecorder()
			handler.List(rec, sessiontest.Request(sess, http.MethodGet, "/admin/forms", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
		}

		It("should keep the form on a short reason", func() {
			rec := correct("new_status=VALIDATED&reason=oups")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring(`<textarea name="reason">oups</textarea>`))
			Expect(rec.Body.String()).To(ContainSubstring("au moins 10 caractères"))
			Expect(atomic.LoadInt32(&posts)).To(BeZero())
		})

		It("should confirm, post once, and refresh the list", func() {
			list()
			list()
			Expect(atomic.LoadInt32(&lists)).To(Equal(int32(1)))

			dialog := correct("new_status=VALIDATED&reason=Validation+faite+hors+ligne+au+poste")
			Expect(dialog.Code).To(Equal(http.StatusOK))
			Expect(dialog.Body.String()).To(ContainSubstring("passera au statut Validé"))
			m := regexp.MustCompile(`name="confirm_token" value="([^"]+)"`).FindStringSubmatch(dialog.Body.String())
			Expect(m).To(HaveLen(2))

			done := correct("confirm_token=" + m[1])
			Expect(done.Code).To(Equal(http.StatusSeeOther))
			Expect(done.Header().Get("Location")).To(Equal("/admin/forms/" + formID))
			Expect(atomic.LoadInt32(&posts)).To(Equal(int32(1)))
			Expect(sent).To(Equal(map[string]any{
				"form_id": formID, "new_status": "VALIDATED", "reason": "Validation faite hors ligne au poste",
			}))

			list()
			Expect(atomic.LoadInt32(&lists)).To(Equal(int32(2)))

			correct("confirm_token=" + m[1])
			Expect(atomic.LoadInt32(&posts)).To(Equal(int32(1)))
		})

		It("should leave the correction disabled without the edit grant", func() {
			var err error
			sess, err = env.SignIn(permission.RoleAdmin, permission.Grant{Module: permission.ModuleForms, Action: permission.ActionView})
			Expect(err).NotTo(HaveOccurred())

			rec := httptest.NewRecorder()
			handler.Detail(rec, sessiontest.WithParams(sessiontest.Request(sess, http.MethodGet, "/admin/forms/"+formID, nil), "id", formID))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchRegexp(`<button type="submit" disabled title="[^"]+">Corriger</button>`))
		})
	})
})
