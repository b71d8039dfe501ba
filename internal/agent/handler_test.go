package agent_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/agent"
	"github.com/frahmantamala/taxfree-console/internal/apiclient/apiclienttest"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
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
		handler *agent.Handler
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
		cache := querycache.New(time.Minute, discard)
		cache.Subscribe(env.Bus)
		base := transport.NewBaseHandler(discard, views, env.Manager, permission.DefaultPolicy())
		handler = agent.NewHandler(base, agent.NewService(backend.Client, cache, env.Bus, discard), 0)

		backend.Mux.HandleFunc("/api/customs/points-of-exit/", func(w http.ResponseWriter, r *http.Request) {
			apiclienttest.WriteJSON(w, http.StatusOK, []any{map[string]any{"id": "poe-1", "code": "FIH", "name": "Aéroport de N'djili"}})
		})
	})

	signIn := func(grants ...permission.Grant) *session.Session {
		s, err := env.SignIn(permission.RoleAdmin, grants...)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	Describe("List", func() {
		BeforeEach(func() {
			backend.Mux.HandleFunc("/api/customs/admin/agents/", func(w http.ResponseWriter, r *http.Request) {
				agents := make([]any, 0, 12)
				for i := 0; i < 12; i++ {
					agents = append(agents, agentJSON(fmt.Sprintf("00000000-0000-4000-8000-%012d", i), fmt.Sprintf("agent%02d", i), true))
				}
				apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{"count": 12, "agents": agents})
			})
		})

		It("should slice the directory ten agents at a time", func() {
			s := signIn(permission.Grant{Module: permission.ModuleAgents, Action: permission.ActionView})
			rec := httptest.NewRecorder()
			handler.List(rec, sessiontest.Request(s, http.MethodGet, "/admin/agents?page=2", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			body := rec.Body.String()
			Expect(body).To(ContainSubstring("agent10"))
			Expect(body).To(ContainSubstring("agent11"))
			Expect(body).NotTo(ContainSubstring("agent09"))
			Expect(body).To(ContainSubstring("FIH - Aéroport de N&#39;djili"))
		})

		It("should go back to the first page when a filter changes", func() {
			s := signIn(permission.Grant{Module: permission.ModuleAgents, Action: permission.ActionView})
			rec := httptest.NewRecorder()
			req := sessiontest.Request(s, http.MethodGet, "/admin/agents?page=2&status=active&prev_status=", nil)
			req.Header.Set("Accept", "application/json")
			handler.List(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"page":1`))
		})

		It("should show the toggle disabled without the edit grant", func() {
			s := signIn(permission.Grant{Module: permission.ModuleAgents, Action: permission.ActionView})
			rec := httptest.NewRecorder()
			handler.List(rec, sessiontest.Request(s, http.MethodGet, "/admin/agents", nil))

			Expect(rec.Body.String()).To(MatchRegexp(`Désactiver</button>`))
			Expect(rec.Body.String()).To(ContainSubstring("disabled title=\"Vous n&#39;avez pas la permission"))
		})
	})

	It("should flip an agent and come back with a message", func() {
		var sent map[string]any
		backend.Mux.HandleFunc("/api/customs/admin/agents/"+agentID+"/", func(w http.ResponseWriter, r *http.Request) {
			sent = apiclienttest.ReadJSON(r)
			apiclienttest.WriteJSON(w, http.StatusOK, agentJSON(agentID, "kabila", false))
		})
		s := signIn(permission.Grant{Module: permission.ModuleAgents, Action: permission.ActionEdit})

		rec := httptest.NewRecorder()
		req := sessiontest.Form(s, "/admin/agents/"+agentID+"/active", "is_active=false&back=%2Fadmin%2Fagents%3Fpage%3D2")
		handler.SetActive(rec, sessiontest.WithParams(req, "id", agentID))

		Expect(rec.Code).To(Equal(http.StatusSeeOther))
		Expect(rec.Header().Get("Location")).To(Equal("/admin/agents?page=2"))
		Expect(sent).To(HaveKeyWithValue("is_active", false))
		Expect(s.Flashes).To(ContainElement(session.Flash{Kind: session.FlashSuccess, Message: "Le compte de kabila est désactivé."}))
	})

	It("should answer not found for a malformed agent id", func() {
		s := signIn(permission.Grant{Module: permission.ModuleAgents, Action: permission.ActionView})
		rec := httptest.NewRecorder()
		handler.Detail(rec, sessiontest.WithParams(sessiontest.Request(s, http.MethodGet, "/admin/agents/x", nil), "id", "../x"))
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should show an agent with their counters", func() {
		backend.Mux.HandleFunc("/api/customs/admin/agents/"+agentID+"/", func(w http.ResponseWriter, r *http.Request) {
			apiclienttest.WriteJSON(w, http.StatusOK, map[string]any{
				"agent": agentJSON(agentID, "kabila", true),
				"stats": map[string]any{"total_validations": 40, "validations_today": 3, "validated_count": 35, "refused_count": 5},
			})
		})
		s := signIn(permission.Grant{Module: permission.ModuleAgents, Action: permission.ActionView})
		rec := httptest.NewRecorder()
		handler.Detail(rec, sessiontest.WithParams(sessiontest.Request(s, http.MethodGet, "/admin/agents/"+agentID, nil), "id", agentID))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("Bordereaux refusés"))
		Expect(rec.Body.String()).To(ContainSubstring("<dd>35</dd>"))
	})

	Describe("CancelInvitation", func() {
		var (
			deletes int32
			s       *session.Session
		)

		BeforeEach(func() {
			deletes = 0
			backend.Mux.HandleFunc("/api/customs/admin/invitations/"+invitationID+"/", func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodDelete {
					atomic.AddInt32(&deletes, 1)
				}
				w.WriteHeader(http.StatusNoContent)
			})
			s = signIn(permission.Grant{Module: permission.ModuleAgents, Action: permission.ActionDelete})
		})

		cancel := func(encoded string) *httptest.ResponseRecorder {
			rec := httptest.NewRecorder()
			req := sessiontest.Form(s, "/admin/agents/invitations/"+invitationID+"/cancel", encoded)
			handler.CancelInvitation(rec, sessiontest.WithParams(req, "id", invitationID))
			return rec
		}

		It("should ask first and revoke exactly once", func() {
			dialog := cancel("")
			Expect(dialog.Code).To(Equal(http.StatusOK))
			Expect(atomic.LoadInt32(&deletes)).To(BeZero())
			m := regexp.MustCompile(`name="confirm_token" value="([^"]+)"`).FindStringSubmatch(dialog.Body.String())
			Expect(m).To(HaveLen(2))

			done := cancel("confirm_token=" + m[1])
			Expect(done.Code).To(Equal(http.StatusSeeOther))
			Expect(atomic.LoadInt32(&deletes)).To(Equal(int32(1)))

			replay := cancel("confirm_token=" + m[1])
			Expect(replay.Code).To(Equal(http.StatusSeeOther))
			Expect(replay.Header().Get("Location")).To(Equal("/admin/agents/invitations"))
			Expect(atomic.LoadInt32(&deletes)).To(Equal(int32(1)))
			Expect(s.Flashes).To(ContainElement(HaveField("Kind", session.FlashError)))
		})

		It("should not run with a token issued for another invitation", func() {
			tok, err := env.Manager.RequestConfirmation(context.Background(), s, "agents.invitation.cancel:00000000-0000-4000-8000-000000000000", nil)
			Expect(err).NotTo(HaveOccurred())

			rec := cancel("confirm_token=" + tok)
			Expect(rec.Code).To(Equal(http.StatusSeeOther))
			Expect(atomic.LoadInt32(&deletes)).To(BeZero())
		})
	})
})
