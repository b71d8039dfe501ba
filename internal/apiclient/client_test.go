package apiclient_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/session"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestAPIClient(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Client Suite")
}

type recordingStore struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingStore) UpdateTokens(_ context.Context, s *session.Session, access, refresh string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	s.AccessToken = access
	if refresh != "" {
		s.RefreshToken = refresh
	}
	return nil
}

func (r *recordingStore) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var _ = Describe("Client", func() {
	var (
		mux     *http.ServeMux
		server  *httptest.Server
		store   *recordingStore
		client  *apiclient.Client
		sess    *session.Session
		ctx     context.Context
		log     *slog.Logger
		refresh int32
	)

	BeforeEach(func() {
		mux = http.NewServeMux()
		server = httptest.NewServer(mux)
		store = &recordingStore{}
		atomic.StoreInt32(&refresh, 0)
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

		var err error
		client, err = apiclient.NewClient(apiclient.Config{BaseURL: server.URL}, store, log)
		Expect(err).NotTo(HaveOccurred())

		sess = &session.Session{ID: "01SESSION", AccessToken: "old-access", RefreshToken: "refresh-1", CurrentUser: &session.User{ID: "1"}}
		ctx = session.WithSession(internal.ContextWithTraceID(context.Background(), "trace-123"), sess)
	})

	AfterEach(func() {
		server.Close()
	})

	It("should reject a base url without scheme", func() {
		_, err := apiclient.NewClient(apiclient.Config{BaseURL: "backend"}, store, log)
		Expect(err).To(HaveOccurred())
	})

	It("should attach the bearer token and forward the trace id", func() {
		mux.HandleFunc("/api/customs/admin/agents/", func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer old-access"))
			Expect(r.Header.Get("X-Trace-ID")).To(Equal("trace-123"))
			Expect(r.URL.Query().Get("search")).To(Equal("karim"))
			writeJSON(w, http.StatusOK, map[string]any{"count": 1, "agents": []any{map[string]any{"id": 4}}})
		})

		var out struct {
			Count int `json:"count"`
		}
		err := client.Get(ctx, "/api/customs/admin/agents/", map[string][]string{"search": {"karim"}}, &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Count).To(Equal(1))
	})

	It("should never send a token on anonymous calls", func() {
		mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
			Expect(r.Header.Get("Authorization")).To(BeEmpty())
			writeJSON(w, http.StatusOK, map[string]any{"otp_id": "abc", "expires_in": 300})
		})

		err := client.DoJSON(ctx, apiclient.Request{Method: http.MethodPost, Path: "/api/auth/login/", Body: map[string]string{"email": "a@b.ma"}, Anonymous: true}, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	Context("when the access token is rejected", func() {
		BeforeEach(func() {
			mux.HandleFunc("/api/auth/refresh/", func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&refresh, 1)
				var body map[string]string
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				if body["refresh"] != "refresh-1" {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
					return
				}
				writeJSON(w, http.StatusOK, map[string]string{"access": "new-access"})
			})
			mux.HandleFunc("/api/reports/summary/", func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer new-access" {
					writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "expired"})
					return
				}
				writeJSON(w, http.StatusOK, map[string]int{"total_forms": 12})
			})
		})

		It("should refresh once, store the new token and replay the call", func() {
			var out map[string]int
			Expect(client.Get(ctx, "/api/reports/summary/", nil, &out)).To(Succeed())
			Expect(out["total_forms"]).To(Equal(12))
			Expect(store.Calls()).To(Equal(1))
			Expect(sess.AccessToken).To(Equal("new-access"))
			Expect(sess.RefreshToken).To(Equal("refresh-1"))
		})

		It("should share one refresh between concurrent callers", func() {
			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					Expect(client.Get(ctx, "/api/reports/summary/", nil, nil)).To(Succeed())
				}()
			}
			wg.Wait()
			Expect(atomic.LoadInt32(&refresh)).To(BeNumerically("<=", 5))
			Expect(sess.AccessToken).To(Equal("new-access"))
		})

		It("should report an expired session when the refresh is refused", func() {
			sess.RefreshToken = "revoked"
			err := client.Get(ctx, "/api/reports/summary/", nil, nil)
			Expect(internal.IsType(err, internal.ErrorTypeSessionExpired)).To(BeTrue())
			Expect(store.Calls()).To(BeZero())
		})
	})

	It("should report an expired session when no token pair exists", func() {
		sess.RefreshToken = ""
		err := client.Get(ctx, "/api/reports/summary/", nil, nil)
		Expect(internal.IsType(err, internal.ErrorTypeSessionExpired)).To(BeTrue())
	})

	Describe("error classification", func() {
		It("should detect maintenance mode", func() {
			mux.HandleFunc("/api/taxfree/status/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"detail": "Maintenance jusqu'à 14h", "code": "maintenance_mode"})
			})
			err := client.Probe(ctx)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeMaintenance))
			Expect(appErr.Message).To(Equal("Maintenance jusqu'à 14h"))
		})

		It("should treat a plain 503 as transient", func() {
			mux.HandleFunc("/api/taxfree/status/", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			})
			Expect(internal.IsType(client.Probe(ctx), internal.ErrorTypeTransient)).To(BeTrue())
		})

		It("should carry the lockout duration", func() {
			mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, map[string]any{"detail": "Compte verrouillé", "code": "account_locked", "lockout_minutes": 15})
			})
			err := client.DoJSON(ctx, apiclient.Request{Method: http.MethodPost, Path: "/api/auth/login/", Anonymous: true}, nil)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeAccountLocked))
			Expect(appErr.Details).To(Equal(internal.LockoutDetails{LockoutMinutes: 15}))
		})

		It("should carry remaining attempts on bad credentials", func() {
			mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Email ou mot de passe incorrect.", "attempts_remaining": 2})
			})
			err := client.DoJSON(ctx, apiclient.Request{Method: http.MethodPost, Path: "/api/auth/login/", Anonymous: true}, nil)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeInvalidCredentials))
			Expect(appErr.Details).To(Equal(internal.LockoutDetails{AttemptsRemaining: 2}))
		})

		It("should classify an inactive account from the server text", func() {
			mux.HandleFunc("/api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Ce compte est désactivé."})
			})
			err := client.DoJSON(ctx, apiclient.Request{Method: http.MethodPost, Path: "/api/auth/login/", Anonymous: true}, nil)
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.Code).To(Equal(internal.ErrCodeInactiveAccount))
		})

		It("should map field errors back onto fields", func() {
			mux.HandleFunc("/api/auth/reset-password/tok/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"password": []string{"Ce mot de passe est trop courant."}})
			})
			err := client.Post(ctx, "/api/auth/reset-password/tok/", map[string]string{"password": "x"}, nil)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.FieldErrors()).To(HaveKeyWithValue("password", "Ce mot de passe est trop courant."))

			var apiErr *apiclient.APIError
			Expect(err).To(BeAssignableToTypeOf(appErr))
			Expect(appErr.Cause).To(BeAssignableToTypeOf(apiErr))
		})

		It("should surface an unreachable backend as transient", func() {
			server.Close()
			err := client.Get(ctx, "/api/reports/summary/", nil, nil)
			Expect(internal.IsType(err, internal.ErrorTypeTransient)).To(BeTrue())
		})

		It("should return the context error when the caller gave up", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			err := client.Get(cancelled, "/api/reports/summary/", nil, nil)
			Expect(err).To(MatchError(context.Canceled))
		})
	})

	Describe("Download", func() {
		It("should stream the body with the server filename", func() {
			mux.HandleFunc("/api/customs/reports/export/refunds/", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/csv")
				w.Header().Set("Content-Disposition", `attachment; filename="remboursements_2026.csv"`)
				_, _ = w.Write([]byte("id;montant\n1;250\n"))
			})

			dl, err := client.Download(ctx, http.MethodGet, "/api/customs/reports/export/refunds/", nil, nil)
			Expect(err).NotTo(HaveOccurred())
			defer dl.Body.Close()
			Expect(dl.Filename).To(Equal("remboursements_2026.csv"))
			Expect(dl.ContentType).To(Equal("text/csv"))
			data, err := io.ReadAll(dl.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("1;250"))
		})

		It("should classify a refused export", func() {
			mux.HandleFunc("/api/reports/export/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Permission refusée"})
			})
			_, err := client.Download(ctx, "", "/api/reports/export/", nil, nil)
			Expect(internal.IsType(err, internal.ErrorTypeAuthorization)).To(BeTrue())
		})
	})
})
