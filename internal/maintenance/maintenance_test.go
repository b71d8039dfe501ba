package maintenance_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/maintenance"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"github.com/frahmantamala/taxfree-console/internal/session/sessiontest"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMaintenance(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Maintenance Suite")
}

var discard = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

// prober answers maintenance for the first busy probes, then healthy.
type prober struct {
	busy  int32
	calls int32
	err   error
}

func (p *prober) Probe(context.Context) error {
	n := atomic.AddInt32(&p.calls, 1)
	if n <= p.busy {
		if p.err != nil {
			return p.err
		}
		return internal.NewMaintenanceError("Mise à jour en cours.")
	}
	return nil
}

var _ = Describe("Maintenance", func() {
	var (
		env  *sessiontest.Env
		sess *session.Session
		base *transport.BaseHandler
	)

	BeforeEach(func() {
		var err error
		env, err = sessiontest.New()
		Expect(err).NotTo(HaveOccurred())
		views, err := view.New()
		Expect(err).NotTo(HaveOccurred())
		base = transport.NewBaseHandler(discard, views, env.Manager, permission.DefaultPolicy())

		sess, err = env.SignIn(permission.RoleOperator)
		Expect(err).NotTo(HaveOccurred())
		Expect(env.Manager.SetMaintenanceMessage(context.Background(), sess, "Maintenance planifiée jusqu'à 14h.")).To(Succeed())
	})

	It("should show the stored message", func() {
		handler := maintenance.NewHandler(base, &prober{}, 5*time.Second)
		rec := httptest.NewRecorder()
		handler.Show(rec, sessiontest.Request(sess, http.MethodGet, "/maintenance", nil))
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(rec.Header().Get("Retry-After")).To(Equal("5"))
		Expect(rec.Body.String()).To(ContainSubstring("Maintenance planifiée jusqu&#39;à 14h."))
		Expect(rec.Body.String()).To(ContainSubstring(`data-stream="/maintenance/stream"`))
	})

	It("should fall back to a default message", func() {
		anon, err := env.Anonymous()
		Expect(err).NotTo(HaveOccurred())
		handler := maintenance.NewHandler(base, &prober{}, time.Second)
		rec := httptest.NewRecorder()
		handler.Show(rec, sessiontest.Request(anon, http.MethodGet, "/maintenance", nil))
		Expect(rec.Body.String()).To(ContainSubstring("La plateforme est en maintenance."))
	})

	It("should probe until the backend is back, then clear the message", func() {
		p := &prober{busy: 2}
		handler := maintenance.NewHandler(base, p, 10*time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		rec := httptest.NewRecorder()
		req := sessiontest.Request(sess, http.MethodGet, "/maintenance/stream", nil)
		handler.Stream(rec, req.WithContext(session.WithSession(ctx, sess)))

		Expect(ctx.Err()).NotTo(HaveOccurred())
		Expect(atomic.LoadInt32(&p.calls)).To(Equal(int32(3)))
		body := rec.Body.String()
		Expect(strings.Count(body, "event: waiting")).To(Equal(2))
		Expect(body).To(ContainSubstring(`event: resolved` + "\n" + `data: {"redirect":"/admin/dashboard"}`))
		_, stored := env.Manager.MaintenanceMessage(sess)
		Expect(stored).To(BeFalse())
	})

	It("should keep waiting through unreachable probes", func() {
		p := &prober{busy: 1, err: errors.New("dial tcp: connection refused")}
		handler := maintenance.NewHandler(base, p, 10*time.Millisecond)
		rec := httptest.NewRecorder()
		handler.Stream(rec, sessiontest.Request(sess, http.MethodGet, "/maintenance/stream", nil))
		Expect(rec.Body.String()).To(ContainSubstring("event: resolved"))
	})

	It("should stop probing when the client leaves", func() {
		p := &prober{busy: 1 << 20}
		handler := maintenance.NewHandler(base, p, 10*time.Millisecond)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		handler.Stream(httptest.NewRecorder(), sessiontest.Request(sess, http.MethodGet, "/maintenance/stream", nil).WithContext(session.WithSession(ctx, sess)))
		calls := atomic.LoadInt32(&p.calls)
		time.Sleep(40 * time.Millisecond)
		Expect(atomic.LoadInt32(&p.calls)).To(Equal(calls))
	})
})
