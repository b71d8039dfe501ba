// Package sessiontest builds a session manager over an in-memory database
// for handler tests.
package sessiontest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	sessionDatamodel "github.com/frahmantamala/taxfree-console/internal/core/datamodel/session"
	"github.com/frahmantamala/taxfree-console/internal/core/events"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
	sessionPostgres "github.com/frahmantamala/taxfree-console/internal/session/postgres"
	"github.com/go-chi/chi"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	signingSecret = "sessiontest-signing-secret-0123456789"
	encryptionKey = "0123456789abcdef0123456789abcdef"
)

type Env struct {
	DB      *gorm.DB
	Bus     *events.Bus
	Logger  *slog.Logger
	Manager *session.Manager
}

func New() (*Env, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// every pooled connection would otherwise get its own empty database
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&sessionDatamodel.Session{}); err != nil {
		return nil, err
	}

	lg := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	bus := events.NewBus(lg)
	m, err := session.NewManager(sessionPostgres.NewSessionRepository(db), session.Options{
		CookieName:    "taxfree_session",
		SigningSecret: signingSecret,
		EncryptionKey: encryptionKey,
	}, bus, lg)
	if err != nil {
		return nil, err
	}
	return &Env{DB: db, Bus: bus, Logger: lg, Manager: m}, nil
}

// Anonymous starts a fresh session.
func (e *Env) Anonymous() (*session.Session, error) {
	return e.Manager.Init(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

// SignIn starts a session authenticated as user with grants loaded.
func (e *Env) SignIn(role permission.Role, grants ...permission.Grant) (*session.Session, error) {
	s, err := e.Anonymous()
	if err != nil {
		return nil, err
	}
	return s, e.authenticate(s, role, grants)
}

// Browser signs in like SignIn and also returns the session cookie, for
// tests going through the full router.
func (e *Env) Browser(role permission.Role, grants ...permission.Grant) (*session.Session, []*http.Cookie, error) {
	rec := httptest.NewRecorder()
	s, err := e.Manager.Init(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		return nil, nil, err
	}
	if err := e.authenticate(s, role, grants); err != nil {
		return nil, nil, err
	}
	return s, rec.Result().Cookies(), nil
}

func (e *Env) authenticate(s *session.Session, role permission.Role, grants []permission.Grant) error {
	user := &session.User{
		ID:          "1",
		Email:       "admin@taxfree.test",
		FirstName:   "Awa",
		LastName:    "Diop",
		Role:        role,
		Permissions: permission.NewGrantSet(grants...),
	}
	ctx := context.Background()
	if err := e.Manager.SetAuth(ctx, s, "access-token", "refresh-token", user); err != nil {
		return err
	}
	return e.Manager.SetPermissions(ctx, s, user.Permissions)
}

// Request builds a request carrying s the way the session loader does.
func Request(s *session.Session, method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if s != nil {
		req = req.WithContext(session.WithSession(req.Context(), s))
	}
	return req
}

// Form builds a urlencoded POST carrying s.
func Form(s *session.Session, target, encoded string) *http.Request {
	req := Request(s, http.MethodPost, target, strings.NewReader(encoded))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// JSON builds a JSON POST carrying s and asking for a JSON answer.
func JSON(s *session.Session, method, target, body string) *http.Request {
	req := Request(s, method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

// WithParams sets chi URL parameters given as name, value pairs.
func WithParams(req *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
