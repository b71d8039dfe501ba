package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand/v2"
	"net/http"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/core/events"
	sessionDatamodel "github.com/frahmantamala/taxfree-console/internal/core/datamodel/session"
	"github.com/frahmantamala/taxfree-console/internal/otp"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/wizard"
	"github.com/oklog/ulid/v2"
)

const (
	maxFlashes        = 10
	confirmationTTL   = 5 * time.Minute
	maxWizardsPerUser = 8
	maxWriteAttempts  = 5
)

var errNoConfirmation = errors.New("session: no such confirmation")

type Options struct {
	CookieName     string
	SigningSecret  string
	EncryptionKey  string
	TTL            time.Duration
	MaintenanceTTL time.Duration
	SecureCookie   bool
}

// Manager is the only writer of session state. Every mutation is written
// through to the repository before it returns. Two requests may hold
// copies of the same session; a write from the older copy is replayed on
// the stored state instead of overwriting it.
type Manager struct {
	repo           RepositoryAPI
	sealer         *sealer
	cookie         cookieCodec
	ttl            time.Duration
	maintenanceTTL time.Duration
	bus            *events.Bus
	logger         *slog.Logger
	now            func() time.Time
}

func NewManager(repo RepositoryAPI, opts Options, bus *events.Bus, logger *slog.Logger) (*Manager, error) {
	sl, err := newSealer([]byte(opts.EncryptionKey))
	if err != nil {
		return nil, err
	}
	if len(opts.SigningSecret) < 32 {
		return nil, errors.New("session: signing secret must be at least 32 characters")
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	if opts.MaintenanceTTL <= 0 {
		opts.MaintenanceTTL = 10 * time.Minute
	}
	if opts.CookieName == "" {
		opts.CookieName = "taxfree_session"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		repo:   repo,
		sealer: sl,
		cookie: cookieCodec{
			name:   opts.CookieName,
			secret: []byte(opts.SigningSecret),
			ttl:    opts.TTL,
			secure: opts.SecureCookie,
		},
		ttl:            opts.TTL,
		maintenanceTTL: opts.MaintenanceTTL,
		bus:            bus,
		logger:         logger,
		now:            time.Now,
	}, nil
}

// SetClock replaces the time source, used by tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Init hydrates the session named by the request cookie. A missing,
// forged or expired cookie yields a fresh anonymous session and a new
// cookie.
func (m *Manager) Init(w http.ResponseWriter, r *http.Request) (*Session, error) {
	now := m.now()
	if id, ok := m.cookie.read(r); ok {
		s, err := m.Load(r.Context(), id)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		// Anonymous sessions are only persisted on first write; the signed
		// identifier stays valid until then.
		s = m.fresh(now)
		s.ID = id
		return s, nil
	}
	s := m.fresh(now)
	if err := m.cookie.write(w, s.ID, now); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads and opens a persisted session.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	row, err := m.repo.Get(ctx, id, m.now())
	if err != nil {
		return nil, err
	}
	plain, err := m.sealer.open(row.Payload)
	if err != nil {
		m.logger.Warn("discarding unreadable session", "session_id", id, "error", err)
		return nil, m.discard(ctx, id)
	}
	var s Session
	if err := json.Unmarshal(plain, &s); err != nil {
		m.logger.Warn("discarding undecodable session", "session_id", id, "error", err)
		return nil, m.discard(ctx, id)
	}
	s.ID = row.ID
	s.Version = row.Version
	s.normalize()
	return &s, nil
}

// discard deletes a row that can no longer be opened so the id can be
// written again from scratch.
func (m *Manager) discard(ctx context.Context, id string) error {
	if err := m.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return ErrNotFound
}

func (m *Manager) fresh(now time.Time) *Session {
	return &Session{
		ID:        ulid.Make().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
}

// Save seals and persists the session in one write. It returns
// ErrConflict when the stored row changed since s was read and
// ErrNotFound when the row was deleted meanwhile; a stale copy never
// overwrites or recreates the row.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	s.normalize()
	now := m.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.ExpiresAt = now.Add(m.ttl)
	plain, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	sealed, err := m.sealer.seal(plain)
	if err != nil {
		return err
	}
	row := &sessionDatamodel.Session{
		ID:        s.ID,
		UserID:    s.UserIDString(),
		Payload:   sealed,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
		UpdatedAt: now,
	}
	if s.Version == 0 {
		// Random so a row recreated under the same id never matches a
		// copy read before the deletion.
		row.Version = mrand.Int64N(1<<62) + 1
		err = m.repo.Create(ctx, row)
	} else {
		err = m.repo.Update(ctx, row, s.Version)
	}
	if err != nil {
		return err
	}
	s.Version = row.Version
	return nil
}

// update applies change to s and saves it. When another request wrote
// the row first, s is reloaded from the store and change runs again on
// the fresh state. An error from change aborts without saving.
func (m *Manager) update(ctx context.Context, s *Session, change func(*Session) error) error {
	for attempt := 1; ; attempt++ {
		if err := change(s); err != nil {
			return err
		}
		err := m.Save(ctx, s)
		if !errors.Is(err, ErrConflict) || attempt == maxWriteAttempts {
			return err
		}
		fresh, err := m.Load(ctx, s.ID)
		if err != nil {
			return err
		}
		*s = *fresh
	}
}

// SetAuth stores the token pair and user returned by a successful login,
// activation or reset. Grants carried in the user payload count as loaded.
func (m *Manager) SetAuth(ctx context.Context, s *Session, access, refresh string, user *User) error {
	err := m.update(ctx, s, func(s *Session) error {
		s.AccessToken = access
		s.RefreshToken = refresh
		s.CurrentUser = user
		s.PermissionsLoaded = user.GrantsIncluded()
		s.OTP = nil
		return nil
	})
	if err != nil {
		return err
	}
	m.publish(ctx, events.SessionAuthenticated(s.ID, s.UserIDString(), string(s.Role())))
	return nil
}

// UpdateTokens records a refresh result. An empty refresh token keeps the
// current one. It fails with ErrNotFound once the session was logged out.
func (m *Manager) UpdateTokens(ctx context.Context, s *Session, access, refresh string) error {
	return m.update(ctx, s, func(s *Session) error {
		if s.RefreshToken == "" {
			return ErrNotFound
		}
		s.AccessToken = access
		if refresh != "" {
			s.RefreshToken = refresh
		}
		return nil
	})
}

// SetUser merges a profile update into the current user.
func (m *Manager) SetUser(ctx context.Context, s *Session, patch UserPatch) error {
	return m.update(ctx, s, func(s *Session) error {
		if s.CurrentUser == nil {
			return errors.New("session: no user to update")
		}
		u := *s.CurrentUser
		setString := func(dst *string, v *string) {
			if v != nil {
				*dst = *v
			}
		}
		setString(&u.Email, patch.Email)
		setString(&u.FirstName, patch.FirstName)
		setString(&u.LastName, patch.LastName)
		setString(&u.Phone, patch.Phone)
		setString(&u.ProfilePhoto, patch.ProfilePhoto)
		if patch.Role != nil {
			u.Role = *patch.Role
		}
		if patch.IsSuperAdmin != nil {
			u.IsSuperAdmin = *patch.IsSuperAdmin
		}
		if patch.Permissions != nil {
			u.Permissions = *patch.Permissions
			s.PermissionsLoaded = true
		}
		s.CurrentUser = &u
		return nil
	})
}

// ReplaceUser overwrites the current user with a full profile payload.
func (m *Manager) ReplaceUser(ctx context.Context, s *Session, user *User) error {
	return m.update(ctx, s, func(s *Session) error {
		u := *user
		if u.GrantsIncluded() {
			s.PermissionsLoaded = true
		} else if s.CurrentUser != nil {
			u.Permissions = s.CurrentUser.Permissions
		}
		s.CurrentUser = &u
		return nil
	})
}

func (m *Manager) SetPermissions(ctx context.Context, s *Session, grants permission.GrantSet) error {
	return m.SetUser(ctx, s, UserPatch{Permissions: &grants})
}

// InvalidatePermissions forces the grants to be fetched again, after the
// backend refused something the cached grants allowed.
func (m *Manager) InvalidatePermissions(ctx context.Context, s *Session) error {
	err := m.update(ctx, s, func(s *Session) error {
		s.PermissionsLoaded = false
		return nil
	})
	if err != nil {
		return err
	}
	m.publish(ctx, events.PermissionsStale(s.ID))
	return nil
}

// Logout clears everything tied to the login and deletes the persisted
// row. Other copies of the session can no longer write it back. Calling
// it on an anonymous session is a no-op.
func (m *Manager) Logout(ctx context.Context, s *Session) error {
	wasAuthenticated := s.IsAuthenticated
	userID := s.UserIDString()

	s.AccessToken = ""
	s.RefreshToken = ""
	s.CurrentUser = nil
	s.PermissionsLoaded = false
	s.PasswordExpired = false
	s.Flashes = nil
	s.MaintenanceMessage = ""
	s.MaintenanceUntil = time.Time{}
	s.OTP = nil
	s.Wizards = nil
	s.Confirmations = nil
	s.Version = 0
	s.normalize()

	if err := m.repo.Delete(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if wasAuthenticated {
		m.publish(ctx, events.SessionLoggedOut(s.ID, userID))
	}
	return nil
}

// Expire is a forced logout: the refresh token was rejected.
func (m *Manager) Expire(ctx context.Context, s *Session) error {
	if err := m.Logout(ctx, s); err != nil {
		return err
	}
	m.publish(ctx, events.SessionExpired(s.ID))
	return nil
}

// ClearCookie removes the browser cookie, used after logout.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	m.cookie.clear(w)
}

func (m *Manager) SetPasswordExpired(ctx context.Context, s *Session, expired bool) error {
	return m.update(ctx, s, func(s *Session) error {
		s.PasswordExpired = expired
		return nil
	})
}

func (m *Manager) SetMaintenanceMessage(ctx context.Context, s *Session, message string) error {
	err := m.update(ctx, s, func(s *Session) error {
		s.MaintenanceMessage = message
		s.MaintenanceUntil = m.now().Add(m.maintenanceTTL)
		return nil
	})
	if err != nil {
		return err
	}
	m.publish(ctx, events.MaintenanceDetected(message))
	return nil
}

func (m *Manager) MaintenanceMessage(s *Session) (string, bool) {
	return s.Maintenance(m.now())
}

func (m *Manager) ClearMaintenance(ctx context.Context, s *Session) error {
	if s.MaintenanceMessage == "" {
		return nil
	}
	err := m.update(ctx, s, func(s *Session) error {
		s.MaintenanceMessage = ""
		s.MaintenanceUntil = time.Time{}
		return nil
	})
	if err != nil {
		return err
	}
	m.publish(ctx, events.MaintenanceResolved())
	return nil
}

func (m *Manager) AddFlash(ctx context.Context, s *Session, kind FlashKind, message string) error {
	return m.update(ctx, s, func(s *Session) error {
		s.Flashes = append(s.Flashes, Flash{Kind: kind, Message: message})
		if len(s.Flashes) > maxFlashes {
			s.Flashes = s.Flashes[len(s.Flashes)-maxFlashes:]
		}
		return nil
	})
}

// PopFlashes returns pending flashes and clears them. A flash is handed
// out once even when two requests pop concurrently.
func (m *Manager) PopFlashes(ctx context.Context, s *Session) []Flash {
	if len(s.Flashes) == 0 {
		return nil
	}
	var out []Flash
	err := m.update(ctx, s, func(s *Session) error {
		out = s.Flashes
		s.Flashes = nil
		return nil
	})
	if err != nil {
		m.logger.Error("failed to clear flashes", "session_id", s.ID, "error", err)
		return nil
	}
	return out
}

// StartOTP records the pending second factor after a password check.
func (m *Manager) StartOTP(ctx context.Context, s *Session, otpID, email string, expiresIn int) error {
	countdown := otp.FromSeconds(expiresIn, m.now())
	return m.update(ctx, s, func(s *Session) error {
		s.OTP = &OTPChallenge{OTPID: otpID, Email: email, Countdown: countdown}
		return nil
	})
}

func (m *Manager) ClearOTP(ctx context.Context, s *Session) error {
	return m.update(ctx, s, func(s *Session) error {
		s.OTP = nil
		return nil
	})
}

func (m *Manager) SaveWizard(ctx context.Context, s *Session, def wizard.Definition, st *wizard.State) error {
	def.Scrub(st)
	return m.update(ctx, s, func(s *Session) error {
		if s.Wizards == nil {
			s.Wizards = map[string]*wizard.State{}
		}
		if _, exists := s.Wizards[st.ID]; !exists && len(s.Wizards) >= maxWizardsPerUser {
			for id := range s.Wizards {
				delete(s.Wizards, id)
				break
			}
		}
		s.Wizards[st.ID] = st
		return nil
	})
}

func (m *Manager) DropWizard(ctx context.Context, s *Session, id string) error {
	if _, ok := s.Wizards[id]; !ok {
		return nil
	}
	return m.update(ctx, s, func(s *Session) error {
		delete(s.Wizards, id)
		return nil
	})
}

// RequestConfirmation parks a destructive action and returns the one-time
// token the confirmation dialog posts back.
func (m *Manager) RequestConfirmation(ctx context.Context, s *Session, action string, target map[string]string) (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	now := m.now()
	err := m.update(ctx, s, func(s *Session) error {
		if s.Confirmations == nil {
			s.Confirmations = map[string]Confirmation{}
		}
		for k, c := range s.Confirmations {
			if now.After(c.ExpiresAt) {
				delete(s.Confirmations, k)
			}
		}
		s.Confirmations[token] = Confirmation{Action: action, Target: target, ExpiresAt: now.Add(confirmationTTL)}
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// ConsumeConfirmation removes and returns the parked action. A token can
// be consumed once, also across concurrent requests: the removal is
// checked against the stored row, so only one of them gets the action.
func (m *Manager) ConsumeConfirmation(ctx context.Context, s *Session, token, action string) (Confirmation, bool) {
	var c Confirmation
	err := m.update(ctx, s, func(s *Session) error {
		var ok bool
		c, ok = s.Confirmations[token]
		if !ok || c.Action != action {
			return errNoConfirmation
		}
		delete(s.Confirmations, token)
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNoConfirmation) {
			m.logger.Error("failed to consume confirmation", "session_id", s.ID, "error", err)
		}
		return Confirmation{}, false
	}
	if m.now().After(c.ExpiresAt) {
		return Confirmation{}, false
	}
	return c, true
}

// CancelConfirmation drops a parked action without running it.
func (m *Manager) CancelConfirmation(ctx context.Context, s *Session, token string) error {
	if _, ok := s.Confirmations[token]; !ok {
		return nil
	}
	return m.update(ctx, s, func(s *Session) error {
		delete(s.Confirmations, token)
		return nil
	})
}

// Reap deletes expired rows.
func (m *Manager) Reap(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx, m.now())
}

func (m *Manager) publish(ctx context.Context, ev events.Event) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, ev); err != nil {
		m.logger.Error("failed to publish session event", "event_type", ev.EventType(), "error", err)
	}
}
