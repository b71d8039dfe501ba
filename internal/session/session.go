package session

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/otp"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/wizard"
)

// UserID accepts both numeric and string identifiers from the backend.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = UserID(n.String())
	return nil
}

func (id UserID) String() string { return string(id) }

type User struct {
	ID            UserID              `json:"id"`
	Email         string              `json:"email"`
	FirstName     string              `json:"first_name"`
	LastName      string              `json:"last_name"`
	Role          permission.Role     `json:"role"`
	IsSuperAdmin  bool                `json:"is_super_admin"`
	Permissions   permission.GrantSet `json:"permissions"`
	MerchantID    string              `json:"merchant_id,omitempty"`
	PointOfExitID string              `json:"point_of_exit_id,omitempty"`
	ProfilePhoto  string              `json:"profile_photo,omitempty"`
	Phone         string              `json:"phone,omitempty"`

	// grantsIncluded is set when the decoded payload carried a
	// "permissions" key, meaning no separate fetch is needed.
	grantsIncluded bool
}

func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	var raw struct {
		alias
		Role        string          `json:"role"`
		Permissions json.RawMessage `json:"permissions"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(raw.alias)
	if role, err := permission.ParseRole(raw.Role); err == nil {
		u.Role = role
	} else {
		u.Role = permission.Role(raw.Role)
	}
	u.Permissions = permission.GrantSet{}
	u.grantsIncluded = false
	if len(raw.Permissions) > 0 && !bytes.Equal(raw.Permissions, []byte("null")) {
		if err := json.Unmarshal(raw.Permissions, &u.Permissions); err != nil {
			return err
		}
		u.grantsIncluded = true
	}
	return nil
}

func (u *User) GrantsIncluded() bool { return u != nil && u.grantsIncluded }

func (u *User) FullName() string {
	if u == nil {
		return ""
	}
	switch {
	case u.FirstName == "" && u.LastName == "":
		return u.Email
	case u.LastName == "":
		return u.FirstName
	case u.FirstName == "":
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) Initials() string {
	if u == nil {
		return ""
	}
	out := ""
	if r := []rune(u.FirstName); len(r) > 0 {
		out += string(r[0])
	}
	if r := []rune(u.LastName); len(r) > 0 {
		out += string(r[0])
	}
	return out
}

// UserPatch carries a partial profile update; nil fields are left as is.
type UserPatch struct {
	Email        *string
	FirstName    *string
	LastName     *string
	Phone        *string
	ProfilePhoto *string
	Role         *permission.Role
	IsSuperAdmin *bool
	Permissions  *permission.GrantSet
}

type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
	FlashWarning FlashKind = "warning"
	FlashInfo    FlashKind = "info"
)

type Flash struct {
	Kind    FlashKind `json:"kind"`
	Message string    `json:"message"`
}

// Confirmation is a pending destructive action waiting for the user's
// explicit confirmation.
type Confirmation struct {
	Action    string            `json:"action"`
	Target    map[string]string `json:"target"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// OTPChallenge is the second login step in progress.
type OTPChallenge struct {
	OTPID     string        `json:"otp_id"`
	Email     string        `json:"email"`
	Countdown otp.Countdown `json:"countdown"`
}

// Session is the console state of one browser. IsAuthenticated always
// equals "both tokens set and a user present"; mutate through Manager.
type Session struct {
	ID                 string                   `json:"id"`
	CurrentUser        *User                    `json:"current_user,omitempty"`
	AccessToken        string                   `json:"access_token,omitempty"`
	RefreshToken       string                   `json:"refresh_token,omitempty"`
	IsAuthenticated    bool                     `json:"is_authenticated"`
	PermissionsLoaded  bool                     `json:"permissions_loaded"`
	PasswordExpired    bool                     `json:"password_expired,omitempty"`
	Flashes            []Flash                  `json:"flashes,omitempty"`
	MaintenanceMessage string                   `json:"maintenance_message,omitempty"`
	MaintenanceUntil   time.Time                `json:"maintenance_until,omitempty"`
	OTP                *OTPChallenge            `json:"otp,omitempty"`
	Wizards            map[string]*wizard.State `json:"wizards,omitempty"`
	Confirmations      map[string]Confirmation  `json:"confirmations,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	ExpiresAt          time.Time                `json:"expires_at"`

	// Version is the stored row version this copy was read at; zero until
	// the session is first written.
	Version int64 `json:"-"`
}

// normalize re-derives IsAuthenticated.
func (s *Session) normalize() {
	s.IsAuthenticated = s.AccessToken != "" && s.RefreshToken != "" && s.CurrentUser != nil
}

func (s *Session) UserIDString() string {
	if s == nil || s.CurrentUser == nil {
		return ""
	}
	return s.CurrentUser.ID.String()
}

func (s *Session) Role() permission.Role {
	if s == nil || s.CurrentUser == nil {
		return ""
	}
	return s.CurrentUser.Role
}

// Subject projects the session onto the permission resolver's input.
func (s *Session) Subject() permission.Subject {
	if s == nil || s.CurrentUser == nil {
		return permission.Subject{}
	}
	return permission.Subject{
		Role:         s.CurrentUser.Role,
		IsSuperAdmin: s.CurrentUser.IsSuperAdmin,
		Grants:       s.CurrentUser.Permissions,
		Loaded:       s.PermissionsLoaded,
	}
}

func (s *Session) Resolver(policy permission.Policy) permission.Resolver {
	return permission.NewResolver(policy, s.Subject())
}

// Tokens returns the current bearer pair.
func (s *Session) Tokens() (access, refresh string) {
	if s == nil {
		return "", ""
	}
	return s.AccessToken, s.RefreshToken
}

func (s *Session) Wizard(id string) (*wizard.State, bool) {
	if s == nil || s.Wizards == nil {
		return nil, false
	}
	w, ok := s.Wizards[id]
	return w, ok
}

func (s *Session) Maintenance(now time.Time) (string, bool) {
	if s == nil || s.MaintenanceMessage == "" || now.After(s.MaintenanceUntil) {
		return "", false
	}
	return s.MaintenanceMessage, true
}

type ctxKey string

const sessionKey ctxKey = "console_session"

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}

// CacheScope names the signed-in user of ctx for cache keys, so cached
// backend answers are never shared between accounts.
func CacheScope(ctx context.Context) string {
	s, ok := FromContext(ctx)
	if !ok || s.CurrentUser == nil {
		return "anonymous"
	}
	return "u" + s.UserIDString()
}
