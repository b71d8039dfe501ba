package session

import (
	"context"
	"errors"
	"time"

	sessionDatamodel "github.com/frahmantamala/taxfree-console/internal/core/datamodel/session"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrConflict reports a write made from a copy older than the stored row.
	ErrConflict = errors.New("session changed concurrently")
)

// RepositoryAPI persists sealed session rows.
type RepositoryAPI interface {
	Get(ctx context.Context, id string, now time.Time) (*sessionDatamodel.Session, error)
	// Create inserts row as is. It returns ErrConflict when the id is taken.
	Create(ctx context.Context, row *sessionDatamodel.Session) error
	// Update overwrites the row only while its stored version equals
	// version, then moves row.Version forward. A deleted row yields
	// ErrNotFound and is never recreated.
	Update(ctx context.Context, row *sessionDatamodel.Session, version int64) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
