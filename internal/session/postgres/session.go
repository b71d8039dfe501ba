package postgres

import (
	"context"
	"errors"
	"time"

	sessionDatamodel "github.com/frahmantamala/taxfree-console/internal/core/datamodel/session"
	"github.com/frahmantamala/taxfree-console/internal/session"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) session.RepositoryAPI {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Get(ctx context.Context, id string, now time.Time) (*sessionDatamodel.Session, error) {
	var row sessionDatamodel.Session
	err := r.db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, now).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// Create also takes over the id of a row that expired but was not reaped
// yet; UpdatedAt is the write time.
func (r *SessionRepository) Create(ctx context.Context, row *sessionDatamodel.Session) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND expires_at <= ?", row.ID, row.UpdatedAt).
			Delete(&sessionDatamodel.Session{}).Error
		if err != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return session.ErrConflict
		}
		return nil
	})
}

func (r *SessionRepository) Update(ctx context.Context, row *sessionDatamodel.Session, version int64) error {
	res := r.db.WithContext(ctx).
		Model(&sessionDatamodel.Session{}).
		Where("id = ? AND version = ?", row.ID, version).
		Updates(map[string]any{
			"user_id":    row.UserID,
			"payload":    row.Payload,
			"expires_at": row.ExpiresAt,
			"updated_at": row.UpdatedAt,
			"version":    version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := r.db.WithContext(ctx).Model(&sessionDatamodel.Session{}).Where("id = ?", row.ID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return session.ErrNotFound
		}
		return session.ErrConflict
	}
	row.Version = version + 1
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&sessionDatamodel.Session{}).Error
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&sessionDatamodel.Session{})
	return res.RowsAffected, res.Error
}
