package session

import "time"

// Session is the persisted row behind a console cookie. Payload is the
// sealed JSON encoding of the session state. Version changes on every
// write and guards against overwriting a newer row.
type Session struct {
	ID        string    `gorm:"primaryKey;column:id;size:26"`
	UserID    string    `gorm:"column:user_id;index"`
	Payload   []byte    `gorm:"column:payload;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;index;not null"`
	Version   int64     `gorm:"column:version;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Session) TableName() string {
	return "console_sessions"
}
