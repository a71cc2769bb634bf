package models

import "time"

// Session is a server-side session record used by the database session store.
// UserID is zero for anonymous visitors that only carry flash messages.
type Session struct {
	ID        string    `gorm:"primarykey;size:36" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Flashes   string    `gorm:"type:text" json:"-"` // JSON-encoded pending flash messages
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
}
