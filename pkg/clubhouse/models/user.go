package models

import "time"

// User represents a registered account
type User struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Identifier     string    `gorm:"uniqueIndex;not null" json:"identifier"` // Username or email, stored lower-cased
	PasswordHash   string    `gorm:"not null" json:"-"`
	CurrentGroupID *uint     `gorm:"index" json:"current_group_id"`

	// Relationships
	GroupMemberships []GroupMembership `gorm:"foreignKey:UserID" json:"group_memberships,omitempty"`
}
