package models

import "time"

// Group is a set of users that can be joined with an invite code.
// The creator is the admin for the whole lifetime of the group.
type Group struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	Code        string    `gorm:"uniqueIndex;size:16;not null" json:"code"`
	AdminID     uint      `gorm:"not null;index" json:"admin_id"`

	// Relationships
	Members []GroupMembership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
}
