package models

import "time"

// User is a person who owns reports and provider connections.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  *string   `json:"-"` // bcrypt hash, nil for OAuth-only users
	Name      *string   `json:"name,omitempty"`
	Image     *string   `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
