package models

import "time"

// User is the canonical directory entry for a principal. A row is
// created on first successful Google sign-in and only removed by an
// admin delete.
type User struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Email     string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Name      string     `gorm:"size:255;not null" json:"name"`
	Picture   string     `gorm:"size:512" json:"picture,omitempty"`
	GoogleID  *string    `gorm:"size:255;uniqueIndex" json:"-"`
	Role      string     `gorm:"size:20;not null;default:'user'" json:"role"`
	Status    string     `gorm:"size:20;not null;default:'active'" json:"status"`
	LastLogin *time.Time `json:"last_login"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
