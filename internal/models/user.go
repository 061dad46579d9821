package models

import (
	"time"

	"gorm.io/gorm"
)

// User is a reviewer profile keyed by the identity provider's subject.
// Only used for display names and the admin role; identity itself lives
// elsewhere.
type User struct {
	ID          string         `gorm:"primaryKey;size:128" json:"id"`
	Email       string         `gorm:"size:255;index" json:"email"`
	DisplayName string         `gorm:"size:255" json:"display_name"`
	PhotoURL    string         `gorm:"size:1000" json:"photo_url"`
	Role        string         `gorm:"size:20;default:'user'" json:"role"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

const RoleAdmin = "admin"
