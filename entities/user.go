package entities

import (
	"github.com/google/uuid"
)

type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	Name       string    `json:"name"`
	Email      string    `gorm:"uniqueIndex" json:"email"`
	Password   string    `json:"-"`
	Role       string    `gorm:"default:user" json:"role"`
	AvatarURL  string    `json:"avatar_url,omitempty"`
	IsVerified bool      `gorm:"default:false" json:"is_verified"`

	Timestamp
}
