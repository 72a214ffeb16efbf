package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

type User struct {
	ID           string `gorm:"primaryKey;size:64"        json:"id"`
	Username     string `gorm:"uniqueIndex;not null"      json:"username"`
	PasswordHash string `gorm:"not null"                  json:"-"`
	Role         Role   `gorm:"not null;default:'user'"   json:"role"`
}

// BeforeCreate assigns a uuid when the caller left ID empty.
func (u *User) BeforeCreate(*gorm.DB) error {
	u.EnsureID()
	return nil
}

func (u *User) EnsureID() {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
}

// Summary is the part of a user exposed to clients.
type Summary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username, Role: u.Role}
}

// RefreshToken is one entry of the revocation set. Only the SHA-256 of the
// token value is stored.
type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"                json:"id"`
	TokenHash string `gorm:"uniqueIndex;not null;size:64" json:"-"`
	UserID    string `gorm:"index;not null"            json:"user_id"`
	ExpiresAt int64  `gorm:"not null"                  json:"expires_at"`
	Revoked   bool   `gorm:"default:false"             json:"revoked"`
}
