package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session represents a persisted backend session for one account.
// The access token is short-lived and kept in memory only; the refresh
// token is encrypted before it touches the database.
type Session struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	Email           string    `gorm:"unique;not null" json:"email"`
	UserID          string    `gorm:"column:user_id" json:"user_id"`
	RefreshTokenEnc string    `gorm:"not null;column:refresh_token_enc" json:"-"` // Encrypted, never expose in JSON
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for GORM
func (Session) TableName() string {
	return "sessions"
}
