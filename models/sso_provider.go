package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SsoProvider 代表支援的SSO供應商
type SsoProvider struct {
	gorm.Model

	ID   uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	Name string    `gorm:"type:text;not null;unique;<-:create"`
}
