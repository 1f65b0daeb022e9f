package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 代表平台上的使用者
type User struct {
	gorm.Model

	ID       uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	Username string    `gorm:"type:varchar(255);not null"`

	Identities []UserIdentity `gorm:"foreignKey:UserID"`
}
