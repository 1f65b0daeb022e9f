package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserIdentity 代表使用者在某個SSO供應商的身份，
// Identity是供應商端用來識別使用者的字串
type UserIdentity struct {
	gorm.Model

	ID            uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	SsoProviderID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_user_identity_sso_provider_id_user_id,where:deleted_at IS NULL;uniqueIndex:idx_user_identity_sso_provider_id_identity,where:deleted_at IS NULL;not null;<-:create"`
	UserID        uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_user_identity_sso_provider_id_user_id,where:deleted_at IS NULL;not null;<-:create"`
	Identity      string    `gorm:"type:text;uniqueIndex:idx_user_identity_sso_provider_id_identity,where:deleted_at IS NULL;not null;<-:create"`

	SsoProvider *SsoProvider `gorm:"foreignKey:SsoProviderID"`
	User        *User        `gorm:"foreignKey:UserID"`
}
