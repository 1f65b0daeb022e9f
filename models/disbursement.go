package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Disbursement 是成交後撥付給賣家的紀錄，
// Fee是平台抽成，Amount加Fee等於成交價
type Disbursement struct {
	gorm.Model

	ID              uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	AuctionEngineID uint64    `gorm:"uniqueIndex;not null;<-:create"`
	SellerID        uuid.UUID `gorm:"type:uuid;index;not null;<-:create"`
	Amount          uint64    `gorm:"not null;<-:create"`
	Fee             uint64    `gorm:"not null;<-:create"`
	SettledAt       time.Time `gorm:"type:timestamp with time zone;not null;<-:create"`

	// 外鍵關聯
	Seller User `gorm:"foreignKey:SellerID"`
}
