package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bid 是被引擎接受的出價紀錄，荷蘭拍的買斷也會記一筆
type Bid struct {
	gorm.Model

	ID              uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	AuctionEngineID uint64    `gorm:"index;not null;<-:create"`
	BidderID        uuid.UUID `gorm:"type:uuid;not null;<-:create"`
	Amount          uint64    `gorm:"not null;<-:create"`
	PlacedAt        time.Time `gorm:"type:timestamp with time zone;not null;<-:create"`
	// SourceID 是產生這筆紀錄的stream條目ID，重送同一條訊息時靠它去重
	SourceID string `gorm:"type:varchar(64);uniqueIndex;not null;<-:create"`

	// 外鍵關聯
	Bidder User `gorm:"foreignKey:BidderID"`
}
