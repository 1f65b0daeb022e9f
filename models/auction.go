package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Auction 是拍賣引擎中一場拍賣的資料庫存檔。
// EngineID 是引擎內的流水號，資料列由事件工作者依事件非同步更新，
// 不是引擎的真實來源。
type Auction struct {
	gorm.Model

	ID       uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	EngineID uint64    `gorm:"uniqueIndex;not null;<-:create"`
	SellerID uuid.UUID `gorm:"type:uuid;not null;<-:create"`

	Kind        string `gorm:"type:varchar(16);not null;<-:create"`
	Title       string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text;not null"`

	StartPrice        uint64 `gorm:"not null;<-:create"`
	ReservePrice      uint64 `gorm:"not null;<-:create"`
	PriceDecrement    uint64 `gorm:"not null;<-:create"`
	DecrementInterval int64  `gorm:"not null;<-:create"` // 秒數

	StartTime time.Time `gorm:"type:timestamp with time zone;not null"`
	EndTime   time.Time `gorm:"type:timestamp with time zone;not null"`

	Status     string     `gorm:"type:varchar(16);not null"`
	Sold       bool       `gorm:"not null;default:false"`
	FinalPrice uint64     `gorm:"not null;default:0"`
	WinnerID   *uuid.UUID `gorm:"type:uuid"`

	Carousels []string `gorm:"type:text[];default:'{}'"`

	// 外鍵關聯
	Seller     User  `gorm:"foreignKey:SellerID"`
	Winner     *User `gorm:"foreignKey:WinnerID"`
	BidRecords []Bid `gorm:"foreignKey:AuctionEngineID;references:EngineID"`
}
