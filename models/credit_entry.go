package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 信用帳紀錄的種類
const (
	CreditReasonOutbid        = "outbid"
	CreditReasonReserveNotMet = "reserve_not_met"
	CreditReasonWithdrawal    = "withdrawal"
)

// CreditEntry 是pull-payment信用帳的異動紀錄。
// 退款入帳記正數，提領出帳記負數，帳戶餘額是所有紀錄的總和。
type CreditEntry struct {
	gorm.Model

	ID              uuid.UUID `gorm:"type:uuid;default:public.uuid_generate_v7();primaryKey;<-:false"`
	AccountID       uuid.UUID `gorm:"type:uuid;index;not null;<-:create"`
	AuctionEngineID uint64    `gorm:"not null;<-:create"`
	Amount          int64     `gorm:"not null;<-:create"`
	Reason          string    `gorm:"type:varchar(32);not null;<-:create"`
	OccurredAt      time.Time `gorm:"type:timestamp with time zone;not null;<-:create"`
	// SourceID 是產生這筆異動的stream條目ID，重送同一條訊息時靠它去重
	SourceID string `gorm:"type:varchar(64);uniqueIndex;not null;<-:create"`

	// 外鍵關聯
	Account User `gorm:"foreignKey:AccountID"`
}
