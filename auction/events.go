package auction

import (
	"time"

	"github.com/google/uuid"
)

// EventType 代表拍賣狀態轉移事件的類型
type EventType string

const (
	EventAuctionCreated   EventType = "AuctionCreated"
	EventBidPlaced        EventType = "BidPlaced"
	EventAuctionEnded     EventType = "AuctionEnded"
	EventAuctionCancelled EventType = "AuctionCancelled"
	EventBidWithdrawn     EventType = "BidWithdrawn"
)

// Event 是引擎在每次成功的狀態轉移之後發出的通知
// 事件只用於對外廣播(SSE)與入庫存檔，引擎本身不會消費事件
type Event struct {
	Type      EventType `msgpack:"type" json:"type"`
	AuctionID uint64    `msgpack:"auctionId" json:"auctionId"`
	// Actor 是觸發這次轉移的帳號：建立/取消時是賣家，出價/購買/提領時是出價者
	Actor uuid.UUID `msgpack:"actor" json:"actor"`
	// Amount 的意義依事件類型而定：出價金額、成交價或提領金額
	Amount uint64    `msgpack:"amount" json:"amount"`
	Kind   Kind      `msgpack:"kind" json:"kind"`
	At     time.Time `msgpack:"at" json:"at"`

	// 出價事件: 被擠下去的前一位最高出價者與其轉入退款帳本的金額
	RefundedAccount *uuid.UUID `msgpack:"refundedAccount,omitempty" json:"refundedAccount,omitempty"`
	RefundedAmount  uint64     `msgpack:"refundedAmount" json:"refundedAmount"`

	// 結束事件: 結算結果
	Sold           bool   `msgpack:"sold" json:"sold"`
	Fee            uint64 `msgpack:"fee" json:"fee"`
	SellerProceeds uint64 `msgpack:"sellerProceeds" json:"sellerProceeds"`
}

// Sink 接收引擎發出的事件，會在引擎的序列化鎖內被呼叫，
// 因此實作必須快速返回(例如丟進有緩衝的發布佇列)
type Sink func(Event)
