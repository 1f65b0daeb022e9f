package auction

import (
	"time"

	"github.com/google/uuid"
)

// Kind 代表拍賣的類型
type Kind uint8

const (
	// KindEnglish 英式拍賣：價格由低往高競價，截止時間到達後由最高出價者得標
	KindEnglish Kind = iota
	// KindDutch 荷蘭式拍賣：價格由高往低隨時間遞減，第一位接受價格者直接成交
	KindDutch
)

func (k Kind) String() string {
	switch k {
	case KindEnglish:
		return "english"
	case KindDutch:
		return "dutch"
	}
	return "unknown"
}

// Status 代表拍賣的狀態
// 狀態轉移是單向的：Active -> Ended 或 Active -> Cancelled，
// 一旦離開 Active 之後拍賣紀錄即成為唯讀
type Status uint8

const (
	StatusActive Status = iota
	StatusEnded
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Auction 代表一場拍賣的完整狀態
// 除了 Status、HighestBid、HighestBidder 和結算欄位以外，所有欄位在建立後都不會改變
type Auction struct {
	ID          uint64
	Seller      uuid.UUID
	Kind        Kind
	Title       string
	Description string

	// 價格設定，單位為最小貨幣單位
	// 英式拍賣: ReservePrice >= StartPrice；荷蘭式拍賣: ReservePrice < StartPrice
	StartPrice   uint64
	ReservePrice uint64

	// 荷蘭式拍賣的降價設定
	PriceDecrement    uint64
	DecrementInterval time.Duration

	StartTime time.Time
	EndTime   time.Time
	Status    Status

	// 英式拍賣的目前最高出價，拍賣進行中單調遞增
	HighestBid    uint64
	HighestBidder *uuid.UUID

	// 結算結果，只在 Status == StatusEnded 後有意義
	Sold       bool
	FinalPrice uint64
	Winner     *uuid.UUID
}

// CurrentPrice 回傳拍賣在 at 時間點的實際價格
// 英式拍賣為目前最高出價(尚無人出價時為起標價)；荷蘭式拍賣為隨時間遞減後的價格
func (a *Auction) CurrentPrice(at time.Time) uint64 {
	if a.Kind == KindEnglish {
		if a.HighestBidder == nil {
			return a.StartPrice
		}
		return a.HighestBid
	}
	if a.Status == StatusEnded && a.Sold {
		return a.FinalPrice
	}
	return a.dutchPrice(at)
}

// dutchPrice 以經過時間推算荷蘭式拍賣的價格，是純函數，不讀取牆上時鐘
// 公式: max(ReservePrice, StartPrice - floor(elapsed/interval) * PriceDecrement)
func (a *Auction) dutchPrice(at time.Time) uint64 {
	elapsed := at.Sub(a.StartTime)
	if elapsed < 0 {
		return a.StartPrice
	}
	steps := uint64(elapsed / a.DecrementInterval)
	// steps超過降到底價所需的次數之後就鎖在底價，順便避免相乘溢位
	span := a.StartPrice - a.ReservePrice
	if steps > span/a.PriceDecrement {
		return a.ReservePrice
	}
	drop := steps * a.PriceDecrement
	if drop >= span {
		return a.ReservePrice
	}
	return a.StartPrice - drop
}

// hasBids 回傳拍賣是否曾經有過有效出價
func (a *Auction) hasBids() bool {
	return a.HighestBidder != nil
}

// snapshot 回傳拍賣狀態的複本，避免呼叫端持有內部指標
func (a *Auction) snapshot() Auction {
	cp := *a
	if a.HighestBidder != nil {
		bidder := *a.HighestBidder
		cp.HighestBidder = &bidder
	}
	if a.Winner != nil {
		winner := *a.Winner
		cp.Winner = &winner
	}
	return cp
}
