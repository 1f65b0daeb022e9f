package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateEnglishAuctionRequest struct {
	Title           string   `json:"title" binding:"required"`
	Description     string   `json:"description"`
	StartPrice      uint64   `json:"startPrice" binding:"required"`
	ReservePrice    uint64   `json:"reservePrice" binding:"required"`
	DurationSeconds int64    `json:"durationSeconds" binding:"required"`
	Carousels       []string `json:"carousels"`
}

type CreateDutchAuctionRequest struct {
	Title                    string   `json:"title" binding:"required"`
	Description              string   `json:"description"`
	StartPrice               uint64   `json:"startPrice" binding:"required"`
	ReservePrice             uint64   `json:"reservePrice"`
	PriceDecrement           uint64   `json:"priceDecrement" binding:"required"`
	DecrementIntervalSeconds int64    `json:"decrementIntervalSeconds" binding:"required"`
	DurationSeconds          int64    `json:"durationSeconds" binding:"required"`
	Carousels                []string `json:"carousels"`
}

type BidRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

type PurchaseRequest struct {
	// Amount 是買家願意支付的金額，超過目前價格的部分會以找零退回
	Amount uint64 `json:"amount" binding:"required"`
}

// BidRecordView 是單筆出價紀錄的對外呈現
type BidRecordView struct {
	Bidder   string    `json:"bidder"`
	Amount   uint64    `json:"amount"`
	PlacedAt time.Time `json:"placedAt"`
}

// AuctionView 是拍賣狀態的對外呈現，來源是引擎的快照
type AuctionView struct {
	ID            uint64     `json:"id"`
	Seller        uuid.UUID  `json:"seller"`
	Kind          string     `json:"kind"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	StartPrice    uint64     `json:"startPrice"`
	ReservePrice  uint64     `json:"reservePrice"`
	CurrentPrice  uint64     `json:"currentPrice"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       time.Time  `json:"endTime"`
	Status        string     `json:"status"`
	HighestBid    uint64     `json:"highestBid"`
	HighestBidder *uuid.UUID `json:"highestBidder,omitempty"`
	Sold          bool       `json:"sold"`
	FinalPrice    uint64     `json:"finalPrice"`
	Winner        *uuid.UUID `json:"winner,omitempty"`

	Carousels  []string        `json:"carousels,omitempty"`
	BidRecords []BidRecordView `json:"bidRecords,omitempty"`
}

// PurchaseView 是荷蘭式購買的結算結果
type PurchaseView struct {
	Auction        AuctionView `json:"auction"`
	Price          uint64      `json:"price"`
	Change         uint64      `json:"change"`
	Fee            uint64      `json:"fee"`
	SellerProceeds uint64      `json:"sellerProceeds"`
}

type PriceView struct {
	AuctionID uint64    `json:"auctionId"`
	Price     uint64    `json:"price"`
	At        time.Time `json:"at"`
}

type CreditView struct {
	AuctionID uint64 `json:"auctionId"`
	Amount    uint64 `json:"amount"`
}

type WithdrawalView struct {
	AuctionID uint64 `json:"auctionId"`
	Amount    uint64 `json:"amount"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
