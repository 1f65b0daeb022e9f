package auction

import (
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFeePercent 是平台抽成的預設百分比
const DefaultFeePercent = 5

type options struct {
	clock      Clock
	feePercent uint64
	sink       Sink
}

type Option func(*options)

// WithClock 注入時間來源
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithFeePercent 設定平台抽成百分比
func WithFeePercent(percent uint64) Option {
	return func(o *options) {
		o.feePercent = percent
	}
}

// WithSink 設定事件接收器
func WithSink(sink Sink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// Accounting 記錄單場拍賣的資金守恆狀態
// 不變式: Received == Escrowed + Credits + Withdrawn + Disbursed，
// 引擎從不憑空創造價值，每筆支出都對應某個帳目的等額減少
type Accounting struct {
	// Received 曾經付進這場拍賣的總金額(荷蘭式購買的找零當場退還，不計入)
	Received uint64
	// Escrowed 目前託管中的最高出價
	Escrowed uint64
	// Credits 退款帳本中尚未提領的餘額總和
	Credits uint64
	// Withdrawn 已經透過提領付出去的總金額
	Withdrawn uint64
	// Disbursed 結算時付給賣家與平台的總金額
	Disbursed uint64
}

// House 是拍賣引擎：登錄處、競價規則與結算的單一序列化點
// 所有狀態轉移都在同一把鎖下逐一執行，每個操作要嘛完整生效、要嘛完全不動，
// 中途沒有任何暫停點，兩個競爭操作之間的順序由取得鎖的先後完全決定
type House struct {
	mu         sync.Mutex
	clock      Clock
	feePercent uint64
	sink       Sink

	// 拍賣紀錄的 arena，編號為索引加一，只增不刪，
	// 結束或取消的拍賣永遠保持可查詢
	auctions    []*Auction
	sellerIndex map[uuid.UUID][]uint64

	// 退款帳本: 拍賣編號 -> 帳號 -> 可提領餘額
	// 被擠下去的出價永遠不會直接推送給對方，只能由對方主動提領
	credits map[uint64]map[uuid.UUID]uint64
	books   map[uint64]*Accounting
}

// NewHouse 建立拍賣引擎
func NewHouse(opts ...Option) *House {
	o := options{
		clock:      SystemClock,
		feePercent: DefaultFeePercent,
	}
	for _, opt := range opts {
		opt(&o)
	}
	// 抽成超過100%沒有意義，同時也是fee的128位元除法的前提
	if o.feePercent > 100 {
		o.feePercent = 100
	}
	return &House{
		clock:       o.clock,
		feePercent:  o.feePercent,
		sink:        o.sink,
		sellerIndex: make(map[uuid.UUID][]uint64),
		credits:     make(map[uint64]map[uuid.UUID]uint64),
		books:       make(map[uint64]*Accounting),
	}
}

// CreateEnglish 建立英式拍賣
// 限制: startPrice > 0、reservePrice >= startPrice、duration > 0
func (h *House) CreateEnglish(seller uuid.UUID, title, description string, startPrice, reservePrice uint64, duration time.Duration) (Auction, error) {
	if startPrice == 0 {
		return Auction{}, fmt.Errorf("%w: start price must be positive", ErrInvalidArgument)
	}
	if reservePrice < startPrice {
		return Auction{}, fmt.Errorf("%w: reserve price must not be below start price", ErrInvalidArgument)
	}
	if duration <= 0 {
		return Auction{}, fmt.Errorf("%w: duration must be positive", ErrInvalidArgument)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock()
	a := &Auction{
		Seller:       seller,
		Kind:         KindEnglish,
		Title:        title,
		Description:  description,
		StartPrice:   startPrice,
		ReservePrice: reservePrice,
		StartTime:    now,
		EndTime:      now.Add(duration),
		Status:       StatusActive,
	}
	h.register(a)
	h.emit(Event{
		Type:      EventAuctionCreated,
		AuctionID: a.ID,
		Actor:     seller,
		Amount:    startPrice,
		Kind:      KindEnglish,
		At:        now,
	})
	return a.snapshot(), nil
}

// CreateDutch 建立荷蘭式拍賣
// 限制: startPrice > reservePrice、priceDecrement > 0、decrementInterval > 0、duration > 0
func (h *House) CreateDutch(seller uuid.UUID, title, description string, startPrice, reservePrice, priceDecrement uint64, decrementInterval, duration time.Duration) (Auction, error) {
	if startPrice <= reservePrice {
		return Auction{}, fmt.Errorf("%w: start price must exceed reserve price", ErrInvalidArgument)
	}
	if priceDecrement == 0 {
		return Auction{}, fmt.Errorf("%w: price decrement must be positive", ErrInvalidArgument)
	}
	if decrementInterval <= 0 {
		return Auction{}, fmt.Errorf("%w: decrement interval must be positive", ErrInvalidArgument)
	}
	if duration <= 0 {
		return Auction{}, fmt.Errorf("%w: duration must be positive", ErrInvalidArgument)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock()
	a := &Auction{
		Seller:            seller,
		Kind:              KindDutch,
		Title:             title,
		Description:       description,
		StartPrice:        startPrice,
		ReservePrice:      reservePrice,
		PriceDecrement:    priceDecrement,
		DecrementInterval: decrementInterval,
		StartTime:         now,
		EndTime:           now.Add(duration),
		Status:            StatusActive,
	}
	h.register(a)
	h.emit(Event{
		Type:      EventAuctionCreated,
		AuctionID: a.ID,
		Actor:     seller,
		Amount:    startPrice,
		Kind:      KindDutch,
		At:        now,
	})
	return a.snapshot(), nil
}

// BidEnglish 對英式拍賣出價，amount 是這次請求附帶的全部金額
// 第一筆出價只要達到起標價即可，之後的出價必須嚴格高於目前最高出價
// 成功時前一位最高出價者的金額會移入退款帳本，由對方自行提領
func (h *House) BidEnglish(auctionID uint64, bidder uuid.UUID, amount uint64) (Auction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, err := h.lookup(auctionID)
	if err != nil {
		return Auction{}, err
	}
	if a.Kind != KindEnglish {
		return Auction{}, ErrWrongKind
	}
	if a.Status != StatusActive {
		return Auction{}, ErrNotActive
	}
	now := h.clock()
	if now.After(a.EndTime) {
		return Auction{}, ErrDeadlinePassed
	}
	if bidder == a.Seller {
		return Auction{}, ErrSelfBid
	}
	if amount < a.StartPrice {
		return Auction{}, ErrBidTooLow
	}
	if a.hasBids() && amount <= a.HighestBid {
		return Auction{}, ErrBidTooLow
	}

	book := h.books[auctionID]
	book.Received += amount

	ev := Event{
		Type:      EventBidPlaced,
		AuctionID: auctionID,
		Actor:     bidder,
		Amount:    amount,
		Kind:      KindEnglish,
		At:        now,
	}
	if a.hasBids() {
		// 前一位最高出價者的託管金額轉入退款帳本
		previous := *a.HighestBidder
		h.credit(auctionID, previous, a.HighestBid)
		book.Escrowed -= a.HighestBid
		book.Credits += a.HighestBid
		ev.RefundedAccount = &previous
		ev.RefundedAmount = a.HighestBid
	}
	book.Escrowed += amount
	a.HighestBid = amount
	a.HighestBidder = &bidder

	h.emit(ev)
	return a.snapshot(), nil
}

// Purchase 是荷蘭式購買的結果
type Purchase struct {
	Auction Auction
	// Price 是成交當下計算出的價格
	Price uint64
	// Change 是超付的部分，當場退還給買家
	Change uint64
	// Fee 與 SellerProceeds 合計必定等於 Price
	Fee            uint64
	SellerProceeds uint64
}

// BuyDutch 以目前計算出的價格買下荷蘭式拍賣
// 單一操作內直接完成成交與結算：手續費給平台、餘額給賣家，拍賣轉為 Ended
// 這條路徑是一次性且同步的，所以不需要經過退款帳本
func (h *House) BuyDutch(auctionID uint64, buyer uuid.UUID, amount uint64) (Purchase, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, err := h.lookup(auctionID)
	if err != nil {
		return Purchase{}, err
	}
	if a.Kind != KindDutch {
		return Purchase{}, ErrWrongKind
	}
	if a.Status != StatusActive {
		return Purchase{}, ErrNotActive
	}
	now := h.clock()
	if now.After(a.EndTime) {
		return Purchase{}, ErrDeadlinePassed
	}
	if buyer == a.Seller {
		return Purchase{}, ErrSelfBid
	}
	price := a.dutchPrice(now)
	if amount < price {
		return Purchase{}, ErrBidTooLow
	}

	// 手續費取整數除法的商，餘數歸賣家，兩者合計剛好等於成交價
	fee := h.fee(price)
	proceeds := price - fee

	book := h.books[auctionID]
	book.Received += price
	book.Disbursed += price

	a.Status = StatusEnded
	a.Sold = true
	a.FinalPrice = price
	winner := buyer
	a.Winner = &winner

	h.emit(Event{
		Type:           EventAuctionEnded,
		AuctionID:      auctionID,
		Actor:          buyer,
		Amount:         price,
		Kind:           KindDutch,
		At:             now,
		Sold:           true,
		Fee:            fee,
		SellerProceeds: proceeds,
	})
	return Purchase{
		Auction:        a.snapshot(),
		Price:          price,
		Change:         amount - price,
		Fee:            fee,
		SellerProceeds: proceeds,
	}, nil
}

// EndEnglish 在截止時間過後結束英式拍賣
// 最高出價達到保留價時結算撥款；沒達到時流標，最高出價轉入退款帳本
// 任何人都可以呼叫，截止時間由引擎把關
func (h *House) EndEnglish(auctionID uint64) (Auction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, err := h.lookup(auctionID)
	if err != nil {
		return Auction{}, err
	}
	if a.Kind != KindEnglish {
		return Auction{}, ErrWrongKind
	}
	if a.Status != StatusActive {
		return Auction{}, ErrNotActive
	}
	now := h.clock()
	if now.Before(a.EndTime) {
		return Auction{}, ErrDeadlineNotReached
	}

	book := h.books[auctionID]
	ev := Event{
		Type:      EventAuctionEnded,
		AuctionID: auctionID,
		Actor:     a.Seller,
		Kind:      KindEnglish,
		At:        now,
	}
	switch {
	case a.hasBids() && a.HighestBid >= a.ReservePrice:
		fee := h.fee(a.HighestBid)
		proceeds := a.HighestBid - fee
		book.Escrowed -= a.HighestBid
		book.Disbursed += a.HighestBid
		a.Sold = true
		a.FinalPrice = a.HighestBid
		winner := *a.HighestBidder
		a.Winner = &winner
		ev.Amount = a.HighestBid
		ev.Sold = true
		ev.Fee = fee
		ev.SellerProceeds = proceeds
	case a.hasBids():
		// 流標: 最高出價沒達到保留價，金額轉入出價者的退款帳本
		bidder := *a.HighestBidder
		h.credit(auctionID, bidder, a.HighestBid)
		book.Credits += a.HighestBid
		book.Escrowed -= a.HighestBid
		ev.RefundedAccount = &bidder
		ev.RefundedAmount = a.HighestBid
	}
	a.Status = StatusEnded

	h.emit(ev)
	return a.snapshot(), nil
}

// Cancel 取消拍賣，只有賣家可以呼叫，而且只能在還沒有任何出價之前
func (h *House) Cancel(auctionID uint64, caller uuid.UUID) (Auction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, err := h.lookup(auctionID)
	if err != nil {
		return Auction{}, err
	}
	if a.Status != StatusActive {
		return Auction{}, ErrNotActive
	}
	if caller != a.Seller {
		return Auction{}, ErrNotSeller
	}
	if a.hasBids() {
		return Auction{}, ErrHasBids
	}

	a.Status = StatusCancelled
	h.emit(Event{
		Type:      EventAuctionCancelled,
		AuctionID: auctionID,
		Actor:     caller,
		Kind:      a.Kind,
		At:        h.clock(),
	})
	return a.snapshot(), nil
}

// Withdraw 提領呼叫者在該拍賣的全部可提領餘額並歸零
// 餘額為零時回傳 ErrNoCredit，不改變任何狀態，重複提領不會重複付款
func (h *House) Withdraw(auctionID uint64, caller uuid.UUID) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.lookup(auctionID); err != nil {
		return 0, err
	}
	amount := h.credits[auctionID][caller]
	if amount == 0 {
		return 0, ErrNoCredit
	}
	delete(h.credits[auctionID], caller)

	book := h.books[auctionID]
	book.Credits -= amount
	book.Withdrawn += amount

	h.emit(Event{
		Type:      EventBidWithdrawn,
		AuctionID: auctionID,
		Actor:     caller,
		Amount:    amount,
		At:        h.clock(),
	})
	return amount, nil
}

// Get 回傳拍賣狀態的複本
func (h *House) Get(auctionID uint64) (Auction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, err := h.lookup(auctionID)
	if err != nil {
		return Auction{}, err
	}
	return a.snapshot(), nil
}

// DutchPrice 回傳荷蘭式拍賣目前計算出的價格
func (h *House) DutchPrice(auctionID uint64) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, err := h.lookup(auctionID)
	if err != nil {
		return 0, err
	}
	if a.Kind != KindDutch {
		return 0, ErrWrongKind
	}
	return a.CurrentPrice(h.clock()), nil
}

// SellerAuctions 回傳某個賣家建立過的所有拍賣編號，依建立順序排列
func (h *House) SellerAuctions(seller uuid.UUID) []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := h.sellerIndex[seller]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// Withdrawable 回傳某個帳號在該拍賣的可提領餘額
func (h *House) Withdrawable(auctionID uint64, account uuid.UUID) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.lookup(auctionID); err != nil {
		return 0, err
	}
	return h.credits[auctionID][account], nil
}

// IsActive 回傳拍賣是否仍在進行中(狀態為 Active 且截止時間未過)
func (h *House) IsActive(auctionID uint64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, err := h.lookup(auctionID)
	if err != nil {
		return false, err
	}
	return a.Status == StatusActive && !h.clock().After(a.EndTime), nil
}

// Book 回傳該拍賣的資金守恆帳目複本
func (h *House) Book(auctionID uint64) (Accounting, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.lookup(auctionID); err != nil {
		return Accounting{}, err
	}
	return *h.books[auctionID], nil
}

// register 配置編號並將拍賣加入 arena 與賣家索引，呼叫時必須持有鎖
func (h *House) register(a *Auction) {
	a.ID = uint64(len(h.auctions)) + 1
	h.auctions = append(h.auctions, a)
	h.sellerIndex[a.Seller] = append(h.sellerIndex[a.Seller], a.ID)
	h.books[a.ID] = &Accounting{}
}

// lookup 以編號取得拍賣，呼叫時必須持有鎖
func (h *House) lookup(auctionID uint64) (*Auction, error) {
	if auctionID == 0 || auctionID > uint64(len(h.auctions)) {
		return nil, ErrNotFound
	}
	return h.auctions[auctionID-1], nil
}

// credit 將金額累加進退款帳本，呼叫時必須持有鎖
func (h *House) credit(auctionID uint64, account uuid.UUID, amount uint64) {
	entries, ok := h.credits[auctionID]
	if !ok {
		entries = make(map[uuid.UUID]uint64)
		h.credits[auctionID] = entries
	}
	entries[account] += amount
}

// fee 計算平台抽成，經過128位元中間值，大金額相乘也不會溢位
func (h *House) fee(price uint64) uint64 {
	hi, lo := bits.Mul64(price, h.feePercent)
	quo, _ := bits.Div64(hi, lo, 100)
	return quo
}

func (h *House) emit(ev Event) {
	if h.sink != nil {
		h.sink(ev)
	}
}
