package auction

import "errors"

// 所有失敗都是同步拒絕整個操作：前置條件檢查沒通過時不會留下任何部分狀態
var (
	// ErrNotFound 拍賣編號不存在
	ErrNotFound = errors.New("auction not found")
	// ErrInvalidArgument 建立拍賣時的數值參數不合法
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrWrongKind 對錯誤類型的拍賣呼叫操作(例如對荷蘭式拍賣出價)
	ErrWrongKind = errors.New("wrong auction kind")
	// ErrNotActive 拍賣已經結束或取消
	ErrNotActive = errors.New("auction is not active")
	// ErrDeadlinePassed 拍賣截止時間已過，不再接受出價或購買
	ErrDeadlinePassed = errors.New("auction deadline has passed")
	// ErrDeadlineNotReached 拍賣截止時間未到，還不能結算
	ErrDeadlineNotReached = errors.New("auction deadline has not been reached")
	// ErrSelfBid 賣家不能對自己的拍賣出價或購買
	ErrSelfBid = errors.New("seller cannot bid on own auction")
	// ErrBidTooLow 出價或購買金額低於目前要求的價格
	ErrBidTooLow = errors.New("bid is too low")
	// ErrNotSeller 只有賣家可以取消拍賣
	ErrNotSeller = errors.New("caller is not the seller")
	// ErrHasBids 拍賣已經有出價，不能再取消
	ErrHasBids = errors.New("auction already has bids")
	// ErrNoCredit 呼叫者在該拍賣沒有可提領的餘額
	ErrNoCredit = errors.New("no withdrawable credit")
)
