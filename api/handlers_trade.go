package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PlaceBid 對英式拍賣出價
// (POST /api/auction/:auctionID/bids)
func (s *Server) PlaceBid(c *gin.Context) {
	const op = "PlaceBid"
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	var req BidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}
	a, err := s.house.BidEnglish(auctionID, userID, req.Amount)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, s.auctionView(a))
}

// PurchaseDutch 以目前價格買下荷蘭式拍賣，超付的部分以找零回傳
// (POST /api/auction/:auctionID/purchase)
func (s *Server) PurchaseDutch(c *gin.Context) {
	const op = "PurchaseDutch"
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}
	purchase, err := s.house.BuyDutch(auctionID, userID, req.Amount)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, PurchaseView{
		Auction:        s.auctionView(purchase.Auction),
		Price:          purchase.Price,
		Change:         purchase.Change,
		Fee:            purchase.Fee,
		SellerProceeds: purchase.SellerProceeds,
	})
}

// EndAuction 結算截止時間已過的英式拍賣。
// 任何人都可以觸發結算，結果只由拍賣狀態決定，不需要登入
// (POST /api/auction/:auctionID/end)
func (s *Server) EndAuction(c *gin.Context) {
	const op = "EndAuction"
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	a, err := s.house.EndEnglish(auctionID)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, s.auctionView(a))
}

// CancelAuction 取消還沒有出價的拍賣，只有賣家可以呼叫
// (POST /api/auction/:auctionID/cancel)
func (s *Server) CancelAuction(c *gin.Context) {
	const op = "CancelAuction"
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	a, err := s.house.Cancel(auctionID, userID)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, s.auctionView(a))
}

// GetCredit 查詢目前使用者在該拍賣可提領的餘額
// (GET /api/auction/:auctionID/credit)
func (s *Server) GetCredit(c *gin.Context) {
	const op = "GetCredit"
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	amount, err := s.house.Withdrawable(auctionID, userID)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, CreditView{
		AuctionID: auctionID,
		Amount:    amount,
	})
}

// WithdrawCredit 提領該拍賣的全部可提領餘額
// (POST /api/auction/:auctionID/withdrawals)
func (s *Server) WithdrawCredit(c *gin.Context) {
	const op = "WithdrawCredit"
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	amount, err := s.house.Withdraw(auctionID, userID)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, WithdrawalView{
		AuctionID: auctionID,
		Amount:    amount,
	})
}
