package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gavel/auction"
)

const accessTokenCookie = "access_token"

// currentUser 從cookie解析並驗證存取令牌，失敗時直接回應401
func (s *Server) currentUser(c *gin.Context) (*JWT, uuid.UUID, bool) {
	tokenString, err := c.Cookie(accessTokenCookie)
	if err != nil || tokenString == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}
	token, err := ParseAndValidateJWT(tokenString, s.config.Auth.PrivateKey)
	if err != nil {
		slog.Error("Fail to parse and validate JWT", slog.Any("error", err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(token.Subject)
	if err != nil {
		slog.Error("Fail to parse JWT subject", slog.Any("error", err))
		c.AbortWithStatus(http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}
	return token, userID, true
}

// auctionIDParam 解析路徑上的拍賣ID，失敗時直接回應400
func auctionIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("auctionID"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid auction id"})
		return 0, false
	}
	return id, true
}

// engineErrorStatus 把引擎的sentinel錯誤轉成HTTP狀態碼
func engineErrorStatus(err error) int {
	switch {
	case errors.Is(err, auction.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrInvalidArgument),
		errors.Is(err, auction.ErrWrongKind),
		errors.Is(err, auction.ErrBidTooLow):
		return http.StatusBadRequest
	case errors.Is(err, auction.ErrSelfBid),
		errors.Is(err, auction.ErrNotSeller),
		errors.Is(err, auction.ErrDeadlineNotReached):
		return http.StatusForbidden
	case errors.Is(err, auction.ErrHasBids),
		errors.Is(err, auction.ErrNoCredit):
		return http.StatusConflict
	case errors.Is(err, auction.ErrNotActive),
		errors.Is(err, auction.ErrDeadlinePassed):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// respondEngineError 記錄並回應引擎錯誤
func respondEngineError(c *gin.Context, op string, err error) {
	status := engineErrorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Unexpected engine error", slog.String("op", op), slog.Any("error", err))
	}
	c.JSON(status, ErrorResponse{Message: err.Error()})
}

// auctionView 把引擎快照轉成對外呈現，currentPrice對荷蘭拍是即時價格
func (s *Server) auctionView(a auction.Auction) AuctionView {
	view := AuctionView{
		ID:            a.ID,
		Seller:        a.Seller,
		Kind:          a.Kind.String(),
		Title:         a.Title,
		Description:   a.Description,
		StartPrice:    a.StartPrice,
		ReservePrice:  a.ReservePrice,
		CurrentPrice:  a.CurrentPrice(time.Now()),
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Status:        a.Status.String(),
		HighestBid:    a.HighestBid,
		HighestBidder: a.HighestBidder,
		Sold:          a.Sold,
		FinalPrice:    a.FinalPrice,
		Winner:        a.Winner,
	}
	return view
}
