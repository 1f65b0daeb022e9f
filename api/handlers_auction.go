package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gavel/auction"
	"gavel/models"
)

// CreateEnglishAuction 建立英式拍賣
// (POST /api/auction/english)
func (s *Server) CreateEnglishAuction(c *gin.Context) {
	const op = "CreateEnglishAuction"
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	var req CreateEnglishAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}
	// 描述欄位允許部分HTML，先過濾掉危險內容
	description := s.htmlChecker.Sanitize(req.Description)

	a, err := s.house.CreateEnglish(
		userID,
		req.Title,
		description,
		req.StartPrice,
		req.ReservePrice,
		time.Duration(req.DurationSeconds)*time.Second,
	)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	s.archiveCreatedAuction(op, a, req.Carousels)
	slog.Info("Auction created",
		slog.String("kind", a.Kind.String()),
		slog.Uint64("auctionID", a.ID),
		slog.String("seller", userID.String()))

	c.Header("Location", "/api/auction/"+strconv.FormatUint(a.ID, 10))
	c.JSON(http.StatusCreated, s.auctionView(a))
}

// CreateDutchAuction 建立荷蘭式拍賣
// (POST /api/auction/dutch)
func (s *Server) CreateDutchAuction(c *gin.Context) {
	const op = "CreateDutchAuction"
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	var req CreateDutchAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}
	description := s.htmlChecker.Sanitize(req.Description)

	a, err := s.house.CreateDutch(
		userID,
		req.Title,
		description,
		req.StartPrice,
		req.ReservePrice,
		req.PriceDecrement,
		time.Duration(req.DecrementIntervalSeconds)*time.Second,
		time.Duration(req.DurationSeconds)*time.Second,
	)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	s.archiveCreatedAuction(op, a, req.Carousels)
	slog.Info("Auction created",
		slog.String("kind", a.Kind.String()),
		slog.Uint64("auctionID", a.ID),
		slog.String("seller", userID.String()))

	c.Header("Location", "/api/auction/"+strconv.FormatUint(a.ID, 10))
	c.JSON(http.StatusCreated, s.auctionView(a))
}

// archiveCreatedAuction 同步寫入拍賣的存檔列。
// 事件工作者也會寫同一列(OnConflict保護)，這裡先寫是為了補上
// 引擎不保存的carousels欄位
func (s *Server) archiveCreatedAuction(op string, a auction.Auction, carousels []string) {
	if carousels == nil {
		carousels = []string{}
	}
	record := models.Auction{
		EngineID:          a.ID,
		SellerID:          a.Seller,
		Kind:              a.Kind.String(),
		Title:             a.Title,
		Description:       a.Description,
		StartPrice:        a.StartPrice,
		ReservePrice:      a.ReservePrice,
		PriceDecrement:    a.PriceDecrement,
		DecrementInterval: int64(a.DecrementInterval / time.Second),
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		Status:            a.Status.String(),
		Carousels:         carousels,
	}
	if result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "engine_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"carousels"}),
	}).Create(&record); result.Error != nil {
		// 存檔失敗不影響拍賣本身，事件工作者之後還會再寫一次
		slog.Error("Fail to archive created auction",
			slog.String("op", op),
			slog.Uint64("auctionID", a.ID),
			slog.Any("error", result.Error))
	}
}

// GetAuction 取得拍賣狀態與出價紀錄
// (GET /api/auction/:auctionID)
func (s *Server) GetAuction(c *gin.Context) {
	const op = "GetAuction"
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	a, err := s.house.Get(auctionID)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	view := s.auctionView(a)

	// 出價紀錄與carousels在存檔中，查不到也不影響引擎狀態的回應
	var record models.Auction
	result := s.db.
		Preload("BidRecords", func(db *gorm.DB) *gorm.DB {
			return db.Order(clause.OrderByColumn{Column: clause.Column{Name: "placed_at"}, Desc: true})
		}).
		Preload("BidRecords.Bidder").
		Where("engine_id = ?", auctionID).
		First(&record)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		slog.Error("Fail to load auction archive", slog.String("op", op), slog.Any("error", result.Error))
	}
	if result.Error == nil {
		view.Carousels = record.Carousels
		view.BidRecords = lo.Map(record.BidRecords, func(bid models.Bid, _ int) BidRecordView {
			return BidRecordView{
				Bidder:   bid.Bidder.Username,
				Amount:   bid.Amount,
				PlacedAt: bid.PlacedAt,
			}
		})
	}

	c.JSON(http.StatusOK, view)
}

// GetDutchPrice 取得荷蘭式拍賣此刻的價格
// (GET /api/auction/:auctionID/price)
func (s *Server) GetDutchPrice(c *gin.Context) {
	const op = "GetDutchPrice"
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	price, err := s.house.DutchPrice(auctionID)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, PriceView{
		AuctionID: auctionID,
		Price:     price,
		At:        time.Now(),
	})
}

// GetAuctionActive 回傳拍賣是否仍在進行中
// (GET /api/auction/:auctionID/active)
func (s *Server) GetAuctionActive(c *gin.Context) {
	const op = "GetAuctionActive"
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	active, err := s.house.IsActive(auctionID)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": active})
}

// ListAuctions 以keyset分頁列出拍賣存檔
// (GET /api/auctions)
func (s *Server) ListAuctions(c *gin.Context) {
	const op = "ListAuctions"
	query := s.db.Model(&models.Auction{})

	if title := c.Query("title"); title != "" {
		query = query.Where("title LIKE ?", "%"+title+"%")
	}
	if kind := c.Query("kind"); kind != "" {
		if kind != auction.KindEnglish.String() && kind != auction.KindDutch.String() {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid kind"})
			return
		}
		query = query.Where("kind = ?", kind)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if c.Query("excludeEnded") == "true" {
		query = query.Where("status = ?", auction.StatusActive.String())
	}
	if raw := c.Query("minPrice"); raw != "" {
		minPrice, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid minPrice"})
			return
		}
		query = query.Where("start_price >= ?", minPrice)
	}
	if raw := c.Query("maxPrice"); raw != "" {
		maxPrice, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid maxPrice"})
			return
		}
		query = query.Where("start_price <= ?", maxPrice)
	}
	if raw := c.Query("startAfter"); raw != "" {
		startAfter, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid startAfter"})
			return
		}
		query = query.Where("start_time >= ?", startAfter)
	}
	if raw := c.Query("endBefore"); raw != "" {
		endBefore, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid endBefore"})
			return
		}
		query = query.Where("end_time <= ?", endBefore)
	}

	// 排序鍵加上engine_id作為tiebreaker，確保分頁游標的順序穩定
	sortKey := "engine_id"
	switch c.Query("sort") {
	case "", "id":
	case "title":
		sortKey = "title"
	case "startTime":
		sortKey = "start_time"
	case "endTime":
		sortKey = "end_time"
	case "startPrice":
		sortKey = "start_price"
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid sort key"})
		return
	}
	desc := c.Query("order") == "desc"
	query = query.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: sortKey}, Desc: desc},
		{Column: clause.Column{Name: "engine_id"}, Desc: false},
	}})

	// 游標: 以上一頁最後一筆的排序值接續查詢
	if last := c.Query("lastAuctionID"); last != "" {
		lastID, err := strconv.ParseUint(last, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid cursor"})
			return
		}
		var lastRecord models.Auction
		if result := s.db.Where("engine_id = ?", lastID).First(&lastRecord); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Last auction not found"})
				return
			}
			slog.Error("Fail to resolve cursor", slog.String("op", op), slog.Any("error", result.Error))
			c.Status(http.StatusInternalServerError)
			return
		}
		var cursor any
		switch sortKey {
		case "engine_id":
			cursor = lastRecord.EngineID
		case "title":
			cursor = lastRecord.Title
		case "start_time":
			cursor = lastRecord.StartTime
		case "end_time":
			cursor = lastRecord.EndTime
		case "start_price":
			cursor = lastRecord.StartPrice
		}
		comparison := " > ?"
		if desc {
			comparison = " < ?"
		}
		query = query.Where(
			s.db.Where(sortKey+comparison, cursor).
				Or(sortKey+" = ? AND engine_id > ?", cursor, lastID),
		)
	}

	size := 20
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid page size"})
			return
		}
		size = parsed
	}
	query = query.Limit(size)

	var records []models.Auction
	if result := query.Find(&records); result.Error != nil {
		slog.Error("Fail to list auctions", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}

	items := make([]AuctionView, 0, len(records))
	for _, record := range records {
		// 進行中的拍賣以引擎為準，結束的直接用存檔
		if a, err := s.house.Get(record.EngineID); err == nil {
			view := s.auctionView(a)
			view.Carousels = record.Carousels
			items = append(items, view)
			continue
		}
		items = append(items, AuctionView{
			ID:           record.EngineID,
			Seller:       record.SellerID,
			Kind:         record.Kind,
			Title:        record.Title,
			Description:  record.Description,
			StartPrice:   record.StartPrice,
			ReservePrice: record.ReservePrice,
			CurrentPrice: record.FinalPrice,
			StartTime:    record.StartTime,
			EndTime:      record.EndTime,
			Status:       record.Status,
			Sold:         record.Sold,
			FinalPrice:   record.FinalPrice,
			Winner:       record.WinnerID,
			Carousels:    record.Carousels,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(items),
		"items": items,
	})
}

// ListUserAuctions 列出目前使用者作為賣家的所有拍賣
// (GET /api/user/auctions)
func (s *Server) ListUserAuctions(c *gin.Context) {
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	ids := s.house.SellerAuctions(userID)
	items := make([]AuctionView, 0, len(ids))
	for _, id := range ids {
		a, err := s.house.Get(id)
		if err != nil {
			continue
		}
		items = append(items, s.auctionView(a))
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(items),
		"items": items,
	})
}
