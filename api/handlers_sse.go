package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// StreamAuctionEvents 以SSE串流單一拍賣的事件
// (GET /api/auction/:auctionID/events)
func (s *Server) StreamAuctionEvents(c *gin.Context) {
	const op = "StreamAuctionEvents"
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	a, err := s.house.Get(auctionID)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
	if time.Now().After(a.EndTime) {
		c.JSON(http.StatusGone, ErrorResponse{Message: "Auction has ended"})
		return
	}
	// SSE請求合法，開始初始化串流
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Transfer-Encoding", "chunked")
	channelName := strconv.FormatUint(auctionID, 10)
	ch, err := s.hub.Subscribe(channelName)
	if err != nil {
		respondEngineError(c, op, err)
		return
	}
LOOP:
	for {
		select {
		case <-w.CloseNotify():
			s.hub.Unsubscribe(channelName, ch)
			break LOOP
		case event := <-ch:
			c.SSEvent(string(event.Type), event)
			w.Flush()
		// 30秒沒有事件就發送一個空行，確保瀏覽器和Cloudflare不會斷開連線
		case <-time.After(30 * time.Second):
			w.WriteString("\n\n")
			w.Flush()
		}
	}
}
