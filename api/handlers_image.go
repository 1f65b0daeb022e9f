package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	internalS3 "gavel/adapters/s3"
	"gavel/models"
)

// UploadImage 上傳拍賣品圖片
// (POST /api/image)
func (s *Server) UploadImage(c *gin.Context) {
	const op = "UploadImage"
	_, userID, ok := s.currentUser(c)
	if !ok {
		return
	}
	// 檢查是否達到上傳限制
	var uploadedCount int64
	if result := s.db.Model(&models.Image{}).Where("uploader_id = ? AND created_at > ?", userID, time.Now().Add(-1*time.Hour)).Count(&uploadedCount); result.Error != nil {
		slog.Error("Fail to count uploaded images", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}
	if s.config.S3.RateLimitPerHour > 0 && uploadedCount >= s.config.S3.RateLimitPerHour {
		c.Status(http.StatusTooManyRequests)
		return
	}
	// 限制圖片
	// 	1. 小於5MB
	// 	2. MIME類型為不包含腳本的圖片檔案
	body := internalS3.NewMaxSizeReader(c.Request.Body, 5<<20)
	file, err := io.ReadAll(body)
	if errors.As(err, &internalS3.ErrReachLimitType) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
		return
	}
	if err != nil {
		slog.Error("Fail to read image", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	mimeType := http.DetectContentType(file)
	secure, ext := internalS3.CheckSecureImageAndGetExtension(mimeType)
	if !secure {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: fmt.Sprintf("Invalid image type: %s", mimeType)})
		return
	}
	// 透過S3 API儲存圖片
	url, err := s.imageStore.Upload(c.Request.Context(), uuid.New().String()+"."+ext, mimeType, file)
	if err != nil {
		slog.Error("Fail to upload image", slog.String("op", op), slog.Any("error", err))
		c.Status(http.StatusInternalServerError)
		return
	}
	// 在DB紀錄圖片的上傳紀錄
	image := models.Image{
		UploaderID: userID,
		Url:        url,
	}
	if result := s.db.Create(&image); result.Error != nil {
		slog.Error("Fail to create image record", slog.String("op", op), slog.Any("error", result.Error))
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Header("Location", url)
	c.Status(http.StatusCreated)
}
