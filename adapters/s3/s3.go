package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ImageStore 負責將拍賣品圖片上傳到S3相容的物件儲存，
// 並回傳可公開存取的網址
type ImageStore struct {
	Client *s3.Client
	Bucket string
	// PublicEndpoint 是儲存桶的公開入口，通常是CDN或反向代理
	PublicEndpoint *url.URL
}

func NewImageStore(client *s3.Client, bucket, publicBaseURL string) (*ImageStore, error) {
	const op = "NewImageStore"
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	return &ImageStore{Client: client, Bucket: bucket, PublicEndpoint: publicEndpoint}, nil
}

// Upload 將檔案內容寫入儲存桶指定路徑，回傳公開網址
func (s *ImageStore) Upload(ctx context.Context, path, contentType string, content []byte) (string, error) {
	const op = "Upload"
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, err=%w", op, err)
	}
	uri := *s.PublicEndpoint
	uri.Path = path
	return uri.String(), nil
}
