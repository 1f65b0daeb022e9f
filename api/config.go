package api

import (
	"crypto"
	"time"
)

type ServerConfig struct {
	// ID 是這個服務實例的識別名稱，會用在consumer group的consumer名稱上，
	// 多實例部署時必須唯一
	ID string

	OIDC    OIDCConfig
	S3      S3Config
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Session SessionConfig
	Engine  EngineConfig
}

type OIDCConfig struct {
	Providers map[string]OIDCProviderConfig
}

type OIDCProviderConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Bucket          string
	PublicBaseURL   string
	// RateLimitPerHour 限制單一使用者每小時可上傳的圖片數，0表示不限制
	RateLimitPerHour int64
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix 是所有key的共用前綴，用於隔離多個部署環境
	KeyPrefix     string
	ConsumerGroup string
	StreamKeys    RedisStreamKeys
}

type RedisStreamKeys struct {
	// AuctionEvents 是引擎事件的stream，SSE廣播與入庫存檔都從這裡消費
	AuctionEvents string
}

type AuthConfig struct {
	// PrivateKey 是簽發JWT用的Ed25519私鑰
	PrivateKey     crypto.Signer
	Issuer         string
	Audience       string
	ExpireDuration time.Duration
}

type SessionConfig struct {
	KeyForCookie string
	CookieMaxAge time.Duration
}

type EngineConfig struct {
	// FeePercent 是成交時平台的抽成百分比
	FeePercent uint64
}
