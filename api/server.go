package api

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"gavel/adapters/oidc"
	internalS3 "gavel/adapters/s3"
	"gavel/adapters/session"
	"gavel/adapters/sse"
	"gavel/adapters/stream"
	"gavel/auction"
)

// Server 把拍賣引擎、事件管線與對外HTTP介面綁在一起。
// 引擎是狀態的真實來源，資料庫只存事件的非同步存檔。
type Server struct {
	house         *auction.House
	oidcProviders map[string]*oidc.Provider
	hub           *sse.Hub[auction.Event]
	imageStore    *internalS3.ImageStore
	htmlChecker   *bluemonday.Policy
	redisClient   *redis.Client
	archiver      stream.IGroupReader[auction.Event]
	db            *gorm.DB
	wg            sync.WaitGroup
	cancelFunc    context.CancelFunc

	config ServerConfig
}

func NewServer(config ServerConfig) (*Server, error) {
	const op = "NewServer"

	// 初始化OIDC提供者
	oidcProviders := make(map[string]*oidc.Provider, len(config.OIDC.Providers))
	for provider, providerConfig := range config.OIDC.Providers {
		oidcProvider, err := oidc.NewProvider(providerConfig.IssuerURL, providerConfig.ClientID, providerConfig.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to initial OIDC provider, provider=%s, err=%w", op, provider, err)
		}
		oidcProviders[provider] = oidcProvider
	}

	// 初始化S3客戶端
	s3Cfg, err := awsCfg.LoadDefaultConfig(
		context.Background(),
		awsCfg.WithBaseEndpoint(config.S3.Endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.S3.AccessKeyID, config.S3.SecretAccessKey, "")),
		awsCfg.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	imageStore, err := internalS3.NewImageStore(s3.NewFromConfig(s3Cfg), config.S3.Bucket, config.S3.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create image store, err=%w", op, err)
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化SSE廣播管線：引擎事件進stream，每個節點從stream尾端讀回再廣播
	eventStream := config.Redis.KeyPrefix + config.Redis.StreamKeys.AuctionEvents
	publisher, err := stream.NewPublisher(
		redisClient,
		eventStream,
		stream.WithPublisherEncodeFunc(func(env sse.Envelope[auction.Event]) (map[string]any, error) {
			// 頻道名稱可以從事件本身推導，stream上只存事件
			return stream.EncodeEntry(env.Message)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event publisher, err=%w", op, err)
	}
	reader, err := stream.NewReader(
		redisClient,
		eventStream,
		stream.WithReaderDecodeFunc(func(entry map[string]any) (sse.Envelope[auction.Event], error) {
			ev, err := stream.DecodeEntry[auction.Event](entry)
			if err != nil {
				return sse.Envelope[auction.Event]{}, fmt.Errorf("fail to decode auction event, err=%w", err)
			}
			return sse.Envelope[auction.Event]{
				Channel: strconv.FormatUint(ev.AuctionID, 10),
				Message: ev,
			}, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event reader, err=%w", op, err)
	}
	hub, err := sse.NewHub(publisher, reader, sse.WithHubLogger[auction.Event](slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create sse hub, err=%w", op, err)
	}

	// 初始化存檔用的group reader，嚴格順序模式確保事件照發生順序入庫
	archiver, err := stream.NewGroupReader[auction.Event](
		redisClient,
		eventStream,
		config.Redis.ConsumerGroup,
		config.ID,
		stream.WithGroupReaderLogger[auction.Event](slog.Default()),
		stream.WithGroupReaderStrictOrdering[auction.Event](true),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event archiver, err=%w", op, err)
	}

	server := &Server{
		oidcProviders: oidcProviders,
		hub:           hub,
		imageStore:    imageStore,
		htmlChecker:   bluemonday.UGCPolicy(),
		redisClient:   redisClient,
		archiver:      archiver,
		db:            db,
		config:        config,
	}

	// 引擎的sink在序列化鎖內被呼叫，hub.Publish只是把事件丟進
	// 發布佇列，不會阻塞引擎
	server.house = auction.NewHouse(
		auction.WithFeePercent(config.Engine.FeePercent),
		auction.WithSink(func(ev auction.Event) {
			if err := server.hub.Publish(strconv.FormatUint(ev.AuctionID, 10), ev); err != nil {
				slog.Error("Fail to publish auction event",
					slog.String("type", string(ev.Type)),
					slog.Uint64("auctionID", ev.AuctionID),
					slog.Any("error", err))
			}
		}),
	)

	return server, nil
}

// SessionMiddleware 建立以Redis為後端的session middleware
func (s *Server) SessionMiddleware() gin.HandlerFunc {
	store := session.NewRedisStore(
		s.redisClient,
		session.WithStorePrefix(s.config.Redis.KeyPrefix+"session:"),
	)
	return session.GinMiddleware(
		store,
		session.WithSessionKeyForCookie(s.config.Session.KeyForCookie),
		session.WithCookieMaxAge(s.config.Session.CookieMaxAge),
	)
}

// RegisterRoutes 註冊所有HTTP路由
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.Use(s.SessionMiddleware())
	api := router.Group("/api")

	api.GET("/auth/sso/:provider/login", s.SsoLogin)
	api.GET("/auth/sso/:provider/callback", s.SsoCallback)
	api.GET("/auth/logout", s.Logout)

	api.POST("/auction/english", s.CreateEnglishAuction)
	api.POST("/auction/dutch", s.CreateDutchAuction)
	api.GET("/auctions", s.ListAuctions)
	api.GET("/auction/:auctionID", s.GetAuction)
	api.GET("/auction/:auctionID/price", s.GetDutchPrice)
	api.GET("/auction/:auctionID/active", s.GetAuctionActive)
	api.GET("/auction/:auctionID/credit", s.GetCredit)
	api.GET("/auction/:auctionID/events", s.StreamAuctionEvents)
	api.POST("/auction/:auctionID/bids", s.PlaceBid)
	api.POST("/auction/:auctionID/purchase", s.PurchaseDutch)
	api.POST("/auction/:auctionID/end", s.EndAuction)
	api.POST("/auction/:auctionID/cancel", s.CancelAuction)
	api.POST("/auction/:auctionID/withdrawals", s.WithdrawCredit)

	api.GET("/user/info", s.GetUserInfo)
	api.PATCH("/user/info", s.UpdateUserInfo)
	api.GET("/user/auctions", s.ListUserAuctions)

	api.POST("/image", s.UploadImage)
}

// Start 啟動事件管線與存檔工作者
func (s *Server) Start() error {
	const op = "Start"
	// 啟動SSE廣播
	s.hub.Start()
	// 啟動存檔工作者
	if err := s.archiver.Start(); err != nil {
		return fmt.Errorf("[%s] Fail to start event archiver, err=%w", op, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelFunc = cancel
	slog.Info("Start event archive worker")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runArchiveWorker(ctx)
	}()
	return nil
}

func (s *Server) Close() {
	// 關閉存檔工作者
	s.archiver.Close()
	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.wg.Wait()
	// 關閉SSE廣播
	s.hub.Done()
}
