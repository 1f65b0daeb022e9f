package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gavel/api"
)

func ParseArgs() (Args, error) {
	const op = "ParseArgs"
	// server config
	pflag.String("server-id", "gavel-0", "")
	pflag.String("server-url", "0.0.0.0:8080", "")

	// oidc config
	pflag.StringSlice("oidc-providers", []string{}, "names of enabled sso providers")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")
	pflag.Int64("s3-rate-limit-per-hour", 30, "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "gavel:", "")
	pflag.String("redis-consumer-group", "gavel-archiver", "")
	pflag.String("redis-stream-key-for-auction-events", "auction-events", "")

	// auth config
	pflag.String("auth-private-key-file", "", "path to the PKCS8 PEM file of the Ed25519 signing key")
	pflag.String("auth-issuer", "gavel", "")
	pflag.String("auth-audience", "gavel", "")
	pflag.Duration("auth-expire-duration", 3*time.Hour, "")

	// session config
	pflag.String("session-key-for-cookie", "gavel-session", "")
	pflag.Duration("session-cookie-max-age", 24*time.Hour, "")

	// engine config
	pflag.Uint64("engine-fee-percent", 5, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("GAVEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// 每個provider的issuer與client資訊以provider名稱組出設定鍵，
	// 例如 GAVEL_OIDC_GOOGLE_ISSUER_URL
	providers := make(map[string]api.OIDCProviderConfig)
	for _, name := range viper.GetStringSlice("oidc-providers") {
		providers[name] = api.OIDCProviderConfig{
			IssuerURL:    viper.GetString(fmt.Sprintf("oidc-%s-issuer-url", name)),
			ClientID:     viper.GetString(fmt.Sprintf("oidc-%s-client-id", name)),
			ClientSecret: viper.GetString(fmt.Sprintf("oidc-%s-client-secret", name)),
		}
	}

	privateKey, err := LoadAuthPrivateKey(viper.GetString("auth-private-key-file"))
	if err != nil {
		return Args{}, fmt.Errorf("[%s] Fail to load auth private key, err=%w", op, err)
	}

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		ServerConfig: api.ServerConfig{
			ID: viper.GetString("server-id"),
			OIDC: api.OIDCConfig{
				Providers: providers,
			},
			S3: api.S3Config{
				Endpoint:         viper.GetString("s3-endpoint"),
				Bucket:           viper.GetString("s3-bucket"),
				PublicBaseURL:    viper.GetString("s3-public-base-url"),
				AccessKeyID:      viper.GetString("s3-access-key-id"),
				SecretAccessKey:  viper.GetString("s3-secret-access-key"),
				RateLimitPerHour: viper.GetInt64("s3-rate-limit-per-hour"),
			},
			DB: api.DBConfig{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:          viper.GetString("redis-addr"),
				Password:      viper.GetString("redis-password"),
				DB:            viper.GetInt("redis-db"),
				KeyPrefix:     viper.GetString("redis-key-prefix"),
				ConsumerGroup: viper.GetString("redis-consumer-group"),
				StreamKeys: api.RedisStreamKeys{
					AuctionEvents: viper.GetString("redis-stream-key-for-auction-events"),
				},
			},
			Auth: api.AuthConfig{
				PrivateKey:     privateKey,
				Issuer:         viper.GetString("auth-issuer"),
				Audience:       viper.GetString("auth-audience"),
				ExpireDuration: viper.GetDuration("auth-expire-duration"),
			},
			Session: api.SessionConfig{
				KeyForCookie: viper.GetString("session-key-for-cookie"),
				CookieMaxAge: viper.GetDuration("session-cookie-max-age"),
			},
			Engine: api.EngineConfig{
				FeePercent: viper.GetUint64("engine-fee-percent"),
			},
		},
	}, nil
}

type Args struct {
	ServerURL    string
	ServerConfig api.ServerConfig
}

func (args Args) Validate() bool {
	return args.ServerURL != "" &&
		args.ServerConfig.ID != "" &&
		args.ServerConfig.Redis.Addr != "" &&
		args.ServerConfig.DB.Host != "" &&
		args.ServerConfig.Auth.PrivateKey != nil
}
