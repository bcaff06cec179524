package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // あれば最優先
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	JWTSecret string // JWT署名シークレット（検証のみ）

	GoEnv    string // dev/prod
	LogLevel string

	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string // 決済の署名検証にも使う
	GatewayTimeout   time.Duration
	PaymentCurrency  string

	RabbitMQURL string // 空なら通知はログ出力のみ

	RedisAddr     string // 空ならカートキャッシュなし
	RedisPassword string
	CartCacheTTL  time.Duration
}

// .env（あれば）→ 環境変数の順で読む
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		Port: v.GetString("PORT"),

		DatabaseURL:      v.GetString("DATABASE_URL"),
		PostgresUser:     v.GetString("POSTGRES_USER"),
		PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:       v.GetString("POSTGRES_DB"),
		PostgresHost:     v.GetString("POSTGRES_HOST"),
		PostgresPort:     v.GetInt("POSTGRES_PORT"),
		PostgresSSLMode:  v.GetString("POSTGRES_SSLMODE"),

		JWTSecret: v.GetString("JWT_SECRET"),

		GoEnv:    v.GetString("GO_ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),

		GatewayBaseURL:   v.GetString("GATEWAY_BASE_URL"),
		GatewayKeyID:     v.GetString("GATEWAY_KEY_ID"),
		GatewayKeySecret: v.GetString("GATEWAY_KEY_SECRET"),
		GatewayTimeout:   v.GetDuration("GATEWAY_TIMEOUT"),
		PaymentCurrency:  v.GetString("PAYMENT_CURRENCY"),

		RabbitMQURL: v.GetString("RABBITMQ_URL"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		CartCacheTTL:  v.GetDuration("CART_CACHE_TTL"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_PASSWORD", "postgres")
	v.SetDefault("POSTGRES_DB", "app")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("GO_ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("GATEWAY_BASE_URL", "https://api.razorpay.com")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("PAYMENT_CURRENCY", "INR")
	v.SetDefault("CART_CACHE_TTL", "30m")
}

// 必須チェック
func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.GatewayKeyID == "" {
		return fmt.Errorf("GATEWAY_KEY_ID is required")
	}
	if c.GatewayKeySecret == "" {
		return fmt.Errorf("GATEWAY_KEY_SECRET is required")
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if len(c.PaymentCurrency) != 3 {
		return fmt.Errorf("PAYMENT_CURRENCY must be a 3-letter code")
	}
	return nil
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

// DATABASE_URLが無ければPOSTGRES_*から組み立てる
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}
