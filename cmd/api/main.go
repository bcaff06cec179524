package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/gateway"
	"storefront/internal/infra/mq"
	"storefront/internal/infra/notify"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/server"
	"storefront/internal/usecase"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.IsProd() {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	addressRepo := infraRepo.NewAddressGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	catalogRepo := infraRepo.NewCatalogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//カートキャッシュ（任意）
	var cartCache usecase.CartCache
	if cfg.RedisAddr != "" {
		rdb, err := cache.InitRedis(cfg.RedisAddr, cfg.RedisPassword, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()
		cartCache = cache.NewCartCache(rdb, cfg.CartCacheTTL)
	}

	//通知：RabbitMQがあればイベント経由、無ければ直接ログ
	var notifier usecase.Notifier = notify.NewLogSender(logger)
	if cfg.RabbitMQURL != "" {
		conn, err := mq.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		pub, err := mq.NewPublisher(conn, logger)
		if err != nil {
			return err
		}
		defer pub.Close()

		if err := mq.StartOrderAcceptedConsumer(ctx, conn, notify.NewLogSender(logger), logger); err != nil {
			return err
		}
		notifier = pub
	}

	gw, err := gateway.NewClient(gateway.Config{
		BaseURL:   cfg.GatewayBaseURL,
		KeyID:     cfg.GatewayKeyID,
		KeySecret: cfg.GatewayKeySecret,
		Timeout:   cfg.GatewayTimeout,
	}, &http.Client{}, logger)
	if err != nil {
		return err
	}

	//Usecase生成
	cartUC := usecase.NewCartUsecase(cartRepo, catalogRepo, cartCache, logger)
	orderUC := usecase.NewOrderUsecase(txm, cartUC, logger)
	paymentUC := usecase.NewPaymentUsecase(txm, orderUC, cartUC, gw, cfg.PaymentCurrency, logger)
	adminOrderUC := usecase.NewAdminOrderUsecase(orderUC, userRepo, addressRepo, notifier, logger)

	e := server.New(cfg, userRepo, server.Handlers{
		Cart:       handler.NewCartHandler(cartUC),
		Order:      handler.NewOrderHandler(orderUC, paymentUC),
		Payment:    handler.NewPaymentHandler(paymentUC),
		AdminOrder: handler.NewAdminOrderHandler(adminOrderUC),
	}, logger)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
