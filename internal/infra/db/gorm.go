package db

import (
	"fmt"

	"storefront/internal/config"
	"storefront/internal/domain/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config) (*gorm.DB, error) {
	gcfg := &gorm.Config{TranslateError: true}
	if cfg.IsProd() {
		gcfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN()), gcfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return gdb, nil
}

// テーブル作成 + カート明細の一意インデックス。
// order_items / payments は orders への外部キー（ON DELETE CASCADE）を持つ。
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&model.User{},
		&model.Address{},
		&model.Product{},
		&model.CustomProduct{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
		&model.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// 同じユーザー・商品・バリエーションの行は1つだけ（ON CONFLICTの対象）
	if err := gdb.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_items_line ON cart_items (user_id, ref_kind, ref_id, size, color)",
	).Error; err != nil {
		return fmt.Errorf("create cart line index: %w", err)
	}
	return nil
}
