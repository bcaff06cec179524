package repository

import (
	"context"

	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	payments   repo.PaymentRepository
	cartItems  repo.CartItemRepository
	catalog    repo.CatalogRepository
	auditLogs  repo.AuditLogRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository         { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *txReposGorm) Payments() repo.PaymentRepository     { return r.payments }
func (r *txReposGorm) CartItems() repo.CartItemRepository   { return r.cartItems }
func (r *txReposGorm) Catalog() repo.CatalogRepository      { return r.catalog }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository   { return r.auditLogs }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

// fnがerrorを返したらrollback。全部のrepoが同じtxを使う。
func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			orders:     NewOrderGormRepository(tx),
			orderItems: NewOrderItemGormRepository(tx),
			payments:   NewPaymentGormRepository(tx),
			cartItems:  NewCartGormRepository(tx),
			catalog:    NewCatalogGormRepository(tx),
			auditLogs:  NewAuditLogGormRepository(tx),
		}
		return fn(r)
	})
}
