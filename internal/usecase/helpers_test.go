package usecase_test

import (
	"context"
	"strings"
	"testing"

	"storefront/internal/domain/model"
	infraRepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type gatewayMock struct{ mock.Mock }

func (m *gatewayMock) CreateIntent(ctx context.Context, orderID int64, amount int64, currency string) (model.PaymentIntent, error) {
	args := m.Called(ctx, orderID, amount, currency)
	return args.Get(0).(model.PaymentIntent), args.Error(1)
}

func (m *gatewayMock) VerifyReceipt(intentID, paymentID, signature string) bool {
	args := m.Called(intentID, paymentID, signature)
	return args.Bool(0)
}

type notifierMock struct{ mock.Mock }

func (m *notifierMock) NotifyOrderAccepted(ctx context.Context, n model.OrderAcceptedNotice) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// 本物のrepo（sqlite）+ ゲートウェイと通知だけモック
type env struct {
	db       *gorm.DB
	cart     *usecase.CartUsecase
	orders   *usecase.OrderUsecase
	payments *usecase.PaymentUsecase
	admin    *usecase.AdminOrderUsecase
	gateway  *gatewayMock
	notifier *notifierMock
	logs     *observer.ObservedLogs
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb := testutil.NewDB(t)
	obsCore, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(zapcore.NewTee(zaptest.NewLogger(t).Core(), obsCore))

	gw := &gatewayMock{}
	nt := &notifierMock{}

	cart := usecase.NewCartUsecase(
		infraRepo.NewCartGormRepository(gdb),
		infraRepo.NewCatalogGormRepository(gdb),
		nil,
		log,
	)
	tx := infraRepo.NewTxManagerGorm(gdb)
	orders := usecase.NewOrderUsecase(tx, cart, log)
	payments := usecase.NewPaymentUsecase(tx, orders, cart, gw, "INR", log)
	admin := usecase.NewAdminOrderUsecase(
		orders,
		infraRepo.NewUserGormRepository(gdb),
		infraRepo.NewAddressGormRepository(gdb),
		nt,
		log,
	)

	t.Cleanup(func() {
		gw.AssertExpectations(t)
		nt.AssertExpectations(t)
	})

	return &env{
		db:       gdb,
		cart:     cart,
		orders:   orders,
		payments: payments,
		admin:    admin,
		gateway:  gw,
		notifier: nt,
		logs:     logs,
	}
}

func catalogOf(e *env) repo.CatalogRepository {
	return infraRepo.NewCatalogGormRepository(e.db)
}

func cartItemsOf(e *env) repo.CartItemRepository {
	return infraRepo.NewCartGormRepository(e.db)
}

func auditLogs(e *env) repo.AuditLogRepository {
	return infraRepo.NewAuditLogGormRepository(e.db)
}

func zapNop() *zap.Logger { return zap.NewNop() }

func (e *env) addToCart(t *testing.T, userID int64, ref model.ItemRef, times int) {
	t.Helper()
	for i := 0; i < times; i++ {
		if _, err := e.cart.Add(context.Background(), userID, usecase.CartLineInput{Ref: ref}); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
	}
}

func (e *env) payment(t *testing.T, orderID int64) model.Payment {
	t.Helper()
	var p model.Payment
	if err := e.db.Where("order_id = ?", orderID).First(&p).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	return p
}

func (e *env) count(t *testing.T, m interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(m).Where(query, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func assertErrContains(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", want)
	}
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("expected error containing %q, got %q", want, err.Error())
	}
}
