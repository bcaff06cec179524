package usecase_test

import (
	"context"
	"testing"

	"storefront/internal/domain/model"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ゲートウェイ呼び出しの途中で止めるためのゲート
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) hold(mock.Arguments) {
	close(g.entered)
	<-g.release
}

// ゲートウェイ呼び出し中に注文が削除されたら、paymentを作らずErrNotFound
func TestInitiatePayment_AbandonDuringGatewayCall(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, o := onlineOrder(t, e)

	g := newGate()
	e.gateway.On("CreateIntent", mock.Anything, o.ID, int64(25000), "INR").
		Run(g.hold).
		Return(model.PaymentIntent{ID: "intent_1", Amount: 25000, Currency: "INR"}, nil).
		Once()

	done := make(chan error, 1)
	go func() {
		_, err := e.payments.InitiatePayment(ctx, u.ID, o.ID)
		done <- err
	}()

	<-g.entered
	require.NoError(t, e.payments.AbandonPayment(ctx, u.ID, o.ID))
	close(g.release)

	assert.ErrorIs(t, <-done, usecase.ErrNotFound)
	assert.Zero(t, e.count(t, &model.Order{}, "id = ?", o.ID))
	assert.Zero(t, e.count(t, &model.Payment{}, "order_id = ?", o.ID))
	assert.Zero(t, e.count(t, &model.OrderItem{}, "order_id = ?", o.ID))
}

// ゲートウェイ呼び出し中にキャンセルされたら、paymentを作らない
func TestInitiatePayment_CancelDuringGatewayCall(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, o := onlineOrder(t, e)

	g := newGate()
	e.gateway.On("CreateIntent", mock.Anything, o.ID, int64(25000), "INR").
		Run(g.hold).
		Return(model.PaymentIntent{ID: "intent_1", Amount: 25000, Currency: "INR"}, nil).
		Once()

	done := make(chan error, 1)
	go func() {
		_, err := e.payments.InitiatePayment(ctx, u.ID, o.ID)
		done <- err
	}()

	<-g.entered
	_, err := e.orders.Transition(ctx, 0, o.ID, model.OrderStatusCancelled)
	require.NoError(t, err)
	close(g.release)

	assert.ErrorIs(t, <-done, usecase.ErrInvalidTransition)
	assert.Zero(t, e.count(t, &model.Payment{}, "order_id = ?", o.ID))

	got, err := e.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, got.Status)
}

// 偽レシートの検証中に正しいレシートで確定しても、paidは上書きされない
func TestConfirmPayment_ForgedDuringValidConfirmKeepsPaid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, o := onlineOrder(t, e)
	e.expectIntent(o.ID)
	_, err := e.payments.InitiatePayment(ctx, u.ID, o.ID)
	require.NoError(t, err)

	g := newGate()
	e.gateway.On("VerifyReceipt", "intent_1", "pay_forged", "forged").Run(g.hold).Return(false).Once()
	e.gateway.On("VerifyReceipt", "intent_1", "pay_1", "good").Return(true).Once()

	done := make(chan error, 1)
	go func() {
		_, err := e.payments.ConfirmPayment(ctx, u.ID, o.ID, usecase.Receipt{
			IntentID: "intent_1", PaymentID: "pay_forged", Signature: "forged",
		})
		done <- err
	}()

	<-g.entered
	out, err := e.payments.ConfirmPayment(ctx, u.ID, o.ID, usecase.Receipt{
		IntentID: "intent_1", PaymentID: "pay_1", Signature: "good",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSuccess, out.OrderStatus)
	close(g.release)

	assert.ErrorIs(t, <-done, usecase.ErrSignatureMismatch)

	got, err := e.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSuccess, got.Status)
	p := e.payment(t, o.ID)
	assert.Equal(t, model.PaymentStatusPaid, p.Status)
	assert.Equal(t, "pay_1", p.GatewayPaymentID)
}

// 偽レシートを何度送っても注文はPENDINGのまま。その後の正しいレシートは通る
func TestConfirmPayment_RepeatedForgedReceipts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, o := onlineOrder(t, e)
	e.expectIntent(o.ID)
	_, err := e.payments.InitiatePayment(ctx, u.ID, o.ID)
	require.NoError(t, err)

	e.gateway.On("VerifyReceipt", "intent_1", "pay_1", "forged").Return(false).Times(3)
	e.gateway.On("VerifyReceipt", "intent_1", "pay_1", "good").Return(true).Once()

	for i := 0; i < 3; i++ {
		_, err := e.payments.ConfirmPayment(ctx, u.ID, o.ID, usecase.Receipt{
			IntentID: "intent_1", PaymentID: "pay_1", Signature: "forged",
		})
		assert.ErrorIs(t, err, usecase.ErrSignatureMismatch)

		got, err := e.orders.GetOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, model.OrderStatusPending, got.Status)
		assert.Equal(t, model.PaymentStatusFailed, e.payment(t, o.ID).Status)
	}

	out, err := e.payments.ConfirmPayment(ctx, u.ID, o.ID, usecase.Receipt{
		IntentID: "intent_1", PaymentID: "pay_1", Signature: "good",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusSuccess, out.OrderStatus)
	assert.Equal(t, model.PaymentStatusPaid, e.payment(t, o.ID).Status)
}

// 同じ正しいレシートが並行して来ても、両方成功で1回だけ確定する
func TestConfirmPayment_ConcurrentValidReceipts(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, o := onlineOrder(t, e)
	e.expectIntent(o.ID)
	_, err := e.payments.InitiatePayment(ctx, u.ID, o.ID)
	require.NoError(t, err)

	g := newGate()
	e.gateway.On("VerifyReceipt", "intent_1", "pay_1", "good").Run(g.hold).Return(true).Once()
	e.gateway.On("VerifyReceipt", "intent_1", "pay_1", "good").Return(true).Once()
	rc := usecase.Receipt{IntentID: "intent_1", PaymentID: "pay_1", Signature: "good"}

	type result struct {
		out usecase.ConfirmPaymentOutput
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := e.payments.ConfirmPayment(ctx, u.ID, o.ID, rc)
		done <- result{out, err}
	}()

	<-g.entered
	first, err := e.payments.ConfirmPayment(ctx, u.ID, o.ID, rc)
	require.NoError(t, err)
	close(g.release)
	second := <-done

	require.NoError(t, second.err)
	assert.Equal(t, model.OrderStatusSuccess, first.OrderStatus)
	assert.Equal(t, model.OrderStatusSuccess, second.out.OrderStatus)
	assert.Equal(t, model.PaymentStatusPaid, second.out.PaymentStatus)
	assert.Equal(t, 1, e.logs.FilterMessage("payment confirmed").Len())
}

// 検証中に中断されたら、支払いは残らず返金要のログが出る
func TestConfirmPayment_AbandonDuringVerify(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, o := onlineOrder(t, e)
	e.expectIntent(o.ID)
	_, err := e.payments.InitiatePayment(ctx, u.ID, o.ID)
	require.NoError(t, err)

	g := newGate()
	e.gateway.On("VerifyReceipt", "intent_1", "pay_1", "good").Run(g.hold).Return(true).Once()

	done := make(chan error, 1)
	go func() {
		_, err := e.payments.ConfirmPayment(ctx, u.ID, o.ID, usecase.Receipt{
			IntentID: "intent_1", PaymentID: "pay_1", Signature: "good",
		})
		done <- err
	}()

	<-g.entered
	require.NoError(t, e.payments.AbandonPayment(ctx, u.ID, o.ID))
	close(g.release)

	assert.ErrorIs(t, <-done, usecase.ErrNotFound)
	assert.Zero(t, e.count(t, &model.Order{}, "id = ?", o.ID))
	assert.Zero(t, e.count(t, &model.Payment{}, "order_id = ?", o.ID))
	assert.Equal(t, 1, e.logs.FilterMessage("payment captured for deleted order, refund required").Len())
}

// 支払い待ちの間にキャンセルされた注文でも、正しいレシートならpaidを記録する
func TestConfirmPayment_CancelledOrderRecordsPaid(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u, o := onlineOrder(t, e)
	e.expectIntent(o.ID)
	_, err := e.payments.InitiatePayment(ctx, u.ID, o.ID)
	require.NoError(t, err)

	_, err = e.orders.Transition(ctx, 0, o.ID, model.OrderStatusCancelled)
	require.NoError(t, err)

	e.gateway.On("VerifyReceipt", "intent_1", "pay_1", "good").Return(true).Once()
	_, err = e.payments.ConfirmPayment(ctx, u.ID, o.ID, usecase.Receipt{
		IntentID: "intent_1", PaymentID: "pay_1", Signature: "good",
	})
	assert.ErrorIs(t, err, usecase.ErrInvalidTransition)

	got, err := e.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, got.Status)

	p := e.payment(t, o.ID)
	assert.Equal(t, model.PaymentStatusPaid, p.Status)
	assert.Equal(t, "pay_1", p.GatewayPaymentID)

	warned := e.logs.FilterMessage("paid order cancelled, refund required").All()
	require.Len(t, warned, 1)
	assert.Equal(t, o.ID, warned[0].ContextMap()["order_id"])

	// 中断もできない（支払い済み）
	assert.ErrorIs(t, e.payments.AbandonPayment(ctx, u.ID, o.ID), usecase.ErrInvalidTransition)
}
