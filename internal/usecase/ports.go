package usecase

import (
	"context"

	"storefront/internal/domain/model"
)

// 外部の決済ゲートウェイ
type PaymentGateway interface {
	// 注文金額（最小通貨単位）の支払いハンドルを作る
	CreateIntent(ctx context.Context, orderID int64, amount int64, currency string) (model.PaymentIntent, error)
	// intentID|paymentID のHMACとsignatureを比較。失敗時もerrorは返さない
	VerifyReceipt(intentID, paymentID, signature string) bool
}

// 注文受付の通知（送信失敗してもstatusは戻さない）
type Notifier interface {
	NotifyOrderAccepted(ctx context.Context, n model.OrderAcceptedNotice) error
}

// カート明細のキャッシュ。無効化に失敗しても本体の更新は成功扱い。
// Deleteのたびに世代が進み、古い世代でのSetは捨てられる。
type CartCache interface {
	// ヒットしなくても現在の世代を返す
	Get(ctx context.Context, userID int64) (items []model.CartItem, gen int64, hit bool, err error)
	// genのあとに無効化されていれば何もしない
	Set(ctx context.Context, userID int64, gen int64, items []model.CartItem) error
	Delete(ctx context.Context, userID int64) error
}

type noCartCache struct{}

func (noCartCache) Get(context.Context, int64) ([]model.CartItem, int64, bool, error) {
	return nil, 0, false, nil
}
func (noCartCache) Set(context.Context, int64, int64, []model.CartItem) error { return nil }
func (noCartCache) Delete(context.Context, int64) error                       { return nil }
