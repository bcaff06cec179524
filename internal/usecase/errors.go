package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// 入力チェック系のエラー（HandlerはStatusをそのまま返す）
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

// 注文・決済フローのエラー
var (
	// 明細0件で注文しようとした（書き込み前に拒否）
	ErrEmptyCart = errors.New("empty cart")

	// 遷移表に無いstatus変更（注文は変わらない）
	ErrInvalidTransition = errors.New("invalid transition")

	// ゲートウェイに繋がらない／エラー（注文は削除済み）
	ErrPaymentInitiationFailed = errors.New("payment initiation failed")

	// レシートの署名が一致しない（paymentはfailed、注文はPENDINGのまま）
	ErrSignatureMismatch = errors.New("signature mismatch")

	ErrNotFound = errors.New("not found")
)

var errDB = NewHTTPError(http.StatusInternalServerError, "db error")

// エラー→HTTPステータス
func StatusOf(err error) (int, string) {
	if he, ok := AsHTTPError(err); ok {
		return he.Status, he.Message
	}
	switch {
	case errors.Is(err, ErrEmptyCart):
		return http.StatusBadRequest, ErrEmptyCart.Error()
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict, ErrInvalidTransition.Error()
	case errors.Is(err, ErrPaymentInitiationFailed):
		return http.StatusBadGateway, ErrPaymentInitiationFailed.Error()
	case errors.Is(err, ErrSignatureMismatch):
		return http.StatusBadRequest, ErrSignatureMismatch.Error()
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrNotFound.Error()
	}
	return http.StatusInternalServerError, "internal error"
}
