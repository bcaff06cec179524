package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/handler"
	"storefront/internal/infra/gateway"
	"storefront/internal/infra/notify"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/middleware"
	"storefront/internal/server"
	"storefront/internal/testutil"
	"storefront/internal/usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const (
	jwtSecret     = "test-secret"
	gatewaySecret = "gw-secret"
)

type app struct {
	e  *echo.Echo
	db *gorm.DB
}

// 決済ゲートウェイはhttptestで立てる（金額はそのまま返す）
func newApp(t *testing.T) *app {
	t.Helper()
	gdb := testutil.NewDB(t)
	log := zaptest.NewLogger(t)

	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "intent_1", "amount": req.Amount, "currency": req.Currency, "status": "created",
		})
	}))
	t.Cleanup(gw.Close)

	cfg := config.Config{JWTSecret: jwtSecret, PaymentCurrency: "INR"}

	client, err := gateway.NewClient(gateway.Config{
		BaseURL:   gw.URL,
		KeyID:     "key",
		KeySecret: gatewaySecret,
		Timeout:   2 * time.Second,
	}, gw.Client(), log)
	require.NoError(t, err)

	users := infraRepo.NewUserGormRepository(gdb)
	cartUC := usecase.NewCartUsecase(infraRepo.NewCartGormRepository(gdb), infraRepo.NewCatalogGormRepository(gdb), nil, log)
	tx := infraRepo.NewTxManagerGorm(gdb)
	orderUC := usecase.NewOrderUsecase(tx, cartUC, log)
	paymentUC := usecase.NewPaymentUsecase(tx, orderUC, cartUC, client, cfg.PaymentCurrency, log)
	adminUC := usecase.NewAdminOrderUsecase(orderUC, users, infraRepo.NewAddressGormRepository(gdb), notify.NewLogSender(log), log)

	e := server.New(cfg, users, server.Handlers{
		Cart:       handler.NewCartHandler(cartUC),
		Order:      handler.NewOrderHandler(orderUC, paymentUC),
		Payment:    handler.NewPaymentHandler(paymentUC),
		AdminOrder: handler.NewAdminOrderHandler(adminUC),
	}, log)

	return &app{e: e, db: gdb}
}

func token(t *testing.T, u model.User) string {
	t.Helper()
	claims := middleware.Claims{
		Role: string(u.Role),
		TV:   u.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return s
}

func (a *app) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzAndMetrics(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRoutesRequireAuth(t *testing.T) {
	a := newApp(t)
	u := testutil.CreateUser(t, a.db, "a@example.com", model.RoleUser)

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/cart", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/orders/mine", "bad", nil).Code)

	// 一般ユーザーは管理APIに入れない
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, "/admin/orders", token(t, u), nil).Code)

	// token_versionが進んだら古いトークンは失効
	old := token(t, u)
	require.NoError(t, a.db.Model(&model.User{}).Where("id = ?", u.ID).Update("token_version", 1).Error)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/cart", old, nil).Code)
}

func TestCartEndpoints(t *testing.T) {
	a := newApp(t)
	u := testutil.CreateUser(t, a.db, "a@example.com", model.RoleUser)
	p := testutil.CreateProduct(t, a.db, "Tee", 150, "M", "")
	tok := token(t, u)

	line := handler.CartLineRequest{Kind: "product", ID: p.ID, Size: "M"}
	rec := a.do(t, http.MethodPost, "/cart/items", tok, line)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodPost, "/cart/items", tok, line)
	require.Equal(t, http.StatusOK, rec.Code)

	cart := decode[usecase.CartOutput](t, rec)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, int64(2), cart.Items[0].Quantity)
	assert.Equal(t, "300", cart.Total.String())

	rec = a.do(t, http.MethodPost, "/cart/items", tok, handler.CartLineRequest{Kind: "bundle", ID: p.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid Kind", decode[handler.ErrorResponse](t, rec).Error)

	rec = a.do(t, http.MethodPost, "/cart/items", tok, handler.CartLineRequest{Kind: "product", ID: p.ID, Size: "XL"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/cart/items/subtract", tok, line)
	require.Equal(t, http.StatusOK, rec.Code)
	cart = decode[usecase.CartOutput](t, rec)
	assert.Equal(t, int64(1), cart.Items[0].Quantity)

	rec = a.do(t, http.MethodDelete, "/cart/items/"+strconv.FormatInt(cart.Items[0].ID, 10), tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodDelete, "/cart/items/999", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodDelete, "/cart", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutEmptyCart(t *testing.T) {
	a := newApp(t)
	u := testutil.CreateUser(t, a.db, "a@example.com", model.RoleUser)

	rec := a.do(t, http.MethodPost, "/orders", token(t, u), handler.OrderCreateRequest{PaymentMethod: "COD"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty cart", decode[handler.ErrorResponse](t, rec).Error)

	rec = a.do(t, http.MethodPost, "/orders", token(t, u), handler.OrderCreateRequest{PaymentMethod: "CARD"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// カート→オンライン注文→決済→管理者の受付・配達まで
func TestOnlineOrderFlow(t *testing.T) {
	a := newApp(t)
	u := testutil.CreateUser(t, a.db, "a@example.com", model.RoleUser)
	admin := testutil.CreateUser(t, a.db, "admin@example.com", model.RoleAdmin)
	p := testutil.CreateProduct(t, a.db, "Tee", 250, "", "")
	tok := token(t, u)
	adminTok := token(t, admin)

	rec := a.do(t, http.MethodPost, "/cart/items", tok, handler.CartLineRequest{Kind: "product", ID: p.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/orders", tok, handler.OrderCreateRequest{PaymentMethod: "ONLINE"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[usecase.OrderOutput](t, rec)
	orderPath := "/orders/" + strconv.FormatInt(order.ID, 10)

	rec = a.do(t, http.MethodPost, "/payments/initiate", tok, handler.PaymentInitiateRequest{OrderID: order.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	intent := decode[usecase.InitiatePaymentOutput](t, rec)
	assert.Equal(t, int64(25000), intent.Amount)
	assert.Equal(t, "INR", intent.Currency)

	// 偽の署名
	forged := gateway.Sign([]byte("other-secret"), intent.IntentID, "pay_1")
	rec = a.do(t, http.MethodPost, "/payments/verify", tok, handler.PaymentVerifyRequest{
		OrderID: order.ID, IntentID: intent.IntentID, PaymentID: "pay_1", Signature: forged,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "signature mismatch", decode[handler.ErrorResponse](t, rec).Error)

	// 16進でない署名も検証まで進み、failedとして記録される
	rec = a.do(t, http.MethodPost, "/payments/verify", tok, handler.PaymentVerifyRequest{
		OrderID: order.ID, IntentID: intent.IntentID, PaymentID: "pay_garbage", Signature: "not-a-hex-signature!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "signature mismatch", decode[handler.ErrorResponse](t, rec).Error)

	var pay model.Payment
	require.NoError(t, a.db.Where("order_id = ?", order.ID).First(&pay).Error)
	assert.Equal(t, model.PaymentStatusFailed, pay.Status)
	assert.Equal(t, "pay_garbage", pay.GatewayPaymentID)

	rec = a.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `payment_outcomes_total{outcome="signature_mismatch"}`)

	rec = a.do(t, http.MethodGet, orderPath, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.OrderStatusPending, decode[usecase.OrderOutput](t, rec).Status)

	// 支払い前の受付は409
	rec = a.do(t, http.MethodPut, "/admin"+orderPath+"/accept", adminTok, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	good := gateway.Sign([]byte(gatewaySecret), intent.IntentID, "pay_1")
	rec = a.do(t, http.MethodPost, "/payments/verify", tok, handler.PaymentVerifyRequest{
		OrderID: order.ID, IntentID: intent.IntentID, PaymentID: "pay_1", Signature: good,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	verified := decode[handler.PaymentVerifyResponse](t, rec)
	assert.True(t, verified.Success)
	assert.Equal(t, model.OrderStatusSuccess, verified.OrderStatus)

	rec = a.do(t, http.MethodPut, "/admin"+orderPath+"/accept", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decode[usecase.AcceptOrderOutput](t, rec)
	assert.True(t, accepted.Changed)
	assert.Empty(t, accepted.NotificationError)

	for i := 0; i < 2; i++ {
		rec = a.do(t, http.MethodPut, "/admin"+orderPath+"/deliver", adminTok, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, model.OrderStatusDelivered, decode[usecase.TransitionResult](t, rec).Order.Status)
	}

	rec = a.do(t, http.MethodGet, "/admin/orders?status=DELIVERED&page=1&limit=10", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]usecase.OrderOutput](t, rec), 1)

	rec = a.do(t, http.MethodGet, "/admin/orders?from=yesterday", adminTok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAbandonEndpoint(t *testing.T) {
	a := newApp(t)
	u := testutil.CreateUser(t, a.db, "a@example.com", model.RoleUser)
	p := testutil.CreateProduct(t, a.db, "Tee", 250, "", "")
	tok := token(t, u)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPost, "/cart/items", tok, handler.CartLineRequest{Kind: "product", ID: p.ID}).Code)
	rec := a.do(t, http.MethodPost, "/orders", tok, handler.OrderCreateRequest{PaymentMethod: "ONLINE"})
	require.Equal(t, http.StatusCreated, rec.Code)
	order := decode[usecase.OrderOutput](t, rec)
	orderPath := "/orders/" + strconv.FormatInt(order.ID, 10)

	rec = a.do(t, http.MethodGet, orderPath+"/items", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]usecase.OrderItemOutput](t, rec), 1)

	rec = a.do(t, http.MethodDelete, orderPath, tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, orderPath, tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/orders/mine", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]usecase.OrderOutput](t, rec))
}
