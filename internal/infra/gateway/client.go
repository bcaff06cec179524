package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront/internal/domain/model"

	"go.uber.org/zap"
)

type Config struct {
	BaseURL      string
	KeyID        string
	KeySecret    string
	Timeout      time.Duration
	MaxFailures  int
	ResetTimeout time.Duration
}

// Client は決済ゲートウェイのREST API（注文ハンドル作成）とレシート検証。
type Client struct {
	baseURL *url.URL
	keyID   string
	secret  []byte
	timeout time.Duration
	http    *http.Client
	breaker *CircuitBreaker
	log     *zap.Logger
}

func NewClient(cfg Config, httpClient *http.Client, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway base url %q", cfg.BaseURL)
	}
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, fmt.Errorf("gateway key id/secret required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL: u,
		keyID:   cfg.KeyID,
		secret:  []byte(cfg.KeySecret),
		timeout: cfg.Timeout,
		http:    httpClient,
		breaker: NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		log:     log,
	}, nil
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// APIエラー（4xx/5xx）
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Body)
}

// CreateIntent は POST {base}/v1/orders で支払いハンドルを作る。
// amountは最小通貨単位。
func (c *Client) CreateIntent(ctx context.Context, orderID int64, amount int64, currency string) (model.PaymentIntent, error) {
	if amount <= 0 {
		return model.PaymentIntent{}, fmt.Errorf("invalid amount %d", amount)
	}

	body, err := json.Marshal(createOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  "order_" + strconv.FormatInt(orderID, 10),
	})
	if err != nil {
		return model.PaymentIntent{}, err
	}

	var out createOrderResponse
	err = c.breaker.Execute(ctx, func() error {
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.post(cctx, "/v1/orders", body, &out)
	})
	if err != nil {
		c.log.Warn("gateway create intent failed",
			zap.Int64("order_id", orderID),
			zap.String("breaker", c.breaker.State().String()),
			zap.Error(err),
		)
		return model.PaymentIntent{}, err
	}
	if out.ID == "" {
		return model.PaymentIntent{}, fmt.Errorf("gateway response without id")
	}

	return model.PaymentIntent{ID: out.ID, Amount: out.Amount, Currency: out.Currency}, nil
}

// VerifyReceipt は hex(HMAC-SHA256(secret, intentID|paymentID)) と比較する。
func (c *Client) VerifyReceipt(intentID, paymentID, signature string) bool {
	return Verify(c.secret, intentID, paymentID, signature)
}

func Sign(secret []byte, intentID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(intentID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func Verify(secret []byte, intentID, paymentID, signature string) bool {
	if intentID == "" || paymentID == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(intentID + "|" + paymentID))
	return hmac.Equal(got, mac.Sum(nil))
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	u := c.baseURL.ResolveReference(&url.URL{Path: c.baseURL.Path + path})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.keyID, string(c.secret))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
