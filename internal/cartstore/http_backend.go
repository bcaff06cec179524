package cartstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"storefront/internal/domain/model"
)

// HTTPBackend は /cart のREST APIをBackendとして使う。
type HTTPBackend struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

func NewHTTPBackend(baseURL, bearerToken string, httpClient *http.Client) (*HTTPBackend, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid cart api url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPBackend{baseURL: u, token: bearerToken, http: httpClient}, nil
}

// サーバが返したエラー
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api %d: %s", e.StatusCode, e.Message)
}

type lineRequest struct {
	Kind  string `json:"kind"`
	ID    int64  `json:"id"`
	Size  string `json:"size"`
	Color string `json:"color"`
}

func (b *HTTPBackend) Fetch(ctx context.Context) (Snapshot, error) {
	var out Snapshot
	err := b.do(ctx, http.MethodGet, "/cart", nil, &out)
	return out, err
}

func (b *HTTPBackend) Add(ctx context.Context, ref model.ItemRef, v model.Variant) (Snapshot, error) {
	var out Snapshot
	err := b.do(ctx, http.MethodPost, "/cart/items", toLineRequest(ref, v), &out)
	return out, err
}

func (b *HTTPBackend) Subtract(ctx context.Context, ref model.ItemRef, v model.Variant) (Snapshot, error) {
	var out Snapshot
	err := b.do(ctx, http.MethodPost, "/cart/items/subtract", toLineRequest(ref, v), &out)
	return out, err
}

func (b *HTTPBackend) Remove(ctx context.Context, itemID int64) (Snapshot, error) {
	var out Snapshot
	err := b.do(ctx, http.MethodDelete, "/cart/items/"+strconv.FormatInt(itemID, 10), nil, &out)
	return out, err
}

func (b *HTTPBackend) Clear(ctx context.Context) error {
	return b.do(ctx, http.MethodDelete, "/cart", nil, nil)
}

func toLineRequest(ref model.ItemRef, v model.Variant) lineRequest {
	return lineRequest{Kind: string(ref.Kind), ID: ref.ID, Size: v.Size, Color: v.Color}
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	u := b.baseURL.ResolveReference(&url.URL{Path: b.baseURL.Path + path})
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode cart response: %w", err)
	}
	return nil
}
