package usecase

import (
	"context"
	"errors"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartUsecase は /cart の業務ロジックです（永続側のカート）。
type CartUsecase struct {
	cartItems repo.CartItemRepository
	catalog   repo.CatalogRepository
	cache     CartCache
	log       *zap.Logger
}

// cacheはnilでもよい
func NewCartUsecase(
	cartItems repo.CartItemRepository,
	catalog repo.CatalogRepository,
	cache CartCache,
	log *zap.Logger,
) *CartUsecase {
	if cache == nil {
		cache = noCartCache{}
	}
	return &CartUsecase{
		cartItems: cartItems,
		catalog:   catalog,
		cache:     cache,
		log:       log,
	}
}

// price / name はカタログの現在値。
// 商品が削除・非公開ならAvailable=falseで返す（カート自体は壊さない）。
type CartItemOutput struct {
	ID        int64           `json:"id"`
	Ref       model.ItemRef   `json:"ref"`
	Variant   model.Variant   `json:"variant"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Available bool            `json:"available"`
}

type CartOutput struct {
	Items []CartItemOutput `json:"items"`
	Total decimal.Decimal  `json:"total"`
}

type CartLineInput struct {
	Ref     model.ItemRef
	Variant model.Variant
}

// 注文時点で固定するカートの1行
type SnapshotLine struct {
	Ref       model.ItemRef
	Variant   model.Variant
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int64
}

type CartSnapshot []SnapshotLine

// Fetch はユーザーのカートを返す。キャッシュ→DBの順。
func (u *CartUsecase) Fetch(ctx context.Context, userID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	items, gen, hit, err := u.cache.Get(ctx, userID)
	if err != nil {
		u.log.Warn("cart cache get failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	if !hit {
		cacheable := err == nil
		items, err = u.cartItems.ListByUserID(ctx, userID)
		if err != nil {
			return CartOutput{}, errDB
		}
		// 読んだ後に更新が入っていれば世代が変わっているので書かれない
		if cacheable {
			if err := u.cache.Set(ctx, userID, gen, items); err != nil {
				u.log.Warn("cart cache set failed", zap.Int64("user_id", userID), zap.Error(err))
			}
		}
	}

	return u.buildCartOutput(ctx, items), nil
}

// Add は同じ商品+バリエーションなら+1、無ければ数量1で追加。
func (u *CartUsecase) Add(ctx context.Context, userID int64, in CartLineInput) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := in.Ref.Validate(); err != nil {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid ref")
	}

	// 商品チェック（公開のみ・バリエーションが選択肢にあるか）
	item, err := u.catalog.FindByRef(ctx, in.Ref)
	if errors.Is(err, repo.ErrNotFound) {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid")
	}
	if err != nil {
		return CartOutput{}, errDB
	}
	if !item.Active {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid")
	}
	if !item.AllowsVariant(in.Variant) {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid variant")
	}

	if err := u.cartItems.Increment(ctx, userID, in.Ref, in.Variant); err != nil {
		return CartOutput{}, errDB
	}
	u.invalidate(ctx, userID)

	return u.load(ctx, userID)
}

// Subtract は1減らし、0になったら削除。明細が無くてもエラーにしない。
func (u *CartUsecase) Subtract(ctx context.Context, userID int64, in CartLineInput) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := in.Ref.Validate(); err != nil {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid ref")
	}

	if err := u.cartItems.Decrement(ctx, userID, in.Ref, in.Variant); err != nil {
		return CartOutput{}, errDB
	}
	u.invalidate(ctx, userID)

	return u.load(ctx, userID)
}

// 明細削除
func (u *CartUsecase) Remove(ctx context.Context, userID int64, cartItemID int64) (CartOutput, error) {
	if userID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return CartOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := u.cartItems.DeleteByID(ctx, userID, cartItemID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return CartOutput{}, ErrNotFound
		}
		return CartOutput{}, errDB
	}
	u.invalidate(ctx, userID)

	return u.load(ctx, userID)
}

func (u *CartUsecase) Clear(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := u.cartItems.DeleteByUserID(ctx, userID); err != nil {
		return errDB
	}
	u.invalidate(ctx, userID)
	return nil
}

// Snapshot はDBのカートとカタログの現在価格から注文用の行を作る。
// 購入できない商品が1つでもあればエラー。
func (u *CartUsecase) Snapshot(ctx context.Context, userID int64) (CartSnapshot, error) {
	items, err := u.cartItems.ListByUserID(ctx, userID)
	if err != nil {
		return nil, errDB
	}

	snap := make(CartSnapshot, 0, len(items))
	for _, it := range items {
		c, err := u.catalog.FindByRef(ctx, it.Ref)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && !c.Active) {
			return nil, NewHTTPError(http.StatusBadRequest, "item unavailable: "+it.Ref.String())
		}
		if err != nil {
			return nil, errDB
		}
		snap = append(snap, SnapshotLine{
			Ref:       it.Ref,
			Variant:   it.Variant,
			Name:      c.Name,
			UnitPrice: c.Price,
			Quantity:  it.Quantity,
		})
	}
	return snap, nil
}

func (u *CartUsecase) load(ctx context.Context, userID int64) (CartOutput, error) {
	items, err := u.cartItems.ListByUserID(ctx, userID)
	if err != nil {
		return CartOutput{}, errDB
	}
	return u.buildCartOutput(ctx, items), nil
}

func (u *CartUsecase) invalidate(ctx context.Context, userID int64) {
	if err := u.cache.Delete(ctx, userID); err != nil {
		u.log.Warn("cart cache invalidate failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (u *CartUsecase) buildCartOutput(ctx context.Context, items []model.CartItem) CartOutput {
	out := CartOutput{Items: make([]CartItemOutput, 0, len(items)), Total: decimal.Zero}

	for _, it := range items {
		line := CartItemOutput{
			ID:        it.ID,
			Ref:       it.Ref,
			Variant:   it.Variant,
			Quantity:  it.Quantity,
			UnitPrice: decimal.Zero,
			Subtotal:  decimal.Zero,
		}

		c, err := u.catalog.FindByRef(ctx, it.Ref)
		if err == nil && c.Active {
			line.Name = c.Name
			line.UnitPrice = c.Price
			line.Subtotal = c.Price.Mul(decimal.NewFromInt(it.Quantity))
			line.Available = true
			out.Total = out.Total.Add(line.Subtotal)
		}
		out.Items = append(out.Items, line)
	}
	return out
}
