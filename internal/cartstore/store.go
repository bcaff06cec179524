// Package cartstore は画面側が持つカートの写し。
// 変更はまず手元に反映し、サーバの応答で置き換える。失敗したら元に戻す。
package cartstore

import (
	"context"
	"sync"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Line struct {
	ItemID    int64           `json:"id"`
	Ref       model.ItemRef   `json:"ref"`
	Variant   model.Variant   `json:"variant"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Available bool            `json:"available"`
}

type Snapshot struct {
	Lines []Line          `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// サーバ側のカート
type Backend interface {
	Fetch(ctx context.Context) (Snapshot, error)
	Add(ctx context.Context, ref model.ItemRef, v model.Variant) (Snapshot, error)
	Subtract(ctx context.Context, ref model.ItemRef, v model.Variant) (Snapshot, error)
	Remove(ctx context.Context, itemID int64) (Snapshot, error)
	Clear(ctx context.Context) error
}

// Store は1ユーザー分のカートの写しを持つ。
// ロックは手元の値の読み書きだけで、Backendの呼び出し中は持たない。
type Store struct {
	backend Backend
	log     *zap.Logger

	mu      sync.Mutex
	snap    Snapshot
	version uint64
}

func New(backend Backend, log *zap.Logger) *Store {
	return &Store{
		backend: backend,
		log:     log,
		snap:    Snapshot{Lines: []Line{}, Total: decimal.Zero},
	}
}

// 現在の写し（呼び出し側で書き換えても影響しない）
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Fetch はサーバの値で置き換える。失敗したら前の写しのまま。
func (s *Store) Fetch(ctx context.Context) error {
	s.mu.Lock()
	v := s.version
	s.mu.Unlock()

	snap, err := s.backend.Fetch(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 取得中に手元の変更があれば、その応答を待つ
	if s.version == v {
		s.replace(snap)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, ref model.ItemRef, v model.Variant) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx,
		func(snap *Snapshot) { snap.increment(ref, v) },
		func(ctx context.Context) (Snapshot, error) { return s.backend.Add(ctx, ref, v) },
	)
}

func (s *Store) Subtract(ctx context.Context, ref model.ItemRef, v model.Variant) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	return s.mutate(ctx,
		func(snap *Snapshot) { snap.decrement(ref, v) },
		func(ctx context.Context) (Snapshot, error) { return s.backend.Subtract(ctx, ref, v) },
	)
}

func (s *Store) Remove(ctx context.Context, itemID int64) error {
	return s.mutate(ctx,
		func(snap *Snapshot) { snap.remove(itemID) },
		func(ctx context.Context) (Snapshot, error) { return s.backend.Remove(ctx, itemID) },
	)
}

func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx,
		func(snap *Snapshot) { snap.Lines = []Line{} },
		func(ctx context.Context) (Snapshot, error) {
			if err := s.backend.Clear(ctx); err != nil {
				return Snapshot{}, err
			}
			return Snapshot{Lines: []Line{}, Total: decimal.Zero}, nil
		},
	)
}

func (s *Store) mutate(
	ctx context.Context,
	apply func(*Snapshot),
	call func(context.Context) (Snapshot, error),
) error {
	s.mu.Lock()
	prev := s.snap.clone()
	apply(&s.snap)
	s.snap.recalc()
	s.version++
	v := s.version
	s.mu.Unlock()

	res, err := call(ctx)

	s.mu.Lock()
	if err == nil {
		// 後から別の変更が入っていたらそちらの応答で置き換わる
		if s.version == v {
			s.replace(res)
		}
		s.mu.Unlock()
		return nil
	}

	if s.version == v {
		s.snap = prev
		s.version++
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	// 他の変更と混ざったので、戻す代わりにサーバから取り直す
	if ferr := s.Fetch(ctx); ferr != nil {
		s.log.Warn("cart refetch after failed update", zap.Error(ferr))
	}
	return err
}

// s.muを持った状態で呼ぶ
func (s *Store) replace(snap Snapshot) {
	if snap.Lines == nil {
		snap.Lines = []Line{}
	}
	s.snap = snap.clone()
	s.version++
}

func (sn Snapshot) clone() Snapshot {
	lines := make([]Line, len(sn.Lines))
	copy(lines, sn.Lines)
	return Snapshot{Lines: lines, Total: sn.Total}
}

// 同じ商品+バリエーションの行
func (sn *Snapshot) find(ref model.ItemRef, v model.Variant) int {
	for i, l := range sn.Lines {
		if l.Ref == ref && l.Variant == v {
			return i
		}
	}
	return -1
}

func (sn *Snapshot) increment(ref model.ItemRef, v model.Variant) {
	if i := sn.find(ref, v); i >= 0 {
		sn.Lines[i].Quantity++
		return
	}
	// 価格はサーバの応答で埋まる
	sn.Lines = append(sn.Lines, Line{Ref: ref, Variant: v, Quantity: 1, UnitPrice: decimal.Zero})
}

func (sn *Snapshot) decrement(ref model.ItemRef, v model.Variant) {
	i := sn.find(ref, v)
	if i < 0 {
		return
	}
	if sn.Lines[i].Quantity > 1 {
		sn.Lines[i].Quantity--
		return
	}
	sn.Lines = append(sn.Lines[:i], sn.Lines[i+1:]...)
}

func (sn *Snapshot) remove(itemID int64) {
	for i, l := range sn.Lines {
		if l.ItemID == itemID {
			sn.Lines = append(sn.Lines[:i], sn.Lines[i+1:]...)
			return
		}
	}
}

func (sn *Snapshot) recalc() {
	total := decimal.Zero
	for i := range sn.Lines {
		sn.Lines[i].Subtotal = sn.Lines[i].UnitPrice.Mul(decimal.NewFromInt(sn.Lines[i].Quantity))
		if sn.Lines[i].Available || sn.Lines[i].ItemID == 0 {
			total = total.Add(sn.Lines[i].Subtotal)
		}
	}
	sn.Total = total
}
