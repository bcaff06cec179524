package model

import (
	"errors"
	"fmt"
)

// 参照先の種類（通常商品 / カスタム商品）
type RefKind string

const (
	RefProduct RefKind = "product"
	RefCustom  RefKind = "custom"
)

var ErrInvalidRef = errors.New("invalid item ref")

// カート明細・注文明細が指す商品。
// 通常商品かカスタム商品のどちらか一方だけを持つ。
type ItemRef struct {
	Kind RefKind `gorm:"column:ref_kind;type:varchar(20);not null" json:"kind"`
	ID   int64   `gorm:"column:ref_id;not null" json:"id"`
}

func NewProductRef(id int64) ItemRef {
	return ItemRef{Kind: RefProduct, ID: id}
}

func NewCustomRef(id int64) ItemRef {
	return ItemRef{Kind: RefCustom, ID: id}
}

// リクエストの文字列からItemRefを作る
func ParseRef(kind string, id int64) (ItemRef, error) {
	var r ItemRef
	switch RefKind(kind) {
	case RefProduct:
		r = NewProductRef(id)
	case RefCustom:
		r = NewCustomRef(id)
	default:
		return ItemRef{}, fmt.Errorf("%w: kind %q", ErrInvalidRef, kind)
	}
	if err := r.Validate(); err != nil {
		return ItemRef{}, err
	}
	return r, nil
}

func (r ItemRef) Validate() error {
	if r.Kind != RefProduct && r.Kind != RefCustom {
		return fmt.Errorf("%w: kind %q", ErrInvalidRef, r.Kind)
	}
	if r.ID <= 0 {
		return fmt.Errorf("%w: id %d", ErrInvalidRef, r.ID)
	}
	return nil
}

func (r ItemRef) IsProduct() bool { return r.Kind == RefProduct }

func (r ItemRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// サイズ・カラーの選択
type Variant struct {
	Size  string `gorm:"type:varchar(50);not null;default:''" json:"size"`
	Color string `gorm:"type:varchar(50);not null;default:''" json:"color"`
}
