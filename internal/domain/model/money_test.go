package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"250", 25000},
		{"349.00", 34900},
		{"0.5", 50},
		{"10.005", 1001},
		{"0", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToMinorUnits(decimal.RequireFromString(tt.in)), tt.in)
	}
}

func TestDeliveryFee(t *testing.T) {
	assert.Equal(t, "49", DeliveryFee(PaymentCOD).String())
	assert.True(t, DeliveryFee(PaymentOnline).IsZero())
	assert.True(t, PaymentCOD.Valid())
	assert.False(t, PaymentMethod("CARD").Valid())
}

func TestCatalogItem_AllowsVariant(t *testing.T) {
	c := CatalogItem{Sizes: SplitOptions(" S, M ,,L"), Colors: nil}
	assert.Equal(t, []string{"S", "M", "L"}, c.Sizes)

	assert.True(t, c.AllowsVariant(Variant{Size: "M"}))
	assert.False(t, c.AllowsVariant(Variant{Size: "XL"}))
	assert.False(t, c.AllowsVariant(Variant{Size: ""}))
	// 色の選択肢が無い商品は空のみ
	assert.False(t, c.AllowsVariant(Variant{Size: "S", Color: "red"}))

	assert.True(t, CatalogItem{}.AllowsVariant(Variant{}))
	assert.Nil(t, SplitOptions("  "))
}
