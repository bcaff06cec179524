package testutil

import (
	"testing"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func CreateUser(t *testing.T, gdb *gorm.DB, email string, role model.Role) model.User {
	t.Helper()
	u := model.User{Email: email, Role: role, IsActive: true}
	if err := gdb.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func CreateProduct(t *testing.T, gdb *gorm.DB, name string, price int64, sizes, colors string) model.Product {
	t.Helper()
	p := model.Product{
		Name:     name,
		Price:    decimal.NewFromInt(price),
		Sizes:    sizes,
		Colors:   colors,
		IsActive: true,
	}
	if err := gdb.Create(&p).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func CreateCustomProduct(t *testing.T, gdb *gorm.DB, userID int64, base model.Product, name string, price int64) model.CustomProduct {
	t.Helper()
	cp := model.CustomProduct{
		UserID:        userID,
		BaseProductID: base.ID,
		Name:          name,
		Price:         decimal.NewFromInt(price),
	}
	if err := gdb.Create(&cp).Error; err != nil {
		t.Fatalf("create custom product: %v", err)
	}
	return cp
}

func CreateAddress(t *testing.T, gdb *gorm.DB, userID int64, isDefault bool) model.Address {
	t.Helper()
	a := model.Address{
		UserID:     userID,
		PostalCode: "560001",
		State:      "Karnataka",
		City:       "Bengaluru",
		Line1:      "12 MG Road",
		Name:       "Test User",
		IsDefault:  isDefault,
	}
	if err := gdb.Create(&a).Error; err != nil {
		t.Fatalf("create address: %v", err)
	}
	return a
}
