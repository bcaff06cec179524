package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type UserRepository interface {
	// 見つからなければ (nil, nil)
	FindByID(ctx context.Context, userID int64) (*model.User, error)
}
