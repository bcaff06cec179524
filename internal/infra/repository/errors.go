package repository

import (
	"errors"
	"strings"

	repo "storefront/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// postgres: unique_violation
const pgUniqueViolation = "23505"

// ドライバのエラーをrepositoryのエラーに寄せる
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repo.ErrNotFound
	}
	if isUniqueViolation(err) {
		return repo.ErrConflict
	}
	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	// sqlite（TranslateErrorが無効なとき）
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
