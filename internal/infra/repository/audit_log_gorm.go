package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type AuditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) *AuditLogGormRepository {
	return &AuditLogGormRepository{db: db}
}

func (r *AuditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	return r.db.WithContext(ctx).Create(&log).Error
}

// 新しい順。limitは1..200（範囲外は50）
func (r *AuditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var logs []model.AuditLog
	err := r.db.WithContext(ctx).
		Model(&model.AuditLog{}).
		Scopes(auditFilter(f)).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func auditFilter(f repo.AuditLogFilter) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if f.ActorUserID != nil {
			q = q.Where("actor_user_id = ?", *f.ActorUserID)
		}
		if f.Action != nil {
			q = q.Where("action = ?", *f.Action)
		}
		if f.ResourceType != nil {
			q = q.Where("resource_type = ?", *f.ResourceType)
		}
		if f.ResourceID != nil {
			q = q.Where("resource_id = ?", *f.ResourceID)
		}
		if f.CreatedFrom != nil {
			q = q.Where("created_at >= ?", *f.CreatedFrom)
		}
		if f.CreatedTo != nil {
			q = q.Where("created_at <= ?", *f.CreatedTo)
		}
		return q
	}
}
