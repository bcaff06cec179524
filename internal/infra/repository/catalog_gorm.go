package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

// 商品・カスタム商品をItemRefで引く（参照のみ）
type CatalogGormRepository struct {
	db *gorm.DB
}

func NewCatalogGormRepository(db *gorm.DB) *CatalogGormRepository {
	return &CatalogGormRepository{db: db}
}

func (r *CatalogGormRepository) FindByRef(ctx context.Context, ref model.ItemRef) (model.CatalogItem, error) {
	switch ref.Kind {
	case model.RefProduct:
		var p model.Product
		if err := r.db.WithContext(ctx).Where("id = ?", ref.ID).First(&p).Error; err != nil {
			return model.CatalogItem{}, translateErr(err)
		}
		return model.CatalogItem{
			Ref:    ref,
			Name:   p.Name,
			Price:  p.Price,
			Sizes:  model.SplitOptions(p.Sizes),
			Colors: model.SplitOptions(p.Colors),
			Active: p.IsActive,
		}, nil

	case model.RefCustom:
		var cp model.CustomProduct
		if err := r.db.WithContext(ctx).Where("id = ?", ref.ID).First(&cp).Error; err != nil {
			return model.CatalogItem{}, translateErr(err)
		}

		// サイズ・カラーの選択肢はベース商品に従う
		var base model.Product
		err := r.db.WithContext(ctx).Where("id = ?", cp.BaseProductID).First(&base).Error
		if err != nil {
			return model.CatalogItem{}, translateErr(err)
		}
		return model.CatalogItem{
			Ref:    ref,
			Name:   cp.Name,
			Price:  cp.Price,
			Sizes:  model.SplitOptions(base.Sizes),
			Colors: model.SplitOptions(base.Colors),
			Active: base.IsActive,
		}, nil
	}

	return model.CatalogItem{}, repo.ErrNotFound
}
