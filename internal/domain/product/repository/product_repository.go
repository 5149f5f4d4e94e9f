package repository

import (
	"context"
	"errors"

	"volunteer_hub/internal/domain/product/model"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/errs"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrProductNotFound = errs.New(errs.KindNotFound, "商品不存在")

// ProductFilter 商品列表筛选
type ProductFilter struct {
	Keyword  string
	Category string
	// Status 管理端按状态筛选，为空时不过滤
	Status string
	// Storefront 用户端列表：隐藏已删除商品，指定分类时同时隐藏售罄商品
	Storefront bool
}

// ProductRepository 商品与库存数据访问接口。兑换流程只通过 Reserve / Release 改动库存
type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) error
	Update(ctx context.Context, p *model.Product) error
	GetByID(ctx context.Context, id int64) (*model.Product, error)
	LockByID(ctx context.Context, id int64) (*model.Product, error)
	// Reserve 原子地扣减库存，库存归零时置为 SOLD_OUT
	Reserve(ctx context.Context, id int64, n int64) error
	// Release 归还库存，SOLD_OUT 商品恢复为 AVAILABLE
	Release(ctx context.Context, id int64, n int64) error
	SoftDelete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ProductFilter, offset, limit int) ([]model.Product, int64, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, p *model.Product) error {
	return txn.DB(ctx, r.db).Create(p).Error
}

// Update 管理端修改商品，DELETED 商品不会被更新
func (r *productRepository) Update(ctx context.Context, p *model.Product) error {
	result := txn.DB(ctx, r.db).Model(&model.Product{}).
		Where("id = ? AND status <> ?", p.ID, model.StatusDeleted).
		Updates(map[string]interface{}{
			"name":        p.Name,
			"description": p.Description,
			"image_url":   p.ImageURL,
			"price":       p.Price,
			"stock":       p.Stock,
			"category":    p.Category,
			"status":      p.Status,
			"sort_weight": p.SortWeight,
			"update_time": p.UpdateTime,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.New(errs.KindValidation, "该商品已被删除，无法修改")
	}
	return nil
}

func (r *productRepository) GetByID(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	if err := txn.DB(ctx, r.db).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepository) LockByID(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	err := txn.DB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepository) Reserve(ctx context.Context, id int64, n int64) error {
	if n <= 0 {
		return errs.New(errs.KindValidation, "兑换数量必须大于0")
	}

	db := txn.DB(ctx, r.db)
	result := db.Model(&model.Product{}).
		Where("id = ? AND status = ? AND stock >= ?", id, model.StatusAvailable, n).
		Updates(map[string]interface{}{
			"stock":  gorm.Expr("stock - ?", n),
			"status": gorm.Expr("CASE WHEN stock - ? <= 0 THEN ? ELSE status END", n, model.StatusSoldOut),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// 没有命中时区分具体原因
	var p model.Product
	if err := db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProductNotFound
		}
		return err
	}
	if p.Status != model.StatusAvailable {
		return errs.ErrProductUnavailable
	}
	return errs.ErrInsufficientStock
}

func (r *productRepository) Release(ctx context.Context, id int64, n int64) error {
	if n <= 0 {
		return nil
	}
	result := txn.DB(ctx, r.db).Model(&model.Product{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"stock":  gorm.Expr("stock + ?", n),
			"status": gorm.Expr("CASE WHEN status = ? AND stock + ? > 0 THEN ? ELSE status END", model.StatusSoldOut, n, model.StatusAvailable),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *productRepository) SoftDelete(ctx context.Context, id int64) error {
	result := txn.DB(ctx, r.db).Model(&model.Product{}).
		Where("id = ? AND status <> ?", id, model.StatusDeleted).
		UpdateColumn("status", model.StatusDeleted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errs.New(errs.KindValidation, "该商品已被删除")
	}
	return nil
}

func (r *productRepository) List(ctx context.Context, filter ProductFilter, offset, limit int) ([]model.Product, int64, error) {
	query := txn.DB(ctx, r.db).Model(&model.Product{})

	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		query = query.Where("name ILIKE ? OR description ILIKE ?", like, like)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Storefront {
		hidden := []string{model.StatusDeleted}
		if filter.Category != "" {
			hidden = append(hidden, model.StatusSoldOut)
		}
		query = query.Where("status NOT IN ?", hidden)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.Product
	err := query.Order("sort_weight DESC").Order("create_time DESC").Order("id DESC").
		Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *productRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	result := make(map[int64]model.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var list []model.Product
	if err := txn.DB(ctx, r.db).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, p := range list {
		result[p.ID] = p
	}
	return result, nil
}
