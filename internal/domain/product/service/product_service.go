package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"volunteer_hub/internal/domain/product/model"
	"volunteer_hub/internal/domain/product/repository"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/logger"
	"volunteer_hub/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProductQuery 商品列表查询参数
type ProductQuery struct {
	utils.Pagination
	Keyword  string `form:"keyword"`
	Category string `form:"category"`
	Status   string `form:"status"`
}

// ProductInput 管理员新增商品
type ProductInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ImageURL    string          `json:"imageUrl"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock"`
	Category    string          `json:"category"`
	Status      string          `json:"status"`
	SortWeight  int             `json:"sortWeight"`
}

// ProductUpdateInput 管理员修改商品，空字段保持不变
type ProductUpdateInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	ImageURL    *string          `json:"imageUrl"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int64           `json:"stock"`
	Category    *string          `json:"category"`
	Status      *string          `json:"status"`
	SortWeight  *int             `json:"sortWeight"`
}

// ProductView 商品信息
type ProductView struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Stock       int64   `json:"stock"`
	Status      string  `json:"status"`
	ImageURL    string  `json:"imageUrl"`
	SortWeight  int     `json:"sortWeight"`
}

// ProductService 商品目录
type ProductService interface {
	List(ctx context.Context, q ProductQuery) (utils.PageResult[ProductView], error)
	AdminList(ctx context.Context, q ProductQuery) (utils.PageResult[ProductView], error)
	Create(ctx context.Context, in ProductInput) (*ProductView, error)
	Update(ctx context.Context, id int64, in ProductUpdateInput) (*ProductView, error)
	Delete(ctx context.Context, id int64) error
}

type productService struct {
	products repository.ProductRepository
	tx       txn.Runner
	now      func() time.Time
}

func NewProductService(products repository.ProductRepository, tx txn.Runner) ProductService {
	return &productService{products: products, tx: tx, now: time.Now}
}

// List 用户端商品列表：不展示已删除商品，按分类筛选时不展示售罄商品
func (s *productService) List(ctx context.Context, q ProductQuery) (utils.PageResult[ProductView], error) {
	return s.list(ctx, q, repository.ProductFilter{
		Keyword:    strings.TrimSpace(q.Keyword),
		Category:   normalizeCategory(q.Category),
		Storefront: true,
	})
}

func (s *productService) AdminList(ctx context.Context, q ProductQuery) (utils.PageResult[ProductView], error) {
	status := strings.ToUpper(strings.TrimSpace(q.Status))
	if status == "ALL" {
		status = ""
	}
	if status != "" && !model.ValidStatus(status) {
		return utils.PageResult[ProductView]{}, errs.Newf(errs.KindValidation, "未知的商品状态: %s", q.Status)
	}
	return s.list(ctx, q, repository.ProductFilter{
		Keyword:  strings.TrimSpace(q.Keyword),
		Category: normalizeCategory(q.Category),
		Status:   status,
	})
}

func (s *productService) list(ctx context.Context, q ProductQuery, filter repository.ProductFilter) (utils.PageResult[ProductView], error) {
	if err := q.Pagination.Normalize(); err != nil {
		return utils.PageResult[ProductView]{}, err
	}
	offset, limit := q.Pagination.GetPageOffset()
	list, total, err := s.products.List(ctx, filter, offset, limit)
	if err != nil {
		return utils.PageResult[ProductView]{}, err
	}

	views := make([]ProductView, 0, len(list))
	for i := range list {
		list[i].Refresh()
		views = append(views, toProductView(&list[i]))
	}
	return utils.NewPageResult(views, q.Pagination, total), nil
}

func (s *productService) Create(ctx context.Context, in ProductInput) (*ProductView, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	if !in.Price.IsPositive() {
		return nil, errs.New(errs.KindValidation, "商品价格必须大于0")
	}
	if in.Stock < 0 {
		return nil, errs.New(errs.KindValidation, "库存数量不能为负数")
	}
	if in.SortWeight < 0 {
		return nil, errs.New(errs.KindValidation, "排序权重不能为负数")
	}
	category := normalizeCategory(in.Category)
	if category == "" {
		return nil, errs.New(errs.KindValidation, "商品分类不能为空")
	}
	status := strings.ToUpper(strings.TrimSpace(in.Status))
	if status == "" {
		status = model.StatusAvailable
	}
	if status != model.StatusAvailable && status != model.StatusSoldOut {
		return nil, errs.New(errs.KindValidation, "商品状态只能为 AVAILABLE 或 SOLD_OUT")
	}

	p := &model.Product{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Price:       utils.RoundPoints(in.Price),
		Stock:       in.Stock,
		Category:    category,
		Status:      status,
		SortWeight:  in.SortWeight,
	}
	p.Refresh()
	if err := s.products.Create(ctx, p); err != nil {
		return nil, err
	}

	logger.Log.Info("product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	view := toProductView(p)
	return &view, nil
}

func (s *productService) Update(ctx context.Context, id int64, in ProductUpdateInput) (*ProductView, error) {
	var updated *model.Product
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		p, err := s.products.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrProductNotFound
			}
			return err
		}
		if p.Deleted() {
			return errs.New(errs.KindValidation, "该商品已被删除，无法修改")
		}

		if in.Name != nil {
			name, err := validateName(*in.Name)
			if err != nil {
				return err
			}
			p.Name = name
		}
		if in.Description != nil {
			p.Description = strings.TrimSpace(*in.Description)
		}
		if in.ImageURL != nil {
			p.ImageURL = strings.TrimSpace(*in.ImageURL)
		}
		if in.Price != nil {
			if !in.Price.IsPositive() {
				return errs.New(errs.KindValidation, "商品价格必须大于0")
			}
			p.Price = utils.RoundPoints(*in.Price)
		}
		if in.Stock != nil {
			if *in.Stock < 0 {
				return errs.New(errs.KindValidation, "库存数量不能为负数")
			}
			p.Stock = *in.Stock
		}
		if in.Category != nil && normalizeCategory(*in.Category) != "" {
			p.Category = normalizeCategory(*in.Category)
		}
		if in.SortWeight != nil {
			if *in.SortWeight < 0 {
				return errs.New(errs.KindValidation, "排序权重不能为负数")
			}
			p.SortWeight = *in.SortWeight
		}
		if in.Status != nil && strings.TrimSpace(*in.Status) != "" {
			st := strings.ToUpper(strings.TrimSpace(*in.Status))
			if st != model.StatusAvailable && st != model.StatusSoldOut {
				return errs.New(errs.KindValidation, "商品状态只能为 AVAILABLE 或 SOLD_OUT")
			}
			p.Status = st
		} else if in.Stock != nil && p.Status == model.StatusSoldOut && p.Stock > 0 {
			p.Status = model.StatusAvailable
		}
		p.Refresh()

		p.UpdateTime = s.now()
		updated = p
		return s.products.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("product updated", zap.Int64("product_id", id))
	view := toProductView(updated)
	return &view, nil
}

func (s *productService) Delete(ctx context.Context, id int64) error {
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		if _, err := s.products.LockByID(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrProductNotFound
			}
			return err
		}
		return s.products.SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	logger.Log.Info("product deleted", zap.Int64("product_id", id))
	return nil
}

func toProductView(p *model.Product) ProductView {
	return ProductView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Price:       utils.PointsValue(p.Price),
		Stock:       p.Stock,
		Status:      p.Status,
		ImageURL:    p.ImageURL,
		SortWeight:  p.SortWeight,
	}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.New(errs.KindValidation, "商品名称不能为空")
	}
	if utf8.RuneCountInString(name) > 50 {
		return "", errs.New(errs.KindValidation, "商品名称长度不能超过50个字符")
	}
	return name, nil
}

func normalizeCategory(category string) string {
	category = strings.ToUpper(strings.TrimSpace(category))
	if category == "ALL" {
		return ""
	}
	return category
}
