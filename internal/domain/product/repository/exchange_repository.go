package repository

import (
	"context"

	"volunteer_hub/internal/domain/product/model"
	"volunteer_hub/internal/pkg/txn"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExchangeRepository 兑换记录数据访问接口
type ExchangeRepository interface {
	Create(ctx context.Context, rec *model.ExchangeRecord) error
	Update(ctx context.Context, rec *model.ExchangeRecord) error
	GetByID(ctx context.Context, id int64) (*model.ExchangeRecord, error)
	LockByID(ctx context.Context, id int64) (*model.ExchangeRecord, error)
	ListByVolunteer(ctx context.Context, volunteerID int64, offset, limit int) ([]model.ExchangeRecord, int64, error)
	ListAll(ctx context.Context, status string, offset, limit int) ([]model.ExchangeRecord, int64, error)
}

type exchangeRepository struct {
	db *gorm.DB
}

func NewExchangeRepository(db *gorm.DB) ExchangeRepository {
	return &exchangeRepository{db: db}
}

func (r *exchangeRepository) Create(ctx context.Context, rec *model.ExchangeRecord) error {
	return txn.DB(ctx, r.db).Create(rec).Error
}

func (r *exchangeRepository) Update(ctx context.Context, rec *model.ExchangeRecord) error {
	return txn.DB(ctx, r.db).Model(rec).Select("status", "process_time", "note").Updates(rec).Error
}

func (r *exchangeRepository) GetByID(ctx context.Context, id int64) (*model.ExchangeRecord, error) {
	var rec model.ExchangeRecord
	if err := txn.DB(ctx, r.db).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *exchangeRepository) LockByID(ctx context.Context, id int64) (*model.ExchangeRecord, error) {
	var rec model.ExchangeRecord
	err := txn.DB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *exchangeRepository) ListByVolunteer(ctx context.Context, volunteerID int64, offset, limit int) ([]model.ExchangeRecord, int64, error) {
	return r.page(txn.DB(ctx, r.db).Model(&model.ExchangeRecord{}).Where("volunteer_id = ?", volunteerID), offset, limit)
}

func (r *exchangeRepository) ListAll(ctx context.Context, status string, offset, limit int) ([]model.ExchangeRecord, int64, error) {
	query := txn.DB(ctx, r.db).Model(&model.ExchangeRecord{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	return r.page(query, offset, limit)
}

func (r *exchangeRepository) page(query *gorm.DB, offset, limit int) ([]model.ExchangeRecord, int64, error) {
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.ExchangeRecord
	err := query.Order("order_time DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}
