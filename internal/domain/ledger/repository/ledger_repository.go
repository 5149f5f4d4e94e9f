package repository

import (
	"context"

	"volunteer_hub/internal/domain/ledger/model"
	"volunteer_hub/internal/pkg/txn"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerRepository 积分流水数据访问接口
type LedgerRepository interface {
	Create(ctx context.Context, rec *model.PointChangeRecord) error
	GetByID(ctx context.Context, id int64) (*model.PointChangeRecord, error)
	SumByVolunteer(ctx context.Context, volunteerID int64) (decimal.Decimal, error)
	// SumBefore 指定流水之前 (id 更小) 的累计值
	SumBefore(ctx context.Context, volunteerID, id int64) (decimal.Decimal, error)
	SumByRelated(ctx context.Context, changeType, relatedType string, relatedID int64) (decimal.Decimal, error)
	// ListFrom 从指定流水开始 (含) 按写入顺序返回
	ListFrom(ctx context.Context, volunteerID, fromID int64) ([]model.PointChangeRecord, error)
	UpdateEntry(ctx context.Context, rec *model.PointChangeRecord) error
	ListByVolunteer(ctx context.Context, volunteerID int64, changeType string, offset, limit int) ([]model.PointChangeRecord, int64, error)
	ListAll(ctx context.Context, changeType, nameKeyword string, offset, limit int) ([]model.PointChangeRecord, int64, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Create(ctx context.Context, rec *model.PointChangeRecord) error {
	return txn.DB(ctx, r.db).Create(rec).Error
}

func (r *ledgerRepository) GetByID(ctx context.Context, id int64) (*model.PointChangeRecord, error) {
	var rec model.PointChangeRecord
	if err := txn.DB(ctx, r.db).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ledgerRepository) sum(query *gorm.DB) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := query.Model(&model.PointChangeRecord{}).
		Select("COALESCE(SUM(change_points), 0)").
		Row().
		Scan(&total)
	return total, err
}

func (r *ledgerRepository) SumByVolunteer(ctx context.Context, volunteerID int64) (decimal.Decimal, error) {
	return r.sum(txn.DB(ctx, r.db).Where("volunteer_id = ?", volunteerID))
}

func (r *ledgerRepository) SumBefore(ctx context.Context, volunteerID, id int64) (decimal.Decimal, error) {
	return r.sum(txn.DB(ctx, r.db).Where("volunteer_id = ? AND id < ?", volunteerID, id))
}

func (r *ledgerRepository) SumByRelated(ctx context.Context, changeType, relatedType string, relatedID int64) (decimal.Decimal, error) {
	return r.sum(txn.DB(ctx, r.db).
		Where("change_type = ? AND related_record_type = ? AND related_record_id = ?", changeType, relatedType, relatedID))
}

func (r *ledgerRepository) ListFrom(ctx context.Context, volunteerID, fromID int64) ([]model.PointChangeRecord, error) {
	var list []model.PointChangeRecord
	err := txn.DB(ctx, r.db).
		Where("volunteer_id = ? AND id >= ?", volunteerID, fromID).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func (r *ledgerRepository) UpdateEntry(ctx context.Context, rec *model.PointChangeRecord) error {
	return txn.DB(ctx, r.db).
		Model(&model.PointChangeRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"change_points": rec.ChangePoints,
			"balance_after": rec.BalanceAfter,
			"reason":        rec.Reason,
			"note":          rec.Note,
		}).Error
}

func (r *ledgerRepository) ListByVolunteer(ctx context.Context, volunteerID int64, changeType string, offset, limit int) ([]model.PointChangeRecord, int64, error) {
	query := txn.DB(ctx, r.db).Model(&model.PointChangeRecord{}).Where("volunteer_id = ?", volunteerID)
	if changeType != "" {
		query = query.Where("change_type = ?", changeType)
	}
	return r.page(query, offset, limit)
}

func (r *ledgerRepository) ListAll(ctx context.Context, changeType, nameKeyword string, offset, limit int) ([]model.PointChangeRecord, int64, error) {
	query := txn.DB(ctx, r.db).Model(&model.PointChangeRecord{})
	if changeType != "" {
		query = query.Where("change_type = ?", changeType)
	}
	if nameKeyword != "" {
		query = query.Where("volunteer_id IN (SELECT id FROM volunteers WHERE name ILIKE ?)", "%"+nameKeyword+"%")
	}
	return r.page(query, offset, limit)
}

func (r *ledgerRepository) page(query *gorm.DB, offset, limit int) ([]model.PointChangeRecord, int64, error) {
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.PointChangeRecord
	err := query.Order("change_time DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}
