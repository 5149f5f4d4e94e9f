package repository

import (
	"context"

	"volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/pkg/txn"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 列表筛选
const (
	FilterAll       = "ALL"
	FilterReviewing = "REVIEWING"
	FilterProcessed = "PROCESSED"
)

// VolunteerRepository 志愿者数据访问接口
type VolunteerRepository interface {
	Create(ctx context.Context, v *model.Volunteer) error
	Update(ctx context.Context, v *model.Volunteer) error
	GetByID(ctx context.Context, id int64) (*model.Volunteer, error)
	GetByUserID(ctx context.Context, userID int64) (*model.Volunteer, error)
	// LockByID / LockByUserID 使用 SELECT ... FOR UPDATE，必须在事务中调用
	LockByID(ctx context.Context, id int64) (*model.Volunteer, error)
	LockByUserID(ctx context.Context, userID int64) (*model.Volunteer, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	List(ctx context.Context, filter string) ([]model.Volunteer, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Volunteer, error)
}

type volunteerRepository struct {
	db *gorm.DB
}

func NewVolunteerRepository(db *gorm.DB) VolunteerRepository {
	return &volunteerRepository{db: db}
}

func (r *volunteerRepository) Create(ctx context.Context, v *model.Volunteer) error {
	return txn.DB(ctx, r.db).Create(v).Error
}

func (r *volunteerRepository) Update(ctx context.Context, v *model.Volunteer) error {
	return txn.DB(ctx, r.db).Model(v).Select("name", "phone", "status", "review_note", "review_time").Updates(v).Error
}

func (r *volunteerRepository) GetByID(ctx context.Context, id int64) (*model.Volunteer, error) {
	var v model.Volunteer
	if err := txn.DB(ctx, r.db).Where("id = ? AND deleted = ?", id, false).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *volunteerRepository) GetByUserID(ctx context.Context, userID int64) (*model.Volunteer, error) {
	var v model.Volunteer
	if err := txn.DB(ctx, r.db).Where("user_id = ? AND deleted = ?", userID, false).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *volunteerRepository) LockByID(ctx context.Context, id int64) (*model.Volunteer, error) {
	var v model.Volunteer
	err := txn.DB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND deleted = ?", id, false).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *volunteerRepository) LockByUserID(ctx context.Context, userID int64) (*model.Volunteer, error) {
	var v model.Volunteer
	err := txn.DB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND deleted = ?", userID, false).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpdateBalance 更新物化余额，与流水写入处于同一事务
func (r *volunteerRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	return txn.DB(ctx, r.db).
		Model(&model.Volunteer{}).
		Where("id = ?", id).
		UpdateColumn("points_balance", balance).Error
}

func (r *volunteerRepository) List(ctx context.Context, filter string) ([]model.Volunteer, error) {
	query := txn.DB(ctx, r.db).Where("deleted = ?", false)
	switch filter {
	case FilterReviewing:
		query = query.Where("status = ?", model.StatusReviewing)
	case FilterProcessed:
		query = query.Where("status <> ?", model.StatusReviewing)
	}

	var list []model.Volunteer
	if err := query.Order("create_time DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *volunteerRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Volunteer, error) {
	result := make(map[int64]model.Volunteer, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var list []model.Volunteer
	if err := txn.DB(ctx, r.db).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, v := range list {
		result[v.ID] = v
	}
	return result, nil
}
