package repository

import (
	"context"

	"volunteer_hub/internal/domain/activity/model"
	"volunteer_hub/internal/pkg/txn"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SignupRepository 报名记录数据访问接口
type SignupRepository interface {
	Create(ctx context.Context, rec *model.SignupRecord) error
	Update(ctx context.Context, rec *model.SignupRecord) error
	GetByID(ctx context.Context, id int64) (*model.SignupRecord, error)
	LockByID(ctx context.Context, id int64) (*model.SignupRecord, error)
	// FindLive 志愿者在该活动下占用名额的记录，没有时返回 gorm.ErrRecordNotFound
	FindLive(ctx context.Context, volunteerID, activityID int64) (*model.SignupRecord, error)
	ListByActivity(ctx context.Context, activityID int64) ([]model.SignupRecord, error)
	ListByVolunteer(ctx context.Context, volunteerID int64, offset, limit int) ([]model.SignupRecord, int64, error)
	// LatestStatuses 志愿者在各活动下最近一条报名记录的状态
	LatestStatuses(ctx context.Context, volunteerID int64, activityIDs []int64) (map[int64]string, error)
	SumParticipatedHours(ctx context.Context, volunteerID int64) (decimal.Decimal, error)
}

type signupRepository struct {
	db *gorm.DB
}

func NewSignupRepository(db *gorm.DB) SignupRepository {
	return &signupRepository{db: db}
}

func (r *signupRepository) Create(ctx context.Context, rec *model.SignupRecord) error {
	return txn.DB(ctx, r.db).Create(rec).Error
}

func (r *signupRepository) Update(ctx context.Context, rec *model.SignupRecord) error {
	return txn.DB(ctx, r.db).Model(rec).
		Select("status", "volunteer_start_time", "volunteer_end_time", "actual_hours", "points", "update_time", "note").
		Updates(rec).Error
}

func (r *signupRepository) GetByID(ctx context.Context, id int64) (*model.SignupRecord, error) {
	var rec model.SignupRecord
	if err := txn.DB(ctx, r.db).First(&rec, id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *signupRepository) LockByID(ctx context.Context, id int64) (*model.SignupRecord, error) {
	var rec model.SignupRecord
	err := txn.DB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *signupRepository) FindLive(ctx context.Context, volunteerID, activityID int64) (*model.SignupRecord, error) {
	var rec model.SignupRecord
	err := txn.DB(ctx, r.db).
		Where("volunteer_id = ? AND activity_id = ? AND status NOT IN ?",
			volunteerID, activityID, []string{model.SignupCancelled, model.SignupRejected}).
		Order("id DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *signupRepository) ListByActivity(ctx context.Context, activityID int64) ([]model.SignupRecord, error) {
	var list []model.SignupRecord
	err := txn.DB(ctx, r.db).
		Where("activity_id = ?", activityID).
		Order("signup_time DESC").
		Find(&list).Error
	return list, err
}

func (r *signupRepository) ListByVolunteer(ctx context.Context, volunteerID int64, offset, limit int) ([]model.SignupRecord, int64, error) {
	query := txn.DB(ctx, r.db).Model(&model.SignupRecord{}).Where("volunteer_id = ?", volunteerID).Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.SignupRecord
	err := query.Order("signup_time DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

func (r *signupRepository) LatestStatuses(ctx context.Context, volunteerID int64, activityIDs []int64) (map[int64]string, error) {
	result := make(map[int64]string, len(activityIDs))
	if len(activityIDs) == 0 {
		return result, nil
	}

	var list []model.SignupRecord
	err := txn.DB(ctx, r.db).
		Select("id", "activity_id", "status").
		Where("volunteer_id = ? AND activity_id IN ?", volunteerID, activityIDs).
		Order("id ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	for _, rec := range list {
		result[rec.ActivityID] = rec.Status
	}
	return result, nil
}

func (r *signupRepository) SumParticipatedHours(ctx context.Context, volunteerID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := txn.DB(ctx, r.db).
		Model(&model.SignupRecord{}).
		Select("COALESCE(SUM(actual_hours), 0)").
		Where("volunteer_id = ? AND status = ?", volunteerID, model.SignupParticipated).
		Row().
		Scan(&total)
	return total, err
}
