package repository

import (
	"context"
	"time"

	"volunteer_hub/internal/domain/activity/model"
	"volunteer_hub/internal/pkg/txn"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivityFilter 活动列表筛选条件，空值表示不过滤
type ActivityFilter struct {
	Keyword string
	Type    string
	// Status 按实际状态过滤
	Status string
	// Day 开始日期所在的那一天
	Day          *time.Time
	SortByStatus bool
}

// ActivityRepository 活动数据访问接口
type ActivityRepository interface {
	Create(ctx context.Context, a *model.Activity) error
	Update(ctx context.Context, a *model.Activity) error
	GetByID(ctx context.Context, id int64) (*model.Activity, error)
	// LockByID SELECT ... FOR UPDATE，必须在事务中调用
	LockByID(ctx context.Context, id int64) (*model.Activity, error)
	UpdateParticipants(ctx context.Context, id int64, cur int) error
	List(ctx context.Context, filter ActivityFilter, now time.Time, offset, limit int) ([]model.Activity, int64, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Activity, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, a *model.Activity) error {
	return txn.DB(ctx, r.db).Create(a).Error
}

func (r *activityRepository) Update(ctx context.Context, a *model.Activity) error {
	return txn.DB(ctx, r.db).Model(a).
		Select("title", "description", "type", "location", "start_time", "end_time",
			"status", "points_per_hour", "max_participants", "update_time").
		Updates(a).Error
}

func (r *activityRepository) GetByID(ctx context.Context, id int64) (*model.Activity, error) {
	var a model.Activity
	if err := txn.DB(ctx, r.db).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *activityRepository) LockByID(ctx context.Context, id int64) (*model.Activity, error) {
	var a model.Activity
	err := txn.DB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *activityRepository) UpdateParticipants(ctx context.Context, id int64, cur int) error {
	return txn.DB(ctx, r.db).
		Model(&model.Activity{}).
		Where("id = ?", id).
		UpdateColumn("cur_participants", cur).Error
}

func (r *activityRepository) List(ctx context.Context, filter ActivityFilter, now time.Time, offset, limit int) ([]model.Activity, int64, error) {
	query := txn.DB(ctx, r.db).Model(&model.Activity{})

	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", like, like)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = withEffectiveStatus(query, filter.Status, now)
	}
	if filter.Day != nil {
		dayStart := *filter.Day
		query = query.Where("start_time >= ? AND start_time < ?", dayStart, dayStart.AddDate(0, 0, 1))
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.SortByStatus {
		query = query.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  "CASE WHEN status = ? OR end_time < ? THEN 2 WHEN start_time <= ? THEN 1 ELSE 0 END",
			Vars: []interface{}{model.StatusCancelled, now, now},
		}})
	}

	var list []model.Activity
	err := query.Order("start_time DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error
	return list, total, err
}

// withEffectiveStatus 与 model.EffectiveStatus 等价的 SQL 条件
func withEffectiveStatus(query *gorm.DB, status string, now time.Time) *gorm.DB {
	switch status {
	case model.StatusCancelled:
		return query.Where("status = ?", model.StatusCancelled)
	case model.StatusCompleted:
		return query.Where("status <> ? AND end_time < ?", model.StatusCancelled, now)
	case model.StatusOngoing:
		return query.Where("status <> ? AND start_time <= ? AND end_time >= ?", model.StatusCancelled, now, now)
	case model.StatusConfirmed:
		return query.Where("status = ? AND start_time > ?", model.StatusConfirmed, now)
	default:
		return query.Where("status NOT IN ? AND start_time > ?", []string{model.StatusCancelled, model.StatusConfirmed}, now)
	}
}

func (r *activityRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Activity, error) {
	result := make(map[int64]model.Activity, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var list []model.Activity
	if err := txn.DB(ctx, r.db).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	for _, a := range list {
		result[a.ID] = a
	}
	return result, nil
}
