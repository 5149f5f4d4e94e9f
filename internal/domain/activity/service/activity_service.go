package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"volunteer_hub/internal/domain/activity/model"
	"volunteer_hub/internal/domain/activity/repository"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/logger"
	"volunteer_hub/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListQuery 活动列表查询参数
type ListQuery struct {
	utils.Pagination
	Keyword string `form:"keyword"`
	Type    string `form:"type"`
	Status  string `form:"status"`
	Date    string `form:"date"`
	Sort    string `form:"sort"`
}

// CreateActivityInput 管理员创建活动
type CreateActivityInput struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Type            string          `json:"type"`
	Location        string          `json:"location"`
	StartTime       string          `json:"startTime"`
	EndTime         string          `json:"endTime"`
	Status          string          `json:"status"`
	PointsPerHour   decimal.Decimal `json:"pointsPerHour"`
	MaxParticipants int             `json:"maxParticipants"`
}

// UpdateActivityInput 管理员修改活动，空字段保持不变
type UpdateActivityInput struct {
	Title           *string          `json:"title"`
	Description     *string          `json:"description"`
	Type            *string          `json:"type"`
	Location        *string          `json:"location"`
	StartTime       *string          `json:"startTime"`
	EndTime         *string          `json:"endTime"`
	Status          *string          `json:"status"`
	PointsPerHour   *decimal.Decimal `json:"pointsPerHour"`
	MaxParticipants *int             `json:"maxParticipants"`
}

// ActivityView 活动信息，status 为实际状态
type ActivityView struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Type            string  `json:"type"`
	Location        string  `json:"location"`
	StartTime       string  `json:"startTime"`
	EndTime         string  `json:"endTime"`
	Status          string  `json:"status"`
	PointsPerHour   float64 `json:"pointsPerHour"`
	MaxParticipants int     `json:"maxParticipants"`
	CurParticipants int     `json:"curParticipants"`
	SignupStatus    *string `json:"signupStatus"`
}

// SignupRecordView 志愿者自己的报名记录
type SignupRecordView struct {
	ID                 int64   `json:"id"`
	ActivityID         int64   `json:"activityId"`
	ActivityTitle      string  `json:"activityTitle"`
	ActivityStartTime  string  `json:"activityStartTime"`
	ActivityEndTime    string  `json:"activityEndTime"`
	VolunteerStartTime *string `json:"volunteerStartTime"`
	VolunteerEndTime   *string `json:"volunteerEndTime"`
	Status             string  `json:"status"`
	SignupTime         string  `json:"signupTime"`
	ActualHours        float64 `json:"actualHours"`
	Points             float64 `json:"points"`
	Note               string  `json:"note"`
}

// AdminSignupView 管理端报名记录
type AdminSignupView struct {
	ID                 int64   `json:"id"`
	SignupID           int64   `json:"signupId"`
	VolunteerID        int64   `json:"volunteerId"`
	VolunteerName      string  `json:"volunteerName"`
	VolunteerPhone     string  `json:"volunteerPhone"`
	Status             string  `json:"status"`
	VolunteerStartTime *string `json:"volunteerStartTime"`
	VolunteerEndTime   *string `json:"volunteerEndTime"`
	ActualHours        float64 `json:"actualHours"`
	Points             float64 `json:"points"`
	SignupTime         string  `json:"signupTime"`
	Note               string  `json:"note"`
}

// ActivityService 活动列表、个人报名记录与管理端活动维护
type ActivityService interface {
	List(ctx context.Context, p *auth.Principal, q ListQuery) (utils.PageResult[ActivityView], error)
	MySignups(ctx context.Context, volunteerID int64, page utils.Pagination) (utils.PageResult[SignupRecordView], error)
	ServiceHours(ctx context.Context, volunteerID int64) (decimal.Decimal, error)
	Create(ctx context.Context, in CreateActivityInput) (*ActivityView, error)
	Update(ctx context.Context, id int64, in UpdateActivityInput) (*ActivityView, error)
	Cancel(ctx context.Context, id int64) error
	ListSignups(ctx context.Context, activityID int64) ([]AdminSignupView, error)
}

type activityService struct {
	activities repository.ActivityRepository
	signups    repository.SignupRepository
	volunteers VolunteerStore
	tx         txn.Runner
	now        func() time.Time
}

func NewActivityService(
	activities repository.ActivityRepository,
	signups repository.SignupRepository,
	volunteers VolunteerStore,
	tx txn.Runner,
) ActivityService {
	return &activityService{
		activities: activities,
		signups:    signups,
		volunteers: volunteers,
		tx:         tx,
		now:        time.Now,
	}
}

func (s *activityService) List(ctx context.Context, p *auth.Principal, q ListQuery) (utils.PageResult[ActivityView], error) {
	var empty utils.PageResult[ActivityView]
	if err := q.Pagination.Normalize(); err != nil {
		return empty, err
	}

	filter := repository.ActivityFilter{
		Keyword:      strings.TrimSpace(q.Keyword),
		SortByStatus: strings.EqualFold(strings.TrimSpace(q.Sort), "status"),
	}
	if t := strings.ToUpper(strings.TrimSpace(q.Type)); t != "" && t != "ALL" {
		if !model.ValidType(t) {
			return empty, errs.Newf(errs.KindValidation, "未知的活动类型: %s", q.Type)
		}
		filter.Type = t
	}
	if st := strings.ToUpper(strings.TrimSpace(q.Status)); st != "" && st != "ALL" {
		if !model.ValidStatus(st) {
			return empty, errs.Newf(errs.KindValidation, "未知的活动状态: %s", q.Status)
		}
		filter.Status = st
	}
	if d := strings.TrimSpace(q.Date); d != "" {
		day, err := utils.ParseDate(d)
		if err != nil {
			return empty, err
		}
		filter.Day = &day
	}

	now := s.now()
	offset, limit := q.Pagination.GetPageOffset()
	list, total, err := s.activities.List(ctx, filter, now, offset, limit)
	if err != nil {
		return empty, err
	}

	statuses, err := s.callerStatuses(ctx, p, list)
	if err != nil {
		return empty, err
	}

	views := make([]ActivityView, 0, len(list))
	for i := range list {
		view := toActivityView(&list[i], now)
		if st, ok := statuses[list[i].ID]; ok {
			st := st
			view.SignupStatus = &st
		}
		views = append(views, view)
	}
	return utils.NewPageResult(views, q.Pagination, total), nil
}

// callerStatuses 已认证志愿者在当前页各活动下的报名状态
func (s *activityService) callerStatuses(ctx context.Context, p *auth.Principal, list []model.Activity) (map[int64]string, error) {
	if p == nil || len(list) == 0 {
		return nil, nil
	}
	v, err := s.volunteers.GetByUserID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !v.IsCertified() {
		return nil, nil
	}

	ids := make([]int64, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	return s.signups.LatestStatuses(ctx, v.ID, ids)
}

func (s *activityService) MySignups(ctx context.Context, volunteerID int64, page utils.Pagination) (utils.PageResult[SignupRecordView], error) {
	offset, limit := page.GetPageOffset()
	list, total, err := s.signups.ListByVolunteer(ctx, volunteerID, offset, limit)
	if err != nil {
		return utils.PageResult[SignupRecordView]{}, err
	}

	ids := make([]int64, 0, len(list))
	for _, rec := range list {
		ids = append(ids, rec.ActivityID)
	}
	activities, err := s.activities.FindByIDs(ctx, ids)
	if err != nil {
		return utils.PageResult[SignupRecordView]{}, err
	}

	views := make([]SignupRecordView, 0, len(list))
	for i := range list {
		rec := &list[i]
		a := activities[rec.ActivityID]
		views = append(views, SignupRecordView{
			ID:                 rec.ID,
			ActivityID:         rec.ActivityID,
			ActivityTitle:      a.Title,
			ActivityStartTime:  utils.FormatTime(a.StartTime),
			ActivityEndTime:    utils.FormatTime(a.EndTime),
			VolunteerStartTime: utils.FormatTimePtr(rec.VolunteerStartTime),
			VolunteerEndTime:   utils.FormatTimePtr(rec.VolunteerEndTime),
			Status:             rec.Status,
			SignupTime:         utils.FormatTime(rec.SignupTime),
			ActualHours:        rec.ActualHours.InexactFloat64(),
			Points:             utils.PointsValue(rec.Points),
			Note:               rec.Note,
		})
	}
	return utils.NewPageResult(views, page, total), nil
}

func (s *activityService) ServiceHours(ctx context.Context, volunteerID int64) (decimal.Decimal, error) {
	return s.signups.SumParticipatedHours(ctx, volunteerID)
}

func (s *activityService) Create(ctx context.Context, in CreateActivityInput) (*ActivityView, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errs.New(errs.KindValidation, "活动名称不能为空")
	}
	if utf8.RuneCountInString(title) > 100 {
		return nil, errs.New(errs.KindValidation, "活动名称长度不能超过100个字符")
	}
	location := strings.TrimSpace(in.Location)
	if location == "" {
		return nil, errs.New(errs.KindValidation, "活动地点不能为空")
	}
	if strings.TrimSpace(in.StartTime) == "" {
		return nil, errs.New(errs.KindValidation, "活动开始时间不能为空")
	}
	if strings.TrimSpace(in.EndTime) == "" {
		return nil, errs.New(errs.KindValidation, "活动结束时间不能为空")
	}
	start, err := utils.ParseDateTime("活动开始时间", in.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := utils.ParseDateTime("活动结束时间", in.EndTime)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, errs.New(errs.KindValidation, "活动结束时间必须晚于开始时间")
	}
	if !in.PointsPerHour.IsPositive() {
		return nil, errs.New(errs.KindValidation, "每小时积分必须大于0")
	}
	if in.MaxParticipants < 1 {
		return nil, errs.New(errs.KindValidation, "活动人数上限必须大于0")
	}
	activityType := strings.ToUpper(strings.TrimSpace(in.Type))
	if activityType == "" {
		return nil, errs.New(errs.KindValidation, "活动类型不能为空")
	}
	if !model.ValidType(activityType) {
		return nil, errs.Newf(errs.KindValidation, "未知的活动类型: %s", in.Type)
	}
	status := strings.ToUpper(strings.TrimSpace(in.Status))
	if status == "" {
		status = model.StatusRecruiting
	}
	if !model.ValidDeclaredStatus(status) {
		return nil, errs.New(errs.KindValidation, "活动状态只能为 RECRUITING、CONFIRMED 或 CANCELLED")
	}

	a := &model.Activity{
		Title:           title,
		Description:     strings.TrimSpace(in.Description),
		Type:            activityType,
		Location:        location,
		StartTime:       start,
		EndTime:         end,
		Status:          status,
		PointsPerHour:   utils.RoundPoints(in.PointsPerHour),
		MaxParticipants: in.MaxParticipants,
	}
	if err := s.activities.Create(ctx, a); err != nil {
		return nil, err
	}

	logger.Log.Info("activity created", zap.Int64("activity_id", a.ID), zap.String("title", a.Title))
	view := toActivityView(a, s.now())
	return &view, nil
}

func (s *activityService) Update(ctx context.Context, id int64, in UpdateActivityInput) (*ActivityView, error) {
	var updated *model.Activity
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		a, err := s.activities.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrActivityNotFound
			}
			return err
		}

		if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
			a.Title = strings.TrimSpace(*in.Title)
		}
		if in.Description != nil {
			a.Description = strings.TrimSpace(*in.Description)
		}
		if in.Type != nil && strings.TrimSpace(*in.Type) != "" {
			t := strings.ToUpper(strings.TrimSpace(*in.Type))
			if !model.ValidType(t) {
				return errs.Newf(errs.KindValidation, "未知的活动类型: %s", *in.Type)
			}
			a.Type = t
		}
		if in.Location != nil && strings.TrimSpace(*in.Location) != "" {
			a.Location = strings.TrimSpace(*in.Location)
		}
		if start, err := utils.ParseOptionalDateTime("活动开始时间", in.StartTime); err != nil {
			return err
		} else if start != nil {
			a.StartTime = *start
		}
		if end, err := utils.ParseOptionalDateTime("活动结束时间", in.EndTime); err != nil {
			return err
		} else if end != nil {
			a.EndTime = *end
		}
		if in.PointsPerHour != nil {
			if !in.PointsPerHour.IsPositive() {
				return errs.New(errs.KindValidation, "每小时积分必须大于0")
			}
			a.PointsPerHour = utils.RoundPoints(*in.PointsPerHour)
		}
		if in.MaxParticipants != nil {
			if *in.MaxParticipants < 1 {
				return errs.New(errs.KindValidation, "活动人数上限必须大于0")
			}
			if *in.MaxParticipants < a.CurParticipants {
				return errs.New(errs.KindValidation, "活动人数上限不能小于已报名人数")
			}
			a.MaxParticipants = *in.MaxParticipants
		}
		if in.Status != nil && strings.TrimSpace(*in.Status) != "" {
			st := strings.ToUpper(strings.TrimSpace(*in.Status))
			if !model.ValidDeclaredStatus(st) {
				return errs.New(errs.KindValidation, "活动状态只能为 RECRUITING、CONFIRMED 或 CANCELLED")
			}
			a.Status = st
		}
		if !a.EndTime.After(a.StartTime) {
			return errs.New(errs.KindValidation, "活动结束时间必须晚于开始时间")
		}

		a.UpdateTime = s.now()
		updated = a
		return s.activities.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("activity updated", zap.Int64("activity_id", id))
	view := toActivityView(updated, s.now())
	return &view, nil
}

// Cancel 取消活动，活动与报名记录均保留
func (s *activityService) Cancel(ctx context.Context, id int64) error {
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		a, err := s.activities.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrActivityNotFound
			}
			return err
		}
		if a.Status == model.StatusCancelled {
			return errs.ErrAlreadyProcessed
		}
		a.Status = model.StatusCancelled
		a.UpdateTime = s.now()
		return s.activities.Update(ctx, a)
	})
	if err != nil {
		return err
	}
	logger.Log.Info("activity cancelled", zap.Int64("activity_id", id))
	return nil
}

func (s *activityService) ListSignups(ctx context.Context, activityID int64) ([]AdminSignupView, error) {
	if _, err := s.activities.GetByID(ctx, activityID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}

	list, err := s.signups.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(list))
	for _, rec := range list {
		ids = append(ids, rec.VolunteerID)
	}
	volunteers, err := s.volunteers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]AdminSignupView, 0, len(list))
	for i := range list {
		v, ok := volunteers[list[i].VolunteerID]
		if !ok {
			continue
		}
		views = append(views, toAdminSignupView(&list[i], &v))
	}
	return views, nil
}

func toActivityView(a *model.Activity, now time.Time) ActivityView {
	return ActivityView{
		ID:              a.ID,
		Title:           a.Title,
		Description:     a.Description,
		Type:            a.Type,
		Location:        a.Location,
		StartTime:       utils.FormatTime(a.StartTime),
		EndTime:         utils.FormatTime(a.EndTime),
		Status:          a.Effective(now),
		PointsPerHour:   utils.PointsValue(a.PointsPerHour),
		MaxParticipants: a.MaxParticipants,
		CurParticipants: a.CurParticipants,
	}
}

func toAdminSignupView(rec *model.SignupRecord, v *volunteerModel.Volunteer) AdminSignupView {
	view := AdminSignupView{
		ID:                 rec.ID,
		SignupID:           rec.ID,
		VolunteerID:        rec.VolunteerID,
		Status:             rec.Status,
		VolunteerStartTime: utils.FormatTimePtr(rec.VolunteerStartTime),
		VolunteerEndTime:   utils.FormatTimePtr(rec.VolunteerEndTime),
		ActualHours:        rec.ActualHours.InexactFloat64(),
		Points:             utils.PointsValue(rec.Points),
		SignupTime:         utils.FormatTime(rec.SignupTime),
		Note:               rec.Note,
	}
	if v != nil {
		view.VolunteerName = v.Name
		view.VolunteerPhone = v.Phone
	}
	return view
}
