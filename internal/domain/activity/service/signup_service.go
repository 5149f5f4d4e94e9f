package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"volunteer_hub/internal/domain/activity/model"
	"volunteer_hub/internal/domain/activity/repository"
	ledgerModel "volunteer_hub/internal/domain/ledger/model"
	ledgerService "volunteer_hub/internal/domain/ledger/service"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/logger"
	"volunteer_hub/pkg/metrics"
	"volunteer_hub/pkg/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrActivityNotFound = errs.New(errs.KindNotFound, "活动不存在")
	ErrSignupNotFound   = errs.New(errs.KindNotFound, "报名记录不存在")

	ErrSignupNotConfirmed = errs.New(errs.KindValidation, "报名尚未确认，无法结算")
)

// VolunteerStore 报名引擎依赖的志愿者查询与行锁
type VolunteerStore interface {
	GetByUserID(ctx context.Context, userID int64) (*volunteerModel.Volunteer, error)
	LockByID(ctx context.Context, id int64) (*volunteerModel.Volunteer, error)
	LockByUserID(ctx context.Context, userID int64) (*volunteerModel.Volunteer, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]volunteerModel.Volunteer, error)
}

// SignupInput 报名请求
type SignupInput struct {
	ActivityID         int64   `json:"activityId" binding:"required"`
	VolunteerStartTime *string `json:"volunteerStartTime"`
	VolunteerEndTime   *string `json:"volunteerEndTime"`
}

// CancelSignupInput 取消报名请求
type CancelSignupInput struct {
	ActivityID int64 `json:"activityId" binding:"required"`
}

// SettleInput 管理员更新报名记录
type SettleInput struct {
	Status             string           `json:"status" binding:"required"`
	ActualHours        *decimal.Decimal `json:"actualHours"`
	Points             *decimal.Decimal `json:"points"`
	Note               *string          `json:"note"`
	VolunteerStartTime *string          `json:"volunteerStartTime"`
	VolunteerEndTime   *string          `json:"volunteerEndTime"`
}

// SignupResult 报名/取消报名结果
type SignupResult struct {
	ID      int64  `json:"id"`
	Message string `json:"message"`
}

// SignupService 报名引擎：报名、取消报名与管理员结算
type SignupService interface {
	Signup(ctx context.Context, p *auth.Principal, in SignupInput) (*SignupResult, error)
	CancelSignup(ctx context.Context, p *auth.Principal, activityID int64) (*SignupResult, error)
	Settle(ctx context.Context, activityID, signupID int64, in SettleInput) (*AdminSignupView, error)
}

type signupService struct {
	activities repository.ActivityRepository
	signups    repository.SignupRepository
	volunteers VolunteerStore
	ledger     ledgerService.LedgerService
	tx         txn.Runner
	now        func() time.Time
}

func NewSignupService(
	activities repository.ActivityRepository,
	signups repository.SignupRepository,
	volunteers VolunteerStore,
	ledger ledgerService.LedgerService,
	tx txn.Runner,
) SignupService {
	return &signupService{
		activities: activities,
		signups:    signups,
		volunteers: volunteers,
		ledger:     ledger,
		tx:         tx,
		now:        time.Now,
	}
}

func (s *signupService) Signup(ctx context.Context, p *auth.Principal, in SignupInput) (result *SignupResult, err error) {
	defer func() { metrics.Default().RecordSignup("signup", err) }()

	if p == nil {
		return nil, errs.ErrUnauthorized
	}
	vStart, vEnd, err := parseVolunteerWindow(in.VolunteerStartTime, in.VolunteerEndTime)
	if err != nil {
		return nil, err
	}

	var rec *model.SignupRecord
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		v, err := s.lockCertified(ctx, p.UserID)
		if err != nil {
			return err
		}
		activity, err := s.lockActivity(ctx, in.ActivityID)
		if err != nil {
			return err
		}

		now := s.now()
		if !activity.AcceptsSignup(now) {
			return errs.ErrActivityClosed
		}

		if _, err := s.signups.FindLive(ctx, v.ID, activity.ID); err == nil {
			return errs.ErrAlreadySignedUp
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if activity.Full() {
			return errs.ErrCapacityFull
		}

		rec = &model.SignupRecord{
			VolunteerID:        v.ID,
			ActivityID:         activity.ID,
			Status:             model.SignupReviewing,
			VolunteerStartTime: vStart,
			VolunteerEndTime:   vEnd,
			ActualHours:        decimal.Zero,
			Points:             decimal.Zero,
			SignupTime:         now,
			UpdateTime:         now,
		}
		if err := s.signups.Create(ctx, rec); err != nil {
			return err
		}
		return s.activities.UpdateParticipants(ctx, activity.ID, activity.CurParticipants+1)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("activity signup",
		zap.Int64("signup_id", rec.ID),
		zap.Int64("volunteer_id", rec.VolunteerID),
		zap.Int64("activity_id", rec.ActivityID),
	)
	return &SignupResult{ID: rec.ID, Message: "报名成功"}, nil
}

func (s *signupService) CancelSignup(ctx context.Context, p *auth.Principal, activityID int64) (result *SignupResult, err error) {
	defer func() { metrics.Default().RecordSignup("cancel", err) }()

	if p == nil {
		return nil, errs.ErrUnauthorized
	}

	var rec *model.SignupRecord
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		v, err := s.lockCertified(ctx, p.UserID)
		if err != nil {
			return err
		}
		activity, err := s.lockActivity(ctx, activityID)
		if err != nil {
			return err
		}

		now := s.now()
		if activity.Started(now) {
			return errs.New(errs.KindActivityClosed, "活动已经开始或已结束，无法取消报名")
		}

		live, err := s.signups.FindLive(ctx, v.ID, activity.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotSignedUp
			}
			return err
		}
		if rec, err = s.signups.LockByID(ctx, live.ID); err != nil {
			return err
		}
		if rec.Status != model.SignupReviewing && rec.Status != model.SignupConfirmed {
			return errs.ErrAlreadyProcessed
		}

		rec.Status = model.SignupCancelled
		rec.UpdateTime = now
		if err := s.signups.Update(ctx, rec); err != nil {
			return err
		}
		activity.Release()
		return s.activities.UpdateParticipants(ctx, activity.ID, activity.CurParticipants)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("activity signup cancelled",
		zap.Int64("signup_id", rec.ID),
		zap.Int64("activity_id", activityID),
	)
	return &SignupResult{ID: rec.ID, Message: "取消报名成功"}, nil
}

// Settle 管理员更新报名状态。结算为 PARTICIPATED 时只补记与已入账积分的差额，重复提交不会重复发放
func (s *signupService) Settle(ctx context.Context, activityID, signupID int64, in SettleInput) (view *AdminSignupView, err error) {
	defer func() { metrics.Default().RecordSignup("settle", err) }()

	target := strings.ToUpper(strings.TrimSpace(in.Status))
	if !model.ValidSignupStatus(target) {
		return nil, errs.Newf(errs.KindValidation, "未知的报名状态: %s", in.Status)
	}
	if target == model.SignupCancelled {
		return nil, errs.New(errs.KindValidation, "管理员不能直接取消报名，请使用拒绝")
	}
	var note *string
	if in.Note != nil {
		n := strings.TrimSpace(*in.Note)
		if utf8.RuneCountInString(n) > 200 {
			return nil, errs.New(errs.KindValidation, "备注长度不能超过200个字符")
		}
		note = &n
	}
	if in.ActualHours != nil && in.ActualHours.IsNegative() {
		return nil, errs.New(errs.KindValidation, "服务时长不能为负数")
	}
	if in.Points != nil && in.Points.IsNegative() {
		return nil, errs.New(errs.KindValidation, "积分不能为负数")
	}
	vStart, err := utils.ParseOptionalDateTime("志愿开始时间", in.VolunteerStartTime)
	if err != nil {
		return nil, err
	}
	vEnd, err := utils.ParseOptionalDateTime("志愿结束时间", in.VolunteerEndTime)
	if err != nil {
		return nil, err
	}

	var rec *model.SignupRecord
	var volunteer *volunteerModel.Volunteer
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		found, err := s.signups.GetByID(ctx, signupID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSignupNotFound
			}
			return err
		}

		// 加锁顺序: 志愿者 → 活动 → 报名记录
		if volunteer, err = s.volunteers.LockByID(ctx, found.VolunteerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.New(errs.KindNotFound, "志愿者不存在")
			}
			return err
		}
		activity, err := s.lockActivity(ctx, activityID)
		if err != nil {
			return err
		}
		if rec, err = s.signups.LockByID(ctx, signupID); err != nil {
			return err
		}
		if rec.ActivityID != activity.ID {
			return errs.New(errs.KindValidation, "报名记录不属于该活动")
		}

		now := s.now()
		if err := s.transition(ctx, activity, rec, target, now); err != nil {
			return err
		}

		if vStart != nil {
			rec.VolunteerStartTime = vStart
		}
		if vEnd != nil {
			rec.VolunteerEndTime = vEnd
		}
		if note != nil {
			rec.Note = *note
		}

		if target == model.SignupParticipated {
			if err := s.credit(ctx, activity, rec, in); err != nil {
				return err
			}
		}

		rec.Status = target
		rec.UpdateTime = now
		return s.signups.Update(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("signup settled",
		zap.Int64("signup_id", rec.ID),
		zap.Int64("activity_id", activityID),
		zap.String("status", rec.Status),
	)
	v := toAdminSignupView(rec, volunteer)
	return &v, nil
}

// transition 校验状态迁移，并在拒绝时释放名额。
// 只有已确认的报名才能结算为参加或未到场。
func (s *signupService) transition(ctx context.Context, activity *model.Activity, rec *model.SignupRecord, target string, now time.Time) error {
	if rec.Settled() && !(rec.Status == model.SignupParticipated && target == model.SignupParticipated) {
		return errs.ErrAlreadyProcessed
	}

	switch target {
	case model.SignupReviewing:
		if rec.Status != model.SignupReviewing {
			return errs.New(errs.KindValidation, "报名记录不能退回审核中状态")
		}
	case model.SignupConfirmed:
		// REVIEWING / CONFIRMED 均可
	case model.SignupRejected:
		activity.Release()
		return s.activities.UpdateParticipants(ctx, activity.ID, activity.CurParticipants)
	case model.SignupUnarrived:
		if rec.Status != model.SignupConfirmed {
			return ErrSignupNotConfirmed
		}
		if !now.After(activity.EndTime) {
			return errs.New(errs.KindValidation, "活动结束后才能标记为未到场")
		}
	case model.SignupParticipated:
		// 已结算记录可修正时长
		if rec.Status != model.SignupConfirmed && rec.Status != model.SignupParticipated {
			return ErrSignupNotConfirmed
		}
		if !activity.Started(now) {
			return errs.New(errs.KindValidation, "活动尚未开始，无法结算")
		}
	}
	return nil
}

// credit 计算应得积分并补记差额
func (s *signupService) credit(ctx context.Context, activity *model.Activity, rec *model.SignupRecord, in SettleInput) error {
	hours := rec.ActualHours
	if in.ActualHours != nil {
		hours = *in.ActualHours
	}
	hours = hours.Round(2)

	points := utils.RoundPoints(hours.Mul(activity.PointsPerHour))
	if in.Points != nil {
		points = utils.RoundPoints(*in.Points)
	}

	credited, err := s.ledger.CreditedFor(ctx, ledgerModel.TypeActivityEarn, ledgerModel.RelatedSignup, rec.ID)
	if err != nil {
		return err
	}

	if diff := points.Sub(credited); !diff.IsZero() {
		relatedID := rec.ID
		relatedType := ledgerModel.RelatedSignup
		_, err := s.ledger.Append(ctx, ledgerService.AppendInput{
			VolunteerID: rec.VolunteerID,
			Delta:       diff,
			ChangeType:  ledgerModel.TypeActivityEarn,
			Reason:      "activity:" + strconv.FormatInt(activity.ID, 10),
			Note:        "参加活动: " + activity.Title,
			RelatedID:   &relatedID,
			RelatedType: &relatedType,
		})
		if err != nil {
			return err
		}
	}

	rec.ActualHours = hours
	rec.Points = points
	return nil
}

func (s *signupService) lockCertified(ctx context.Context, userID int64) (*volunteerModel.Volunteer, error) {
	v, err := s.volunteers.LockByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotCertified
		}
		return nil, err
	}
	if !v.IsCertified() {
		return nil, errs.ErrNotCertified
	}
	return v, nil
}

func (s *signupService) lockActivity(ctx context.Context, id int64) (*model.Activity, error) {
	a, err := s.activities.LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, err
	}
	return a, nil
}

func parseVolunteerWindow(start, end *string) (*time.Time, *time.Time, error) {
	vStart, err := utils.ParseOptionalDateTime("志愿开始时间", start)
	if err != nil {
		return nil, nil, err
	}
	vEnd, err := utils.ParseOptionalDateTime("志愿结束时间", end)
	if err != nil {
		return nil, nil, err
	}
	if vStart != nil && vEnd != nil && !vEnd.After(*vStart) {
		return nil, nil, errs.New(errs.KindValidation, "志愿结束时间必须晚于开始时间")
	}
	return vStart, vEnd, nil
}
