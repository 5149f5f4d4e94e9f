package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"volunteer_hub/internal/domain/volunteer/model"
	"volunteer_hub/internal/domain/volunteer/repository"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/utils"

	"gorm.io/gorm"
)

var ErrVolunteerNotFound = errs.New(errs.KindNotFound, "志愿者不存在")

// UserRolePromoter 审核通过后把普通用户提升为志愿者角色
type UserRolePromoter interface {
	PromoteToVolunteer(ctx context.Context, userID int64) error
}

// ReviewInput 审核请求
type ReviewInput struct {
	Action string `json:"action" binding:"required"`
	Note   string `json:"note"`
}

// AdminVolunteerView 管理端志愿者信息
type AdminVolunteerView struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"userId"`
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Status     string  `json:"status"`
	ReviewNote string  `json:"reviewNote"`
	CreateTime string  `json:"createTime"`
	ReviewTime *string `json:"reviewTime"`
}

// VolunteerService 管理端志愿者审核
type VolunteerService interface {
	List(ctx context.Context, filter string) ([]AdminVolunteerView, error)
	Review(ctx context.Context, id int64, input ReviewInput) (*AdminVolunteerView, error)
}

type volunteerService struct {
	repo  repository.VolunteerRepository
	users UserRolePromoter
	tx    txn.Runner
	now   func() time.Time
}

func NewVolunteerService(repo repository.VolunteerRepository, users UserRolePromoter, tx txn.Runner) VolunteerService {
	return &volunteerService{repo: repo, users: users, tx: tx, now: time.Now}
}

func (s *volunteerService) List(ctx context.Context, filter string) ([]AdminVolunteerView, error) {
	filter = strings.ToUpper(strings.TrimSpace(filter))
	if filter == "" {
		filter = repository.FilterAll
	}
	switch filter {
	case repository.FilterAll, repository.FilterReviewing, repository.FilterProcessed:
	default:
		return nil, errs.New(errs.KindValidation, "未知的志愿者审核状态筛选")
	}

	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]AdminVolunteerView, 0, len(list))
	for i := range list {
		views = append(views, toAdminView(&list[i]))
	}
	return views, nil
}

func (s *volunteerService) Review(ctx context.Context, id int64, input ReviewInput) (*AdminVolunteerView, error) {
	action := strings.ToUpper(strings.TrimSpace(input.Action))
	note := strings.TrimSpace(input.Note)
	if note == "" {
		return nil, errs.New(errs.KindValidation, "审核备注不能为空")
	}
	if utf8.RuneCountInString(note) > 200 {
		return nil, errs.New(errs.KindValidation, "审核备注长度不能超过200个字符")
	}

	var view AdminVolunteerView
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		v, err := s.repo.LockByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.New(errs.KindNotFound, "志愿者申请不存在")
			}
			return err
		}

		now := s.now()
		switch action {
		case model.ActionApprove:
			if v.Status == model.StatusCertified {
				return errs.ErrAlreadyProcessed
			}
			v.Approve(note, now)
			if err := s.users.PromoteToVolunteer(ctx, v.UserID); err != nil {
				return err
			}
		case model.ActionReject:
			if v.Status != model.StatusReviewing {
				return errs.ErrAlreadyProcessed
			}
			v.Reject(note, now)
		case model.ActionSuspend:
			if v.Status != model.StatusCertified {
				return errs.New(errs.KindValidation, "只能停用已认证的志愿者")
			}
			v.Suspend(note, now)
		default:
			return errs.New(errs.KindValidation, "审核操作只能为 APPROVE、REJECT 或 SUSPEND")
		}

		if err := s.repo.Update(ctx, v); err != nil {
			return err
		}
		view = toAdminView(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// CheckAccess 管理员可访问任意志愿者，其他用户只能访问自己的志愿者档案
func CheckAccess(ctx context.Context, repo repository.VolunteerRepository, p *auth.Principal, volunteerID int64) error {
	if p == nil {
		return errs.ErrUnauthorized
	}
	if p.IsAdmin() {
		if _, err := repo.GetByID(ctx, volunteerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.New(errs.KindNotFound, "未找到志愿者信息")
			}
			return err
		}
		return nil
	}

	own, err := repo.GetByUserID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrForbidden
		}
		return err
	}
	if own.ID != volunteerID {
		return errs.ErrForbidden
	}
	return nil
}

func toAdminView(v *model.Volunteer) AdminVolunteerView {
	return AdminVolunteerView{
		ID:         v.ID,
		UserID:     v.UserID,
		Name:       v.Name,
		Phone:      v.Phone,
		Status:     v.Status,
		ReviewNote: v.ReviewNote,
		CreateTime: utils.FormatTime(v.CreateTime),
		ReviewTime: utils.FormatTimePtr(v.ReviewTime),
	}
}
