package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"volunteer_hub/internal/domain/user/model"
	"volunteer_hub/internal/domain/user/repository"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/logger"
	"volunteer_hub/pkg/utils"

	ledgerService "volunteer_hub/internal/domain/ledger/service"
	volunteerModel "volunteer_hub/internal/domain/volunteer/model"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// profileRecentEntries 个人资料页展示的最近积分流水条数
const profileRecentEntries = 5

var ErrUserNotFound = errs.New(errs.KindNotFound, "用户不存在")

// PointsReader 个人资料页需要的账本查询
type PointsReader interface {
	BalanceOf(ctx context.Context, volunteerID int64) (decimal.Decimal, error)
	Recent(ctx context.Context, volunteerID int64, n int) ([]ledgerService.EntryView, error)
}

// HoursReader 累计服务时长
type HoursReader interface {
	ServiceHours(ctx context.Context, volunteerID int64) (decimal.Decimal, error)
}

// TokenRevoker 用户名或密码变更后使令牌失效
type TokenRevoker interface {
	RevokeAll(ctx context.Context, userID int64) error
}

type UpdateProfileInput struct {
	Username string `json:"username" binding:"required"`
	Phone    string `json:"phone"`
}

type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type VolunteerApplyInput struct {
	RealName string `json:"realName"`
	Phone    string `json:"phone"`
}

// ProfileView 个人资料
type ProfileView struct {
	ID              int64                     `json:"id"`
	Username        string                    `json:"username"`
	Role            string                    `json:"role"`
	Phone           string                    `json:"phone"`
	RealName        *string                   `json:"realName"`
	VolunteerID     *int64                    `json:"volunteerId"`
	VolunteerStatus *string                   `json:"volunteerStatus"`
	ReviewNote      *string                   `json:"reviewNote"`
	Points          float64                   `json:"points"`
	ServiceHours    float64                   `json:"serviceHours"`
	PointsRecords   []ledgerService.EntryView `json:"pointsRecords"`
}

// UserService 个人资料、密码与志愿者申请
type UserService interface {
	Profile(ctx context.Context, p *auth.Principal, userID int64) (*ProfileView, error)
	UpdateProfile(ctx context.Context, p *auth.Principal, userID int64, in UpdateProfileInput) (*ProfileView, error)
	ChangePassword(ctx context.Context, p *auth.Principal, userID int64, in ChangePasswordInput) error
	ApplyVolunteer(ctx context.Context, p *auth.Principal, userID int64, in VolunteerApplyInput) (*ProfileView, error)
}

type userService struct {
	users      repository.UserRepository
	volunteers VolunteerApplications
	points     PointsReader
	hours      HoursReader
	tokens     TokenRevoker
	tx         txn.Runner
}

func NewUserService(
	users repository.UserRepository,
	volunteers VolunteerApplications,
	points PointsReader,
	hours HoursReader,
	tokens TokenRevoker,
	tx txn.Runner,
) UserService {
	return &userService{
		users:      users,
		volunteers: volunteers,
		points:     points,
		hours:      hours,
		tokens:     tokens,
		tx:         tx,
	}
}

// checkSelf 只能操作自己的账号，管理员除外
func checkSelf(p *auth.Principal, userID int64) error {
	if p == nil {
		return errs.ErrUnauthorized
	}
	if p.UserID != userID && !p.IsAdmin() {
		return errs.ErrForbidden
	}
	return nil
}

func (s *userService) getUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *userService) findVolunteer(ctx context.Context, userID int64) (*volunteerModel.Volunteer, error) {
	v, err := s.volunteers.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (s *userService) Profile(ctx context.Context, p *auth.Principal, userID int64) (*ProfileView, error) {
	if err := checkSelf(p, userID); err != nil {
		return nil, err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildProfile(ctx, user)
}

func (s *userService) UpdateProfile(ctx context.Context, p *auth.Principal, userID int64, in UpdateProfileInput) (*ProfileView, error) {
	if err := checkSelf(p, userID); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(in.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	phone := strings.TrimSpace(in.Phone)
	if utf8.RuneCountInString(phone) > 20 {
		return nil, errs.New(errs.KindValidation, "手机号长度不能超过20个字符")
	}

	var user *model.User
	renamed := false
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.getUser(ctx, userID)
		if err != nil {
			return err
		}
		if username != user.Username {
			exists, err := s.users.ExistsUsername(ctx, username)
			if err != nil {
				return err
			}
			if exists {
				return errs.New(errs.KindValidation, "用户名已存在")
			}
			renamed = true
		}

		user.Username = username
		user.Phone = phone
		if err := s.users.UpdateProfile(ctx, user); err != nil {
			return err
		}

		v, err := s.findVolunteer(ctx, userID)
		if err != nil || v == nil {
			return err
		}
		v.Phone = phone
		return s.volunteers.Update(ctx, v)
	})
	if err != nil {
		return nil, err
	}

	if renamed {
		if err := s.tokens.RevokeAll(ctx, userID); err != nil {
			return nil, err
		}
		logger.Log.Info("username changed, tokens revoked", zap.Int64("user_id", userID))
	}
	return s.buildProfile(ctx, user)
}

func (s *userService) ChangePassword(ctx context.Context, p *auth.Principal, userID int64, in ChangePasswordInput) error {
	if err := checkSelf(p, userID); err != nil {
		return err
	}
	if err := validatePassword(in.NewPassword); err != nil {
		return err
	}
	user, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	// 管理员重置他人密码时不校验旧密码
	if p.UserID == userID {
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.OldPassword)); err != nil {
			return errs.New(errs.KindValidation, "原密码错误")
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hashed)); err != nil {
		return err
	}
	return s.tokens.RevokeAll(ctx, userID)
}

func (s *userService) ApplyVolunteer(ctx context.Context, p *auth.Principal, userID int64, in VolunteerApplyInput) (*ProfileView, error) {
	if err := checkSelf(p, userID); err != nil {
		return nil, err
	}
	realName := strings.TrimSpace(in.RealName)
	if realName == "" {
		return nil, errs.New(errs.KindValidation, "真实姓名不能为空")
	}
	if utf8.RuneCountInString(realName) > 50 {
		return nil, errs.New(errs.KindValidation, "真实姓名长度不能超过50个字符")
	}

	var user *model.User
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.getUser(ctx, userID)
		if err != nil {
			return err
		}
		if user.Role == auth.RoleAdmin {
			return errs.New(errs.KindValidation, "管理员无需申请志愿者认证")
		}
		phone := strings.TrimSpace(in.Phone)
		if phone == "" {
			phone = user.Phone
		}

		existing, err := s.findVolunteer(ctx, userID)
		if err != nil {
			return err
		}
		if existing == nil {
			return s.volunteers.Create(ctx, volunteerModel.NewApplication(userID, realName, phone))
		}
		if existing.Status != volunteerModel.StatusRejected {
			return errs.New(errs.KindValidation, "已提交过志愿者申请")
		}
		existing.ResetForReapply(realName, phone)
		return s.volunteers.Update(ctx, existing)
	})
	if err != nil {
		return nil, err
	}
	return s.buildProfile(ctx, user)
}

func (s *userService) buildProfile(ctx context.Context, user *model.User) (*ProfileView, error) {
	view := &ProfileView{
		ID:            user.ID,
		Username:      user.Username,
		Role:          user.Role,
		Phone:         user.Phone,
		PointsRecords: []ledgerService.EntryView{},
	}

	v, err := s.findVolunteer(ctx, user.ID)
	if err != nil || v == nil {
		return view, err
	}
	view.RealName = &v.Name
	view.VolunteerID = &v.ID
	view.VolunteerStatus = &v.Status
	if v.ReviewNote != "" {
		view.ReviewNote = &v.ReviewNote
	}

	balance, err := s.points.BalanceOf(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	hours, err := s.hours.ServiceHours(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	recent, err := s.points.Recent(ctx, v.ID, profileRecentEntries)
	if err != nil {
		return nil, err
	}
	view.Points = utils.PointsValue(balance)
	view.ServiceHours = hours.InexactFloat64()
	view.PointsRecords = recent
	return view, nil
}
