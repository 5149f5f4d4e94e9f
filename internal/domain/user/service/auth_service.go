package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"volunteer_hub/internal/domain/user/model"
	"volunteer_hub/internal/domain/user/repository"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/txn"
	"volunteer_hub/pkg/cache"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/logger"
	"volunteer_hub/pkg/utils"

	volunteerModel "volunteer_hub/internal/domain/volunteer/model"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// 缓存键常量
const (
	TokenCacheKeyPrefix = "token:"
	TokenCacheTTL       = 10 * time.Minute
)

var (
	errInvalidToken  = errs.New(errs.KindAuth, "无效的Token")
	errTokenExpired  = errs.New(errs.KindAuth, "Token已过期")
	errLoginFailed   = errs.New(errs.KindAuth, "用户不存在或该用户账号已注销")
	errWrongPassword = errs.New(errs.KindAuth, "密码错误")

	ErrAdminSelfRegister = errs.New(errs.KindForbidden, "不能自行注册管理员账号")
)

// VolunteerApplications 注册或资料页提交志愿者申请
type VolunteerApplications interface {
	Create(ctx context.Context, v *volunteerModel.Volunteer) error
	Update(ctx context.Context, v *volunteerModel.Volunteer) error
	GetByUserID(ctx context.Context, userID int64) (*volunteerModel.Volunteer, error)
}

// RegisterInput 注册输入
type RegisterInput struct {
	Username         string `json:"username" binding:"required"`
	Password         string `json:"password" binding:"required"`
	Role             string `json:"role"`
	Phone            string `json:"phone"`
	RequestVolunteer bool   `json:"requestVolunteer"`
}

// LoginInput 登录输入
type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

type RegisterResult struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginResult struct {
	ID              int64   `json:"id"`
	Username        string  `json:"username"`
	Role            string  `json:"role"`
	Token           string  `json:"token"`
	VolunteerStatus *string `json:"volunteerStatus"`
	Phone           *string `json:"phone"`
}

// AuthService 注册登录与令牌校验
type AuthService interface {
	auth.TokenValidator
	Register(ctx context.Context, in RegisterInput) (*RegisterResult, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	// EnsureAdmin 用户名不存在时创建管理员账号，返回是否新建
	EnsureAdmin(ctx context.Context, username, password string) (bool, error)
	// RevokeAll 使用户的全部令牌失效
	RevokeAll(ctx context.Context, userID int64) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type authService struct {
	users      repository.UserRepository
	tokens     repository.TokenRepository
	volunteers VolunteerApplications
	cache      cache.CacheService
	tx         txn.Runner
	now        func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	volunteers VolunteerApplications,
	cache cache.CacheService,
	tx txn.Runner,
) AuthService {
	return &authService{
		users:      users,
		tokens:     tokens,
		volunteers: volunteers,
		cache:      cache,
		tx:         tx,
		now:        time.Now,
	}
}

// cachedPrincipal 缓存中的令牌信息
type cachedPrincipal struct {
	UserID     int64     `json:"userId"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	ExpireTime time.Time `json:"expireTime"`
}

func tokenCacheKey(token string) string {
	return TokenCacheKeyPrefix + token
}

func (s *authService) Validate(ctx context.Context, token string) (*auth.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errs.ErrUnauthorized
	}
	now := s.now()

	var cached cachedPrincipal
	err := s.cache.Get(ctx, tokenCacheKey(token), &cached)
	switch {
	case err == nil && now.Before(cached.ExpireTime):
		return &auth.Principal{UserID: cached.UserID, Username: cached.Username, Role: cached.Role, Token: token}, nil
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		logger.Log.Warn("token cache read failed", zap.Error(err))
	}

	claims, err := utils.ParseToken(token)
	if err != nil {
		return nil, errInvalidToken
	}

	stored, err := s.tokens.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrUnauthorized
		}
		return nil, err
	}
	if stored.UserID != claims.UserID {
		return nil, errs.ErrUnauthorized
	}
	if stored.Expired(now) {
		if err := s.tokens.DeleteByToken(ctx, token); err != nil {
			logger.Log.Warn("delete expired token failed", zap.Int64("user_id", stored.UserID), zap.Error(err))
		}
		return nil, errTokenExpired
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.New(errs.KindAuth, "用户不存在")
		}
		return nil, err
	}
	if user.Username != claims.Username {
		return nil, errs.New(errs.KindAuth, "Token与用户不匹配")
	}

	ttl := stored.ExpireTime.Sub(now)
	if ttl > TokenCacheTTL {
		ttl = TokenCacheTTL
	}
	entry := cachedPrincipal{UserID: user.ID, Username: user.Username, Role: user.Role, ExpireTime: stored.ExpireTime}
	if err := s.cache.Set(ctx, tokenCacheKey(token), entry, ttl); err != nil {
		logger.Log.Warn("token cache write failed", zap.Error(err))
	}

	return &auth.Principal{UserID: user.ID, Username: user.Username, Role: user.Role, Token: token}, nil
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	username := strings.TrimSpace(in.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	role := strings.ToUpper(strings.TrimSpace(in.Role))
	if role == "" {
		role = auth.RoleUser
	}
	if !auth.ValidRole(role) {
		return nil, errs.New(errs.KindValidation, "角色只能为 USER、VOLUNTEER 或 ADMIN")
	}
	// 管理员只能由配置初始化
	if role == auth.RoleAdmin {
		return nil, ErrAdminSelfRegister
	}
	phone := strings.TrimSpace(in.Phone)
	if utf8.RuneCountInString(phone) > 20 {
		return nil, errs.New(errs.KindValidation, "手机号长度不能超过20个字符")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &model.User{Username: username, Password: string(hashed), Phone: phone, Role: role}
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		exists, err := s.users.ExistsUsername(ctx, username)
		if err != nil {
			return err
		}
		if exists {
			return errs.New(errs.KindValidation, "用户名已存在")
		}
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		if in.RequestVolunteer && role == auth.RoleUser {
			return s.volunteers.Create(ctx, volunteerModel.NewApplication(user.ID, username, phone))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("user registered", zap.Int64("user_id", user.ID), zap.String("role", role))
	return &RegisterResult{ID: user.ID, Username: user.Username, Role: user.Role}, nil
}

func (s *authService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return false, err
	}
	if err := validatePassword(password); err != nil {
		return false, err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	created := false
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		exists, err := s.users.ExistsUsername(ctx, username)
		if err != nil || exists {
			return err
		}
		created = true
		return s.users.Create(ctx, &model.User{Username: username, Password: string(hashed), Role: auth.RoleAdmin})
	})
	if err != nil {
		return false, err
	}
	if created {
		logger.Log.Info("admin account created", zap.String("username", username))
	}
	return created, nil
}

func (s *authService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	role := strings.ToUpper(strings.TrimSpace(in.Role))
	if role != "" && !auth.ValidRole(role) {
		return nil, errs.New(errs.KindValidation, "角色只能为 USER、VOLUNTEER 或 ADMIN")
	}

	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(in.Username), role)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errLoginFailed
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return nil, errWrongPassword
	}

	token, expireAt, err := utils.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}

	// 每个用户仅保留最新的一个令牌
	if err := s.RevokeAll(ctx, user.ID); err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, &model.Token{UserID: user.ID, Token: token, ExpireTime: expireAt}); err != nil {
		return nil, err
	}

	result := &LoginResult{ID: user.ID, Username: user.Username, Role: user.Role, Token: token}
	if user.Phone != "" {
		phone := user.Phone
		result.Phone = &phone
	}
	v, err := s.volunteers.GetByUserID(ctx, user.ID)
	switch {
	case err == nil:
		status := v.Status
		result.VolunteerStatus = &status
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return result, nil
}

func (s *authService) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if err := s.tokens.DeleteByToken(ctx, token); err != nil {
		return err
	}
	s.evict(ctx, token)
	return nil
}

func (s *authService) RevokeAll(ctx context.Context, userID int64) error {
	list, err := s.tokens.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}
	if err := s.tokens.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	for _, t := range list {
		s.evict(ctx, t.Token)
	}
	return nil
}

func (s *authService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now())
}

func (s *authService) evict(ctx context.Context, token string) {
	if err := s.cache.Delete(ctx, tokenCacheKey(token)); err != nil {
		logger.Log.Warn("token cache eviction failed", zap.Error(err))
	}
}

func validateUsername(username string) error {
	if username == "" {
		return errs.New(errs.KindValidation, "用户名不能为空")
	}
	if utf8.RuneCountInString(username) > 20 {
		return errs.New(errs.KindValidation, "用户名长度不能超过20个字符")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 || len(password) > 32 {
		return errs.New(errs.KindValidation, "密码长度需在6到32个字符之间")
	}
	return nil
}
