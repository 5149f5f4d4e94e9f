package repository

import (
	"context"
	"time"

	"volunteer_hub/internal/domain/user/model"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/txn"

	"gorm.io/gorm"
)

// UserRepository 接口定义
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id int64) (*model.User, error)
	// GetByUsername role 为空时不限角色
	GetByUsername(ctx context.Context, username, role string) (*model.User, error)
	ExistsUsername(ctx context.Context, username string) (bool, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, id int64, hashed string) error
	PromoteToVolunteer(ctx context.Context, userID int64) error
}

// userRepository 实现
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建新的仓库实例
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return txn.DB(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := txn.DB(ctx, r.db).Where("id = ? AND deleted = ?", id, false).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username, role string) (*model.User, error) {
	query := txn.DB(ctx, r.db).Where("username = ? AND deleted = ?", username, false)
	if role != "" {
		query = query.Where("role = ?", role)
	}
	var user model.User
	if err := query.First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsUsername 已注销用户的用户名同样占用
func (r *userRepository) ExistsUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := txn.DB(ctx, r.db).Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, user *model.User) error {
	return txn.DB(ctx, r.db).Model(user).Select("username", "phone").Updates(user).Error
}

func (r *userRepository) UpdatePassword(ctx context.Context, id int64, hashed string) error {
	return txn.DB(ctx, r.db).Model(&model.User{}).Where("id = ?", id).UpdateColumn("password", hashed).Error
}

// PromoteToVolunteer 仅把 USER 提升为 VOLUNTEER，管理员保持不变
func (r *userRepository) PromoteToVolunteer(ctx context.Context, userID int64) error {
	return txn.DB(ctx, r.db).
		Model(&model.User{}).
		Where("id = ? AND role = ?", userID, auth.RoleUser).
		UpdateColumn("role", auth.RoleVolunteer).Error
}

// TokenRepository 登录令牌
type TokenRepository interface {
	Create(ctx context.Context, t *model.Token) error
	GetByToken(ctx context.Context, token string) (*model.Token, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Token, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(ctx context.Context, t *model.Token) error {
	return txn.DB(ctx, r.db).Create(t).Error
}

func (r *tokenRepository) GetByToken(ctx context.Context, token string) (*model.Token, error) {
	var t model.Token
	if err := txn.DB(ctx, r.db).Where("token = ?", token).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepository) ListByUser(ctx context.Context, userID int64) ([]model.Token, error) {
	var list []model.Token
	if err := txn.DB(ctx, r.db).Where("user_id = ?", userID).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *tokenRepository) DeleteByToken(ctx context.Context, token string) error {
	return txn.DB(ctx, r.db).Where("token = ?", token).Delete(&model.Token{}).Error
}

func (r *tokenRepository) DeleteByUser(ctx context.Context, userID int64) error {
	return txn.DB(ctx, r.db).Where("user_id = ?", userID).Delete(&model.Token{}).Error
}

func (r *tokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res := txn.DB(ctx, r.db).Where("expire_time <= ?", before).Delete(&model.Token{})
	return res.RowsAffected, res.Error
}
