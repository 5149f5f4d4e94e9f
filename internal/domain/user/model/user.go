package model

import (
	"time"

	baseModel "volunteer_hub/pkg/model"
)

// User 系统用户
type User struct {
	baseModel.BaseModel
	Username   string     `gorm:"size:20;not null" json:"username"`
	Password   string     `gorm:"size:100;not null" json:"-"`
	Phone      string     `gorm:"size:20" json:"phone"`
	Role       string     `gorm:"size:20;not null" json:"role"`
	Deleted    bool       `gorm:"not null;default:false" json:"-"`
	DeleteTime *time.Time `json:"-"`
}

func (User) TableName() string {
	return "sys_user"
}

// Token 服务端保存的登录令牌
type Token struct {
	baseModel.BaseModel
	UserID     int64     `gorm:"column:user_id;not null;index" json:"userId"`
	Token      string    `gorm:"size:512;not null;uniqueIndex" json:"token"`
	ExpireTime time.Time `gorm:"not null" json:"expireTime"`
}

func (Token) TableName() string {
	return "token"
}

func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpireTime)
}
