package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 志愿者认证状态
const (
	StatusReviewing = "REVIEWING"
	StatusCertified = "CERTIFIED"
	StatusRejected  = "REJECTED"
	StatusSuspended = "SUSPENDED"
)

// 审核操作
const (
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
	ActionSuspend = "SUSPEND"
)

// Volunteer 志愿者档案，每个用户至多一条
type Volunteer struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64           `gorm:"column:user_id;not null;uniqueIndex" json:"userId"`
	Name          string          `gorm:"size:50;not null" json:"name"`
	Phone         string          `gorm:"size:20" json:"phone"`
	Status        string          `gorm:"size:20;not null;index" json:"status"`
	PointsBalance decimal.Decimal `gorm:"column:points_balance;type:numeric(12,2);not null;default:0" json:"-"`
	ReviewNote    string          `gorm:"size:200" json:"reviewNote"`
	ReviewTime    *time.Time      `json:"reviewTime"`
	CreateTime    time.Time       `gorm:"autoCreateTime" json:"createTime"`
	Deleted       bool            `gorm:"not null;default:false" json:"-"`
}

func (Volunteer) TableName() string {
	return "volunteers"
}

// NewApplication 新的志愿者申请
func NewApplication(userID int64, name, phone string) *Volunteer {
	return &Volunteer{
		UserID: userID,
		Name:   name,
		Phone:  phone,
		Status: StatusReviewing,
	}
}

func (v *Volunteer) IsCertified() bool {
	return v.Status == StatusCertified
}

func (v *Volunteer) Approve(note string, now time.Time) {
	v.Status = StatusCertified
	v.ReviewNote = note
	v.ReviewTime = &now
}

func (v *Volunteer) Reject(note string, now time.Time) {
	v.Status = StatusRejected
	v.ReviewNote = note
	v.ReviewTime = &now
}

func (v *Volunteer) Suspend(note string, now time.Time) {
	v.Status = StatusSuspended
	v.ReviewNote = note
	v.ReviewTime = &now
}

// ResetForReapply 被拒绝后重新申请
func (v *Volunteer) ResetForReapply(name, phone string) {
	v.Name = name
	v.Phone = phone
	v.Status = StatusReviewing
	v.ReviewNote = ""
	v.ReviewTime = nil
}
