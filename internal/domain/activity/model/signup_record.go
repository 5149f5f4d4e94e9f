package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 报名记录状态
const (
	SignupReviewing    = "REVIEWING"
	SignupConfirmed    = "CONFIRMED"
	SignupParticipated = "PARTICIPATED"
	SignupCancelled    = "CANCELLED"
	SignupRejected     = "REJECTED"
	SignupUnarrived    = "UNARRIVED"
)

func ValidSignupStatus(s string) bool {
	switch s {
	case SignupReviewing, SignupConfirmed, SignupParticipated, SignupCancelled, SignupRejected, SignupUnarrived:
		return true
	}
	return false
}

// SignupRecord 报名记录。CANCELLED / REJECTED 之外的记录占用一个名额
type SignupRecord struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement"`
	VolunteerID        int64           `gorm:"column:volunteer_id;not null;index"`
	ActivityID         int64           `gorm:"column:activity_id;not null;index"`
	Status             string          `gorm:"size:20;not null"`
	VolunteerStartTime *time.Time      `gorm:"column:volunteer_start_time"`
	VolunteerEndTime   *time.Time      `gorm:"column:volunteer_end_time"`
	ActualHours        decimal.Decimal `gorm:"type:numeric(8,2);not null;default:0"`
	Points             decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	SignupTime         time.Time       `gorm:"not null"`
	UpdateTime         time.Time       `gorm:"not null"`
	Note               string          `gorm:"size:200"`
}

func (SignupRecord) TableName() string {
	return "signup_records"
}

// Live 是否占用名额
func (s *SignupRecord) Live() bool {
	return IsLiveSignup(s.Status)
}

func IsLiveSignup(status string) bool {
	return status != SignupCancelled && status != SignupRejected
}

// Settled 已经是终态，管理员不能再改为其他状态
func (s *SignupRecord) Settled() bool {
	switch s.Status {
	case SignupParticipated, SignupCancelled, SignupRejected, SignupUnarrived:
		return true
	}
	return false
}
