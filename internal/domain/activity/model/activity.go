package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 活动状态。只持久化 RECRUITING / CONFIRMED / CANCELLED，其余由时间窗口推导
const (
	StatusRecruiting = "RECRUITING"
	StatusConfirmed  = "CONFIRMED"
	StatusOngoing    = "ONGOING"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

// 活动类型
const (
	TypeCommunityService        = "COMMUNITY_SERVICE"
	TypeEnvironmentalProtection = "ENVIRONMENTAL_PROTECTION"
	TypeElderlyCare             = "ELDERLY_CARE"
	TypeChildrenTutoring        = "CHILDREN_TUTORING"
	TypeDisabilitiesSupport     = "DISABILITIES_SUPPORT"
	TypeCulturalEvents          = "CULTURAL_EVENTS"
	TypeEmergencyResponse       = "EMERGENCY_RESPONSE"
	TypeHealthPromotion         = "HEALTH_PROMOTION"
	TypeOther                   = "OTHER"
)

var activityTypes = map[string]bool{
	TypeCommunityService:        true,
	TypeEnvironmentalProtection: true,
	TypeElderlyCare:             true,
	TypeChildrenTutoring:        true,
	TypeDisabilitiesSupport:     true,
	TypeCulturalEvents:          true,
	TypeEmergencyResponse:       true,
	TypeHealthPromotion:         true,
	TypeOther:                   true,
}

func ValidType(t string) bool {
	return activityTypes[t]
}

// ValidStatus 查询时可用的状态 (含推导状态)
func ValidStatus(s string) bool {
	switch s {
	case StatusRecruiting, StatusConfirmed, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ValidDeclaredStatus 可以写入数据库的状态
func ValidDeclaredStatus(s string) bool {
	switch s {
	case StatusRecruiting, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// EffectiveStatus 根据时间窗口计算活动的实际状态
func EffectiveStatus(declared string, start, end, now time.Time) string {
	if declared == StatusCancelled {
		return StatusCancelled
	}
	if now.After(end) {
		return StatusCompleted
	}
	if !now.Before(start) {
		return StatusOngoing
	}
	if declared == StatusConfirmed {
		return StatusConfirmed
	}
	return StatusRecruiting
}

// Activity 志愿活动
type Activity struct {
	ID              int64           `gorm:"primaryKey;autoIncrement"`
	Title           string          `gorm:"size:100;not null"`
	Description     string          `gorm:"type:text"`
	Type            string          `gorm:"size:30;not null"`
	Location        string          `gorm:"size:200;not null"`
	StartTime       time.Time       `gorm:"not null;index"`
	EndTime         time.Time       `gorm:"not null"`
	Status          string          `gorm:"size:20;not null"`
	PointsPerHour   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	MaxParticipants int             `gorm:"not null"`
	CurParticipants int             `gorm:"not null;default:0"`
	CreateTime      time.Time       `gorm:"autoCreateTime"`
	UpdateTime      time.Time       `gorm:"autoUpdateTime"`
}

func (Activity) TableName() string {
	return "activities"
}

func (a *Activity) Effective(now time.Time) string {
	return EffectiveStatus(a.Status, a.StartTime, a.EndTime, now)
}

// AcceptsSignup 只有招募中或已确认的活动可以报名
func (a *Activity) AcceptsSignup(now time.Time) bool {
	switch a.Effective(now) {
	case StatusRecruiting, StatusConfirmed:
		return true
	}
	return false
}

// Started 活动已开始或已结束
func (a *Activity) Started(now time.Time) bool {
	switch a.Effective(now) {
	case StatusOngoing, StatusCompleted:
		return true
	}
	return false
}

func (a *Activity) Full() bool {
	return a.CurParticipants >= a.MaxParticipants
}

func (a *Activity) Release() {
	if a.CurParticipants > 0 {
		a.CurParticipants--
	}
}
