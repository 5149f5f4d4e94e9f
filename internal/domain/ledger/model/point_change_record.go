package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 积分变动类型
const (
	TypeActivityEarn = "ACTIVITY_EARN"
	TypeExchangeUse  = "EXCHANGE_USE"
	TypeAdminAdjust  = "ADMIN_ADJUST"
	TypeSystemBonus  = "SYSTEM_BONUS"
)

// 关联记录类型
const (
	RelatedSignup   = "SIGNUP"
	RelatedExchange = "EXCHANGE"
)

var typeLabels = map[string]string{
	TypeActivityEarn: "活动结算",
	TypeExchangeUse:  "兑换消耗",
	TypeAdminAdjust:  "管理员调整",
	TypeSystemBonus:  "系统奖励",
}

// ValidChangeType 是否为合法的变动类型
func ValidChangeType(t string) bool {
	_, ok := typeLabels[t]
	return ok
}

// TypeLabel 变动类型的中文名称
func TypeLabel(t string) string {
	return typeLabels[t]
}

// PointChangeRecord 积分流水。按 id 顺序的累计值即余额
type PointChangeRecord struct {
	ID                int64           `gorm:"primaryKey;autoIncrement"`
	VolunteerID       int64           `gorm:"column:volunteer_id;not null;index"`
	ChangePoints      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ChangeType        string          `gorm:"size:20;not null"`
	Reason            string          `gorm:"size:200;not null"`
	RelatedRecordID   *int64          `gorm:"column:related_record_id"`
	RelatedRecordType *string         `gorm:"column:related_record_type;size:20"`
	BalanceAfter      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ChangeTime        time.Time       `gorm:"not null"`
	Note              string          `gorm:"size:200"`
}

func (PointChangeRecord) TableName() string {
	return "point_change_records"
}
