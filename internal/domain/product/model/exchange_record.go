package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 兑换记录状态
const (
	ExchangeReviewing = "REVIEWING"
	ExchangeCompleted = "COMPLETED"
	ExchangeCancelled = "CANCELLED"
	ExchangeRejected  = "REJECTED"
)

func ValidExchangeStatus(s string) bool {
	switch s {
	case ExchangeReviewing, ExchangeCompleted, ExchangeCancelled, ExchangeRejected:
		return true
	}
	return false
}

// ExchangeRecord 兑换订单。REVIEWING 期间占用 Number 件库存
type ExchangeRecord struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	VolunteerID int64           `gorm:"column:volunteer_id;not null;index"`
	ProductID   int64           `gorm:"column:product_id;not null;index"`
	Number      int64           `gorm:"not null"`
	TotalPoints decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status      string          `gorm:"size:20;not null;index"`
	OrderTime   time.Time       `gorm:"not null"`
	ProcessTime *time.Time
	Note        string `gorm:"size:200"`
	RecvInfo    string `gorm:"size:200"`
}

func (ExchangeRecord) TableName() string {
	return "exchange_records"
}

func (r *ExchangeRecord) Pending() bool {
	return r.Status == ExchangeReviewing
}

// Close 进入终态
func (r *ExchangeRecord) Close(status, note string, now time.Time) {
	r.Status = status
	r.Note = note
	r.ProcessTime = &now
}
