package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 商品状态
const (
	StatusAvailable = "AVAILABLE"
	StatusSoldOut   = "SOLD_OUT"
	StatusDeleted   = "DELETED"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusAvailable, StatusSoldOut, StatusDeleted:
		return true
	}
	return false
}

// Product 可用积分兑换的商品
type Product struct {
	ID          int64           `gorm:"primaryKey;autoIncrement"`
	Name        string          `gorm:"size:50;not null"`
	Description string          `gorm:"type:text"`
	ImageURL    string          `gorm:"column:image_url;size:200"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Stock       int64           `gorm:"not null"`
	Category    string          `gorm:"size:30;not null"`
	Status      string          `gorm:"size:20;not null"`
	SortWeight  int             `gorm:"not null;default:0"`
	CreateTime  time.Time       `gorm:"autoCreateTime"`
	UpdateTime  time.Time       `gorm:"autoUpdateTime"`
}

func (Product) TableName() string {
	return "products"
}

// Refresh 库存为0的上架商品视为已售罄
func (p *Product) Refresh() {
	if p.Status == StatusAvailable && p.Stock <= 0 {
		p.Status = StatusSoldOut
	}
}

func (p *Product) Deleted() bool {
	return p.Status == StatusDeleted
}
