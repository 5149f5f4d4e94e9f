package model

import (
	"time"
)

// BaseModel 自增主键与创建时间
type BaseModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CreateTime time.Time `gorm:"autoCreateTime" json:"-"`
}
