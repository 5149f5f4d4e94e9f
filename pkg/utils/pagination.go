package utils

import (
	"volunteer_hub/pkg/errs"
)

const (
	DefaultPageSize = 8
	MaxPageSize     = 100
)

// Pagination 分页请求参数，page 从 0 开始
type Pagination struct {
	Page int `json:"page" form:"page"`
	Size int `json:"size" form:"size"`
}

// PageResult 分页响应结果
type PageResult[T any] struct {
	Content       []T   `json:"content"`
	CurPage       int   `json:"curPage"`
	PageSize      int   `json:"pageSize"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
}

// Normalize 校验并补全分页参数
func (p *Pagination) Normalize() error {
	if p.Page < 0 {
		return errs.New(errs.KindValidation, "页码不能小于0")
	}
	if p.Size < 0 {
		return errs.New(errs.KindValidation, "每页记录数必须大于0")
	}
	if p.Size == 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return nil
}

// GetPageOffset 计算分页偏移量
func (p *Pagination) GetPageOffset() (int, int) {
	return p.Page * p.Size, p.Size
}

// NewPageResult 构造分页结果
func NewPageResult[T any](content []T, p Pagination, total int64) PageResult[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if p.Size > 0 {
		totalPages = int(total) / p.Size
		if int(total)%p.Size > 0 {
			totalPages++
		}
	}
	return PageResult[T]{
		Content:       content,
		CurPage:       p.Page,
		PageSize:      p.Size,
		TotalElements: total,
		TotalPages:    totalPages,
	}
}
