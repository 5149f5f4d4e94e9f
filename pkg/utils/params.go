package utils

import (
	"strconv"

	"volunteer_hub/pkg/errs"

	"github.com/gin-gonic/gin"
)

// ParamID 解析路径中的正整数 ID
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Newf(errs.KindValidation, "无效的参数 %s", name)
	}
	return id, nil
}

// BindPagination 读取 page/size 查询参数并校验
func BindPagination(c *gin.Context) (Pagination, error) {
	var p Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		return p, errs.New(errs.KindValidation, "分页参数格式不正确")
	}
	if err := p.Normalize(); err != nil {
		return p, err
	}
	return p, nil
}
