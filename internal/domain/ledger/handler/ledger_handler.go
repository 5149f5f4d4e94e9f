package handler

import (
	"volunteer_hub/internal/domain/ledger/service"
	volunteerRepository "volunteer_hub/internal/domain/volunteer/repository"
	volunteerService "volunteer_hub/internal/domain/volunteer/service"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/response"
	"volunteer_hub/pkg/utils"

	"github.com/gin-gonic/gin"
)

// LedgerHandler 积分流水接口
type LedgerHandler struct {
	service    service.LedgerService
	volunteers volunteerRepository.VolunteerRepository
}

func NewLedgerHandler(service service.LedgerService, volunteers volunteerRepository.VolunteerRepository) *LedgerHandler {
	return &LedgerHandler{service: service, volunteers: volunteers}
}

// VolunteerHistory 志愿者积分变动记录
// @Summary 志愿者积分变动记录
// @Tags Volunteer
// @Produce json
// @Param id path int true "志愿者ID"
// @Param page query int false "页码，从0开始"
// @Param size query int false "每页数量"
// @Param changeType query string false "变动类型"
// @Success 200 {object} utils.PageResult[service.EntryView]
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /volunteer/{id}/point-change-records [get]
func (h *LedgerHandler) VolunteerHistory(c *gin.Context) {
	volunteerID, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	p, _ := auth.FromGin(c)
	if err := volunteerService.CheckAccess(c.Request.Context(), h.volunteers, p, volunteerID); err != nil {
		response.Fail(c, err)
		return
	}

	page, err := utils.BindPagination(c)
	if err != nil {
		response.Fail(c, err)
		return
	}

	result, err := h.service.History(c.Request.Context(), volunteerID, c.Query("changeType"), page)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// AdminList 管理端积分流水列表
// @Summary 积分流水列表
// @Tags Admin
// @Produce json
// @Param page query int false "页码，从0开始"
// @Param size query int false "每页数量"
// @Param changeType query string false "变动类型"
// @Param volunteerName query string false "志愿者姓名关键字"
// @Success 200 {object} utils.PageResult[service.AdminEntryView]
// @Security BearerAuth
// @Router /admin/point-records [get]
func (h *LedgerHandler) AdminList(c *gin.Context) {
	page, err := utils.BindPagination(c)
	if err != nil {
		response.Fail(c, err)
		return
	}

	result, err := h.service.AdminList(c.Request.Context(), c.Query("changeType"), c.Query("volunteerName"), page)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// Adjust 新增积分记录
// @Summary 新增积分记录
// @Tags Admin
// @Accept json
// @Produce json
// @Param body body service.AdjustInput true "积分变动"
// @Success 201 {object} service.AdminEntryView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/point-records [post]
func (h *LedgerHandler) Adjust(c *gin.Context) {
	var input service.AdjustInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "志愿者、变动积分与变动类型不能为空"))
		return
	}

	view, err := h.service.Adjust(c.Request.Context(), input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, view)
}

// Update 修改积分记录
// @Summary 修改积分记录
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "流水ID"
// @Param body body service.UpdateInput true "修改内容"
// @Success 200 {object} service.AdminEntryView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/point-records/{id} [put]
func (h *LedgerHandler) Update(c *gin.Context) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}

	var input service.UpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "请求参数格式不正确"))
		return
	}

	view, err := h.service.Update(c.Request.Context(), id, input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}

// Revert 撤销积分记录
// @Summary 撤销积分记录（追加一条相反的调整）
// @Tags Admin
// @Produce json
// @Param id path int true "流水ID"
// @Success 200 {object} service.AdminEntryView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/point-records/{id}/revert [delete]
func (h *LedgerHandler) Revert(c *gin.Context) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}

	view, err := h.service.Revert(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}
