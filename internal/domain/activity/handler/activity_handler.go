package handler

import (
	"volunteer_hub/internal/domain/activity/service"
	volunteerRepository "volunteer_hub/internal/domain/volunteer/repository"
	volunteerService "volunteer_hub/internal/domain/volunteer/service"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/response"
	"volunteer_hub/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ActivityHandler 活动与报名接口
type ActivityHandler struct {
	activities service.ActivityService
	signups    service.SignupService
	volunteers volunteerRepository.VolunteerRepository
}

func NewActivityHandler(activities service.ActivityService, signups service.SignupService, volunteers volunteerRepository.VolunteerRepository) *ActivityHandler {
	return &ActivityHandler{activities: activities, signups: signups, volunteers: volunteers}
}

// List 活动列表
// @Summary 活动列表
// @Tags Activity
// @Produce json
// @Param page query int false "页码，从0开始"
// @Param size query int false "每页数量"
// @Param keyword query string false "标题或描述关键字"
// @Param type query string false "活动类型"
// @Param status query string false "活动状态"
// @Param date query string false "开始日期 yyyy-MM-dd"
// @Param sort query string false "排序方式: status"
// @Success 200 {object} utils.PageResult[service.ActivityView]
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /activity/get-activities [get]
func (h *ActivityHandler) List(c *gin.Context) {
	var q service.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "查询参数格式不正确"))
		return
	}

	p, _ := auth.FromGin(c)
	result, err := h.activities.List(c.Request.Context(), p, q)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// Signup 报名活动
// @Summary 报名活动
// @Tags Activity
// @Accept json
// @Produce json
// @Param body body service.SignupInput true "报名信息"
// @Success 200 {object} service.SignupResult
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /activity/signup [post]
func (h *ActivityHandler) Signup(c *gin.Context) {
	var input service.SignupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "活动ID不能为空"))
		return
	}

	p, _ := auth.FromGin(c)
	result, err := h.signups.Signup(c.Request.Context(), p, input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// CancelSignup 取消报名
// @Summary 取消报名
// @Tags Activity
// @Accept json
// @Produce json
// @Param body body service.CancelSignupInput true "活动ID"
// @Success 200 {object} service.SignupResult
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /activity/cancel-signup [post]
func (h *ActivityHandler) CancelSignup(c *gin.Context) {
	var input service.CancelSignupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "活动ID不能为空"))
		return
	}

	p, _ := auth.FromGin(c)
	result, err := h.signups.CancelSignup(c.Request.Context(), p, input.ActivityID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// VolunteerSignups 志愿者报名记录
// @Summary 志愿者报名记录
// @Tags Volunteer
// @Produce json
// @Param id path int true "志愿者ID"
// @Param page query int false "页码，从0开始"
// @Param size query int false "每页数量"
// @Success 200 {object} utils.PageResult[service.SignupRecordView]
// @Security BearerAuth
// @Router /volunteer/{id}/signup-records [get]
func (h *ActivityHandler) VolunteerSignups(c *gin.Context) {
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

	result, err := h.activities.MySignups(c.Request.Context(), volunteerID, page)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// Create 创建活动
// @Summary 创建活动
// @Tags Admin
// @Accept json
// @Produce json
// @Param body body service.CreateActivityInput true "活动信息"
// @Success 201 {object} service.ActivityView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/activities [post]
func (h *ActivityHandler) Create(c *gin.Context) {
	var input service.CreateActivityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "活动信息格式不正确"))
		return
	}

	view, err := h.activities.Create(c.Request.Context(), input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, view)
}

// Update 修改活动
// @Summary 修改活动
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "活动ID"
// @Param body body service.UpdateActivityInput true "修改内容"
// @Success 200 {object} service.ActivityView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/activities/{id} [put]
func (h *ActivityHandler) Update(c *gin.Context) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var input service.UpdateActivityInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "活动信息格式不正确"))
		return
	}

	view, err := h.activities.Update(c.Request.Context(), id, input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}

// Cancel 取消活动
// @Summary 取消活动
// @Tags Admin
// @Param id path int true "活动ID"
// @Success 204
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/activities/{id} [delete]
func (h *ActivityHandler) Cancel(c *gin.Context) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.activities.Cancel(c.Request.Context(), id); err != nil {
		response.Fail(c, err)
		return
	}
	response.NoContent(c)
}

// ListSignups 活动报名列表
// @Summary 活动报名列表
// @Tags Admin
// @Produce json
// @Param id path int true "活动ID"
// @Success 200 {array} service.AdminSignupView
// @Security BearerAuth
// @Router /admin/activities/{id}/signups [get]
func (h *ActivityHandler) ListSignups(c *gin.Context) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	list, err := h.activities.ListSignups(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, list)
}

// Settle 更新报名记录（确认、拒绝、结算、未到场）
// @Summary 更新报名记录
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "活动ID"
// @Param signupId path int true "报名记录ID"
// @Param body body service.SettleInput true "状态与结算信息"
// @Success 200 {object} service.AdminSignupView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/activities/{id}/signups/{signupId} [put]
func (h *ActivityHandler) Settle(c *gin.Context) {
	activityID, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	signupID, err := utils.ParamID(c, "signupId")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var input service.SettleInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "报名状态不能为空"))
		return
	}

	view, err := h.signups.Settle(c.Request.Context(), activityID, signupID, input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}
