package handler

import (
	"volunteer_hub/internal/domain/volunteer/service"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/response"
	"volunteer_hub/pkg/utils"

	"github.com/gin-gonic/gin"
)

// VolunteerHandler 管理端志愿者审核接口
type VolunteerHandler struct {
	service service.VolunteerService
}

func NewVolunteerHandler(service service.VolunteerService) *VolunteerHandler {
	return &VolunteerHandler{service: service}
}

// List 志愿者申请列表
// @Summary 志愿者申请列表
// @Tags Admin
// @Produce json
// @Param status query string false "ALL | REVIEWING | PROCESSED"
// @Success 200 {array} service.AdminVolunteerView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/volunteers [get]
func (h *VolunteerHandler) List(c *gin.Context) {
	list, err := h.service.List(c.Request.Context(), c.DefaultQuery("status", "ALL"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, list)
}

// Review 审核志愿者申请
// @Summary 审核志愿者申请
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "志愿者ID"
// @Param body body service.ReviewInput true "审核操作"
// @Success 200 {object} service.AdminVolunteerView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/volunteers/{id}/review [post]
func (h *VolunteerHandler) Review(c *gin.Context) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}

	var input service.ReviewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "审核操作不能为空"))
		return
	}

	view, err := h.service.Review(c.Request.Context(), id, input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}
