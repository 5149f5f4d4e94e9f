package handler

import (
	"volunteer_hub/internal/domain/product/service"
	volunteerRepository "volunteer_hub/internal/domain/volunteer/repository"
	volunteerService "volunteer_hub/internal/domain/volunteer/service"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/response"
	"volunteer_hub/pkg/utils"

	"github.com/gin-gonic/gin"
)

// ProductHandler 商品与兑换接口
type ProductHandler struct {
	products   service.ProductService
	exchanges  service.ExchangeService
	volunteers volunteerRepository.VolunteerRepository
}

func NewProductHandler(products service.ProductService, exchanges service.ExchangeService, volunteers volunteerRepository.VolunteerRepository) *ProductHandler {
	return &ProductHandler{products: products, exchanges: exchanges, volunteers: volunteers}
}

// List 商品列表
// @Summary 商品列表
// @Tags Product
// @Produce json
// @Param page query int false "页码，从0开始"
// @Param size query int false "每页数量"
// @Param keyword query string false "名称或描述关键字"
// @Param category query string false "商品分类"
// @Success 200 {object} utils.PageResult[service.ProductView]
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /product/get-products [get]
func (h *ProductHandler) List(c *gin.Context) {
	var q service.ProductQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "查询参数格式不正确"))
		return
	}
	result, err := h.products.List(c.Request.Context(), q)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// Exchange 兑换商品
// @Summary 兑换商品
// @Tags Product
// @Accept json
// @Produce json
// @Param body body service.ExchangeInput true "兑换信息"
// @Success 200 {object} service.ExchangeResult
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /product/exchange [post]
func (h *ProductHandler) Exchange(c *gin.Context) {
	var input service.ExchangeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "商品ID不能为空"))
		return
	}

	p, _ := auth.FromGin(c)
	result, err := h.exchanges.Exchange(c.Request.Context(), p, input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// VolunteerExchanges 志愿者兑换记录
// @Summary 志愿者兑换记录
// @Tags Volunteer
// @Produce json
// @Param id path int true "志愿者ID"
// @Param page query int false "页码，从0开始"
// @Param size query int false "每页数量"
// @Success 200 {object} utils.PageResult[service.ExchangeRecordView]
// @Security BearerAuth
// @Router /volunteer/{id}/exchange-records [get]
func (h *ProductHandler) VolunteerExchanges(c *gin.Context) {
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

	result, err := h.exchanges.MyExchanges(c.Request.Context(), volunteerID, page)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// CancelExchange 取消兑换
// @Summary 取消待审核的兑换
// @Tags Volunteer
// @Param id path int true "志愿者ID"
// @Param recordId path int true "兑换记录ID"
// @Success 204
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /volunteer/{id}/exchange-records/{recordId} [delete]
func (h *ProductHandler) CancelExchange(c *gin.Context) {
	volunteerID, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	recordID, err := utils.ParamID(c, "recordId")
	if err != nil {
		response.Fail(c, err)
		return
	}

	p, _ := auth.FromGin(c)
	if err := h.exchanges.UserCancel(c.Request.Context(), p, volunteerID, recordID); err != nil {
		response.Fail(c, err)
		return
	}
	response.NoContent(c)
}

// AdminExchanges 兑换记录列表
// @Summary 兑换记录列表
// @Tags Admin
// @Produce json
// @Param status query string false "ALL | REVIEWING | COMPLETED | CANCELLED | REJECTED"
// @Param page query int false "页码，从0开始"
// @Param size query int false "每页数量"
// @Success 200 {object} utils.PageResult[service.AdminExchangeView]
// @Security BearerAuth
// @Router /admin/exchange-records [get]
func (h *ProductHandler) AdminExchanges(c *gin.Context) {
	page, err := utils.BindPagination(c)
	if err != nil {
		response.Fail(c, err)
		return
	}
	result, err := h.exchanges.AdminList(c.Request.Context(), c.Query("status"), page)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// Approve 批准兑换
// @Summary 批准兑换
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "兑换记录ID"
// @Param body body service.ProcessInput false "备注"
// @Success 200 {object} service.AdminExchangeView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/exchange-records/{id}/approve [post]
func (h *ProductHandler) Approve(c *gin.Context) {
	id, input, ok := bindProcess(c)
	if !ok {
		return
	}
	view, err := h.exchanges.Approve(c.Request.Context(), id, input.Note)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}

// Reject 拒绝兑换
// @Summary 拒绝兑换并退还积分
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "兑换记录ID"
// @Param body body service.ProcessInput false "备注"
// @Success 200 {object} service.AdminExchangeView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/exchange-records/{id}/reject [post]
func (h *ProductHandler) Reject(c *gin.Context) {
	id, input, ok := bindProcess(c)
	if !ok {
		return
	}
	view, err := h.exchanges.Reject(c.Request.Context(), id, input.Note)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}

func bindProcess(c *gin.Context) (int64, service.ProcessInput, bool) {
	var input service.ProcessInput
	id, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return 0, input, false
	}
	// 备注可以省略
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			response.Fail(c, errs.New(errs.KindValidation, "请求参数格式不正确"))
			return 0, input, false
		}
	}
	return id, input, true
}

// AdminProducts 管理端商品列表
// @Summary 管理端商品列表
// @Tags Admin
// @Produce json
// @Param page query int false "页码，从0开始"
// @Param size query int false "每页数量"
// @Param keyword query string false "关键字"
// @Param category query string false "分类"
// @Param status query string false "状态"
// @Success 200 {object} utils.PageResult[service.ProductView]
// @Security BearerAuth
// @Router /admin/products [get]
func (h *ProductHandler) AdminProducts(c *gin.Context) {
	var q service.ProductQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "查询参数格式不正确"))
		return
	}
	result, err := h.products.AdminList(c.Request.Context(), q)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// CreateProduct 新增商品
// @Summary 新增商品
// @Tags Admin
// @Accept json
// @Produce json
// @Param body body service.ProductInput true "商品信息"
// @Success 201 {object} service.ProductView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/products [post]
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var input service.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "商品信息格式不正确"))
		return
	}
	view, err := h.products.Create(c.Request.Context(), input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, view)
}

// UpdateProduct 修改商品
// @Summary 修改商品
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path int true "商品ID"
// @Param body body service.ProductUpdateInput true "修改内容"
// @Success 200 {object} service.ProductView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/products/{id} [put]
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var input service.ProductUpdateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "商品信息格式不正确"))
		return
	}
	view, err := h.products.Update(c.Request.Context(), id, input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}

// DeleteProduct 下架商品
// @Summary 删除商品（软删除）
// @Tags Admin
// @Param id path int true "商品ID"
// @Success 204
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /admin/products/{id} [delete]
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	id, err := utils.ParamID(c, "id")
	if err != nil {
		response.Fail(c, err)
		return
	}
	if err := h.products.Delete(c.Request.Context(), id); err != nil {
		response.Fail(c, err)
		return
	}
	response.NoContent(c)
}
