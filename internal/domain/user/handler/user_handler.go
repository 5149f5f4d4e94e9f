package handler

import (
	"volunteer_hub/internal/domain/user/service"
	"volunteer_hub/internal/pkg/auth"
	"volunteer_hub/internal/pkg/middleware"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/response"
	"volunteer_hub/pkg/utils"

	"github.com/gin-gonic/gin"
)

// UserHandler 用户处理器
type UserHandler struct {
	auth  service.AuthService
	users service.UserService
}

// NewUserHandler 创建处理器
func NewUserHandler(auth service.AuthService, users service.UserService) *UserHandler {
	return &UserHandler{auth: auth, users: users}
}

// Register 处理注册请求
// @Summary 用户注册
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body service.RegisterInput true "注册信息"
// @Success 201 {object} service.RegisterResult
// @Failure 400 {object} response.ErrorBody
// @Failure 403 {object} response.ErrorBody
// @Router /auth/register [post]
func (h *UserHandler) Register(c *gin.Context) {
	var input service.RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "用户名和密码不能为空")
		return
	}

	result, err := h.auth.Register(c.Request.Context(), input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Created(c, result)
}

// Login 处理登录请求
// @Summary 用户登录
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body service.LoginInput true "登录信息"
// @Success 200 {object} service.LoginResult
// @Failure 401 {object} response.ErrorBody
// @Router /auth/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var input service.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, "用户名和密码不能为空")
		return
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// Logout 退出登录，令牌缺失时同样返回成功
// @Summary 退出登录
// @Tags Auth
// @Produce json
// @Success 200 {object} map[string]string
// @Router /auth/logout [post]
func (h *UserHandler) Logout(c *gin.Context) {
	if token, ok := middleware.BearerToken(c); ok {
		if err := h.auth.Logout(c.Request.Context(), token); err != nil {
			response.Fail(c, err)
			return
		}
	}
	response.Message(c, "已退出登录")
}

// Profile 个人资料
// @Summary 个人资料
// @Tags User
// @Produce json
// @Param userId path int true "用户ID"
// @Success 200 {object} service.ProfileView
// @Failure 403 {object} response.ErrorBody
// @Security BearerAuth
// @Router /user/{userId}/profile [get]
func (h *UserHandler) Profile(c *gin.Context) {
	userID, err := utils.ParamID(c, "userId")
	if err != nil {
		response.Fail(c, err)
		return
	}
	p, _ := auth.FromGin(c)

	view, err := h.users.Profile(c.Request.Context(), p, userID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}

// UpdateProfile 修改用户名或手机号，修改用户名后需重新登录
// @Summary 修改个人资料
// @Tags User
// @Accept json
// @Produce json
// @Param userId path int true "用户ID"
// @Param body body service.UpdateProfileInput true "资料"
// @Success 200 {object} service.ProfileView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /user/{userId}/profile [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, err := utils.ParamID(c, "userId")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var input service.UpdateProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "用户名不能为空"))
		return
	}
	p, _ := auth.FromGin(c)

	view, err := h.users.UpdateProfile(c.Request.Context(), p, userID, input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}

// ChangePassword 修改密码
// @Summary 修改密码
// @Tags User
// @Accept json
// @Produce json
// @Param userId path int true "用户ID"
// @Param body body service.ChangePasswordInput true "密码"
// @Success 200 {object} map[string]string
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /user/{userId}/password [put]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	userID, err := utils.ParamID(c, "userId")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var input service.ChangePasswordInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "新密码不能为空"))
		return
	}
	p, _ := auth.FromGin(c)

	if err := h.users.ChangePassword(c.Request.Context(), p, userID, input); err != nil {
		response.Fail(c, err)
		return
	}
	response.Message(c, "密码已修改，请重新登录")
}

// ApplyVolunteer 申请志愿者认证
// @Summary 申请志愿者认证
// @Tags User
// @Accept json
// @Produce json
// @Param userId path int true "用户ID"
// @Param body body service.VolunteerApplyInput true "申请信息"
// @Success 200 {object} service.ProfileView
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /user/{userId}/volunteer-apply [post]
func (h *UserHandler) ApplyVolunteer(c *gin.Context) {
	userID, err := utils.ParamID(c, "userId")
	if err != nil {
		response.Fail(c, err)
		return
	}
	var input service.VolunteerApplyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Fail(c, errs.New(errs.KindValidation, "真实姓名不能为空"))
		return
	}
	p, _ := auth.FromGin(c)

	view, err := h.users.ApplyVolunteer(c.Request.Context(), p, userID, input)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}
