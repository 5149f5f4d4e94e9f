package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"sort"
	"sync"
	"time"

	"volunteer_hub/internal/pkg/uploader"
	"volunteer_hub/pkg/errs"
	"volunteer_hub/pkg/response"
	"volunteer_hub/pkg/utils"

	"github.com/gin-gonic/gin"
)

// maxFilesPerRequest 单次最多上传的图片数
const maxFilesPerRequest = 9

var ErrStorageDisabled = errs.New(errs.KindValidation, "对象存储未配置")

// Check 健康检查项
type Check func(ctx context.Context) error

// Handler 上传、临时凭证与健康检查
type Handler struct {
	uploader uploader.Uploader
	broker   uploader.CredentialBroker
	checks   map[string]Check
}

// NewHandler uploader 与 broker 可为 nil，表示对象存储未配置
func NewHandler(u uploader.Uploader, b uploader.CredentialBroker, checks map[string]Check) *Handler {
	return &Handler{uploader: u, broker: b, checks: checks}
}

// UploadFile 上传图片 (支持批量)
// @Summary 上传图片到 OSS (支持批量)
// @Tags Common
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Files"
// @Success 200 {array} string "URLs"
// @Failure 400 {object} response.ErrorBody
// @Security BearerAuth
// @Router /upload [post]
func (h *Handler) UploadFile(c *gin.Context) {
	if h.uploader == nil {
		response.Fail(c, ErrStorageDisabled)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, "表单数据格式错误")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		response.BadRequest(c, "请选择要上传的图片")
		return
	}
	if len(files) > maxFilesPerRequest {
		response.BadRequest(c, "单次最多上传9张图片")
		return
	}

	// 按索引写入，保证返回顺序与上传顺序一致
	urls := make([]string, len(files))

	var wg sync.WaitGroup
	var errOnce sync.Once
	var uploadErr error

	// 限制并发数为 5
	sem := make(chan struct{}, 5)

	for i, file := range files {
		wg.Add(1)
		go func(index int, f *multipart.FileHeader) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			url, err := h.uploader.UploadFile(f)
			if err != nil {
				errOnce.Do(func() {
					uploadErr = err
				})
				return
			}
			urls[index] = url
		}(i, file)
	}

	wg.Wait()

	if uploadErr != nil {
		if errors.Is(uploadErr, uploader.ErrUnsupportedImage) || errors.Is(uploadErr, uploader.ErrImageTooLarge) {
			response.BadRequest(c, uploadErr.Error())
			return
		}
		response.Fail(c, uploadErr)
		return
	}

	response.Success(c, urls)
}

// Credential 获取前端直传的临时凭证
// @Summary 获取上传临时凭证
// @Tags Common
// @Produce json
// @Success 200 {object} uploader.Credential
// @Failure 500 {object} response.ErrorBody
// @Security BearerAuth
// @Router /sts/credential [get]
func (h *Handler) Credential(c *gin.Context) {
	if h.broker == nil {
		response.Fail(c, ErrStorageDisabled)
		return
	}
	cred, err := h.broker.Credential()
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, cred)
}

// Health 健康检查
// @Summary 健康检查
// @Tags Common
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			components[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "up"
	}

	overall := "UP"
	if status != http.StatusOK {
		overall = "DOWN"
	}
	c.JSON(status, gin.H{
		"status":     overall,
		"components": components,
		"time":       time.Now().Format(utils.DateTimeLayout),
	})
}
