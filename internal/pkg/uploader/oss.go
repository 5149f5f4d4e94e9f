package uploader

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"volunteer_hub/internal/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// ImagePrefix 图片只允许写入该目录
const ImagePrefix = "images/"

// MaxImageSize 单张图片上限 5MB
const MaxImageSize = 5 << 20

var (
	ErrUnsupportedImage = errors.New("仅支持 jpg、jpeg、png、gif、webp 格式的图片")
	ErrImageTooLarge    = errors.New("图片大小不能超过5MB")
	ErrNotConfigured    = errors.New("对象存储未配置")
)

var allowedExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

type Uploader interface {
	UploadFile(file *multipart.FileHeader) (string, error)
}

// objectPutter 对应 *oss.Bucket 的写入能力
type objectPutter interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

type AliyunOSSUploader struct {
	bucket  objectPutter
	baseURL string
	now     func() time.Time
}

func NewAliyunOSSUploader(cfg config.COSConfig) (*AliyunOSSUploader, error) {
	if !cfg.Enabled() || cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	client, err := oss.New(cfg.Endpoint, cfg.SecretID, cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, err
	}

	return newOSSUploader(bucket, cfg), nil
}

func newOSSUploader(bucket objectPutter, cfg config.COSConfig) *AliyunOSSUploader {
	host := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")
	return &AliyunOSSUploader{
		bucket:  bucket,
		baseURL: fmt.Sprintf("https://%s.%s", cfg.BucketName, host),
		now:     time.Now,
	}
}

// UploadFile 上传图片，返回公开访问地址
func (u *AliyunOSSUploader) UploadFile(file *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	contentType, ok := allowedExt[ext]
	if !ok {
		return "", ErrUnsupportedImage
	}
	if file.Size > MaxImageSize {
		return "", ErrImageTooLarge
	}

	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	// images/YYYYMMDD/uuid.ext
	key := fmt.Sprintf("%s%s/%s%s", ImagePrefix, u.now().Format("20060102"), uuid.New().String(), ext)
	if err := u.bucket.PutObject(key, src, oss.ContentType(contentType)); err != nil {
		return "", err
	}

	return u.baseURL + "/" + key, nil
}
