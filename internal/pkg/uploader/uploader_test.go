package uploader

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"volunteer_hub/internal/pkg/config"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/sts"
	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = config.COSConfig{
	SecretID:        "id",
	SecretKey:       "key",
	Region:          "cn-hangzhou",
	BucketName:      "volunteer",
	Endpoint:        "https://oss-cn-hangzhou.aliyuncs.com",
	RoleArn:         "acs:ram::1:role/upload",
	DurationSeconds: 60,
}

type fakeBucket struct {
	key  string
	data []byte
	opts int
	err  error
}

func (b *fakeBucket) PutObject(key string, r io.Reader, options ...oss.Option) error {
	if b.err != nil {
		return b.err
	}
	b.key = key
	b.opts = len(options)
	b.data, _ = io.ReadAll(r)
	return nil
}

// fileHeader 构造一个 multipart 文件
func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("files", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	return form.File["files"][0]
}

func TestNewAliyunOSSUploader_NotConfigured(t *testing.T) {
	_, err := NewAliyunOSSUploader(config.COSConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewSTSBroker(config.COSConfig{SecretID: "a", SecretKey: "b", BucketName: "c"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUploadFile(t *testing.T) {
	bucket := &fakeBucket{}
	u := newOSSUploader(bucket, testCfg)
	u.now = func() time.Time { return time.Date(2026, 5, 4, 9, 0, 0, 0, time.Local) }

	url, err := u.UploadFile(fileHeader(t, "photo.PNG", []byte("png-bytes")))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(bucket.key, "images/20260504/"))
	assert.True(t, strings.HasSuffix(bucket.key, ".png"))
	assert.Equal(t, "https://volunteer.oss-cn-hangzhou.aliyuncs.com/"+bucket.key, url)
	assert.Equal(t, []byte("png-bytes"), bucket.data)
	assert.Equal(t, 1, bucket.opts)
}

func TestUploadFile_Rejects(t *testing.T) {
	bucket := &fakeBucket{}
	u := newOSSUploader(bucket, testCfg)

	_, err := u.UploadFile(fileHeader(t, "doc.pdf", []byte("x")))
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	big := fileHeader(t, "big.jpg", []byte("x"))
	big.Size = MaxImageSize + 1
	_, err = u.UploadFile(big)
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.Empty(t, bucket.key)

	bucket.err = errors.New("network")
	_, err = u.UploadFile(fileHeader(t, "a.jpg", []byte("x")))
	assert.EqualError(t, err, "network")
}

type fakeAssumer struct {
	req  *sts.AssumeRoleRequest
	resp *sts.AssumeRoleResponse
	err  error
}

func (f *fakeAssumer) AssumeRole(req *sts.AssumeRoleRequest) (*sts.AssumeRoleResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestSTSBroker_Credential(t *testing.T) {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	resp := &sts.AssumeRoleResponse{}
	resp.Credentials.AccessKeyId = "STS.tmp"
	resp.Credentials.AccessKeySecret = "secret"
	resp.Credentials.SecurityToken = "token"
	resp.Credentials.Expiration = "2026-05-04T09:15:00Z"

	fake := &fakeAssumer{resp: resp}
	b := &STSBroker{client: fake, cfg: testCfg, now: func() time.Time { return start }}

	cred, err := b.Credential()
	require.NoError(t, err)
	assert.Equal(t, "STS.tmp", cred.Credentials.TmpSecretID)
	assert.Equal(t, "token", cred.Credentials.SessionToken)
	assert.Equal(t, start.Unix(), cred.StartTime)
	assert.Equal(t, start.Add(15*time.Minute).Unix(), cred.ExpiredTime)
	assert.Equal(t, ImagePrefix, cred.Prefix)

	// 时长下限 900 秒，策略只授权 images/ 目录
	assert.Equal(t, requests.NewInteger(900), fake.req.DurationSeconds)
	assert.Equal(t, testCfg.RoleArn, fake.req.RoleArn)
	var policy struct {
		Statement []struct {
			Resource []string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(fake.req.Policy), &policy))
	require.Len(t, policy.Statement, 1)
	assert.Equal(t, []string{"acs:oss:*:*:volunteer/images/*"}, policy.Statement[0].Resource)
}

func TestSTSBroker_Error(t *testing.T) {
	b := &STSBroker{client: &fakeAssumer{err: errors.New("denied")}, cfg: testCfg, now: time.Now}

	_, err := b.Credential()
	assert.ErrorContains(t, err, "denied")
}
