package uploader

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"volunteer_hub/internal/pkg/config"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/sts"
	"github.com/google/uuid"
)

const (
	minDurationSeconds = 900
	maxDurationSeconds = 3600
)

// allowActions 临时凭证只允许读写与分片上传
var allowActions = []string{
	"oss:GetObject",
	"oss:PutObject",
	"oss:InitiateMultipartUpload",
	"oss:UploadPart",
	"oss:CompleteMultipartUpload",
	"oss:ListParts",
	"oss:AbortMultipartUpload",
}

type Credentials struct {
	TmpSecretID  string `json:"tmpSecretId"`
	TmpSecretKey string `json:"tmpSecretKey"`
	SessionToken string `json:"sessionToken"`
}

// Credential 前端直传使用的临时凭证
type Credential struct {
	Credentials Credentials `json:"credentials"`
	StartTime   int64       `json:"startTime"`
	ExpiredTime int64       `json:"expiredTime"`
	Region      string      `json:"region"`
	Bucket      string      `json:"bucket"`
	Prefix      string      `json:"prefix"`
}

type CredentialBroker interface {
	Credential() (*Credential, error)
}

// roleAssumer 对应 *sts.Client
type roleAssumer interface {
	AssumeRole(request *sts.AssumeRoleRequest) (*sts.AssumeRoleResponse, error)
}

type STSBroker struct {
	client roleAssumer
	cfg    config.COSConfig
	now    func() time.Time
}

func NewSTSBroker(cfg config.COSConfig) (*STSBroker, error) {
	if !cfg.Enabled() || cfg.RoleArn == "" {
		return nil, ErrNotConfigured
	}
	client, err := sts.NewClientWithAccessKey(cfg.Region, cfg.SecretID, cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	return &STSBroker{client: client, cfg: cfg, now: time.Now}, nil
}

func (b *STSBroker) durationSeconds() int {
	d := b.cfg.DurationSeconds
	if d < minDurationSeconds {
		d = minDurationSeconds
	}
	if d > maxDurationSeconds {
		d = maxDurationSeconds
	}
	return d
}

// policy 把授权范围收窄到 bucket 下的 images/ 目录
func (b *STSBroker) policy() (string, error) {
	doc := map[string]interface{}{
		"Version": "1",
		"Statement": []map[string]interface{}{{
			"Effect":   "Allow",
			"Action":   allowActions,
			"Resource": []string{fmt.Sprintf("acs:oss:*:*:%s/%s*", b.cfg.BucketName, ImagePrefix)},
		}},
	}
	data, err := json.Marshal(doc)
	return string(data), err
}

func (b *STSBroker) Credential() (*Credential, error) {
	policy, err := b.policy()
	if err != nil {
		return nil, err
	}

	req := sts.CreateAssumeRoleRequest()
	req.Scheme = "https"
	req.RoleArn = b.cfg.RoleArn
	req.RoleSessionName = "upload-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	req.DurationSeconds = requests.NewInteger(b.durationSeconds())
	req.Policy = policy

	start := b.now()
	resp, err := b.client.AssumeRole(req)
	if err != nil {
		return nil, fmt.Errorf("获取临时密钥失败: %w", err)
	}

	expired := start.Add(time.Duration(b.durationSeconds()) * time.Second)
	if t, err := time.Parse(time.RFC3339, resp.Credentials.Expiration); err == nil {
		expired = t
	}

	return &Credential{
		Credentials: Credentials{
			TmpSecretID:  resp.Credentials.AccessKeyId,
			TmpSecretKey: resp.Credentials.AccessKeySecret,
			SessionToken: resp.Credentials.SecurityToken,
		},
		StartTime:   start.Unix(),
		ExpiredTime: expired.Unix(),
		Region:      b.cfg.Region,
		Bucket:      b.cfg.BucketName,
		Prefix:      ImagePrefix,
	}, nil
}
