package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

// 压测：多名志愿者并发抢报同一活动的最后名额，成功数必须等于名额
var (
	baseURL    string
	adminUser  string
	adminPass  string
	totalUsers int
	capacity   int
)

var errOversold = errors.New("报名成功数与名额不符")

var httpClient *http.Client

func init() {
	// 优化 HTTP Client 配置
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "stress_tool",
		Short:        "并发抢报活动名额的压测",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drill()
		},
	}
	flags := rootCmd.Flags()
	flags.StringVar(&baseURL, "base", "http://localhost:8080", "服务地址")
	flags.StringVar(&adminUser, "admin", "admin", "管理员用户名")
	flags.StringVar(&adminPass, "admin-pass", "admin123", "管理员密码")
	flags.IntVarP(&totalUsers, "users", "u", 200, "并发报名的志愿者数")
	flags.IntVarP(&capacity, "slots", "s", 5, "活动名额")

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errOversold) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func drill() error {
	// 管理员账号由服务端配置 admin.* 初始化
	adminToken, err := login(adminUser, adminPass)
	if err != nil {
		return fmt.Errorf("管理员登录失败: %w", err)
	}

	// 1. 创建活动 (管理员操作)
	activityID, err := createActivity(adminToken)
	if err != nil {
		return fmt.Errorf("创建活动失败: %w", err)
	}

	// 2. 准备志愿者：注册、审核通过、登录
	prefix := fmt.Sprintf("drill%d", time.Now().Unix()%100000)
	tokens, err := prepareVolunteers(adminToken, prefix, totalUsers)
	if err != nil {
		return fmt.Errorf("准备志愿者失败: %w", err)
	}

	fmt.Printf("开始压测：%d 名志愿者抢 %d 个名额 (ActivityID: %d)...\n", len(tokens), capacity, activityID)
	time.Sleep(1 * time.Second)

	// 3. 并发报名
	var wg sync.WaitGroup
	successCount := 0
	failCount := 0
	codes := make(map[string]int)
	var mu sync.Mutex

	start := time.Now()

	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			ok, code := signup(token, activityID)
			mu.Lock()
			if ok {
				successCount++
			} else {
				failCount++
				codes[code]++
			}
			mu.Unlock()
		}(token)
	}

	wg.Wait()
	duration := time.Since(start)
	qps := float64(len(tokens)) / duration.Seconds()

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d\n", len(tokens))
	fmt.Printf("QPS: %.2f\n", qps)
	fmt.Printf("报名成功: %d (预期: %d)\n", successCount, capacity)
	fmt.Printf("报名失败: %d %v\n", failCount, codes)
	fmt.Println("--------------------------------------------------")

	if successCount != capacity {
		return errOversold
	}
	return nil
}

// call 发送 JSON 请求，返回状态码与响应体
func call(method, path, token string, payload interface{}) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	return resp.StatusCode, respBody, err
}

func login(username, password string) (string, error) {
	status, body, err := call(http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", status, body)
	}
	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func createActivity(adminToken string) (int64, error) {
	startTime := time.Now().Add(24 * time.Hour)
	status, body, err := call(http.MethodPost, "/api/admin/activities", adminToken, map[string]interface{}{
		"title":           "压测专用活动",
		"description":     "并发报名压测",
		"type":            "OTHER",
		"location":        "线上",
		"startTime":       startTime.Format("2006-01-02 15:04:05"),
		"endTime":         startTime.Add(2 * time.Hour).Format("2006-01-02 15:04:05"),
		"pointsPerHour":   10,
		"maxParticipants": capacity,
	})
	if err != nil {
		return 0, err
	}
	fmt.Printf("创建活动响应: %s\n", string(body))
	if status != http.StatusCreated {
		return 0, fmt.Errorf("status %d", status)
	}

	var result struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, err
	}
	return result.ID, nil
}

func prepareVolunteers(adminToken, prefix string, n int) ([]string, error) {
	const password = "drill123"
	names := make(map[int64]string, n)

	for i := 0; i < n; i++ {
		username := fmt.Sprintf("%s_%d", prefix, i)
		status, body, err := call(http.MethodPost, "/api/auth/register", "", map[string]interface{}{
			"username":         username,
			"password":         password,
			"phone":            fmt.Sprintf("139%08d", i),
			"requestVolunteer": true,
		})
		if err != nil {
			return nil, err
		}
		if status != http.StatusCreated {
			return nil, fmt.Errorf("注册 %s: status %d: %s", username, status, body)
		}
		var result struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, err
		}
		names[result.ID] = username
	}

	// 审核通过本轮注册的申请
	status, body, err := call(http.MethodGet, "/api/admin/volunteers?status=REVIEWING", adminToken, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("查询待审核志愿者: status %d", status)
	}
	var pending []struct {
		ID     int64 `json:"id"`
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(body, &pending); err != nil {
		return nil, err
	}
	for _, v := range pending {
		if _, ok := names[v.UserID]; !ok {
			continue
		}
		path := fmt.Sprintf("/api/admin/volunteers/%d/review", v.ID)
		status, body, err := call(http.MethodPost, path, adminToken, map[string]string{"action": "APPROVE", "note": "压测自动通过"})
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("审核志愿者 %d: status %d: %s", v.ID, status, body)
		}
	}

	tokens := make([]string, 0, len(names))
	for _, username := range names {
		token, err := login(username, password)
		if err != nil {
			return nil, fmt.Errorf("登录 %s: %w", username, err)
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func signup(token string, activityID int64) (bool, string) {
	status, body, err := call(http.MethodPost, "/api/activity/signup", token, map[string]int64{
		"activityId": activityID,
	})
	if err != nil {
		return false, "NETWORK"
	}
	if status == http.StatusOK || status == http.StatusCreated {
		return true, ""
	}

	var result struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Code == "" {
		return false, fmt.Sprintf("HTTP_%d", status)
	}
	return false, result.Code
}
