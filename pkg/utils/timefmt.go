package utils

import (
	"strings"
	"time"

	"volunteer_hub/pkg/errs"
)

const (
	DateTimeLayout = "2006-01-02 15:04:05"
	DateLayout     = "2006-01-02"
)

// FormatTime 按 yyyy-MM-dd HH:mm:ss 输出
func FormatTime(t time.Time) string {
	return t.Format(DateTimeLayout)
}

// FormatTimePtr 空指针输出 nil
func FormatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateTimeLayout)
	return &s
}

// ParseDateTime 解析 yyyy-MM-dd HH:mm:ss (本地时区)
func ParseDateTime(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(value), time.Local)
	if err != nil {
		return time.Time{}, errs.Newf(errs.KindValidation, "%s格式不正确，请使用 yyyy-MM-dd HH:mm:ss 格式", field)
	}
	return t, nil
}

// ParseOptionalDateTime 空字符串返回 nil
func ParseOptionalDateTime(field string, value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	t, err := ParseDateTime(field, *value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseDate 解析 yyyy-MM-dd
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.Local)
	if err != nil {
		return time.Time{}, errs.New(errs.KindValidation, "日期格式不正确，请使用 yyyy-MM-dd 格式")
	}
	return t, nil
}
