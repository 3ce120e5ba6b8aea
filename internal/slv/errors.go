package slv

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth 登录握手失败（没有拿到可用的会话）
	ErrAuth = errors.New("slv authentication failed")
	// ErrConfigNotFound 用户 profile 中缺少必需的属性（如 geoZoneRootId）
	ErrConfigNotFound = errors.New("slv profile property not found")
	// ErrUpstream SLV 接口返回非成功状态或无法解析的响应
	ErrUpstream = errors.New("slv upstream error")
)

// UpstreamError SLV 接口返回了非 2xx 状态
type UpstreamError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %s returned status %d", ErrUpstream, e.Method, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s returned status %d: %s", ErrUpstream, e.Method, e.StatusCode, e.Body)
}

// Is 使 errors.Is(err, ErrUpstream) 成立
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// 错误响应体只保留前 maxErrorBody 个字节写入错误信息
const maxErrorBody = 256

func truncateBody(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
