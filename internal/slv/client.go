package slv

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/internal/models"
)

const (
	assetAPIPath      = "/api/servlet/SLVAssetAPI"
	loggingAPIPath    = "/api/servlet/SLVLoggingAPI"
	securityCheckPath = "/j_security_check"

	methodGetProfileProperties = "getProfilProperties"
	methodGetGeoZoneDevices    = "getGeoZoneDevices"
	methodGetDevicesLogValues  = "getDevicesLogValues"

	// DefaultRootZoneKey profile 中保存根 geoZone 的属性名
	DefaultRootZoneKey = "geoZoneRootId"
	// DefaultSessionCookie SLV（Tomcat）会话 cookie 名
	DefaultSessionCookie = "JSESSIONID"
)

// Options SLV 客户端配置
type Options struct {
	BaseURL            string        // 如 https://mycityisgreen.com/reports
	Timeout            time.Duration // 单个请求超时，0 表示不限制
	RetryCount         int           // 默认 0：上游错误直接失败
	InsecureSkipVerify bool
	WindowSize         time.Duration  // getDevicesLogValues 单次请求的时间窗口
	Location           *time.Location // SLV 返回的时间没有时区，按此时区解析
	RootZoneKey        string
	SessionCookie      string
}

// Client SLV 厂家 API 客户端
type Client struct {
	httpClient *resty.Client
	baseURL    *url.URL
	opts       Options
	logger     *zap.Logger
}

// NewClient 创建 SLV 客户端
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid SLV base url %q", opts.BaseURL)
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = models.DefaultWindowSize
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.RootZoneKey == "" {
		opts.RootZoneKey = DefaultRootZoneKey
	}
	if opts.SessionCookie == "" {
		opts.SessionCookie = DefaultSessionCookie
	}

	c := &Client{
		baseURL: base,
		opts:    opts,
		logger:  logger,
	}
	// 会话 cookie 由 Session 显式传递，数据请求不使用 cookie jar
	c.httpClient = c.newRestyClient().SetCookieJar(nil)

	return c, nil
}

func (c *Client) newRestyClient() *resty.Client {
	client := resty.New().
		SetBaseURL(c.opts.BaseURL).
		SetTimeout(c.opts.Timeout).
		SetRetryCount(c.opts.RetryCount).
		SetHeader("Accept", "application/json")
	if c.opts.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) // #nosec G402 -- explicitly configured
	}
	return client
}

// apiRequest 构造带会话 cookie 的 SLV API 请求
func (c *Client) apiRequest(sess *Session, method string) *resty.Request {
	return c.httpClient.R().
		SetCookies(sess.Cookies).
		SetQueryParams(map[string]string{
			"methodName": method,
			"ser":        "json",
		})
}

// checkResponse 非 2xx 状态转换为 UpstreamError
func checkResponse(method string, resp *resty.Response) error {
	code := resp.StatusCode()
	if code < http.StatusOK || code >= http.StatusMultipleChoices {
		return &UpstreamError{
			Method:     method,
			StatusCode: code,
			Body:       truncateBody(resp.Body()),
		}
	}
	return nil
}
