package slv

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"go.uber.org/zap"
)

// Credentials SLV 登录凭据（来自环境变量或配置文件）
type Credentials struct {
	Username string
	Password string
}

// Session 登录后的会话（cookie 集合），后续所有请求复用
type Session struct {
	Cookies []*http.Cookie
}

// Authenticate 两步登录：
//  1. 未登录访问 profile 接口，服务端下发预登录 JSESSIONID
//  2. 携带该 cookie 向 j_security_check 提交用户名密码，升级为已认证会话
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: missing credentials", ErrAuth)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create cookie jar: %v", ErrAuth, err)
	}
	handshake := c.newRestyClient().SetCookieJar(jar)

	resp, err := handshake.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"methodName": methodGetProfileProperties,
			"ser":        "json",
		}).
		Get(assetAPIPath)
	if err != nil {
		return nil, fmt.Errorf("%w: pre-auth request: %v", ErrAuth, err)
	}
	if !c.hasSessionCookie(jar) {
		c.logger.Error("SLV pre-auth request returned no session cookie",
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("%w: pre-auth request returned no %s cookie", ErrAuth, c.opts.SessionCookie)
	}

	resp, err = handshake.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"j_username": creds.Username,
			"j_password": creds.Password,
		}).
		Post(securityCheckPath)
	if err != nil {
		return nil, fmt.Errorf("%w: security check request: %v", ErrAuth, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		c.logger.Error("SLV security check rejected",
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil, fmt.Errorf("%w: security check returned status %d", ErrAuth, resp.StatusCode())
	}

	cookies := jar.Cookies(c.cookieURL())
	if !containsCookie(cookies, c.opts.SessionCookie) {
		return nil, fmt.Errorf("%w: no %s cookie after security check", ErrAuth, c.opts.SessionCookie)
	}

	c.logger.Info("Authenticated against SLV", zap.String("user", creds.Username))

	return &Session{Cookies: cookies}, nil
}

func (c *Client) hasSessionCookie(jar http.CookieJar) bool {
	return containsCookie(jar.Cookies(c.cookieURL()), c.opts.SessionCookie)
}

// cookieURL 用 API 路径查询 cookie jar，覆盖 Path=/reports 和 Path=/ 两种情况
func (c *Client) cookieURL() *url.URL {
	u := *c.baseURL
	u.Path = u.Path + assetAPIPath
	u.RawQuery = ""
	return &u
}

func containsCookie(cookies []*http.Cookie, name string) bool {
	for _, ck := range cookies {
		if ck.Name == name && ck.Value != "" {
			return true
		}
	}
	return false
}
