package slv

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/internal/models"
)

const (
	testUser        = "extractor"
	testPassword    = "s3cret"
	preAuthSession  = "pre-auth-session"
	authedSession   = "authenticated-session"
	testRootZoneID  = "42"
	testContextPath = "/reports"
)

// fakeReading 假 SLV 服务保存的读数
type fakeReading struct {
	DeviceID  int64
	Name      string
	EventTime time.Time
	Value     interface{}
}

// fakeSLV 模拟 SLV 的登录、资产和日志接口
type fakeSLV struct {
	mu sync.Mutex

	profile         []map[string]interface{}
	devices         []map[string]interface{}
	readings        []fakeReading
	noPreAuthCookie bool
	failOnRequest   int // 第 N 次 getDevicesLogValues 返回 500（从 1 开始，0 表示不失败）

	logRequests []url.Values
}

func newFakeSLV() *fakeSLV {
	return &fakeSLV{
		profile: []map[string]interface{}{
			{"key": "language", "value": "en"},
			{"key": DefaultRootZoneKey, "value": 42},
		},
		devices: []map[string]interface{}{
			{"id": 1, "geoZoneNamesPath": "City/North", "categoryStrId": "streetlight", "idOnController": "L1", "name": "Lamp 1"},
			{"id": 2, "geoZoneNamesPath": "City/South", "categoryStrId": "streetlight", "idOnController": 2002, "name": "Lamp 2"},
			{"id": 3, "geoZoneNamesPath": "City/North", "categoryStrId": "camera", "idOnController": "C1", "name": "Cam 1"},
			{"id": 4, "geoZoneNamesPath": "City", "categoryStrId": "controller", "idOnController": "ctl", "name": "Controller"},
		},
	}
}

func (f *fakeSLV) start(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(testContextPath+assetAPIPath, f.handleAsset)
	mux.HandleFunc(testContextPath+loggingAPIPath, f.handleLogging)
	mux.HandleFunc(testContextPath+securityCheckPath, f.handleSecurityCheck)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeSLV) authenticated(r *http.Request) bool {
	ck, err := r.Cookie(DefaultSessionCookie)
	return err == nil && ck.Value == authedSession
}

func (f *fakeSLV) handleAsset(w http.ResponseWriter, r *http.Request) {
	if !f.authenticated(r) {
		if !f.noPreAuthCookie {
			http.SetCookie(w, &http.Cookie{Name: DefaultSessionCookie, Value: preAuthSession, Path: testContextPath})
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>login</html>")
		return
	}

	switch r.URL.Query().Get("methodName") {
	case methodGetProfileProperties:
		writeJSON(w, f.profile)
	case methodGetGeoZoneDevices:
		_ = r.ParseForm()
		if r.PostForm.Get("geoZoneId") != testRootZoneID || r.PostForm.Get("recurse") != "true" {
			http.Error(w, "bad zone", http.StatusBadRequest)
			return
		}
		writeJSON(w, f.devices)
	default:
		http.Error(w, "unknown method", http.StatusBadRequest)
	}
}

func (f *fakeSLV) handleSecurityCheck(w http.ResponseWriter, r *http.Request) {
	ck, err := r.Cookie(DefaultSessionCookie)
	if err != nil || ck.Value != preAuthSession {
		http.Error(w, "no session", http.StatusForbidden)
		return
	}
	_ = r.ParseForm()
	if r.PostForm.Get("j_username") != testUser || r.PostForm.Get("j_password") != testPassword {
		http.Error(w, "invalid credentials", http.StatusForbidden)
		return
	}
	// Tomcat 认证成功后更换会话 ID 并重定向回原页面
	http.SetCookie(w, &http.Cookie{Name: DefaultSessionCookie, Value: authedSession, Path: testContextPath})
	http.Redirect(w, r, testContextPath+assetAPIPath+"?methodName="+methodGetProfileProperties+"&ser=json", http.StatusFound)
}

func (f *fakeSLV) handleLogging(w http.ResponseWriter, r *http.Request) {
	if !f.authenticated(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	_ = r.ParseForm()

	f.mu.Lock()
	f.logRequests = append(f.logRequests, r.PostForm)
	n := len(f.logRequests)
	f.mu.Unlock()

	if f.failOnRequest > 0 && n == f.failOnRequest {
		http.Error(w, "query too large", http.StatusInternalServerError)
		return
	}

	from, err1 := time.ParseInLocation(models.TimeLayout, r.PostForm.Get("from"), time.UTC)
	to, err2 := time.ParseInLocation(models.TimeLayout, r.PostForm.Get("to"), time.UTC)
	if err1 != nil || err2 != nil {
		http.Error(w, "bad range", http.StatusBadRequest)
		return
	}
	ids := map[string]bool{}
	for _, id := range r.PostForm["deviceId"] {
		ids[id] = true
	}
	names := map[string]bool{}
	for _, n := range r.PostForm["name"] {
		names[n] = true
	}

	out := []map[string]interface{}{}
	for _, rd := range f.readings {
		if !ids[strconv.FormatInt(rd.DeviceID, 10)] || !names[rd.Name] {
			continue
		}
		if rd.EventTime.Before(from) || rd.EventTime.After(to) {
			continue
		}
		out = append(out, map[string]interface{}{
			"deviceId":   rd.DeviceID,
			"name":       rd.Name,
			"eventTime":  rd.EventTime.Format(models.TimeLayout),
			"updateTime": rd.EventTime.Add(time.Minute).Format(models.TimeLayout),
			"value":      rd.Value,
			"status":     "OK",
		})
	}
	writeJSON(w, out)
}

func (f *fakeSLV) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logRequests)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, srv *httptest.Server, window time.Duration) *Client {
	c, err := NewClient(Options{
		BaseURL:    srv.URL + testContextPath,
		WindowSize: window,
		Location:   time.UTC,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func login(t *testing.T, c *Client) *Session {
	sess, err := c.Authenticate(t.Context(), Credentials{Username: testUser, Password: testPassword})
	require.NoError(t, err)
	return sess
}
