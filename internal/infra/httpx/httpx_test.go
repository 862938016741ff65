package httpx

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewAPIClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewAPIClient("http://127.0.0.1:8080", 0)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives || !tr.DisableKeepAlives {
		t.Fatalf("期望禁用 keep-alive")
	}
	if c.Timeout != defaultAPITimeout {
		t.Fatalf("期望默认超时 %v，实际 %v", defaultAPITimeout, c.Timeout)
	}
}

func TestNewMediaClient_NoTimeout(t *testing.T) {
	c, err := NewMediaClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr := c.Transport.(*Transport)
	if tr.Header.Get("Accept-Encoding") != "identity" {
		t.Fatalf("媒体下载应要求 identity 编码：%v", tr.Header)
	}
	if tr.Base.Proxy != nil || tr.Base.DisableKeepAlives {
		t.Fatalf("无代理时应保持默认连接策略")
	}
	if c.Timeout != 0 {
		t.Fatalf("媒体下载不应设置总超时：%v", c.Timeout)
	}
}

func TestNewAPIClient_InvalidProxyURL(t *testing.T) {
	if _, err := NewAPIClient("http://[::1", time.Second); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if _, err := NewMediaClient("127.0.0.1:8080"); err == nil {
		t.Fatalf("缺少 scheme 的代理地址应报错")
	}
}

func TestTransport_KeepsCallerUserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	c, err := NewMediaClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "fixed-ua")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()
	if got.Load() != "fixed-ua" {
		t.Fatalf("调用方 UA 被覆盖：%v", got.Load())
	}

	req2, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err = c.Do(req2)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()
	if ua, _ := got.Load().(string); ua == "" || ua == "fixed-ua" {
		t.Fatalf("未设置 UA 时应从 UA 池选取：%q", ua)
	}
}

func TestTransport_SingleAttemptWithDefaultHeaders(t *testing.T) {
	var hits atomic.Int32
	var accept, referer atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		accept.Store(r.Header.Get("Accept"))
		referer.Store(r.Header.Get("Referer"))
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := NewMediaClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("Referer", "https://www.douyin.com/")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden || hits.Load() != 1 {
		t.Fatalf("期望一次往返并原样返回 403：status=%d hits=%d", resp.StatusCode, hits.Load())
	}
	if accept.Load() != "*/*" || referer.Load() != "https://www.douyin.com/" {
		t.Fatalf("默认头或调用方头不正确：accept=%v referer=%v", accept.Load(), referer.Load())
	}
	if req.Header.Get("Accept") != "" {
		t.Fatalf("不应改写调用方的 request")
	}
}
