package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultAPITimeout    = 120 * time.Second
	defaultHeaderTimeout = 30 * time.Second
)

// Transport 给每个请求补默认请求头并套用代理连接策略。
//
// 约束：
// - 每个请求只做一次往返：流水线里唯一的“再试一次”是 primary→fallback 升级，不在传输层
// - 调用方显式设置的请求头优先（媒体下载必须与浏览器会话保持同一 UA）
// - 未设置 User-Agent 时从 UA 池选取
type Transport struct {
	Base *http.Transport

	// Header 是默认请求头，只补缺失项。
	Header http.Header

	ua *uaPool

	// DisableKeepAlives 决定是否对 Request 设置 Close=true。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// Clone 复制 Header，避免改写调用方的 request。
	r := req.Clone(req.Context())
	for k, vs := range t.Header {
		if r.Header.Get(k) == "" {
			r.Header[k] = append([]string(nil), vs...)
		}
	}
	if r.Header.Get("User-Agent") == "" && t.ua != nil {
		r.Header.Set("User-Agent", t.ua.random())
	}
	if t.DisableKeepAlives {
		r.Close = true
	}
	return t.Base.RoundTrip(r)
}

// NewAPIClient 构造调用外部分析服务（OpenAI 兼容接口）的 HTTP client。
//
// 规则：
// - proxyURL 非空：必须走代理，且禁用 keep-alive
// - timeout<=0 时使用默认总超时（视觉模型响应慢，默认放宽到 120s）
func NewAPIClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}
	// 视觉模型可能很久才返回响应头：响应头超时跟随总超时。
	c, err := newClient(strings.TrimSpace(proxyURL), timeout, http.Header{
		"Accept": {"application/json"},
	})
	if err != nil {
		return nil, err
	}
	c.Timeout = timeout
	return c, nil
}

// NewMediaClient 构造媒体直链下载用的 HTTP client。
//
// 规则：
// - 只做一次尝试，失败直接上报 download_error
// - 不设置总超时：大文件下载时长不可预估，由调用方 ctx 控制截止时间
// - 要求 identity 编码：落盘的字节必须就是媒体本身
func NewMediaClient(proxyURL string) (*http.Client, error) {
	return newClient(strings.TrimSpace(proxyURL), defaultHeaderTimeout, http.Header{
		"Accept":          {"*/*"},
		"Accept-Encoding": {"identity"},
	})
}

func newClient(proxyURL string, headerTimeout time.Duration, header http.Header) (*http.Client, error) {
	disableKeepAlives := false
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy.url 必须包含 scheme 与 host")
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	tr := &Transport{
		Base:              base,
		Header:            header,
		ua:                globalUA,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{Transport: tr}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
