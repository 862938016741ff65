package platform

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/vidnote/internal/domain"
)

// DesktopUserAgent 是下载与浏览器会话统一使用的桌面 UA。
const DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Normalizer 在任何网络访问之前把 URL 规范化；不匹配时原样返回 ok=false。
type Normalizer func(rawURL string) (string, bool)

// Rule 是一行平台规则。新增平台只改数据，不加分支。
//
// 约束：
// - HostFragments 按小写子串匹配 host
// - Normalizers 按顺序尝试，第一个命中的生效
// - FallbackEligible 决定主提取器被拦截时是否允许升级到隔离 worker
type Rule struct {
	Platform         domain.Platform
	HostFragments    []string
	Referer          string
	Normalizers      []Normalizer
	FallbackEligible bool

	// TitleSelectors 是 worker 抓取页面标题时使用的 CSS 选择器（按顺序）。
	TitleSelectors []string
	// FallbackTitle 是 worker 无法取到标题时的占位值。
	FallbackTitle string
}

// Table 是只读规则表：rules 保持优先级顺序，byPlatform 做 O(1) 查找。
type Table struct {
	rules      []Rule
	byPlatform map[domain.Platform]int
}

func NewTable(rules ...Rule) (Table, error) {
	byPlatform := make(map[domain.Platform]int, len(rules))
	for i, r := range rules {
		if r.Platform == "" {
			return Table{}, fmt.Errorf("platform 不能为空")
		}
		if r.Platform == domain.PlatformLocal || r.Platform == domain.PlatformOther {
			return Table{}, fmt.Errorf("保留平台不能注册规则：%q", r.Platform)
		}
		if len(r.HostFragments) == 0 {
			return Table{}, fmt.Errorf("platform=%s 缺少 host 片段", r.Platform)
		}
		if _, ok := byPlatform[r.Platform]; ok {
			return Table{}, fmt.Errorf("重复的 platform：%q", r.Platform)
		}
		byPlatform[r.Platform] = i
	}
	return Table{rules: rules, byPlatform: byPlatform}, nil
}

var defaultTitleSelectors = []string{"h1", ".video-info-title", ".video-title"}

// DefaultTable 的顺序即匹配优先级：Bilibili, Douyin, Xiaohongshu, YouTube。
func DefaultTable() Table {
	t, err := NewTable(
		Rule{
			Platform:         domain.PlatformBilibili,
			HostFragments:    []string{"bilibili", "b23.tv"},
			Referer:          "https://www.bilibili.com/",
			FallbackEligible: true,
			TitleSelectors:   defaultTitleSelectors,
			FallbackTitle:    domain.WebVideoTitle,
		},
		Rule{
			Platform:         domain.PlatformDouyin,
			HostFragments:    []string{"douyin"},
			Referer:          "https://www.douyin.com/",
			Normalizers:      []Normalizer{NormalizeDouyinModal},
			FallbackEligible: true,
			TitleSelectors:   defaultTitleSelectors,
			FallbackTitle:    "Douyin_Video",
		},
		Rule{
			Platform:       domain.PlatformXiaohongshu,
			HostFragments:  []string{"xiaohongshu", "xhslink"},
			TitleSelectors: defaultTitleSelectors,
			FallbackTitle:  domain.WebVideoTitle,
		},
		Rule{
			Platform:       domain.PlatformYouTube,
			HostFragments:  []string{"youtube", "youtu.be"},
			TitleSelectors: defaultTitleSelectors,
			FallbackTitle:  domain.WebVideoTitle,
		},
	)
	if err != nil {
		panic(err)
	}
	return t
}

// Rule 查找平台规则；未注册（Local/Other）返回 ok=false。
func (t Table) Rule(p domain.Platform) (Rule, bool) {
	i, ok := t.byPlatform[p]
	if !ok {
		return Rule{}, false
	}
	return t.rules[i], true
}

// Match 按优先级匹配 host（大小写不敏感子串）。
func (t Table) Match(host string) domain.Platform {
	host = strings.ToLower(host)
	for _, r := range t.rules {
		for _, frag := range r.HostFragments {
			if strings.Contains(host, frag) {
				return r.Platform
			}
		}
	}
	return domain.PlatformOther
}

// Normalize 应用平台的规范化规则；其它平台原样返回。
func (t Table) Normalize(rawURL string, p domain.Platform) string {
	r, ok := t.Rule(p)
	if !ok {
		return rawURL
	}
	for _, n := range r.Normalizers {
		if out, ok := n(rawURL); ok {
			return out
		}
	}
	return rawURL
}

// Headers 返回平台请求头：总是带桌面 UA；需要时带 Referer。
func (t Table) Headers(p domain.Platform) http.Header {
	h := http.Header{}
	h.Set("User-Agent", DesktopUserAgent)
	if r, ok := t.Rule(p); ok && r.Referer != "" {
		h.Set("Referer", r.Referer)
	}
	return h
}

// RuleForURL 供 worker 使用：worker 只拿到 URL，需要按 host 反查规则。
func (t Table) RuleForURL(rawURL string) (Rule, bool) {
	return t.Rule(t.Match(hostOf(rawURL)))
}

// FallbackEligible 判断平台是否允许升级到隔离 worker。
func (t Table) FallbackEligible(p domain.Platform) bool {
	r, ok := t.Rule(p)
	return ok && r.FallbackEligible
}

var retryMarkers = []string{"cookie", "403", "forbidden"}

// Retryable 判断主提取器失败是否值得升级：
// - 平台必须允许 fallback
// - 错误文本必须包含 cookie / 403 / forbidden（大小写不敏感）
func (t Table) Retryable(p domain.Platform, err error) bool {
	if err == nil || !t.FallbackEligible(p) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range retryMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
