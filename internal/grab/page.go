package grab

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// PageInfo 是从渲染后 DOM 中解析到的信息。
type PageInfo struct {
	MediaURL string // 可直接下载的 http(s) 媒体地址；空表示未找到
	SawBlob  bool   // 页面上出现过 blob: 源
	Title    string
}

// ParsePage 用 goquery 解析渲染后的 HTML（策略 a）：
// - 先取第一个 <video> 的 src，再取其内嵌 <source> 的 src
// - 拒绝 blob: 源；相对地址按 pageURL 解析为绝对地址
// - 标题按 titleSelectors 顺序取第一个非空文本
//
// 纯函数：相同输入 => 相同输出。
func ParsePage(html, pageURL string, titleSelectors []string, titleMax int) (PageInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageInfo{}, err
	}

	var info PageInfo
	video := doc.Find("video").First()
	candidates := make([]string, 0, 2)
	if src, ok := video.Attr("src"); ok {
		candidates = append(candidates, src)
	}
	if src, ok := video.Find("source").First().Attr("src"); ok {
		candidates = append(candidates, src)
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if IsBlobURL(c) {
			info.SawBlob = true
			continue
		}
		if abs := resolveURL(pageURL, c); isHTTP(abs) {
			info.MediaURL = abs
			break
		}
	}

	for _, sel := range titleSelectors {
		t := normSpace(doc.Find(sel).First().Text())
		if t != "" {
			info.Title = truncateRunes(t, titleMax)
			break
		}
	}
	return info, nil
}

// PickMediaSource 从脚本扫描结果里选第一个 http(s) 且非 blob 的地址（策略 b）。
func PickMediaSource(srcs []string) (string, bool) {
	sawBlob := false
	for _, s := range srcs {
		s = strings.TrimSpace(s)
		if IsBlobURL(s) {
			sawBlob = true
			continue
		}
		if isHTTP(s) {
			return s, sawBlob
		}
	}
	return "", sawBlob
}

func IsBlobURL(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "blob:")
}

func isHTTP(s string) bool {
	ls := strings.ToLower(s)
	return strings.HasPrefix(ls, "http://") || strings.HasPrefix(ls, "https://")
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if isHTTP(href) {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
