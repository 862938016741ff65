package platform

import (
	"net/url"
	"regexp"
	"strings"
)

var digitsRE = regexp.MustCompile(`^[0-9]+$`)

// NormalizeDouyinModal 把带数字 modal_id 的弹窗 URL（精选、发现、用户主页、搜索页）改写为视频详情页：
//
//	https://www.douyin.com/jingxuan?modal_id=12345 -> https://www.douyin.com/video/12345
func NormalizeDouyinModal(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return rawURL, false
	}
	id := u.Query().Get("modal_id")
	if id == "" || !digitsRE.MatchString(id) {
		return rawURL, false
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + u.Host + "/video/" + id, true
}
