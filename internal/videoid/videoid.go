package videoid

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/vidnote/internal/domain"
)

var (
	douyinVideoRE = regexp.MustCompile(`/video/([0-9]{6,})`)
	bilibiliBVRE  = regexp.MustCompile(`(BV[0-9A-Za-z]{10})`)
	bilibiliAVRE  = regexp.MustCompile(`(?i)/video/(av[0-9]+)`)
	youtubeIDRE   = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)
	xhsNoteRE     = regexp.MustCompile(`/(?:explore|discovery/item)/([0-9a-f]{16,32})`)
	unsafeRE      = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)
)

// Error 表示输入无法派生任何标识（通常是空输入）。
type Error struct {
	Input  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("无法派生运行标识：%q（%s）", e.Input, e.Reason)
}

// Derive 为一次运行派生稳定的 RunKey。
//
// 规则：
// - 本地文件：文件名（去扩展名）清洗后的结果
// - 已知平台：<platform>-<平台视频 ID>（抖音数字 ID / B站 BV 号 / YouTube v= / 小红书笔记 ID）
// - 无法识别 ID：<platform>-<URL sha1 前 10 位>（同一 URL 恒得同一 key）
func Derive(input string, p domain.Platform) (domain.RunKey, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", &Error{Input: input, Reason: "输入为空"}
	}

	if p == domain.PlatformLocal {
		base := filepath.Base(input)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		if k, ok := domain.ParseRunKey(sanitize(base)); ok {
			return k, nil
		}
		return hashed("local", input), nil
	}

	if id := platformID(input, p); id != "" {
		if k, ok := domain.ParseRunKey(string(p) + "-" + sanitize(id)); ok {
			return k, nil
		}
	}
	return hashed(string(p), input), nil
}

func platformID(raw string, p domain.Platform) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	switch p {
	case domain.PlatformDouyin:
		if id := u.Query().Get("modal_id"); id != "" {
			return id
		}
		if m := douyinVideoRE.FindStringSubmatch(u.Path); m != nil {
			return m[1]
		}
	case domain.PlatformBilibili:
		if m := bilibiliBVRE.FindStringSubmatch(u.Path); m != nil {
			return m[1]
		}
		if m := bilibiliAVRE.FindStringSubmatch(u.Path); m != nil {
			return strings.ToLower(m[1])
		}
	case domain.PlatformYouTube:
		if v := u.Query().Get("v"); youtubeIDRE.MatchString(v) {
			return v
		}
		// youtu.be/<id> 与 /shorts/<id>
		seg := strings.Split(strings.Trim(u.Path, "/"), "/")
		last := seg[len(seg)-1]
		if youtubeIDRE.MatchString(last) {
			return last
		}
	case domain.PlatformXiaohongshu:
		if m := xhsNoteRE.FindStringSubmatch(u.Path); m != nil {
			return m[1]
		}
	}
	return ""
}

func sanitize(s string) string {
	s = unsafeRE.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "_.-")
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}

func hashed(prefix, input string) domain.RunKey {
	sum := sha1.Sum([]byte(input))
	return domain.RunKey(prefix + "-" + hex.EncodeToString(sum[:])[:10])
}
