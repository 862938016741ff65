package domain

// SourceType 区分本地文件与远程 URL。
type SourceType string

const (
	SourceLocal  SourceType = "local"
	SourceRemote SourceType = "remote"
)

// Platform 是封闭枚举：新增平台只需要在 platform 表里追加一行规则。
type Platform string

const (
	PlatformBilibili    Platform = "bilibili"
	PlatformDouyin      Platform = "douyin"
	PlatformXiaohongshu Platform = "xiaohongshu"
	PlatformYouTube     Platform = "youtube"
	PlatformLocal       Platform = "local"
	PlatformOther       Platform = "other"
)

// DisplayName 用于日志与报告里的人类可读名称。
func (p Platform) DisplayName() string {
	switch p {
	case PlatformBilibili:
		return "Bilibili"
	case PlatformDouyin:
		return "Douyin"
	case PlatformXiaohongshu:
		return "Xiaohongshu"
	case PlatformYouTube:
		return "YouTube"
	case PlatformLocal:
		return "Local"
	default:
		return "Other"
	}
}
