package domain

const (
	UnknownTitle    = "Unknown Title"
	UnknownUploader = "Unknown"
	WebVideoTitle   = "Web_Video"
)

// Metadata 是下载阶段得到的最小元数据。
//
// 约束：
// - 字段缺失时必须落到占位值，而不是空字符串（下游直接拿来命名文件）
// - Duration 单位为秒；未知为 0
type Metadata struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Uploader string  `json:"uploader"`
}

// WithDefaults 把空字段补成占位值。
func (m Metadata) WithDefaults(title string) Metadata {
	if m.Title == "" {
		m.Title = title
	}
	if m.Uploader == "" {
		m.Uploader = UnknownUploader
	}
	if m.Duration < 0 {
		m.Duration = 0
	}
	return m
}
