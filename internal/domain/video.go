package domain

// VideoFile 描述目录展开时扫描到的本地视频文件（只做 stat，不读内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - 扫描阶段只做 stat，不读文件内容
type VideoFile struct {
	AbsPath string
	RelPath string
	Base    string // filename without ext
	Ext     string // ".mp4"
	Size    int64
	ModUnix int64
}

// WorkItem 是按 RunKey 聚合后的批处理单元。
// 只保存输入下标（指向 []string inputs），重复输入收敛到同一个 WorkItem。
type WorkItem struct {
	Key      RunKey
	InputIdx []int
}
