package planner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/vidnote/internal/domain"
)

// Workspace 是一次运行独占的目录布局。
type Workspace struct {
	Key         domain.RunKey
	DownloadDir string // 各运行共享；文件名自带 key/随机后缀，不会冲突
	KeyframeDir string // <keyframe_root>/<key>[__N]，本次运行独占
	OutputDir   string
}

// KeyframeDirState 是 <keyframe_root> 的现状（只做 ReadDir，不读文件内容）。
type KeyframeDirState struct {
	Root          string
	ExistingNames map[string]struct{}
}

// ReadKeyframeDirState 读取关键帧根目录；目录不存在时返回空状态且不报错。
func ReadKeyframeDirState(root string) (KeyframeDirState, error) {
	st := KeyframeDirState{Root: root, ExistingNames: map[string]struct{}{}}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return KeyframeDirState{}, err
	}
	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
	}
	return st, nil
}

// PlanWorkspace 为 key 认领一个全新的关键帧目录并返回完整布局。
//
// 规则：
// - 首选 <keyframe_root>/<key>；已存在（上一次运行留下的帧）则依次尝试 <key>__2、<key>__3…
// - 认领用 os.Mkdir 完成：并发运行撞名时只有一个能成功，其余顺延
func PlanWorkspace(downloadDir, keyframeRoot, outputDir string, key domain.RunKey) (Workspace, error) {
	if strings.TrimSpace(string(key)) == "" {
		return Workspace{}, errors.New("run key 不能为空")
	}
	if err := os.MkdirAll(keyframeRoot, 0o755); err != nil {
		return Workspace{}, err
	}
	st, err := ReadKeyframeDirState(keyframeRoot)
	if err != nil {
		return Workspace{}, err
	}

	const maxAttempts = 1000
	for i := 0; i < maxAttempts; i++ {
		name := allocName(string(key), st.ExistingNames)
		st.ExistingNames[name] = struct{}{}
		dir := filepath.Join(keyframeRoot, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return Workspace{Key: key, DownloadDir: downloadDir, KeyframeDir: dir, OutputDir: outputDir}, nil
		}
		if !os.IsExist(err) {
			return Workspace{}, err
		}
	}
	return Workspace{}, fmt.Errorf("无法为 %s 分配关键帧目录", key)
}

func allocName(name string, used map[string]struct{}) string {
	if _, ok := used[name]; !ok {
		return name
	}
	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d", name, n)
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}
