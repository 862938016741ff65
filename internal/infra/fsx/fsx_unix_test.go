//go:build unix

package fsx

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestCopyFileAtomic_CrossDeviceRenameLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "frame_00-00-05.jpg")
	if err := os.WriteFile(src, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { renameFunc = old }()

	assets := filepath.Join(dir, "doc_assets")
	err := CopyFileAtomic(src, assets, "00-00-05.jpg")
	if !IsCrossDevice(err) {
		t.Fatalf("期望 CrossDeviceError，实际：%T %v", err, err)
	}
	ents, _ := os.ReadDir(assets)
	if len(ents) != 0 {
		t.Fatalf("失败后不应留下临时文件：%v", ents)
	}
}
