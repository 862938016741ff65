package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic_SuccessAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomicReplace(dir, "a.txt", []byte("hello")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.txt.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	err := WriteFileAtomicReplace(dir, "a.txt", []byte("hello"))
	if err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".a.txt.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
		if e.Name() == "a.txt" {
			t.Fatalf("不应写出最终文件：%q", e.Name())
		}
	}
}

func TestWriteFileAtomicNoOverwrite_TargetConflictDir(t *testing.T) {
	dir := t.TempDir()

	// 目标路径是目录：应返回 PathTypeConflictError，而不是 os.ErrExist。
	if err := os.Mkdir(filepath.Join(dir, "a.txt"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	err := WriteFileAtomicNoOverwrite(dir, "a.txt", []byte("hello"))
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestCopyFileAtomic(t *testing.T) {
	src := filepath.Join(t.TempDir(), "frame_00-00-05.jpg")
	if err := os.WriteFile(src, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	dst := filepath.Join(t.TempDir(), "assets")

	if err := CopyFileAtomic(src, dst, "00-00-05.jpg"); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(filepath.Join(dst, "00-00-05.jpg"))
	if err != nil || string(b) != "jpeg" {
		t.Fatalf("复制结果不正确：%q %v", string(b), err)
	}
	if !FileExists(filepath.Join(dst, "00-00-05.jpg")) || FileExists(dst) {
		t.Fatalf("FileExists 判定不正确")
	}
}

func TestWriteFileAtomicNoOverwrite_Exists(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileAtomicNoOverwrite(dir, "doc.md", []byte("a")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomicNoOverwrite(dir, "doc.md", []byte("b")); !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}
}

func TestWriteFileAtomic_NoReplaceKeepsLateTarget(t *testing.T) {
	dir := t.TempDir()
	// 模拟检查之后目标才出现：直接走底层写入。
	if err := os.WriteFile(filepath.Join(dir, "doc.md"), []byte("first"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	if err := writeFileAtomic(dir, "doc.md", []byte("second"), 0o644, false); !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "doc.md"))
	if string(b) != "first" {
		t.Fatalf("已有文件被覆盖：%q", string(b))
	}
}
