package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/vidnote/internal/domain"
)

func TestStore_ReadWriteDownload(t *testing.T) {
	root := t.TempDir()
	video := filepath.Join(root, "temp", "a.mp4")
	if err := os.MkdirAll(filepath.Dir(video), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(video, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	s, err := New(root, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer s.Close()

	url := "https://www.douyin.com/video/7301"
	e := DownloadEntry{URL: url, VideoPath: video, Metadata: domain.Metadata{Title: "t", Uploader: "u"}}
	if err := s.WriteDownload(e); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	got, ok, err := s.ReadDownload(url)
	if err != nil || !ok {
		t.Fatalf("期望命中缓存：ok=%v err=%v", ok, err)
	}
	if got.VideoPath != video || got.Metadata.Title != "t" {
		t.Fatalf("缓存内容不一致：%+v", got)
	}

	// 新 Store（L1 为空）仍能从 L2 读到。
	s2, err := New(root, true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer s2.Close()
	if _, ok, err := s2.ReadDownload(url); err != nil || !ok {
		t.Fatalf("期望从文件缓存命中：ok=%v err=%v", ok, err)
	}

	path, err := s.DownloadPath(url)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("期望缓存文件存在，但 Stat 失败：%v", err)
	}
}

func TestStore_MissingVideoIsMiss(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer s.Close()

	url := "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	if err := s.WriteDownload(DownloadEntry{URL: url, VideoPath: filepath.Join(root, "gone.mp4")}); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, ok, err := s.ReadDownload(url); err != nil || ok {
		t.Fatalf("视频已不存在时应视为未命中：ok=%v err=%v", ok, err)
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	s, err := New(t.TempDir(), true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer s.Close()

	err = s.WriteDownload(DownloadEntry{URL: "https://x.test/v"})
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
	if _, err := s.DownloadPath(""); err == nil {
		t.Fatalf("空 URL 应报错")
	}
}
