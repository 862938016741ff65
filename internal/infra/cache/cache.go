package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/infra/fsx"
)

const (
	memNumCounters = 10000
	memMaxCost     = 1000
	memBufferItems = 64
	memTTL         = 30 * time.Minute
)

// DownloadEntry 记录一次成功下载（按规范化 URL 索引）。
type DownloadEntry struct {
	URL          string          `json:"url"`
	VideoPath    string          `json:"video_path"`
	Metadata     domain.Metadata `json:"metadata"`
	UsedFallback bool            `json:"used_fallback"`
	SavedAt      time.Time       `json:"saved_at"`
}

// Store 提供 <work>/cache/ 下的下载缓存：
// - L1：进程内 ristretto（serve 模式下同一 URL 重复提交时免读盘）
// - L2：<work>/cache/downloads/<sha256[:16]>.json
//
// 约束：
// - ReadOnly=true 时只读（--no-cache-write）
// - 命中时必须校验视频文件仍然存在，否则视为未命中
type Store struct {
	Root     string // <work>
	ReadOnly bool

	mem *ristretto.Cache
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) (*Store, error) {
	mem, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: memNumCounters,
		MaxCost:     memMaxCost,
		BufferItems: memBufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: ristretto.NewCache failed: %w", err)
	}
	return &Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
		mem:      mem,
	}, nil
}

// Close 释放 L1；L2 文件不受影响。
func (s *Store) Close() {
	if s != nil && s.mem != nil {
		s.mem.Close()
	}
}

// DownloadPath 返回 URL 对应的 L2 缓存文件绝对路径。
func (s *Store) DownloadPath(url string) (string, error) {
	k, err := keyOf(url)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "cache", "downloads", k+".json"), nil
}

// ReadDownload 读取缓存；视频文件已被删除时返回 ok=false。
func (s *Store) ReadDownload(url string) (DownloadEntry, bool, error) {
	k, err := keyOf(url)
	if err != nil {
		return DownloadEntry{}, false, err
	}
	if v, ok := s.mem.Get(k); ok {
		if e, ok := v.(DownloadEntry); ok && fsx.FileExists(e.VideoPath) {
			return e, true, nil
		}
		s.mem.Del(k)
	}

	path, err := s.DownloadPath(url)
	if err != nil {
		return DownloadEntry{}, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DownloadEntry{}, false, nil
		}
		return DownloadEntry{}, false, err
	}
	var e DownloadEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return DownloadEntry{}, false, fmt.Errorf("cache: 解析 %q 失败：%w", path, err)
	}
	if e.URL != url || !fsx.FileExists(e.VideoPath) {
		return DownloadEntry{}, false, nil
	}
	s.mem.SetWithTTL(k, e, 1, memTTL)
	return e, true, nil
}

func (s *Store) WriteDownload(e DownloadEntry) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	k, err := keyOf(e.URL)
	if err != nil {
		return err
	}
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now()
	}
	e.SavedAt = e.SavedAt.UTC()
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	if err := fsx.WriteFileAtomicReplace(filepath.Join(s.Root, "cache", "downloads"), k+".json", b); err != nil {
		return err
	}
	s.mem.SetWithTTL(k, e, 1, memTTL)
	// 让后续 Get 立即可见（ristretto 的写入是异步缓冲的）。
	s.mem.Wait()
	return nil
}

func keyOf(url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("url 不能为空")
	}
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:16], nil
}
