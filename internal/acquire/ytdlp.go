package acquire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/lrstanley/go-ytdlp"

	"github.com/John-Robertt/vidnote/internal/domain"
)

// DefaultFormat 优先 mp4 视频 + m4a 音频，其次单文件 mp4，最后任意最佳格式。
const DefaultFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

const stderrTailMax = 600

// YtdlpExtractor 通过 yt-dlp 可执行文件下载。
//
// 规则：
// - 输出文件名固定为 <Stem>.<ext>，下载后按 Stem 在目录中查找产物
// - 失败时错误文本带上 stderr 尾部（Retryable 依赖其中的 403/cookie 字样）
type YtdlpExtractor struct {
	Bin      string // 为空时交给 go-ytdlp 在 PATH 中查找
	ProxyURL string
	Format   string
}

func (x *YtdlpExtractor) Extract(ctx context.Context, req Request) (Download, error) {
	format := x.Format
	if format == "" {
		format = DefaultFormat
	}
	cmd := ytdlp.New().
		Format(format).
		Output(filepath.Join(req.OutputDir, req.Stem+".%(ext)s")).
		NoPlaylist().
		NoProgress().
		NoWarnings().
		DumpJSON().
		NoSimulate()
	if x.Bin != "" {
		cmd = cmd.SetExecutable(x.Bin)
	}
	if x.ProxyURL != "" {
		cmd = cmd.Proxy(x.ProxyURL)
	}
	for _, k := range sortedKeys(req.Headers) {
		cmd = cmd.AddHeaders(k + ":" + req.Headers.Get(k))
	}

	res, err := cmd.Run(ctx, req.URL)
	if err != nil {
		if res != nil {
			if tail := lastLines(res.Stderr, stderrTailMax); tail != "" {
				return Download{}, fmt.Errorf("yt-dlp: %w: %s", err, tail)
			}
		}
		return Download{}, fmt.Errorf("yt-dlp: %w", err)
	}

	path, err := findOutput(req.OutputDir, req.Stem)
	if err != nil {
		return Download{}, err
	}
	var meta domain.Metadata
	if infos, err := res.GetExtractedInfo(); err == nil && len(infos) > 0 {
		meta = metadataOf(infos[0])
	}
	return Download{Path: path, Metadata: meta}, nil
}

func metadataOf(info *ytdlp.ExtractedInfo) domain.Metadata {
	var m domain.Metadata
	if info == nil {
		return m
	}
	if info.Title != nil {
		m.Title = strings.TrimSpace(*info.Title)
	}
	if info.Duration != nil {
		m.Duration = *info.Duration
	}
	if info.Uploader != nil {
		m.Uploader = strings.TrimSpace(*info.Uploader)
	}
	return m
}

var intermediateExts = map[string]bool{".part": true, ".ytdl": true, ".json": true, ".temp": true}

// findOutput 返回 <dir>/<stem>.* 中最新的最终产物（排除中间文件与分轨残留）。
func findOutput(dir, stem string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, globEscape(stem)+".*"))
	if err != nil {
		return "", err
	}
	var (
		best    string
		bestMod int64
	)
	for _, m := range matches {
		ext := strings.ToLower(filepath.Ext(m))
		if intermediateExts[ext] {
			continue
		}
		// yt-dlp 合并前的分轨文件形如 <stem>.f137.mp4
		if strings.HasPrefix(strings.TrimPrefix(filepath.Base(m), stem), ".f") && strings.Count(filepath.Base(m), ".") > 1 {
			continue
		}
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		if best == "" || fi.ModTime().UnixNano() > bestMod {
			best, bestMod = m, fi.ModTime().UnixNano()
		}
	}
	if best == "" {
		return "", fmt.Errorf("yt-dlp: 下载成功但未找到输出文件（%s.*）", stem)
	}
	return best, nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}

func sortedKeys(h map[string][]string) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func lastLines(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	i := len(s) - max
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}
