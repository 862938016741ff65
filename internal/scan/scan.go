package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/vidnote/internal/domain"
)

// ScanVideos 扫描 root 下的视频文件，并应用目录排除规则。
//
// 规则：
// - 永久排除：<root>/temp/、<root>/outputs/ 与 <root>/cache/（工具自己的产物）
// - 以 '.' 开头的文件与目录一律跳过（fsx 的临时文件、隐藏目录）
// - 空文件跳过：下载中断留下的占位文件不是视频
// - excludeDirs：来自配置文件，相对路径按 root 解析，绝对路径原样使用
//
// 只做 stat（DirEntry.Info），不读文件内容；输出按 RelPath 排序。
func ScanVideos(root string, excludeDirs []string) ([]domain.VideoFile, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, excludeDirs)

	var files []domain.VideoFile
	visit := func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		skip := path != root && (strings.HasPrefix(d.Name(), ".") || isExcluded(path, excluded))
		switch {
		case d.IsDir() && skip:
			return filepath.SkipDir
		case d.IsDir() || skip:
			return nil
		}

		f, ok, err := videoFile(root, path, d)
		if err != nil || !ok {
			return err
		}
		files = append(files, f)
		return nil
	}
	if err := filepath.WalkDir(root, visit); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func videoFile(root, path string, d fs.DirEntry) (domain.VideoFile, bool, error) {
	name := d.Name()
	ext := strings.ToLower(filepath.Ext(name))
	if !isVideoExt(ext) {
		return domain.VideoFile{}, false, nil
	}
	info, err := d.Info()
	if err != nil {
		return domain.VideoFile{}, false, err
	}
	if info.Size() == 0 {
		return domain.VideoFile{}, false, nil
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return domain.VideoFile{}, false, err
	}
	return domain.VideoFile{
		AbsPath: path,
		RelPath: rel,
		Base:    strings.TrimSuffix(name, filepath.Ext(name)),
		Ext:     ext,
		Size:    info.Size(),
		ModUnix: info.ModTime().Unix(),
	}, true, nil
}

var reservedDirs = []string{"temp", "outputs", "cache"}

// ExpandInputs 把目录输入展开为其中的视频文件（绝对路径），其它输入原样保留。
//
// - 输出顺序：按输入顺序；同一目录内按 RelPath 排序
// - 目录内没有视频文件时返回 EmptyDirError，避免静默丢掉用户输入
func ExpandInputs(inputs []string, excludeDirs []string) ([]string, error) {
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		fi, err := os.Stat(in)
		if err != nil || !fi.IsDir() {
			out = append(out, in)
			continue
		}
		root, err := filepath.Abs(in)
		if err != nil {
			return nil, err
		}
		files, err := ScanVideos(root, excludeDirs)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, &EmptyDirError{Dir: root}
		}
		for _, f := range files {
			out = append(out, f.AbsPath)
		}
	}
	return out, nil
}

// EmptyDirError 表示目录输入里没有任何视频文件。
type EmptyDirError struct {
	Dir string
}

func (e *EmptyDirError) Error() string {
	return fmt.Sprintf("目录内没有视频文件：%q", e.Dir)
}

func isVideoExt(ext string) bool {
	switch ext {
	case ".mp4", ".mkv", ".avi", ".mov", ".webm", ".flv", ".m4v":
		return true
	default:
		return false
	}
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(reservedDirs)+len(excludeDirs))
	for _, d := range reservedDirs {
		excluded = append(excluded, filepath.Clean(filepath.Join(root, d)))
	}

	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
