// Package docgen 把带图片占位符的 Markdown 文稿渲染为最终文档，并把引用到的关键帧复制到文档旁边。
package docgen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/handoff"
	"github.com/John-Robertt/vidnote/internal/infra/fsx"
)

const (
	DefaultTitle  = "document"
	timeLayout    = "200601021504"
	maxNameSuffix = 100
)

var ErrNoContent = errors.New("no content")

// Document 是一次生成的输入。
type Document struct {
	Content string
	Images  map[string]string // 被引用的时间戳 -> 图片路径
	Title   string
	Source  string           // 原始输入（URL 或本地路径），写入文末出处
	Meta    *domain.Metadata // 可为空
}

// Generator 把文档写入 OutputDir。
//
// 约束：
// - 文件名为 <safe_title>_<YYYYMMDDHHmm>.md；同名已存在时追加 _2、_3…，从不覆盖
// - 图片复制到 <文档名>_assets/，文档内用相对路径引用
type Generator struct {
	OutputDir string
	Now       func() time.Time
}

// Generate 写出文档并返回其绝对路径。
func (g *Generator) Generate(doc Document) (string, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return "", ErrNoContent
	}
	if err := os.MkdirAll(g.OutputDir, 0o755); err != nil {
		return "", err
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	base := SafeTitle(doc.Title) + "_" + now().Format(timeLayout)

	for i := 1; i <= maxNameSuffix; i++ {
		stem := base
		if i > 1 {
			stem = base + "_" + strconv.Itoa(i)
		}
		path := filepath.Join(g.OutputDir, stem+".md")
		if _, err := os.Lstat(path); err == nil {
			continue
		}
		err := WriteDocument(path, doc)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		abs, aerr := filepath.Abs(path)
		if aerr != nil {
			return path, nil
		}
		return abs, nil
	}
	return "", fmt.Errorf("输出目录中同名文档过多：%s", base)
}

// WriteDocument 渲染并以“不覆盖”语义写到 path。
func WriteDocument(path string, doc Document) error {
	if strings.TrimSpace(doc.Content) == "" {
		return ErrNoContent
	}
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	assetsName := strings.TrimSuffix(name, filepath.Ext(name)) + "_assets"
	body, err := Render(doc, func(ts, src string) (string, error) {
		file := strings.ReplaceAll(ts, ":", "-") + filepath.Ext(src)
		if err := fsx.CopyFileAtomic(src, filepath.Join(dir, assetsName), file); err != nil {
			return "", err
		}
		return assetsName + "/" + file, nil
	})
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicNoOverwrite(dir, name, []byte(body))
}

// AssetFunc 把图片放到文档旁边并返回文档内引用的相对路径。
type AssetFunc func(ts, src string) (string, error)

var (
	headingRE = regexp.MustCompile(`^(#{1,6})\s*(.*)$`)
	unsafeRE  = regexp.MustCompile(`[\\/*?:"<>|]`)
)

// Render 生成 Markdown 正文。
//
// 规则：
// - 空行折叠；每个块之间保留一个空行
// - 标题行（#…）保留层级；其余文本行按段落输出，**粗体** 原样保留
// - 占位符渲染为图片 + 居中说明；未在 Images 中或文件不存在的占位符直接丢弃
func Render(doc Document, asset AssetFunc) (string, error) {
	var blocks []string
	for _, raw := range strings.Split(strings.ReplaceAll(doc.Content, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if m := headingRE.FindStringSubmatch(line); m != nil {
			if t := strings.TrimSpace(m[2]); t != "" {
				blocks = append(blocks, m[1]+" "+t)
			}
			continue
		}
		for _, seg := range handoff.SplitPlaceholders(line) {
			if seg.Image == "" {
				if t := strings.TrimSpace(seg.Text); t != "" {
					blocks = append(blocks, t)
				}
				continue
			}
			src, ok := doc.Images[seg.Image]
			if !ok || !fsx.FileExists(src) {
				continue
			}
			rel, err := asset(seg.Image, src)
			if err != nil {
				return "", fmt.Errorf("复制图片 %s 失败：%w", seg.Image, err)
			}
			blocks = append(blocks, "![Figure: "+seg.Image+"]("+rel+")", "*Figure: "+seg.Image+"*")
		}
	}
	if s := sourceBlock(doc); s != "" {
		blocks = append(blocks, "---", s)
	}
	return strings.Join(blocks, "\n\n") + "\n", nil
}

func sourceBlock(doc Document) string {
	var parts []string
	if doc.Source != "" {
		parts = append(parts, "来源："+doc.Source)
	}
	if m := doc.Meta; m != nil {
		if m.Uploader != "" && m.Uploader != domain.UnknownUploader {
			parts = append(parts, "作者："+m.Uploader)
		}
		if m.Duration > 0 {
			parts = append(parts, "时长："+domain.FormatTimestamp(int(m.Duration)))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "> " + strings.Join(parts, " | ")
}

// SafeTitle 去掉文件名非法字符 \/*?:"<>|；结果为空时返回 "document"。
func SafeTitle(title string) string {
	t := strings.TrimSpace(unsafeRE.ReplaceAllString(title, ""))
	t = strings.Join(strings.Fields(t), " ")
	if t == "" {
		return DefaultTitle
	}
	return t
}

// TitleOf 取正文中第一个标题行的文字；没有标题时返回空串。
func TitleOf(content string) string {
	for _, raw := range strings.Split(content, "\n") {
		if m := headingRE.FindStringSubmatch(strings.TrimSpace(raw)); m != nil {
			if t := strings.TrimSpace(strings.Trim(m[2], "#")); t != "" {
				return t
			}
		}
	}
	return ""
}
