package docgen

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/vidnote/internal/domain"
)

func fixedNow() time.Time { return time.Date(2024, 3, 9, 14, 5, 0, 0, time.Local) }

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("jpeg"), 0o644); err != nil {
		t.Fatalf("写入图片失败：%v", err)
	}
	return p
}

func TestSafeTitle(t *testing.T) {
	cases := map[string]string{
		`a/b\c:d*e?f"g<h>i|j`: "abcdefghij",
		"  空格   标题 ":          "空格 标题",
		"???":                 "document",
		"":                    "document",
	}
	for in, want := range cases {
		if got := SafeTitle(in); got != want {
			t.Fatalf("SafeTitle(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, dir, "frame_00-00-05.jpg")
	doc := Document{
		Content: "#  论文标题\n\n\n##1. 引言\n这是 **重点** 段落。\n如图 [INSERT_IMAGE: 00:00:12] 所示\n[INSERT_IMAGE: 00:00:40]\n(Image at 00:01:00 not available)\n",
		Images:  map[string]string{"00:00:12": img, "00:00:40": filepath.Join(dir, "missing.jpg")},
		Source:  "https://www.bilibili.com/video/BV1",
		Meta:    &domain.Metadata{Title: "t", Duration: 75, Uploader: "up主"},
	}
	var copied []string
	out, err := Render(doc, func(ts, src string) (string, error) {
		copied = append(copied, ts+"="+src)
		return "assets/" + ts + ".jpg", nil
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := strings.Join([]string{
		"# 论文标题",
		"## 1. 引言",
		"这是 **重点** 段落。",
		"如图",
		"![Figure: 00:00:12](assets/00:00:12.jpg)",
		"*Figure: 00:00:12*",
		"所示",
		"(Image at 00:01:00 not available)",
		"---",
		"> 来源：https://www.bilibili.com/video/BV1 | 作者：up主 | 时长：00:01:15",
	}, "\n\n") + "\n"
	if out != want {
		t.Fatalf("渲染结果不符：\n%s\nwant:\n%s", out, want)
	}
	if len(copied) != 1 || copied[0] != "00:00:12="+img {
		t.Fatalf("只应复制存在的图片：%v", copied)
	}
}

func TestGenerate_WritesDocumentAndAssets(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "outputs")
	img := writeImage(t, src, "frame_00-00-05.jpg")

	g := &Generator{OutputDir: out, Now: fixedNow}
	doc := Document{
		Content: "# 标题\n[INSERT_IMAGE: 00:00:06]",
		Images:  map[string]string{"00:00:06": img},
		Title:   "猫/狗: 合集",
	}
	p, err := g.Generate(doc)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Base(p) != "猫狗 合集_202403091405.md" {
		t.Fatalf("文件名不符：%s", p)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("读取文档失败：%v", err)
	}
	if !strings.Contains(string(b), "![Figure: 00:00:06](猫狗 合集_202403091405_assets/00-00-06.jpg)") {
		t.Fatalf("文档缺少图片引用：\n%s", b)
	}
	if _, err := os.Stat(filepath.Join(out, "猫狗 合集_202403091405_assets", "00-00-06.jpg")); err != nil {
		t.Fatalf("图片未复制：%v", err)
	}

	// 同一分钟内再次生成：不覆盖，追加序号
	p2, err := g.Generate(doc)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Base(p2) != "猫狗 合集_202403091405_2.md" {
		t.Fatalf("第二份文档名不符：%s", p2)
	}
}

func TestGenerate_NoContent(t *testing.T) {
	g := &Generator{OutputDir: t.TempDir(), Now: fixedNow}
	if _, err := g.Generate(Document{Content: "  \n"}); !errors.Is(err, ErrNoContent) {
		t.Fatalf("期望 ErrNoContent，实际：%v", err)
	}
}

func TestWriteDocument_NoOverwrite(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.md")
	if err := os.WriteFile(p, []byte("old"), 0o644); err != nil {
		t.Fatalf("准备失败：%v", err)
	}
	err := WriteDocument(p, Document{Content: "# new"})
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}
	b, _ := os.ReadFile(p)
	if string(b) != "old" {
		t.Fatalf("原文件被覆盖：%q", b)
	}
}

func TestTitleOf(t *testing.T) {
	cases := map[string]string{
		"引言\n\n# Go 并发模型\n## 背景": "Go 并发模型",
		"##   空格很多  \n正文":        "空格很多",
		"没有标题\n**粗体**":           "",
	}
	for in, want := range cases {
		if got := TitleOf(in); got != want {
			t.Fatalf("TitleOf(%q)=%q，期望 %q", in, got, want)
		}
	}
}
