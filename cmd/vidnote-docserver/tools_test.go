package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0o644))
	return p
}

func TestGenerateDocument_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	img := writeImage(t, dir, "frame_00-00-05.jpg")
	tl := &tools{OutputDir: filepath.Join(dir, "outputs")}

	res, out, err := tl.generateDocument(context.Background(), nil, generateInput{
		Content:    "# 标题\n\n第一段\n\n[INSERT_IMAGE: 00:00:05]\n\n[INSERT_IMAGE: 00:09:00]",
		OutputPath: filepath.Join(dir, "notes", "lecture"),
		ImageMap:   map[string]string{"00:00:05": img},
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "notes", "lecture.md"), out.Path)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, out.Path)

	b, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	doc := string(b)
	assert.Contains(t, doc, "lecture_assets/00-00-05.jpg")
	assert.NotContains(t, doc, "00:09:00", "未映射的占位符应被丢弃")
	assert.FileExists(t, filepath.Join(dir, "notes", "lecture_assets", "00-00-05.jpg"))
}

func TestGenerateDocument_ExistingPathIsNotOverwritten(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(p, []byte("old"), 0o644))
	tl := &tools{OutputDir: dir}

	_, _, err := tl.generateDocument(context.Background(), nil, generateInput{Content: "# 新\n正文", OutputPath: p})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "已存在")

	b, _ := os.ReadFile(p)
	assert.Equal(t, "old", string(b))
}

func TestGenerateDocument_DirectoryTarget(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "notes.md")
	require.NoError(t, os.MkdirAll(p, 0o755))

	tl := &tools{OutputDir: dir}
	_, _, err := tl.generateDocument(context.Background(), nil, generateInput{Content: "# x", OutputPath: p})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "不是普通文件")
}

func TestGenerateDocument_NamesFromFirstHeading(t *testing.T) {
	dir := t.TempDir()
	tl := &tools{OutputDir: dir}

	_, out, err := tl.generateDocument(context.Background(), nil, generateInput{Content: "# Go: 并发?\n正文"})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(out.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(out.Path), "Go 并发_"), out.Path)
}

func TestGenerateDocument_EmptyContent(t *testing.T) {
	tl := &tools{OutputDir: t.TempDir()}
	_, _, err := tl.generateDocument(context.Background(), nil, generateInput{Content: "  "})
	assert.Error(t, err)
}

func TestNewServer_RegistersTool(t *testing.T) {
	assert.NotNil(t, newServer(&tools{OutputDir: t.TempDir()}))
}
