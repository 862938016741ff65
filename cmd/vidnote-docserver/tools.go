package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/vidnote/internal/docgen"
	"github.com/John-Robertt/vidnote/internal/infra/fsx"
	"github.com/John-Robertt/vidnote/internal/logx"
)

type generateInput struct {
	Content    string            `json:"content" jsonschema:"Markdown content; may contain [INSERT_IMAGE: HH:MM:SS] placeholders"`
	OutputPath string            `json:"output_path,omitempty" jsonschema:"Target .md path; empty means <output_dir>/<title>_<time>.md"`
	ImageMap   map[string]string `json:"image_map,omitempty" jsonschema:"Referenced timestamp -> local image path"`
	Title      string            `json:"title,omitempty" jsonschema:"Document title used for the file name when output_path is empty"`
}

type generateOutput struct {
	Path string `json:"path"`
}

type tools struct {
	OutputDir string
	Log       logrus.FieldLogger
}

// generateDocument 渲染并保存文档。
//
// 规则：
// - output_path 非空：写到该路径；已存在时报错，不覆盖
// - output_path 为空：由 docgen.Generator 在 OutputDir 下命名
// - image_map 中不存在的图片文件在渲染时丢弃
func (t *tools) generateDocument(ctx context.Context, _ *mcp.CallToolRequest, in generateInput) (*mcp.CallToolResult, generateOutput, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, generateOutput{}, errors.New("content is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, generateOutput{}, err
	}
	doc := docgen.Document{
		Content: in.Content,
		Images:  in.ImageMap,
		Title:   in.Title,
	}
	if doc.Title == "" {
		doc.Title = docgen.TitleOf(in.Content)
	}

	var (
		path string
		err  error
	)
	if p := strings.TrimSpace(in.OutputPath); p != "" {
		if filepath.Ext(p) == "" {
			p += ".md"
		}
		if err = os.MkdirAll(filepath.Dir(p), 0o755); err == nil {
			err = docgen.WriteDocument(p, doc)
		}
		switch {
		case errors.Is(err, os.ErrExist):
			err = fmt.Errorf("文件已存在：%s", p)
		case fsx.IsPathTypeConflict(err):
			err = fmt.Errorf("目标路径不是普通文件：%s", p)
		}
		path = p
		if abs, aerr := filepath.Abs(p); aerr == nil {
			path = abs
		}
	} else {
		path, err = (&docgen.Generator{OutputDir: t.OutputDir}).Generate(doc)
	}
	if err != nil {
		t.logger().WithError(err).Warn("generate_document 失败")
		return nil, generateOutput{}, err
	}

	t.logger().WithFields(logrus.Fields{"path": path, "images": len(in.ImageMap)}).Info("文档已生成")
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Document saved to " + path}},
	}, generateOutput{Path: path}, nil
}

func (t *tools) logger() logrus.FieldLogger {
	if t.Log == nil {
		return logx.Discard()
	}
	return t.Log
}
