// vidnote-docserver 通过 MCP（stdio）提供文档生成工具 generate_document。
//
// 生成器是外部协作者：分析阶段的文稿 + 关键帧映射交给它，由它决定版式并落盘。
package main

import (
	"context"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/John-Robertt/vidnote/internal/logx"
)

var version = "dev"

func main() {
	log, closeLog, err := logx.New(logx.Config{
		Level:  os.Getenv("VIDNOTE_LOG_LEVEL"),
		Format: "json",
		File:   os.Getenv("VIDNOTE_LOG_FILE"),
	})
	if err != nil {
		logx.Discard().Fatal(err)
	}
	defer func() { _ = closeLog() }()

	outDir := strings.TrimSpace(os.Getenv("VIDNOTE_OUTPUT_DIR"))
	if outDir == "" {
		outDir = "outputs"
	}

	// stdio 模式下 stdout 属于协议，日志只能走 stderr / 文件（logx 默认 stderr）。
	server := newServer(&tools{OutputDir: outDir, Log: log})
	log.WithField("output_dir", outDir).Info("docserver 启动（stdio）")
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.WithError(err).Error("docserver 退出")
		os.Exit(1)
	}
}

func newServer(t *tools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "vidnote-docserver",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "generate_document",
		Description: "Render Markdown content into a document file. Lines may contain [INSERT_IMAGE: HH:MM:SS] " +
			"placeholders; image_map maps each referenced timestamp to a local image path. " +
			"Returns the path of the saved document.",
	}, t.generateDocument)
	return server
}

