// Package analyze 把关键帧交给 OpenAI 兼容的视觉模型，得到带图片占位符的 Markdown 文稿。
package analyze

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/infra/httpx"
	"github.com/John-Robertt/vidnote/internal/infra/imgx"
	"github.com/John-Robertt/vidnote/internal/logx"
)

const (
	DefaultAPIBase     = "https://cli.dearmer.xyz"
	DefaultModel       = "gemini-2.0-flash-exp"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 4096
	DefaultImageSide   = 1280
)

var (
	ErrNoAPIKey    = errors.New("API key not found")
	ErrNoKeyframes = errors.New("no keyframes extracted for analysis")
)

// Options 是分析器配置。
type Options struct {
	APIKey   string
	APIBase  string
	Model    string
	Timeout  time.Duration
	ProxyURL string

	Temperature float64
	MaxTokens   int
	ImageSide   int // 发送前把图片缩到该边长以内
}

// Client 调用 /v1/chat/completions。
//
// 约束：
// - 只发一次请求（POST 不可重放，httpx.Transport 不会重试）
// - 图片统一转成 JPEG data URL
type Client struct {
	r    *resty.Client
	opts Options
	log  logrus.FieldLogger
}

func New(opts Options, log logrus.FieldLogger) (*Client, error) {
	hc, err := httpx.NewAPIClient(opts.ProxyURL, opts.Timeout)
	if err != nil {
		return nil, err
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.ImageSide <= 0 {
		opts.ImageSide = DefaultImageSide
	}
	if log == nil {
		log = logx.Discard()
	}
	r := resty.NewWithClient(hc).
		SetBaseURL(BaseURL(opts.APIBase)).
		SetHeader("Content-Type", "application/json")
	if opts.APIKey != "" {
		r.SetAuthToken(opts.APIKey)
	}
	return &Client{r: r, opts: opts, log: log}, nil
}

// BaseURL 规范化 API 地址：去掉末尾 /，缺少 /v1 时补上。
func BaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultAPIBase
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}

// Analyze 发送关键帧并返回模型输出的 Markdown。
func (c *Client) Analyze(ctx context.Context, frames []domain.Keyframe) (string, error) {
	if strings.TrimSpace(c.opts.APIKey) == "" {
		return "", ErrNoAPIKey
	}
	if len(frames) == 0 {
		return "", ErrNoKeyframes
	}

	parts := make([]contentPart, 0, 1+2*len(frames))
	parts = append(parts, contentPart{Type: "text", Text: "Here are the keyframes from the video:"})
	for _, f := range frames {
		img, err := imgx.ThumbnailJPEG(f.Path, c.opts.ImageSide)
		if err != nil {
			return "", fmt.Errorf("读取关键帧 %s 失败：%w", f.Timestamp, err)
		}
		parts = append(parts,
			contentPart{Type: "text", Text: "Timestamp: " + f.Timestamp},
			contentPart{Type: "image_url", ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img)}},
		)
	}

	req := chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: parts},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}

	c.log.WithFields(logrus.Fields{"model": c.opts.Model, "frames": len(frames)}).Info("发送分析请求")
	var (
		out    chatResponse
		apiErr errorResponse
	)
	resp, err := c.r.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("请求模型失败：%w", err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(apiErr.Error.Message)
		if msg == "" {
			msg = strings.TrimSpace(string(resp.Body()))
		}
		return "", fmt.Errorf("模型返回 HTTP %d：%s", resp.StatusCode(), msg)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("模型响应缺少 choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("模型返回空内容")
	}
	return text, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// Content 是 string（system）或 []contentPart（user）。
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
