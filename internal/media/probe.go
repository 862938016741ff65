// Package media 封装 ffprobe/ffmpeg：探测视频参数，并把解码帧以 RGB 图像流的形式交给上层。
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Info 是主视频流的最小描述。
type Info struct {
	Width    int
	Height   int
	FPS      float64 // avg_frame_rate；未知为 0
	Duration float64 // 秒；未知为 0
	Codec    string
}

var ErrNoVideoStream = errors.New("media: 没有可用的视频流")

// Probe 执行一次 ffprobe JSON 调用。
func Probe(ctx context.Context, ffprobeBin, path string) (Info, error) {
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

// ParseJSON 解析 ffprobe JSON 输出，取第一个非封面图的视频流。
// 导出以便在没有 ffprobe 的环境下测试。
func ParseJSON(data []byte) (Info, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	for _, s := range raw.Streams {
		if s.CodecType != "video" || s.Disposition["attached_pic"] == 1 {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			continue
		}
		info := Info{
			Width:    s.Width,
			Height:   s.Height,
			FPS:      ParseRate(s.AvgFrameRate),
			Duration: parseFloat(s.Duration),
			Codec:    s.CodecName,
		}
		if info.FPS <= 0 {
			info.FPS = ParseRate(s.RFrameRate)
		}
		if info.Duration <= 0 {
			info.Duration = parseFloat(raw.Format.Duration)
		}
		return info, nil
	}
	return Info{}, ErrNoVideoStream
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecName    string         `json:"codec_name"`
	CodecType    string         `json:"codec_type"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	AvgFrameRate string         `json:"avg_frame_rate"`
	RFrameRate   string         `json:"r_frame_rate"`
	Duration     string         `json:"duration"`
	Disposition  map[string]int `json:"disposition"`
}

// ParseRate 解析 "30000/1001" 或 "25" 形式的帧率；非法或分母为 0 时返回 0。
func ParseRate(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

// SampleStep 是采样步长：每秒约取一帧，至少为 1。
func SampleStep(fps float64) int {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 1
	}
	step := int(math.Round(fps))
	if step < 1 {
		return 1
	}
	return step
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}
