// Package keyframe 从视频中挑出“画面明显变化”的帧并落盘为 JPEG。
package keyframe

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/infra/fsx"
	"github.com/John-Robertt/vidnote/internal/infra/imgx"
	"github.com/John-Robertt/vidnote/internal/logx"
	"github.com/John-Robertt/vidnote/internal/media"
)

const (
	DefaultThreshold  = 30
	DefaultDiffCutoff = 25
	DefaultQuality    = 90
)

// FrameSource 是按顺序产出解码帧的来源；*media.FFmpegSource 满足该接口。
// Next 在流结束时返回 io.EOF。
type FrameSource interface {
	FPS() float64
	Next() (media.Frame, error)
	Close() error
}

// Opener 打开视频文件得到帧来源。
type Opener func(ctx context.Context, path string) (FrameSource, error)

// Result 是一次抽取的结果。
type Result struct {
	Keyframes domain.Keyframes
	Sampled   int // 参与比较的采样帧数
}

// Extractor 实现场景变化检测：
//
// 规则：
// - 采样步长 step = max(1, round(fps))，只评估 index%step==0 的帧
// - 比较前先灰度化 + 高斯模糊；像素差 > DiffCutoff 记为变化
// - 变化分数 = 255 * 变化像素数 / 总像素数；分数 > Threshold 即保留
// - 第一帧采样总是保留；只有保留时才替换参考帧
// - 时间戳 = floor(index / fps) 秒，格式 HH:MM:SS；同一时间戳只保留第一张
// - 落盘失败只记日志：参考帧照常替换，但不记录该关键帧
type Extractor struct {
	Threshold  float64
	DiffCutoff uint8
	BlurSigma  float64
	Quality    int
	Open       Opener
	Log        logrus.FieldLogger

	save func(dir, name string, img image.Image) error
}

// ExtractFile 打开并抽取；视频无法解码时返回空结果（只记日志）。
func (x *Extractor) ExtractFile(ctx context.Context, path, outDir string) Result {
	log := x.logger().WithField("video", path)
	if x.Open == nil {
		log.Error("未配置视频解码器")
		return Result{}
	}
	src, err := x.Open(ctx, path)
	if err != nil {
		log.WithError(err).Warn("无法打开视频，跳过关键帧抽取")
		return Result{}
	}
	defer func() { _ = src.Close() }()

	res, err := x.Extract(ctx, src, outDir)
	if err != nil {
		log.WithError(err).WithField("keyframes", res.Keyframes.Len()).Warn("解码中断，保留已抽取的关键帧")
	}
	return res
}

// Extract 从 src 中抽取关键帧并写入 outDir。
// 解码中途出错时返回已得到的部分结果与错误。
func (x *Extractor) Extract(ctx context.Context, src FrameSource, outDir string) (Result, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("创建关键帧目录失败：%w", err)
	}
	log := x.logger()

	fps := src.FPS()
	step := media.SampleStep(fps)
	sigma := x.BlurSigma
	if sigma <= 0 {
		sigma = imgx.DefaultBlurSigma
	}
	cutoff := x.DiffCutoff
	if cutoff == 0 {
		cutoff = DefaultDiffCutoff
	}

	var (
		res Result
		ref *image.Gray
	)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		if f.Index%step != 0 || f.Image == nil {
			continue
		}
		res.Sampled++

		gray := imgx.SmoothGray(f.Image, sigma)
		if ref != nil {
			score, ok := ChangeScore(ref, gray, cutoff)
			if ok && score <= x.Threshold {
				continue
			}
		}
		ref = gray

		ts := domain.FormatTimestamp(secondsAt(f.Index, fps))
		if _, dup := res.Keyframes.Get(ts); dup {
			continue
		}
		name := FileName(ts)
		if err := x.write(outDir, name, f.Image); err != nil {
			log.WithError(err).WithField("timestamp", ts).Warn("关键帧落盘失败")
			continue
		}
		res.Keyframes.Add(ts, filepath.Join(outDir, name))
	}
}

// ChangeScore 返回两张同尺寸灰度图的变化分数（0..255）；尺寸不同时 ok=false。
func ChangeScore(a, b *image.Gray, cutoff uint8) (float64, bool) {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 0, false
	}
	total := ab.Dx() * ab.Dy()
	if total == 0 {
		return 0, false
	}
	changed := 0
	for y := 0; y < ab.Dy(); y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+ab.Dx()]
		rb := b.Pix[y*b.Stride : y*b.Stride+bb.Dx()]
		for i := range ra {
			d := int(ra[i]) - int(rb[i])
			if d < 0 {
				d = -d
			}
			if d > int(cutoff) {
				changed++
			}
		}
	}
	return 255 * float64(changed) / float64(total), true
}

// FileName: frame_HH-MM-SS.jpg
func FileName(ts string) string {
	return "frame_" + strings.ReplaceAll(ts, ":", "-") + ".jpg"
}

func secondsAt(index int, fps float64) int {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return index
	}
	return int(math.Floor(float64(index) / fps))
}

func (x *Extractor) write(dir, name string, img image.Image) error {
	if x.save != nil {
		return x.save(dir, name, img)
	}
	b, err := imgx.EncodeJPEG(img, x.Quality)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(dir, name, b)
}

func (x *Extractor) logger() logrus.FieldLogger {
	if x.Log == nil {
		return logx.Discard()
	}
	return x.Log
}
