package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Frame 是一帧解码结果；Index 是原视频中的帧序号（从 0 开始）。
type Frame struct {
	Index int
	Image image.Image
}

// Options 指定 ffmpeg/ffprobe 可执行文件；为空时从 PATH 查找。
type Options struct {
	FFmpegBin  string
	FFprobeBin string
}

// FFmpegSource 以 rawvideo/rgb24 管道读取解码帧。
//
// 规则：
// - ffmpeg 侧用 select 过滤器只输出 n%step==0 的帧，Index = 第 k 个输出帧 * step
// - 不做自动旋转，保证输出尺寸与 ffprobe 报告一致
// - Close 总会结束子进程
type FFmpegSource struct {
	info Info
	step int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *strings.Builder
	rd     *rawReader

	closeOnce sync.Once
	waitErr   error
	waited    bool
}

// Open 探测并启动解码。ffprobe 失败、没有视频流都返回错误。
func Open(ctx context.Context, opts Options, path string) (*FFmpegSource, error) {
	info, err := Probe(ctx, opts.FFprobeBin, path)
	if err != nil {
		return nil, err
	}
	step := SampleStep(info.FPS)

	bin := opts.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, ffmpegArgs(path, step)...)
	stderr := &strings.Builder{}
	cmd.Stderr = &limitedWriter{b: stderr, max: 4 << 10}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("启动 ffmpeg 失败：%w", err)
	}
	return &FFmpegSource{
		info:   info,
		step:   step,
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		rd:     newRawReader(stdout, info.Width, info.Height, step),
	}, nil
}

func ffmpegArgs(path string, step int) []string {
	return []string{
		"-v", "error",
		"-nostdin",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-vf", "select='not(mod(n\\," + strconv.Itoa(step) + "))'",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}
}

func (s *FFmpegSource) Info() Info   { return s.info }
func (s *FFmpegSource) FPS() float64 { return s.info.FPS }

// Next 返回下一帧；流结束返回 io.EOF。
// ffmpeg 以非 0 退出时，错误带上 stderr 尾部。
func (s *FFmpegSource) Next() (Frame, error) {
	f, err := s.rd.next()
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, io.EOF) {
		return Frame{}, err
	}
	if werr := s.wait(); werr != nil {
		return Frame{}, fmt.Errorf("ffmpeg: %w: %s", werr, strings.TrimSpace(s.stderr.String()))
	}
	return Frame{}, io.EOF
}

func (s *FFmpegSource) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stdout.Close()
		if !s.waited && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.wait()
	})
	return nil
}

func (s *FFmpegSource) wait() error {
	if !s.waited {
		s.waited = true
		s.waitErr = s.cmd.Wait()
	}
	return s.waitErr
}

// rawReader 把 rgb24 字节流切成帧。
type rawReader struct {
	r    io.Reader
	w, h int
	step int
	k    int
	buf  []byte
}

func newRawReader(r io.Reader, w, h, step int) *rawReader {
	return &rawReader{r: r, w: w, h: h, step: step, buf: make([]byte, w*h*3)}
}

func (rr *rawReader) next() (Frame, error) {
	if _, err := io.ReadFull(rr.r, rr.buf); err != nil {
		// 末尾的不完整帧直接丢弃
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, rr.w, rr.h))
	for i, j := 0, 0; i < len(rr.buf); i, j = i+3, j+4 {
		img.Pix[j] = rr.buf[i]
		img.Pix[j+1] = rr.buf[i+1]
		img.Pix[j+2] = rr.buf[i+2]
		img.Pix[j+3] = 0xff
	}
	f := Frame{Index: rr.k * rr.step, Image: img}
	rr.k++
	return f, nil
}

type limitedWriter struct {
	mu  sync.Mutex
	b   *strings.Builder
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if room := w.max - w.b.Len(); room > 0 {
		if len(p) > room {
			w.b.Write(p[:room])
		} else {
			w.b.Write(p)
		}
	}
	return len(p), nil
}
