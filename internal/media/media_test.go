package media

import (
	"bytes"
	"errors"
	"image/color"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbe = `{
  "streams": [
    {"codec_type": "video", "codec_name": "mjpeg", "width": 300, "height": 300,
     "avg_frame_rate": "0/0", "disposition": {"attached_pic": 1}},
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "h264", "width": 1280, "height": 720,
     "avg_frame_rate": "30000/1001", "r_frame_rate": "30000/1001", "duration": "62.5",
     "disposition": {"attached_pic": 0}}
  ],
  "format": {"duration": "63.0"}
}`

func TestParseJSON_SkipsAttachedPic(t *testing.T) {
	info, err := ParseJSON([]byte(sampleProbe))
	require.NoError(t, err)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)
	assert.InDelta(t, 29.97, info.FPS, 0.01)
	assert.Equal(t, 62.5, info.Duration)
	assert.Equal(t, "h264", info.Codec)
}

func TestParseJSON_FallbacksAndErrors(t *testing.T) {
	info, err := ParseJSON([]byte(`{"streams":[{"codec_type":"video","width":2,"height":2,"avg_frame_rate":"0/0","r_frame_rate":"25/1"}],"format":{"duration":"10"}}`))
	require.NoError(t, err)
	assert.Equal(t, 25.0, info.FPS)
	assert.Equal(t, 10.0, info.Duration)

	_, err = ParseJSON([]byte(`{"streams":[{"codec_type":"audio"}]}`))
	assert.True(t, errors.Is(err, ErrNoVideoStream))

	_, err = ParseJSON([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseRate(t *testing.T) {
	cases := map[string]float64{
		"25/1":  25,
		"24":    24,
		"0/0":   0,
		"":      0,
		"abc/1": 0,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseRate(in), in)
	}
}

func TestSampleStep(t *testing.T) {
	assert.Equal(t, 30, SampleStep(29.97))
	assert.Equal(t, 25, SampleStep(25))
	assert.Equal(t, 1, SampleStep(0.4))
	assert.Equal(t, 1, SampleStep(0))
	assert.Equal(t, 1, SampleStep(-3))
}

func TestRawReader_SplitsFramesAndDropsPartialTail(t *testing.T) {
	// 2x1 图像，两帧完整 + 半帧残留
	data := []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 10, 20, 30,
		1, 2, 3,
	}
	rr := newRawReader(bytes.NewReader(data), 2, 1, 5)

	f0, err := rr.next()
	require.NoError(t, err)
	assert.Equal(t, 0, f0.Index)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, f0.Image.At(0, 0))
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, f0.Image.At(1, 0))

	f1, err := rr.next()
	require.NoError(t, err)
	assert.Equal(t, 5, f1.Index)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, f1.Image.At(1, 0))

	_, err = rr.next()
	assert.Equal(t, io.EOF, err)
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs("/v/a.mp4", 30)
	assert.Contains(t, args, "select='not(mod(n\\,30))'")
	assert.Equal(t, "-", args[len(args)-1])
}

func TestLimitedWriter(t *testing.T) {
	w := &limitedWriter{b: &strings.Builder{}, max: 3}
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hel", w.b.String())
}
