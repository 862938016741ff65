package handoff

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/vidnote/internal/domain"
)

func keyframesEvery(n, gapSec int) domain.Keyframes {
	var k domain.Keyframes
	for i := 0; i < n; i++ {
		ts := domain.FormatTimestamp(i * gapSec)
		k.Add(ts, fmt.Sprintf("/kf/%03d.jpg", i))
	}
	return k
}

func TestSelectForAnalysis(t *testing.T) {
	assert.Len(t, SelectForAnalysis(keyframesEvery(5, 1), 20), 5)
	assert.Len(t, SelectForAnalysis(keyframesEvery(20, 1), 20), 20)
	assert.Empty(t, SelectForAnalysis(domain.Keyframes{}, 20))

	got := SelectForAnalysis(keyframesEvery(45, 1), 20)
	require.Len(t, got, 20)
	// stride = 45/20 = 2
	assert.Equal(t, "00:00:00", got[0].Timestamp)
	assert.Equal(t, "00:00:02", got[1].Timestamp)
	assert.Equal(t, "00:00:38", got[19].Timestamp)

	got = SelectForAnalysis(keyframesEvery(100, 3), 20)
	require.Len(t, got, 20)
	assert.Equal(t, domain.FormatTimestamp(5*3), got[1].Timestamp)
}

func TestSelectForAnalysis_KeepsCaptureOrderPast99Hours(t *testing.T) {
	k := domain.NewKeyframes(
		domain.Keyframe{Timestamp: domain.FormatTimestamp(99*3600 + 3599), Path: "/kf/a.jpg"},
		domain.Keyframe{Timestamp: domain.FormatTimestamp(100 * 3600), Path: "/kf/b.jpg"},
		domain.Keyframe{Timestamp: domain.FormatTimestamp(100*3600 + 30), Path: "/kf/c.jpg"},
	)
	got := SelectForAnalysis(k, 20)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"/kf/a.jpg", "/kf/b.jpg", "/kf/c.jpg"}, []string{got[0].Path, got[1].Path, got[2].Path})
}

func TestResolve(t *testing.T) {
	k := domain.NewKeyframes(
		domain.Keyframe{Timestamp: "00:00:05", Path: "/kf/a.jpg"},
		domain.Keyframe{Timestamp: "00:00:20", Path: "/kf/b.jpg"},
	)

	kf, ok := Resolve("00:00:12", k, DefaultToleranceSec)
	require.True(t, ok)
	assert.Equal(t, "00:00:05", kf.Timestamp)

	_, ok = Resolve("00:00:40", k, DefaultToleranceSec)
	assert.False(t, ok)

	kf, ok = Resolve("00:30", k, DefaultToleranceSec)
	require.True(t, ok)
	assert.Equal(t, "00:00:20", kf.Timestamp)

	_, ok = Resolve("garbage", k, DefaultToleranceSec)
	assert.False(t, ok)
	_, ok = Resolve("00:00:05", domain.Keyframes{}, DefaultToleranceSec)
	assert.False(t, ok)
}

func TestResolveImageRefs(t *testing.T) {
	k := domain.NewKeyframes(
		domain.Keyframe{Timestamp: "00:00:05", Path: "/kf/a.jpg"},
		domain.Keyframe{Timestamp: "00:00:20", Path: "/kf/b.jpg"},
	)
	in := "## 1. 引言\n如下图所示 [INSERT_IMAGE:00:00:12]\n[INSERT_IMAGE: 00:00:40]\n"
	out, images := ResolveImageRefs(in, k, DefaultToleranceSec)

	assert.Equal(t, "## 1. 引言\n如下图所示 [INSERT_IMAGE: 00:00:12]\n(Image at 00:00:40 not available)\n", out)
	assert.Equal(t, map[string]string{"00:00:12": "/kf/a.jpg"}, images)
}

func TestSplitPlaceholders(t *testing.T) {
	segs := SplitPlaceholders("前文 [INSERT_IMAGE: 00:00:01] 中间[INSERT_IMAGE: 00:00:02]")
	assert.Equal(t, []Segment{
		{Text: "前文 "},
		{Image: "00:00:01"},
		{Text: " 中间"},
		{Image: "00:00:02"},
	}, segs)
	assert.Equal(t, []string{"00:00:01", "00:00:02"}, FindPlaceholders("[INSERT_IMAGE: 00:00:01][INSERT_IMAGE:00:00:02]"))
}
