package wire

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/vidnote/internal/domain"
)

func TestWriterDecode_RoundTripIgnoresNoise(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	buf.WriteString("Launching browser...\n")
	require.NoError(t, w.Log("info", "navigating"))
	buf.WriteString("some library noise\n")
	require.NoError(t, w.Outcome(Outcome{
		Status:   StatusSuccess,
		Path:     "/tmp/douyin_fallback_1.mp4",
		Metadata: &domain.Metadata{Title: "Douyin_Video", Uploader: "Unknown"},
	}))
	assert.True(t, w.Sent())
	assert.ErrorIs(t, w.Outcome(Outcome{Status: StatusException}), ErrOutcomeSent)

	var logs []Frame
	o, err := Decode(&buf, func(f Frame) { logs = append(logs, f) })
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, o.Status)
	assert.Equal(t, "/tmp/douyin_fallback_1.mp4", o.Path)
	require.NotNil(t, o.Metadata)
	assert.Equal(t, "Douyin_Video", o.Metadata.Title)
	require.Len(t, logs, 1)
	assert.Equal(t, "navigating", logs[0].Message)
}

func TestDecode_FirstOutcomeWins(t *testing.T) {
	in := strings.Join([]string{
		Prefix + `{"type":"outcome","outcome":{"status":"anti_bot"}}`,
		Prefix + `{"type":"outcome","outcome":{"status":"success","path":"x"}}`,
	}, "\n")
	o, err := Decode(strings.NewReader(in), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusAntiBot, o.Status)
}

func TestDecode_NoOutcome(t *testing.T) {
	_, err := Decode(strings.NewReader("hello\n"+Prefix+"{broken\n"), nil)
	assert.True(t, errors.Is(err, ErrNoOutcome))
}

func TestParseLine_Legacy(t *testing.T) {
	cases := []struct {
		line string
		want Outcome
	}{
		{"ANTI_BOT_TRIGGERED", Outcome{Status: StatusAntiBot}},
		{"VIDEO_NOT_FOUND", Outcome{Status: StatusNotFound}},
		{"VIDEO_NOT_FOUND_OR_BLOB", Outcome{Status: StatusNotFound, Blob: true}},
		{"DOWNLOAD_ERROR:403", Outcome{Status: StatusDownloadError, HTTPStatus: 403}},
		{"EXCEPTION: boom", Outcome{Status: StatusException, Message: "boom"}},
	}
	for _, c := range cases {
		f, ok := ParseLine(c.line)
		require.True(t, ok, c.line)
		require.Equal(t, FrameOutcome, f.Type)
		assert.Equal(t, c.want, *f.Outcome, c.line)
	}

	f, ok := ParseLine(`JSON_RESULT:{"status":"success","path":"/a.mp4","metadata":{"title":"t","duration":0,"uploader":"Unknown"}}`)
	require.True(t, ok)
	assert.Equal(t, "/a.mp4", f.Outcome.Path)
	assert.Equal(t, "t", f.Outcome.Metadata.Title)

	_, ok = ParseLine("DOWNLOAD_ERROR:abc")
	assert.False(t, ok)
	_, ok = ParseLine("Starting separate process download")
	assert.False(t, ok)
}

func TestOutcome_Describe(t *testing.T) {
	d := Outcome{Status: StatusDownloadError, HTTPStatus: 403}.Describe()
	assert.Contains(t, d, "download_error")
	assert.Contains(t, d, "403")

	d = Outcome{Status: StatusException, Message: "boom", Trace: "goroutine 1"}.Describe()
	assert.Contains(t, d, "boom")
	assert.Contains(t, d, "trace: goroutine 1")
}

func TestLogHook(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.AddHook(LogHook{W: w})

	l.WithField("url", "https://x").Warn("idle timeout")

	var got []Frame
	_, err := Decode(&buf, func(f Frame) { got = append(got, f) })
	assert.ErrorIs(t, err, ErrNoOutcome)
	require.Len(t, got, 1)
	assert.Equal(t, "warning", got[0].Level)
	assert.Equal(t, "idle timeout url=https://x", got[0].Message)
}
