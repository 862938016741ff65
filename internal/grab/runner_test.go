package grab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/grab/wire"
)

// TestHelperProcess 不是真正的测试：它被 ProcessRunner 当作 worker 子进程启动。
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv("VIDNOTE_HELPER_MODE")
	if mode == "" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	w := wire.NewWriter(os.Stdout)
	fmt.Println("free-form progress line")
	_ = w.Log("info", "helper started")
	switch mode {
	case "success":
		_ = w.Outcome(wire.Outcome{Status: wire.StatusSuccess, Path: args[1], Metadata: &domain.Metadata{Title: "Web_Video", Uploader: "Unknown"}})
	case "anti_bot":
		_ = w.Outcome(wire.Outcome{Status: wire.StatusAntiBot})
	case "legacy":
		fmt.Println("DOWNLOAD_ERROR:403")
	case "silent":
		fmt.Fprintln(os.Stderr, "Traceback: crashed before reporting")
		os.Exit(3)
	}
	os.Exit(0)
}

func helperRunner(mode string) *ProcessRunner {
	return &ProcessRunner{
		Bin:  os.Args[0],
		Args: []string{"-test.run=TestHelperProcess", "--"},
		Env:  append(os.Environ(), "VIDNOTE_HELPER_MODE="+mode),
	}
}

func TestProcessRunner_Success(t *testing.T) {
	o, err := helperRunner("success").Run(context.Background(), "https://www.douyin.com/video/1", "/tmp/out.mp4")
	require.NoError(t, err)
	assert.Equal(t, wire.StatusSuccess, o.Status)
	assert.Equal(t, "/tmp/out.mp4", o.Path)
}

func TestProcessRunner_FailureOutcome(t *testing.T) {
	o, err := helperRunner("anti_bot").Run(context.Background(), "u", "o")
	var we *WorkerError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, wire.StatusAntiBot, o.Status)
	assert.Contains(t, err.Error(), "anti_bot")

	_, err = helperRunner("legacy").Run(context.Background(), "u", "o")
	require.True(t, errors.As(err, &we))
	assert.Equal(t, 403, we.Outcome.HTTPStatus)
}

func TestProcessRunner_NoOutcomeCarriesStderr(t *testing.T) {
	_, err := helperRunner("silent").Run(context.Background(), "u", "o")
	var we *WorkerError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, wire.StatusException, we.Outcome.Status)
	assert.Contains(t, err.Error(), "crashed before reporting")
	assert.NotNil(t, we.ExitErr)
}

func TestProcessRunner_MissingBin(t *testing.T) {
	_, err := (&ProcessRunner{}).Run(context.Background(), "u", "o")
	assert.Error(t, err)
	_, err = (&ProcessRunner{Bin: "/nonexistent/vidnote-grab"}).Run(context.Background(), "u", "o")
	assert.Error(t, err)
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 4}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	assert.Equal(t, "defg", tb.String())
}
