package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRunArgs(t *testing.T) {
	ra, err := parseRunArgs([]string{
		"https://www.bilibili.com/video/BV1xx411c7mD", "--concurrency=3", "./videos",
		"--threshold", "42.5", "--work-dir", "/tmp/w", "--config=/tmp/w/vidnote.json",
		"--log-level", "debug", "--no-cache", "--report",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://www.bilibili.com/video/BV1xx411c7mD", "./videos"}, ra.Inputs)
	assert.True(t, ra.Report)
	assert.True(t, ra.CLI.NoCache)
	assert.True(t, ra.CLI.ConcurrencySet)
	assert.Equal(t, 3, ra.CLI.Concurrency)
	assert.True(t, ra.CLI.ThresholdSet)
	assert.InDelta(t, 42.5, ra.CLI.Threshold, 1e-9)
	assert.Equal(t, "/tmp/w", ra.CLI.WorkDir)
	assert.Equal(t, "/tmp/w/vidnote.json", ra.CLI.ConfigFile)
	assert.True(t, ra.CLI.LogLevelSet)
	assert.Equal(t, "debug", ra.CLI.LogLevel)
}

func TestParseRunArgs_Errors(t *testing.T) {
	cases := map[string][]string{
		"无输入":    {"--report"},
		"未知参数":   {"a.mp4", "--apply"},
		"缺少值":    {"a.mp4", "--concurrency"},
		"并发不是整数": {"a.mp4", "--concurrency=x"},
		"阈值不是数字": {"a.mp4", "--threshold", "high"},
	}
	for name, args := range cases {
		_, err := parseRunArgs(args)
		assert.Error(t, err, name)
	}
}
