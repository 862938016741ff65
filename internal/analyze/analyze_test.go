package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/infra/imgx"
)

func writeFrame(t *testing.T, dir, name string) string {
	t.Helper()
	b, err := imgx.EncodeJPEG(image.NewGray(image.Rect(0, 0, 8, 8)), 80)
	require.NoError(t, err)
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, b, 0o644))
	return p
}

func TestBaseURL(t *testing.T) {
	cases := map[string]string{
		"https://api.test":     "https://api.test/v1",
		"https://api.test/":    "https://api.test/v1",
		"https://api.test/v1":  "https://api.test/v1",
		"https://api.test/v1/": "https://api.test/v1",
		"":                     DefaultAPIBase + "/v1",
	}
	for in, want := range cases {
		assert.Equal(t, want, BaseURL(in), in)
	}
}

func TestAnalyze_SendsFramesAndReturnsContent(t *testing.T) {
	dir := t.TempDir()
	frames := []domain.Keyframe{
		{Timestamp: "00:00:00", Path: writeFrame(t, dir, "a.jpg")},
		{Timestamp: "00:00:07", Path: writeFrame(t, dir, "b.jpg")},
	}

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"# 标题\n[INSERT_IMAGE: 00:00:07]"}}]}`))
	}))
	defer srv.Close()

	c, err := New(Options{APIKey: "sk-test", APIBase: srv.URL, Model: "m1"}, nil)
	require.NoError(t, err)
	out, err := c.Analyze(context.Background(), frames)
	require.NoError(t, err)
	assert.Equal(t, "# 标题\n[INSERT_IMAGE: 00:00:07]", out)

	assert.Equal(t, "m1", got["model"])
	assert.Equal(t, 0.3, got["temperature"])
	assert.Equal(t, float64(4096), got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	parts := msgs[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 5)
	assert.Equal(t, "Timestamp: 00:00:07", parts[3].(map[string]any)["text"])
	img := parts[4].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(img, "data:image/jpeg;base64,"))
}

func TestAnalyze_DefaultModel(t *testing.T) {
	dir := t.TempDir()
	var model string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model string `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		model = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	c, err := New(Options{APIKey: "sk-test", APIBase: srv.URL}, nil)
	require.NoError(t, err)
	_, err = c.Analyze(context.Background(), []domain.Keyframe{{Timestamp: "00:00:00", Path: writeFrame(t, dir, "a.jpg")}})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash-exp", model)
}

func TestAnalyze_APIError(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	c, err := New(Options{APIKey: "sk-bad", APIBase: srv.URL}, nil)
	require.NoError(t, err)
	_, err = c.Analyze(context.Background(), []domain.Keyframe{{Timestamp: "00:00:00", Path: writeFrame(t, dir, "a.jpg")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestAnalyze_Preconditions(t *testing.T) {
	c, err := New(Options{}, nil)
	require.NoError(t, err)
	_, err = c.Analyze(context.Background(), []domain.Keyframe{{Timestamp: "00:00:00", Path: "/x.jpg"}})
	assert.True(t, errors.Is(err, ErrNoAPIKey))

	c, err = New(Options{APIKey: "sk"}, nil)
	require.NoError(t, err)
	_, err = c.Analyze(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNoKeyframes))

	_, err = c.Analyze(context.Background(), []domain.Keyframe{{Timestamp: "00:00:00", Path: "/nonexistent.jpg"}})
	assert.Error(t, err)

	_, err = New(Options{ProxyURL: "not a proxy"}, nil)
	assert.Error(t, err)
}
