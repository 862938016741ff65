package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	FileName    = "vidnote.json"
	DotEnvName  = ".env"
	EnvPrefix   = "VIDNOTE"
	maxParallel = 8
)

const (
	DefaultThreshold         = 30.0
	DefaultMaxAnalysisFrames = 20
	DefaultToleranceSec      = 10
	DefaultConcurrency       = 1
	DefaultWorkerDeadline    = 10 * time.Minute
	DefaultLLMModel          = "gemini-2.0-flash-exp"
)

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --concurrency=1 必须能覆盖 config.concurrency=4。
type CLIArgs struct {
	WorkDir    string
	ConfigFile string

	Concurrency    int
	ConcurrencySet bool

	Threshold    float64
	ThresholdSet bool

	LogLevel    string
	LogLevelSet bool

	NoCache bool
}

// FileConfig 对应 vidnote.json / 环境变量 VIDNOTE_* 的解析结构。
type FileConfig struct {
	DownloadDir string `mapstructure:"download_dir"`
	KeyframeDir string `mapstructure:"keyframe_dir"`
	OutputDir   string `mapstructure:"output_dir"`

	Threshold         float64 `mapstructure:"threshold"`
	MaxAnalysisFrames int     `mapstructure:"max_analysis_frames"`
	ImageToleranceSec int     `mapstructure:"image_tolerance_sec"`
	Concurrency       int     `mapstructure:"concurrency"`

	WorkerBin      string        `mapstructure:"worker_bin"`
	WorkerDeadline time.Duration `mapstructure:"worker_deadline"`
	YtdlpBin       string        `mapstructure:"ytdlp_bin"`
	FFmpegBin      string        `mapstructure:"ffmpeg_bin"`
	FFprobeBin     string        `mapstructure:"ffprobe_bin"`
	ChromePath     string        `mapstructure:"chrome_path"`

	Proxy ProxyConfig `mapstructure:"proxy"`
	LLM   LLMConfig   `mapstructure:"llm"`
	Log   LogConfig   `mapstructure:"log"`
	Cache CacheConfig `mapstructure:"cache"`

	ExcludeDirs []string `mapstructure:"exclude_dirs"`
}

type ProxyConfig struct {
	URL string `mapstructure:"url"`
}

type LLMConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	APIBase string        `mapstructure:"api_base"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	WorkDir     string
	ConfigPath  string // 实际读取的配置文件；未读取为空
	DownloadDir string
	KeyframeDir string
	OutputDir   string

	Threshold         float64
	MaxAnalysisFrames int
	ToleranceSec      int
	Concurrency       int

	WorkerBin      string
	WorkerDeadline time.Duration
	YtdlpBin       string
	FFmpegBin      string
	FFprobeBin     string
	ChromePath     string

	ProxyURL string
	LLM      LLMConfig
	Log      LogConfig

	CacheEnabled bool
	ExcludeDirs  []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) <work>/.env 存在则先加载（不覆盖已存在的环境变量）
// 2) CLI 提供 --config：必须存在；否则尝试 <work>/vidnote.json（可选）
// 3) 环境变量 VIDNOTE_<SECTION>_<KEY> 覆盖配置文件；LLM 兼容 GOOGLE_API_KEY / GOOGLE_API_BASE / LLM_MODEL
//
// 覆盖优先级（固定）：CLI > 环境变量 > 配置文件 > 内置默认。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}
	workDir := cwdAbs
	if strings.TrimSpace(cli.WorkDir) != "" {
		workDir = absCleanFrom(cwdAbs, cli.WorkDir)
	}

	if envPath := filepath.Join(workDir, DotEnvName); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: envPath, Err: err}
		}
	}

	cfgPath := filepath.Join(workDir, FileName)
	required := false
	if strings.TrimSpace(cli.ConfigFile) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigFile)
		required = true
	}

	vp := newViper()
	readPath := ""
	if fileExists(cfgPath) {
		vp.SetConfigFile(cfgPath)
		if err := vp.ReadInConfig(); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		readPath = cfgPath
	} else if required {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	var fc FileConfig
	if err := vp.Unmarshal(&fc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff, err := merge(workDir, cli, fc, cfgPath)
	if err != nil {
		return EffectiveConfig{}, err
	}
	eff.ConfigPath = readPath
	return eff, nil
}

// newViper 注册全部 key 的默认值：viper 只会把“已知 key”映射到环境变量。
func newViper() *viper.Viper {
	vp := viper.New()
	vp.SetConfigType("json")
	vp.SetEnvPrefix(EnvPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	vp.SetDefault("download_dir", "")
	vp.SetDefault("keyframe_dir", "")
	vp.SetDefault("output_dir", "")
	vp.SetDefault("threshold", DefaultThreshold)
	vp.SetDefault("max_analysis_frames", DefaultMaxAnalysisFrames)
	vp.SetDefault("image_tolerance_sec", DefaultToleranceSec)
	vp.SetDefault("concurrency", DefaultConcurrency)
	vp.SetDefault("worker_bin", "")
	vp.SetDefault("worker_deadline", DefaultWorkerDeadline.String())
	vp.SetDefault("ytdlp_bin", "")
	vp.SetDefault("ffmpeg_bin", "ffmpeg")
	vp.SetDefault("ffprobe_bin", "ffprobe")
	vp.SetDefault("chrome_path", "")
	vp.SetDefault("proxy.url", "")
	vp.SetDefault("llm.api_key", "")
	vp.SetDefault("llm.api_base", "")
	vp.SetDefault("llm.model", DefaultLLMModel)
	vp.SetDefault("llm.timeout", "120s")
	vp.SetDefault("log.level", "info")
	vp.SetDefault("log.format", "text")
	vp.SetDefault("log.file", "")
	vp.SetDefault("cache.enabled", true)
	vp.SetDefault("exclude_dirs", []string{})

	// 兼容旧环境变量名：新名字优先。
	_ = vp.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "GOOGLE_API_KEY")
	_ = vp.BindEnv("llm.api_base", EnvPrefix+"_LLM_API_BASE", "GOOGLE_API_BASE")
	_ = vp.BindEnv("llm.model", EnvPrefix+"_LLM_MODEL", "LLM_MODEL")
	return vp
}

func merge(workDir string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	downloadDir := absOr(workDir, fc.DownloadDir, filepath.Join(workDir, "temp"))
	keyframeDir := absOr(workDir, fc.KeyframeDir, filepath.Join(downloadDir, "screenshots"))
	outputDir := absOr(workDir, fc.OutputDir, filepath.Join(workDir, "outputs"))

	threshold := fc.Threshold
	if cli.ThresholdSet {
		threshold = cli.Threshold
	}
	if threshold < 0 || threshold > 255 {
		return EffectiveConfig{}, invalid("threshold 必须在 [0,255] 内，实际 %v", threshold)
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	// 超出范围截断：单次运行内部严格串行，并发只作用于批量输入。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > maxParallel {
		concurrency = maxParallel
	}

	maxFrames := fc.MaxAnalysisFrames
	if maxFrames <= 0 {
		maxFrames = DefaultMaxAnalysisFrames
	}
	tolerance := fc.ImageToleranceSec
	if tolerance < 0 {
		return EffectiveConfig{}, invalid("image_tolerance_sec 不能为负数")
	}

	deadline := fc.WorkerDeadline
	if deadline <= 0 {
		deadline = DefaultWorkerDeadline
	}

	proxyURL := strings.TrimSpace(fc.Proxy.URL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, invalid("proxy.url 无效：%q", proxyURL)
		}
	}

	llm := fc.LLM
	llm.APIKey = strings.TrimSpace(llm.APIKey)
	llm.APIBase = strings.TrimSpace(llm.APIBase)
	llm.Model = strings.TrimSpace(llm.Model)
	if llm.Model == "" {
		llm.Model = DefaultLLMModel
	}
	if llm.APIBase != "" {
		u, err := url.Parse(llm.APIBase)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return EffectiveConfig{}, invalid("llm.api_base 必须是 http/https URL：%q", llm.APIBase)
		}
	}

	lg := fc.Log
	if cli.LogLevelSet {
		lg.Level = cli.LogLevel
	}
	lg.Format = strings.ToLower(strings.TrimSpace(lg.Format))
	switch lg.Format {
	case "", "text", "json":
	default:
		return EffectiveConfig{}, invalid("log.format 只能是 text 或 json，实际是 %q", lg.Format)
	}
	if strings.TrimSpace(lg.File) != "" {
		lg.File = absCleanFrom(workDir, lg.File)
	}

	return EffectiveConfig{
		WorkDir:           workDir,
		DownloadDir:       downloadDir,
		KeyframeDir:       keyframeDir,
		OutputDir:         outputDir,
		Threshold:         threshold,
		MaxAnalysisFrames: maxFrames,
		ToleranceSec:      tolerance,
		Concurrency:       concurrency,
		WorkerBin:         strings.TrimSpace(fc.WorkerBin),
		WorkerDeadline:    deadline,
		YtdlpBin:          strings.TrimSpace(fc.YtdlpBin),
		FFmpegBin:         strings.TrimSpace(fc.FFmpegBin),
		FFprobeBin:        strings.TrimSpace(fc.FFprobeBin),
		ChromePath:        strings.TrimSpace(fc.ChromePath),
		ProxyURL:          proxyURL,
		LLM:               llm,
		Log:               lg,
		CacheEnabled:      fc.Cache.Enabled && !cli.NoCache,
		ExcludeDirs:       append([]string(nil), fc.ExcludeDirs...),
	}, nil
}

func absOr(base, p, def string) string {
	if strings.TrimSpace(p) == "" {
		return def
	}
	return absCleanFrom(base, p)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
