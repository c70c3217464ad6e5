package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 PULSE_STORAGE_DB_PATH
const EnvPrefix = "PULSE"

// Config 应用配置
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Storage StorageConfig `mapstructure:"storage"`
	GitHub  GitHubConfig  `mapstructure:"github"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Profile ProfileConfig `mapstructure:"profile"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// GitHubConfig GitHub API 配置
type GitHubConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	HTTPTimeoutSec int    `mapstructure:"http_timeout_sec"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryDelayMs   int    `mapstructure:"retry_delay_ms"`
}

// HTTPTimeout 请求超时
func (g GitHubConfig) HTTPTimeout() time.Duration {
	return time.Duration(g.HTTPTimeoutSec) * time.Second
}

// RetryDelay 首次重试间隔
func (g GitHubConfig) RetryDelay() time.Duration {
	return time.Duration(g.RetryDelayMs) * time.Millisecond
}

// SyncConfig 同步配置
type SyncConfig struct {
	UserWindowDays        int     `mapstructure:"user_window_days"`
	RepoCreatedWindowDays int     `mapstructure:"repo_created_window_days"`
	PodWindowDays         int     `mapstructure:"pod_window_days"`
	BatchCap              int     `mapstructure:"batch_cap"`
	SmallPodThreshold     int     `mapstructure:"small_pod_threshold"`
	SmallPodMultiplier    float64 `mapstructure:"small_pod_multiplier"`
	WeakNameMatch         bool    `mapstructure:"weak_name_match"`
	PollIntervalMin       int     `mapstructure:"poll_interval_min"`
}

// PollInterval 后台轮询间隔
func (s SyncConfig) PollInterval() time.Duration {
	if s.PollIntervalMin <= 0 {
		return time.Hour
	}
	return time.Duration(s.PollIntervalMin) * time.Minute
}

// ProfileConfig 语言画像配置
type ProfileConfig struct {
	ActiveWindowDays int `mapstructure:"active_window_days"`
	MaxRepos         int `mapstructure:"max_repos"`
	Concurrency      int `mapstructure:"concurrency"`
}

// MetricsConfig 指标端点配置；ListenAddr 为空则不监听
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load 加载配置文件；configPath 为空时按默认路径查找
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Warn("配置文件未找到，使用默认配置")
		} else {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	} else {
		slog.Info("加载配置文件", "path", v.ConfigFileUsed())
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.GitHub.BaseURL = expandEnv(cfg.GitHub.BaseURL)
	cfg.Storage.DBPath = expandEnv(cfg.Storage.DBPath)
	cfg.App.LogPath = expandEnv(cfg.App.LogPath)
	return &cfg, nil
}

// Default 默认配置（不读文件与环境变量）
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, _ := decode(v)
	return cfg
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "podpulse")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_path", "")

	// Storage
	v.SetDefault("storage.db_path", "./data/podpulse.db")

	// GitHub
	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.http_timeout_sec", 30)
	v.SetDefault("github.max_retries", 3)
	v.SetDefault("github.retry_delay_ms", 1000)

	// Sync
	v.SetDefault("sync.user_window_days", 30)
	v.SetDefault("sync.repo_created_window_days", 7)
	v.SetDefault("sync.pod_window_days", 365)
	v.SetDefault("sync.batch_cap", 10)
	v.SetDefault("sync.small_pod_threshold", 3)
	v.SetDefault("sync.small_pod_multiplier", 0.5)
	v.SetDefault("sync.weak_name_match", true)
	v.SetDefault("sync.poll_interval_min", 60)

	// Profile
	v.SetDefault("profile.active_window_days", 90)
	v.SetDefault("profile.max_repos", 10)
	v.SetDefault("profile.concurrency", 5)

	// Metrics
	v.SetDefault("metrics.listen_addr", "127.0.0.1:9464")
}

// expandEnv 展开环境变量占位符 ${VAR}
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

// ResolvePath 相对路径按工作目录解析为绝对路径
func ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
