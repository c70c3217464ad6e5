package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// DefaultConfigPath 默认配置文件路径 ./config/config.yaml
func DefaultConfigPath() string {
	return filepath.Join("config", "config.yaml")
}

// WriteFile 把配置写回 yaml（CLI 的 config init 使用）
func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("cfg 不能为空")
	}
	if path == "" {
		return fmt.Errorf("path 不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	payload := map[string]any{
		"app": map[string]any{
			"name":      cfg.App.Name,
			"version":   cfg.App.Version,
			"log_level": cfg.App.LogLevel,
			"log_path":  cfg.App.LogPath,
		},
		"storage": map[string]any{
			"db_path": cfg.Storage.DBPath,
		},
		"github": map[string]any{
			"base_url":         cfg.GitHub.BaseURL,
			"http_timeout_sec": cfg.GitHub.HTTPTimeoutSec,
			"max_retries":      cfg.GitHub.MaxRetries,
			"retry_delay_ms":   cfg.GitHub.RetryDelayMs,
		},
		"sync": map[string]any{
			"user_window_days":         cfg.Sync.UserWindowDays,
			"repo_created_window_days": cfg.Sync.RepoCreatedWindowDays,
			"pod_window_days":          cfg.Sync.PodWindowDays,
			"batch_cap":                cfg.Sync.BatchCap,
			"small_pod_threshold":      cfg.Sync.SmallPodThreshold,
			"small_pod_multiplier":     cfg.Sync.SmallPodMultiplier,
			"weak_name_match":          cfg.Sync.WeakNameMatch,
			"poll_interval_min":        cfg.Sync.PollIntervalMin,
		},
		"profile": map[string]any{
			"active_window_days": cfg.Profile.ActiveWindowDays,
			"max_repos":          cfg.Profile.MaxRepos,
			"concurrency":        cfg.Profile.Concurrency,
		},
		"metrics": map[string]any{
			"listen_addr": cfg.Metrics.ListenAddr,
		},
	}

	b, err := yaml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
