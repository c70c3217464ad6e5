package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watch 监听配置文件变化，重新解析成功后回调；回调串行执行
// 返回当前配置
func Watch(configPath string, onChange func(*Config)) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}

	var mu sync.Mutex
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			slog.Warn("配置重新加载失败，沿用旧配置", "path", e.Name, "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		slog.Info("配置已重新加载", "path", e.Name)
		onChange(next)
	})
	v.WatchConfig()
	return cfg, nil
}
