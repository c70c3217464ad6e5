package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/yuqie6/PodPulse/internal/bootstrap"
	"github.com/yuqie6/PodPulse/internal/httpapi"
	"github.com/yuqie6/PodPulse/internal/pkg/buildinfo"
	"github.com/yuqie6/PodPulse/internal/pkg/config"
)

func main() {
	cfgPath := flag.String("config", config.DefaultConfigPath(), "配置文件路径")
	flag.Parse()

	if _, err := os.Stat(*cfgPath); errors.Is(err, os.ErrNotExist) {
		if err := config.WriteFile(*cfgPath, config.Default()); err != nil {
			slog.Warn("写入默认配置失败", "path", *cfgPath, "error", err)
		}
	}

	rt, err := bootstrap.NewAgentRuntime(*cfgPath)
	if err != nil {
		slog.Error("启动 Agent 失败", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	// 单实例：锁文件与数据库放在同一目录
	lock, err := bootstrap.AcquireLock(filepath.Join(filepath.Dir(rt.Cfg.Storage.DBPath), "agent.lock"))
	if err != nil {
		if errors.Is(err, bootstrap.ErrAlreadyRunning) {
			slog.Info("已有 Agent 在运行，退出")
			return
		}
		slog.Error("获取单实例锁失败", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := config.Watch(*cfgPath, rt.ApplyConfig); err != nil {
		slog.Warn("配置热加载不可用", "error", err)
	}

	slog.Info("PodPulse Agent 启动中...", "name", rt.Cfg.App.Name, "version", buildinfo.Version, "commit", buildinfo.Commit)

	var srv *httpapi.LocalServer
	if addr := rt.Cfg.Metrics.ListenAddr; addr != "" {
		srv, err = httpapi.Start(ctx, rt, rt.Metrics, rt.Hub, httpapi.Options{ListenAddr: addr})
		if err != nil {
			slog.Error("启动本地 HTTP 失败", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.Run(ctx)
	}()

	<-ctx.Done()
	slog.Info("收到系统退出信号，正在关闭...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}
	<-done
	slog.Info("PodPulse Agent 已退出")
}
