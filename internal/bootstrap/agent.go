package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yuqie6/PodPulse/internal/observability"
	"github.com/yuqie6/PodPulse/internal/pkg/config"
	"github.com/yuqie6/PodPulse/internal/service"
)

// PollSummary 一轮轮询的汇总
type PollSummary struct {
	Users      int
	Pods       int
	Activities int
	Failures   int
}

// AgentRuntime 后台轮询：定时同步所有有效用户与有关联仓库的团队
// 所有同步都在轮询 goroutine 内串行执行
type AgentRuntime struct {
	*Core

	startedAt time.Time
	reload    chan *config.Config

	mu         sync.RWMutex
	lastSyncAt int64
	lastNote   string
}

// NewAgentRuntime 构建 Agent 运行时
func NewAgentRuntime(cfgPath string) (*AgentRuntime, error) {
	core, err := NewCore(cfgPath)
	if err != nil {
		return nil, err
	}
	return newAgentRuntime(core), nil
}

func newAgentRuntime(core *Core) *AgentRuntime {
	return &AgentRuntime{
		Core:      core,
		startedAt: time.Now(),
		reload:    make(chan *config.Config, 1),
	}
}

// ApplyConfig 由配置监听回调调用，下一轮轮询前生效
func (rt *AgentRuntime) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	select {
	case rt.reload <- cfg:
	default:
		// 未消费的旧配置直接替换
		select {
		case <-rt.reload:
		default:
		}
		rt.reload <- cfg
	}
}

// Run 阻塞轮询直到 ctx 结束；启动时先执行一轮
func (rt *AgentRuntime) Run(ctx context.Context) {
	if err := rt.DB.Writable(); err != nil {
		slog.Warn("数据库不可写，不启动后台同步", "error", err)
		<-ctx.Done()
		return
	}

	interval := rt.Cfg.Sync.PollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rt.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-rt.reload:
			rt.Cfg = cfg
			config.SetLogLevel(cfg.App.LogLevel)
			rt.Services.Sync.SetConfig(SyncConfigFrom(cfg))
			if next := cfg.Sync.PollInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
				slog.Info("轮询间隔已更新", "interval", interval)
			}
		case <-ticker.C:
			rt.RunOnce(ctx)
		}
	}
}

// RunOnce 同步一轮；单个用户或团队失败不影响其余
func (rt *AgentRuntime) RunOnce(ctx context.Context) PollSummary {
	var sum PollSummary

	users, err := rt.Repos.User.ListWithValidToken(ctx)
	if err != nil {
		slog.Error("查询待同步用户失败", "error", err)
		sum.Failures++
	}
	for _, u := range users {
		if ctx.Err() != nil {
			return sum
		}
		res, err := rt.Services.Sync.SyncUser(ctx, u.ID)
		sum.Users++
		if res != nil {
			sum.Activities += res.ActivitiesCreated
		}
		if err != nil {
			sum.Failures++
			slog.Warn("用户同步失败", "user", u.ID, "error", err)
		}
	}

	podIDs, err := rt.Repos.Pod.ListPodIDsWithRepos(ctx)
	if err != nil {
		slog.Error("查询待同步团队失败", "error", err)
		sum.Failures++
	}
	for _, podID := range podIDs {
		if ctx.Err() != nil {
			return sum
		}
		res, err := rt.Services.Sync.SyncPod(ctx, podID)
		sum.Pods++
		if res != nil {
			sum.Activities += res.ActivitiesCreated
		}
		if err != nil {
			sum.Failures++
			if !errors.Is(err, service.ErrNoPodToken) {
				slog.Warn("团队同步失败", "pod", podID, "error", err)
			}
		}
	}

	rt.mu.Lock()
	rt.lastSyncAt = time.Now().UnixMilli()
	rt.lastNote = fmt.Sprintf("users=%d pods=%d activities=%d failures=%d", sum.Users, sum.Pods, sum.Activities, sum.Failures)
	rt.mu.Unlock()

	slog.Info("轮询完成", "users", sum.Users, "pods", sum.Pods, "activities", sum.Activities, "failures", sum.Failures)
	return sum
}

// Status 健康状态
func (rt *AgentRuntime) Status(ctx context.Context) (*observability.Status, error) {
	rt.mu.RLock()
	last, note := rt.lastSyncAt, rt.lastNote
	rt.mu.RUnlock()
	return observability.BuildStatus(ctx, rt.Core, rt.startedAt, last, note)
}
