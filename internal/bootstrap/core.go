package bootstrap

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/yuqie6/PodPulse/internal/eventbus"
	"github.com/yuqie6/PodPulse/internal/github"
	"github.com/yuqie6/PodPulse/internal/observability"
	"github.com/yuqie6/PodPulse/internal/pkg/config"
	"github.com/yuqie6/PodPulse/internal/repository"
	"github.com/yuqie6/PodPulse/internal/service"
)

// Core 持有跨二进制共享的核心依赖
type Core struct {
	Cfg       *config.Config
	DB        *repository.Database
	LogCloser io.Closer
	Hub       *eventbus.Hub
	Metrics   *observability.Metrics
	GitHub    github.API

	Repos struct {
		Activity *repository.ActivityRepository
		Reward   *repository.RewardRepository
		User     *repository.UserRepository
		Pod      *repository.PodRepository
		Roadmap  *repository.RoadmapRepository
	}

	Services struct {
		Activities  *service.ActivityService
		Sync        *service.SyncService
		Reputation  *service.ReputationService
		Leaderboard *service.LeaderboardService
		Profile     *service.ProfileService
		Roadmap     *service.RoadmapService
	}
}

// NewCore 加载配置、初始化日志与数据库并装配服务
func NewCore(cfgPath string) (*Core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logCloser, err := config.SetupLogger(config.LoggerOptions{
		Level:     cfg.App.LogLevel,
		Path:      cfg.App.LogPath,
		Component: filepath.Base(os.Args[0]),
	})
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}

	c := Assemble(cfg, db, nil)
	c.LogCloser = logCloser
	return c, nil
}

// Assemble 用现成的数据库装配服务；gh 为空时按配置创建 GitHub 客户端
func Assemble(cfg *config.Config, db *repository.Database, gh github.API) *Core {
	if gh == nil {
		gh = github.NewClient(github.Config{
			BaseURL:     cfg.GitHub.BaseURL,
			HTTPTimeout: cfg.GitHub.HTTPTimeout(),
			MaxRetries:  cfg.GitHub.MaxRetries,
			RetryDelay:  cfg.GitHub.RetryDelay(),
		})
	}

	c := &Core{
		Cfg:     cfg,
		DB:      db,
		Hub:     eventbus.NewHub(),
		Metrics: observability.NewMetrics(),
		GitHub:  gh,
	}

	// Repos
	c.Repos.Activity = repository.NewActivityRepository(db.DB)
	c.Repos.Reward = repository.NewRewardRepository(db.DB)
	c.Repos.User = repository.NewUserRepository(db.DB)
	c.Repos.Pod = repository.NewPodRepository(db.DB)
	c.Repos.Roadmap = repository.NewRoadmapRepository(db.DB)

	// Services
	c.Services.Activities = service.NewActivityService(c.Repos.Activity, service.DefaultScorePolicy{}, c.Metrics)
	c.Services.Sync = service.NewSyncService(service.SyncDeps{
		GitHub:     gh,
		Activities: c.Services.Activities,
		Users:      c.Repos.User,
		Pods:       c.Repos.Pod,
		Rewards:    c.Repos.Reward,
		Publisher:  c.Hub,
		Metrics:    c.Metrics,
	}, SyncConfigFrom(cfg))
	c.Services.Leaderboard = service.NewLeaderboardService(c.Repos.Pod, c.Repos.User, c.Repos.Activity, c.Repos.Reward)
	c.Services.Roadmap = service.NewRoadmapService(c.Repos.Roadmap, c.Repos.Pod, c.Repos.Activity, c.Services.Leaderboard, c.Hub)
	c.Services.Reputation = service.NewReputationService(c.Repos.User, c.Services.Roadmap, c.Hub, c.Metrics)
	c.Services.Profile = service.NewProfileService(gh, c.Repos.User, service.ProfileConfig{
		ActiveWindowDays: cfg.Profile.ActiveWindowDays,
		MaxRepos:         cfg.Profile.MaxRepos,
		Concurrency:      cfg.Profile.Concurrency,
	})
	return c
}

// SyncConfigFrom 配置文件 → 同步参数
func SyncConfigFrom(cfg *config.Config) service.SyncConfig {
	return service.SyncConfig{
		UserWindowDays:        cfg.Sync.UserWindowDays,
		RepoCreatedWindowDays: cfg.Sync.RepoCreatedWindowDays,
		PodWindowDays:         cfg.Sync.PodWindowDays,
		BatchCap:              cfg.Sync.BatchCap,
		SmallPodThreshold:     cfg.Sync.SmallPodThreshold,
		SmallPodMultiplier:    cfg.Sync.SmallPodMultiplier,
		WeakNameMatch:         cfg.Sync.WeakNameMatch,
	}
}

// CountUsers 实现 observability.StatusSource
func (c *Core) CountUsers(ctx context.Context) (int64, error) {
	return c.Repos.User.Count(ctx)
}

// CountActivities 实现 observability.StatusSource
func (c *Core) CountActivities(ctx context.Context) (int64, error) {
	return c.Repos.Activity.Count(ctx)
}

// CountLinkedRepos 实现 observability.StatusSource
func (c *Core) CountLinkedRepos(ctx context.Context) (int64, error) {
	return c.Repos.Pod.CountRepos(ctx)
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	var dbErr error
	if c.DB != nil {
		dbErr = c.DB.Close()
	}
	if c.LogCloser != nil {
		_ = c.LogCloser.Close()
	}
	return dbErr
}
