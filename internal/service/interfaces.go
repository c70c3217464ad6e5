package service

import (
	"context"
	"time"

	"github.com/yuqie6/PodPulse/internal/eventbus"
	"github.com/yuqie6/PodPulse/internal/schema"
)

// 仓储/外部依赖的最小接口集合（ISP）

type ActivityRepository interface {
	FindByNaturalKey(ctx context.Context, userID, activityType, key string) (*schema.Activity, error)
	Create(ctx context.Context, a *schema.Activity) (bool, error)
	UpdateCreatedAt(ctx context.Context, id int64, createdAt time.Time) error
	CountByPodTypeSince(ctx context.Context, podID, activityType string, since time.Time) (int64, error)
	SumValueByPod(ctx context.Context, podID string, userIDs []string) (map[string]int, error)
	RecentPositiveByUsers(ctx context.Context, userIDs []string, limit int) ([]schema.Activity, error)
}

type RewardRepository interface {
	Create(ctx context.Context, reward *schema.Reward) error
	SumPointsByUsers(ctx context.Context, userIDs []string) (map[string]int, error)
	RecentQualifying(ctx context.Context, userIDs []string, limit int) ([]schema.Reward, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*schema.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]schema.User, error)
	SetTokenValid(ctx context.Context, id string, valid bool) error
	SetGithubUsername(ctx context.Context, id, login string) error
	UpdateReputation(ctx context.Context, id string, score float64, dyn schema.DynamicsMetrics) error
}

type PodRepository interface {
	GetByID(ctx context.Context, id string) (*schema.Pod, error)
	ListMembers(ctx context.Context, podID string) ([]schema.PodMember, error)
	CountAccepted(ctx context.Context, podID string) (int64, error)
	ListRepos(ctx context.Context, podID string) ([]schema.PodRepo, error)
	TouchRepoSync(ctx context.Context, podID, owner, name string, ts int64) error
}

type RoadmapRepository interface {
	Get(ctx context.Context, podID string) (*schema.PodRoadmap, error)
	Upsert(ctx context.Context, rm *schema.PodRoadmap) error
	Invalidate(ctx context.Context, podID string) (bool, error)
}

// Publisher 事件广播（eventbus.Hub 实现）
type Publisher interface {
	Publish(evt eventbus.Event)
}

// MetricsRecorder 计数埋点（observability.Metrics 实现）
type MetricsRecorder interface {
	SyncRun(kind, outcome string)
	SyncError(kind string)
	ActivityCreated(activityType string)
	ReputationUpdate(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) SyncRun(string, string)  {}
func (nopMetrics) SyncError(string)        {}
func (nopMetrics) ActivityCreated(string)  {}
func (nopMetrics) ReputationUpdate(string) {}
