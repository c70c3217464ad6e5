package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/yuqie6/PodPulse/internal/eventbus"
	"github.com/yuqie6/PodPulse/internal/schema"
)

// 任务状态
const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
)

// 可靠度增减
const (
	latePenalty      = -5.0
	rescueBonus      = 2.0
	consistencyBonus = 0.5
	minReliability   = 0.0
	maxReliability   = 100.0
)

// TaskStatusChange 任务状态变化
type TaskStatusChange struct {
	TaskID             string
	PodID              string
	AssigneeID         string
	CompleterID        string
	OriginalAssigneeID string
	DueAt              *time.Time
	CompletedAt        time.Time
	PreviousStatus     string
	NewStatus          string
}

// IsCompletion 只有首次进入 done 才触发
func (e TaskStatusChange) IsCompletion() bool {
	return e.NewStatus == TaskStatusDone && e.PreviousStatus != TaskStatusDone
}

// completer 完成人，未给出时视为当前指派人
func (e TaskStatusChange) completer() string {
	if e.CompleterID != "" {
		return e.CompleterID
	}
	return e.AssigneeID
}

// Reputation 可靠度与协作计数器
type Reputation struct {
	Score    float64
	Dynamics schema.DynamicsMetrics
}

// CompletionOutcome 一次完成的判定
type CompletionOutcome struct {
	Late   bool
	Rescue bool
	Delta  float64
}

// Classify 判定迟交与救场
func Classify(e TaskStatusChange) CompletionOutcome {
	out := CompletionOutcome{
		Late:   e.DueAt != nil && e.CompletedAt.After(*e.DueAt),
		Rescue: e.OriginalAssigneeID != "" && e.completer() != "" && e.completer() != e.OriginalAssigneeID,
	}
	if out.Late {
		out.Delta += latePenalty
	}
	if out.Rescue {
		out.Delta += rescueBonus
	}
	if !out.Late && !out.Rescue {
		out.Delta = consistencyBonus
	}
	return out
}

// ApplyCompletion 纯函数：由当前信誉与一次完成计算新的信誉
func ApplyCompletion(current Reputation, e TaskStatusChange) (Reputation, CompletionOutcome) {
	outcome := Classify(e)
	next := current

	next.Dynamics.TotalCompleted++
	if outcome.Late {
		next.Dynamics.MissedDeadlines++
	}
	if outcome.Rescue {
		next.Dynamics.RescueCount++
	}
	total := next.Dynamics.TotalCompleted
	next.Dynamics.OnTimeRate = int(math.Round(float64(total-next.Dynamics.MissedDeadlines) / float64(total) * 100))

	next.Score = clamp(current.Score+outcome.Delta, minReliability, maxReliability)
	return next, outcome
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ReputationService 任务完成 → 更新完成人信誉 → 失效团队路线图
// 读改写同一用户记录，同一用户的并发完成可能丢失更新
type ReputationService struct {
	users    UserRepository
	roadmaps RoadmapInvalidator
	pub      Publisher
	metrics  MetricsRecorder
}

// RoadmapInvalidator 路线图失效
type RoadmapInvalidator interface {
	Invalidate(ctx context.Context, podID string) error
}

// NewReputationService 创建信誉服务
func NewReputationService(users UserRepository, roadmaps RoadmapInvalidator, pub Publisher, metrics MetricsRecorder) *ReputationService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &ReputationService{users: users, roadmaps: roadmaps, pub: pub, metrics: metrics}
}

// HandleStatusChange 处理状态变化；非首次完成返回 (nil, nil)
func (s *ReputationService) HandleStatusChange(ctx context.Context, e TaskStatusChange) (*Reputation, error) {
	if !e.IsCompletion() {
		s.metrics.ReputationUpdate("skipped")
		return nil, nil
	}
	if e.CompletedAt.IsZero() {
		e.CompletedAt = time.Now()
	}
	userID := e.completer()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.metrics.ReputationUpdate("failed")
		return nil, err
	}
	if user == nil {
		s.metrics.ReputationUpdate("failed")
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	next, outcome := ApplyCompletion(Reputation{Score: user.ReliabilityScore, Dynamics: user.Dynamics}, e)
	if err := s.users.UpdateReputation(ctx, userID, next.Score, next.Dynamics); err != nil {
		s.metrics.ReputationUpdate("failed")
		return nil, err
	}
	s.metrics.ReputationUpdate("updated")

	if e.PodID != "" && s.roadmaps != nil {
		if err := s.roadmaps.Invalidate(ctx, e.PodID); err != nil {
			slog.Warn("路线图失效失败", "pod", e.PodID, "error", err)
		}
	}

	slog.Info("信誉已更新", "user", userID, "task", e.TaskID, "late", outcome.Late, "rescue", outcome.Rescue,
		"score", next.Score, "on_time_rate", next.Dynamics.OnTimeRate)
	if s.pub != nil {
		s.pub.Publish(eventbus.Event{Type: eventbus.TypeReputationUpdated, Data: map[string]any{
			"user_id":           userID,
			"task_id":           e.TaskID,
			"pod_id":            e.PodID,
			"reliability_score": next.Score,
			"delta":             outcome.Delta,
		}})
	}
	return &next, nil
}
