package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/yuqie6/PodPulse/internal/schema"
)

// DefaultBatchCap 单次同步内每个 (用户, 类型) 保留正分的条数上限
const DefaultBatchCap = 10

// surrogateKeyPrefix 无自然键类型的代理键前缀
const surrogateKeyPrefix = "auto:"

// Candidate 待入账的活动
type Candidate struct {
	UserID string
	PodID  string
	Type   string
	Meta   schema.JSONMap
}

// ActivityService 去重活动账本：自然键查重、时间自愈、评分入库
type ActivityService struct {
	repo    ActivityRepository
	policy  ScorePolicy
	metrics MetricsRecorder
	now     func() time.Time
}

// NewActivityService 创建活动服务；policy 为 nil 时使用默认评分
func NewActivityService(repo ActivityRepository, policy ScorePolicy, metrics MetricsRecorder) *ActivityService {
	if policy == nil {
		policy = DefaultScorePolicy{}
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &ActivityService{repo: repo, policy: policy, metrics: metrics, now: time.Now}
}

// Upsert 单条入账：已存在返回 nil（必要时修正时间），否则按 score*multiplier 写入
func (s *ActivityService) Upsert(ctx context.Context, userID, activityType string, meta schema.JSONMap, podID string, multiplier float64) (*schema.Activity, error) {
	c := Candidate{UserID: userID, PodID: podID, Type: activityType, Meta: meta}
	key, dup, err := s.resolve(ctx, c)
	if err != nil || dup {
		return nil, err
	}
	a := s.build(c, key, ApplyMultiplier(s.policy.Score(activityType, meta), multiplier))
	return s.insert(ctx, a)
}

// Recorded 候选是否已入账（顺带自愈时间），用于跳过昂贵的补充查询
func (s *ActivityService) Recorded(ctx context.Context, c Candidate) (bool, error) {
	_, dup, err := s.resolve(ctx, c)
	return dup, err
}

// resolve 计算自然键并查重；dup=true 表示已入账过
func (s *ActivityService) resolve(ctx context.Context, c Candidate) (key string, dup bool, err error) {
	key, ok := schema.NaturalKey(c.Type, c.Meta)
	if !ok {
		return surrogateKeyPrefix + uuid.NewString(), false, nil
	}

	existing, err := s.repo.FindByNaturalKey(ctx, c.UserID, c.Type, key)
	if err != nil {
		return "", false, err
	}
	if existing == nil {
		return key, false, nil
	}
	if err := s.heal(ctx, existing, c.Meta); err != nil {
		return "", true, err
	}
	return key, true, nil
}

// heal 已存在记录的时间与源事件时间不一致时只修正 created_at
// meta 未带源时间时不修正，否则每次同步都会把时间拖到入库时刻
func (s *ActivityService) heal(ctx context.Context, existing *schema.Activity, meta schema.JSONMap) error {
	src := schema.GetTime(meta, schema.MetaCreatedAt)
	if src.IsZero() || existing.CreatedAt.Unix() == src.Unix() {
		return nil
	}
	if err := s.repo.UpdateCreatedAt(ctx, existing.ID, src); err != nil {
		return err
	}
	slog.Debug("活动时间已自愈", "id", existing.ID, "type", existing.Type, "from", existing.CreatedAt, "to", src.UTC())
	return nil
}

func (s *ActivityService) build(c Candidate, key string, value int) *schema.Activity {
	return &schema.Activity{
		UserID:     c.UserID,
		PodID:      c.PodID,
		Type:       c.Type,
		NaturalKey: key,
		Value:      value,
		Meta:       c.Meta,
		CreatedAt:  schema.EventTime(c.Meta, s.now()),
	}
}

// insert 写入；唯一索引冲突说明并发同步已写过，按重复处理
func (s *ActivityService) insert(ctx context.Context, a *schema.Activity) (*schema.Activity, error) {
	created, err := s.repo.Create(ctx, a)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	s.metrics.ActivityCreated(a.Type)
	return a, nil
}

// Batch 一次同步的两阶段入账：先收集候选并计算原始分，按上限分配最终分值，再统一落库
type Batch struct {
	svc        *ActivityService
	limit      int
	multiplier float64

	pending []*schema.Activity
	seen    map[string]struct{}
	slots   map[string]int
}

// NewBatch 创建批次；limit<=0 表示不限
func (s *ActivityService) NewBatch(limit int, multiplier float64) *Batch {
	return &Batch{
		svc:        s,
		limit:      limit,
		multiplier: multiplier,
		seen:       make(map[string]struct{}),
		slots:      make(map[string]int),
	}
}

// Add 收集一条候选；库中或本批次内已存在的直接跳过
func (b *Batch) Add(ctx context.Context, c Candidate) error {
	key, dup, err := b.svc.resolve(ctx, c)
	if err != nil {
		return fmt.Errorf("活动查重失败: %w", err)
	}
	if dup {
		return nil
	}
	seenKey := c.UserID + "|" + c.Type + "|" + key
	if _, ok := b.seen[seenKey]; ok {
		return nil
	}
	b.seen[seenKey] = struct{}{}

	raw := b.svc.policy.Score(c.Type, c.Meta)
	value := ApplyMultiplier(raw, b.multiplier)
	if raw > 0 && b.limit > 0 {
		slot := c.UserID + "|" + c.Type
		b.slots[slot]++
		if b.slots[slot] > b.limit {
			value = 0
		}
	}
	b.pending = append(b.pending, b.svc.build(c, key, value))
	return nil
}

// Len 待落库条数
func (b *Batch) Len() int {
	return len(b.pending)
}

// Flush 落库并返回新写入的活动；出错时返回已写入部分
func (b *Batch) Flush(ctx context.Context) ([]schema.Activity, error) {
	pending := b.pending
	b.pending = nil

	out := make([]schema.Activity, 0, len(pending))
	for _, a := range pending {
		created, err := b.svc.insert(ctx, a)
		if err != nil {
			return out, fmt.Errorf("活动入库失败: %w", err)
		}
		if created != nil {
			out = append(out, *created)
		}
	}
	return out, nil
}
