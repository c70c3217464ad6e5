package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"github.com/yuqie6/PodPulse/internal/eventbus"
	"github.com/yuqie6/PodPulse/internal/repository"
	"github.com/yuqie6/PodPulse/internal/schema"
)

const (
	roadmapWindowDays = 7
	roadmapTopN       = 3
)

// roadmapTracked 路线图统计的活动类型（固定顺序）
var roadmapTracked = []string{
	schema.ActivityCommit,
	schema.ActivityPROpened,
	schema.ActivityPRMerged,
	schema.ActivityIssueClosed,
	schema.ActivityReviewComment,
}

var roadmapTmpl = template.Must(template.New("roadmap").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`# {{.PodName}} 路线图
生成时间: {{.GeneratedAt}}

## 近 {{.WindowDays}} 天动态
{{- range .Counts}}
- {{.Type}}: {{.Count}}
{{- end}}

## 主力贡献者
{{- if .Top}}
{{- range $i, $e := .Top}}
{{inc $i}}. {{$e.Name}} {{$e.TotalPoints}} 分 (Lv.{{$e.Level}})
{{- end}}
{{- else}}
暂无贡献记录
{{- end}}

## 建议
{{- range .Suggestions}}
- {{.}}
{{- end}}
`))

type roadmapCount struct {
	Type  string
	Count int64
}

type roadmapView struct {
	PodName     string
	GeneratedAt string
	WindowDays  int
	Counts      []roadmapCount
	Top         []LeaderboardEntry
	Suggestions []string
}

// RoadmapService 团队路线图：缓存模板生成的文本，任务完成后失效
type RoadmapService struct {
	roadmaps    RoadmapRepository
	pods        PodRepository
	activities  ActivityRepository
	leaderboard *LeaderboardService
	pub         Publisher
	now         func() time.Time
}

// NewRoadmapService 创建路线图服务
func NewRoadmapService(roadmaps RoadmapRepository, pods PodRepository, activities ActivityRepository, leaderboard *LeaderboardService, pub Publisher) *RoadmapService {
	return &RoadmapService{
		roadmaps:    roadmaps,
		pods:        pods,
		activities:  activities,
		leaderboard: leaderboard,
		pub:         pub,
		now:         time.Now,
	}
}

// Get 返回缓存；缺失或已失效时重新生成
func (s *RoadmapService) Get(ctx context.Context, podID string) (*schema.PodRoadmap, error) {
	cached, err := s.roadmaps.Get(ctx, podID)
	if err != nil {
		return nil, err
	}
	if cached != nil && !cached.Stale {
		return cached, nil
	}
	return s.Regenerate(ctx, podID)
}

// Regenerate 强制重新生成并写入缓存
func (s *RoadmapService) Regenerate(ctx context.Context, podID string) (*schema.PodRoadmap, error) {
	pod, err := s.pods.GetByID(ctx, podID)
	if err != nil {
		return nil, err
	}
	if pod == nil {
		return nil, ErrPodNotFound
	}

	now := s.now()
	since := repository.SinceDays(now, roadmapWindowDays)
	view := roadmapView{
		PodName:     pod.Name,
		GeneratedAt: now.Format("2006-01-02 15:04"),
		WindowDays:  roadmapWindowDays,
	}
	counts := make(map[string]int64, len(roadmapTracked))
	for _, typ := range roadmapTracked {
		n, err := s.activities.CountByPodTypeSince(ctx, podID, typ, since)
		if err != nil {
			return nil, err
		}
		counts[typ] = n
		view.Counts = append(view.Counts, roadmapCount{Type: typ, Count: n})
	}

	board, err := s.leaderboard.Leaderboard(ctx, podID)
	if err != nil {
		return nil, err
	}
	for _, e := range board {
		if len(view.Top) >= roadmapTopN || e.TotalPoints <= 0 {
			break
		}
		view.Top = append(view.Top, e)
	}
	accepted, err := s.pods.CountAccepted(ctx, podID)
	if err != nil {
		return nil, err
	}
	view.Suggestions = roadmapSuggestions(counts, int(accepted))

	content, err := renderRoadmap(view)
	if err != nil {
		return nil, err
	}
	rm := &schema.PodRoadmap{PodID: podID, Content: content, Stale: false, GeneratedAt: now}
	if err := s.roadmaps.Upsert(ctx, rm); err != nil {
		return nil, err
	}
	slog.Info("路线图已生成", "pod", podID, "members", len(board))
	return rm, nil
}

// Invalidate 标记缓存失效，下次查看时重新生成
func (s *RoadmapService) Invalidate(ctx context.Context, podID string) error {
	changed, err := s.roadmaps.Invalidate(ctx, podID)
	if err != nil {
		return err
	}
	if changed && s.pub != nil {
		s.pub.Publish(eventbus.Event{Type: eventbus.TypeRoadmapInvalidated, Data: map[string]any{"pod_id": podID}})
	}
	return nil
}

func renderRoadmap(view roadmapView) (string, error) {
	var buf bytes.Buffer
	if err := roadmapTmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("渲染路线图失败: %w", err)
	}
	return buf.String(), nil
}

// roadmapSuggestions 按近期活动分布给出固定建议
func roadmapSuggestions(counts map[string]int64, members int) []string {
	var out []string
	if counts[schema.ActivityCommit] == 0 {
		out = append(out, "本周没有提交，先拆出一个最小可交付的任务")
	}
	if counts[schema.ActivityPROpened] > 0 && counts[schema.ActivityPRMerged] == 0 {
		out = append(out, "有 PR 尚未合并，优先安排评审")
	}
	if counts[schema.ActivityReviewComment] == 0 && counts[schema.ActivityPROpened] > 0 {
		out = append(out, "PR 缺少评审评论，约定每个 PR 至少一位评审")
	}
	if members < 3 {
		out = append(out, "团队不足 3 人，积分按半数计算，邀请更多成员加入")
	}
	if len(out) == 0 {
		out = append(out, "节奏良好，保持当前迭代")
	}
	return out
}
