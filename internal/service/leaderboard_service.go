package service

import (
	"context"
	"sort"
	"time"
)

// 排行与成就流参数
const (
	pointsPerLevel        = 500
	achievementRewards    = 10
	achievementActivities = 20
	achievementFeedSize   = 15
)

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	UserID           string  `json:"user_id"`
	Name             string  `json:"name"`
	GithubUsername   string  `json:"github_username"`
	RewardPoints     int     `json:"reward_points"`
	ActivityPoints   int     `json:"activity_points"`
	TotalPoints      int     `json:"total_points"`
	Level            int     `json:"level"`
	ReliabilityScore float64 `json:"reliability_score"`
}

// Achievement 成就流条目（奖励与活动统一形状）
type Achievement struct {
	UserID string    `json:"user"`
	Badge  string    `json:"badge"`
	Points int       `json:"points"`
	Reason string    `json:"reason"`
	Time   time.Time `json:"time"`
	Type   string    `json:"type"`
}

// LevelFor 等级 = floor(points/500)+1
func LevelFor(points int) int {
	if points < 0 {
		points = 0
	}
	return points/pointsPerLevel + 1
}

// RankEntries 按总分降序，同分保持输入顺序
func RankEntries(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalPoints > entries[j].TotalPoints
	})
}

// LeaderboardService 排行榜与成就流（读时聚合）
type LeaderboardService struct {
	pods       PodRepository
	users      UserRepository
	activities ActivityRepository
	rewards    RewardRepository
}

// NewLeaderboardService 创建聚合视图服务
func NewLeaderboardService(pods PodRepository, users UserRepository, activities ActivityRepository, rewards RewardRepository) *LeaderboardService {
	return &LeaderboardService{pods: pods, users: users, activities: activities, rewards: rewards}
}

func (s *LeaderboardService) memberIDs(ctx context.Context, podID string) ([]string, error) {
	pod, err := s.pods.GetByID(ctx, podID)
	if err != nil {
		return nil, err
	}
	if pod == nil {
		return nil, ErrPodNotFound
	}
	members, err := s.pods.ListMembers(ctx, podID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return uniqueStrings(ids), nil
}

// Leaderboard 总分 = 全局奖励积分 + 本团队活动分
func (s *LeaderboardService) Leaderboard(ctx context.Context, podID string) ([]LeaderboardEntry, error) {
	ids, err := s.memberIDs(ctx, podID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []LeaderboardEntry{}, nil
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	rewardPoints, err := s.rewards.SumPointsByUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	activityPoints, err := s.activities.SumValueByPod(ctx, podID, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(ids))
	for _, id := range ids {
		u := users[id]
		total := rewardPoints[id] + activityPoints[id]
		entries = append(entries, LeaderboardEntry{
			UserID:           id,
			Name:             u.Name,
			GithubUsername:   u.GithubUsername,
			RewardPoints:     rewardPoints[id],
			ActivityPoints:   activityPoints[id],
			TotalPoints:      total,
			Level:            LevelFor(total),
			ReliabilityScore: u.ReliabilityScore,
		})
	}
	RankEntries(entries)
	return entries, nil
}

// Achievements 最近 10 条有效奖励与 20 条正分活动合并，按时间倒序取 15 条
func (s *LeaderboardService) Achievements(ctx context.Context, podID string) ([]Achievement, error) {
	ids, err := s.memberIDs(ctx, podID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Achievement{}, nil
	}

	rewards, err := s.rewards.RecentQualifying(ctx, ids, achievementRewards)
	if err != nil {
		return nil, err
	}
	acts, err := s.activities.RecentPositiveByUsers(ctx, ids, achievementActivities)
	if err != nil {
		return nil, err
	}

	feed := make([]Achievement, 0, len(rewards)+len(acts))
	for _, r := range rewards {
		badge := ""
		if len(r.Badges) > 0 {
			badge = r.Badges[0]
		}
		feed = append(feed, Achievement{
			UserID: r.UserID,
			Badge:  badge,
			Points: r.Points,
			Reason: r.Reason,
			Time:   r.CreatedAt,
			Type:   "reward",
		})
	}
	for _, a := range acts {
		badge := BadgeForType(a.Type)
		if badge == "" {
			badge = a.Type
		}
		feed = append(feed, Achievement{
			UserID: a.UserID,
			Badge:  badge,
			Points: a.Value,
			Reason: activityReason(a.Type, a.Meta),
			Time:   a.CreatedAt,
			Type:   a.Type,
		})
	}

	sort.SliceStable(feed, func(i, j int) bool { return feed[i].Time.After(feed[j].Time) })
	if len(feed) > achievementFeedSize {
		feed = feed[:achievementFeedSize]
	}
	return feed, nil
}
