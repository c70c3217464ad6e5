package service

import "github.com/yuqie6/PodPulse/internal/schema"

// 徽章
const (
	BadgeCommitter      = "committer"
	BadgePROpen         = "pr-open"
	BadgeSuperCommitter = "super-committer"
	BadgeFounder        = "founder"
	BadgeBugHunter      = "bug-hunter"
	BadgeReviewer       = "reviewer"
)

// reviewerBadgeMin 单批次评审评论达到该数量才发评审徽章
const reviewerBadgeMin = 5

// activityBadges 活动类型到徽章标签
var activityBadges = map[string]string{
	schema.ActivityCommit:      BadgeCommitter,
	schema.ActivityPROpened:    BadgePROpen,
	schema.ActivityPRMerged:    BadgeSuperCommitter,
	schema.ActivityRepoCreated: BadgeFounder,
	schema.ActivityIssueClosed: BadgeBugHunter,
}

// BadgeForType 单条活动的徽章标签，无对应徽章返回空
func BadgeForType(activityType string) string {
	return activityBadges[activityType]
}

// BadgesFor 一个批次获得的徽章（按首次出现顺序去重）
func BadgesFor(created []schema.Activity) schema.JSONArray {
	out := schema.JSONArray{}
	seen := make(map[string]struct{})
	reviews := 0
	for _, a := range created {
		if a.Type == schema.ActivityReviewComment {
			reviews++
			continue
		}
		b := BadgeForType(a.Type)
		if b == "" {
			continue
		}
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	if reviews >= reviewerBadgeMin {
		out = append(out, BadgeReviewer)
	}
	return out
}
