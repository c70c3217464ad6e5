package service

import (
	"fmt"
	"strings"

	"github.com/yuqie6/PodPulse/internal/schema"
)

const reasonMaxRunes = 80

// truncateRunes 按 rune 数量截断字符串，超长时加省略号
func truncateRunes(s string, max int) string {
	if max <= 0 || s == "" {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// firstLine 提交信息只取首行
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// activityReason 成就流里活动的展示文案
func activityReason(activityType string, meta schema.JSONMap) string {
	repo := schema.GetString(meta, schema.MetaRepo)
	title := schema.GetString(meta, schema.MetaTitle)
	var reason string
	switch activityType {
	case schema.ActivityCommit:
		reason = fmt.Sprintf("提交 %s: %s", repo, firstLine(schema.GetString(meta, schema.MetaMessage)))
	case schema.ActivityPROpened:
		reason = fmt.Sprintf("发起 PR %s#%d %s", repo, schema.GetInt(meta, schema.MetaNumber), title)
	case schema.ActivityPRMerged:
		reason = fmt.Sprintf("合并 PR %s#%d %s", repo, schema.GetInt(meta, schema.MetaNumber), title)
	case schema.ActivityRepoCreated:
		reason = "创建仓库 " + schema.GetString(meta, schema.MetaRepoFullName)
	case schema.ActivityIssueOpened:
		reason = fmt.Sprintf("提出 Issue %s#%d %s", repo, schema.GetInt(meta, schema.MetaNumber), title)
	case schema.ActivityIssueClosed:
		reason = fmt.Sprintf("关闭 Issue %s#%d %s", repo, schema.GetInt(meta, schema.MetaNumber), title)
	case schema.ActivityReviewComment:
		reason = "评审评论 " + repo
	default:
		reason = activityType
	}
	return truncateRunes(strings.TrimSpace(reason), reasonMaxRunes)
}
