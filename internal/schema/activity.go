package schema

import "time"

// 活动类型
const (
	ActivityCommit        = "commit"
	ActivityPROpened      = "pr_opened"
	ActivityPRMerged      = "pr_merged"
	ActivityRepoCreated   = "repo_created"
	ActivityIssueOpened   = "issue_opened"
	ActivityIssueClosed   = "issue_closed"
	ActivityReviewComment = "review_comment"
)

// Meta 常用键
const (
	MetaSHA          = "sha"
	MetaRepoFullName = "repoFullName"
	MetaPRURL        = "prUrl"
	MetaIssueURL     = "issueUrl"
	MetaCommentID    = "commentId"
	MetaCreatedAt    = "createdAt"
	MetaMessage      = "message"
	MetaTitle        = "title"
	MetaRepo         = "repo"
	MetaNumber       = "number"
	MetaAdditions    = "additions"
	MetaDeletions    = "deletions"
	MetaChangedFiles = "changedFiles"
)

// naturalKeyFields 每种类型的自然键字段
var naturalKeyFields = map[string]string{
	ActivityCommit:        MetaSHA,
	ActivityRepoCreated:   MetaRepoFullName,
	ActivityPROpened:      MetaPRURL,
	ActivityPRMerged:      MetaPRURL,
	ActivityIssueOpened:   MetaIssueURL,
	ActivityIssueClosed:   MetaIssueURL,
	ActivityReviewComment: MetaCommentID,
}

// NaturalKey 计算活动的自然键；ok=false 表示该类型无法去重
func NaturalKey(activityType string, meta JSONMap) (key string, ok bool) {
	field, ok := naturalKeyFields[activityType]
	if !ok {
		return "", false
	}
	key = GetString(meta, field)
	if key == "" {
		return "", false
	}
	return key, true
}

// Activity 一条经过评分与去重的外部贡献记录
// (user_id, type, natural_key) 唯一：同一贡献无论同步多少次只记账一次。
// 无自然键的类型写入随机代理键，唯一索引不会误伤。
type Activity struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     string    `gorm:"size:64;not null;index;uniqueIndex:uniq_activity_key,priority:1" json:"user_id"`
	PodID      string    `gorm:"size:64;index" json:"pod_id,omitempty"`
	Type       string    `gorm:"size:32;not null;index;uniqueIndex:uniq_activity_key,priority:2" json:"type"`
	NaturalKey string    `gorm:"size:500;not null;uniqueIndex:uniq_activity_key,priority:3" json:"natural_key"`
	Value      int       `gorm:"not null;default:0" json:"value"`
	Meta       JSONMap   `gorm:"type:text" json:"meta"`
	CreatedAt  time.Time `gorm:"index;not null" json:"created_at"` // 源事件时间，而非入库时间
	RecordedAt time.Time `gorm:"autoCreateTime" json:"recorded_at"`
}

// TableName 指定表名
func (Activity) TableName() string {
	return "activities"
}

// EventTime 源事件时间：优先 meta.createdAt，缺失则回退到 fallback
func EventTime(meta JSONMap, fallback time.Time) time.Time {
	if t := GetTime(meta, MetaCreatedAt); !t.IsZero() {
		return t.UTC()
	}
	return fallback.UTC()
}
