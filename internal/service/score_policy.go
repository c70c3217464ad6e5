package service

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuqie6/PodPulse/internal/schema"
)

// ScorePolicy 活动评分策略（可替换）
type ScorePolicy interface {
	Score(activityType string, meta schema.JSONMap) int
}

// DefaultScorePolicy 默认策略：提交按信息分级，合并 PR 按变更规模，其余查表
type DefaultScorePolicy struct{}

// 固定分值
var fixedScores = map[string]int{
	schema.ActivityRepoCreated:   50,
	schema.ActivityPROpened:      20,
	schema.ActivityIssueOpened:   5,
	schema.ActivityIssueClosed:   25,
	schema.ActivityReviewComment: 15,
}

const unknownTypeScore = 5

// 提交信息过短或命中停用词视为刷量，记 0 分
var commitStoplist = map[string]struct{}{
	"fix": {}, "update": {}, "temp": {}, "rev": {}, "patch": {}, "done": {},
	"test": {}, "commit": {}, "changes": {}, ".": {}, "!": {},
}

var (
	lowImpactCommit  = regexp.MustCompile(`docs|typo|readme|format|cleanup|style|chore|comment|lint`)
	highImpactCommit = regexp.MustCompile(`feat|fix |implement|refactor|core|breaking|logic|security|auth|api|database`)
)

const (
	minCommitMessageLen = 5

	commitLowScore     = 1
	commitDefaultScore = 3
	commitHighScore    = 8

	trivialPRLines = 10
	trivialPRFiles = 2
	trivialPRScore = 30
	mergedPRScore  = 150
)

// Score 计算未乘系数的原始分
func (DefaultScorePolicy) Score(activityType string, meta schema.JSONMap) int {
	switch activityType {
	case schema.ActivityCommit:
		return ScoreCommit(schema.GetString(meta, schema.MetaMessage))
	case schema.ActivityPRMerged:
		return ScoreMergedPR(
			schema.GetInt(meta, schema.MetaAdditions),
			schema.GetInt(meta, schema.MetaDeletions),
			schema.GetInt(meta, schema.MetaChangedFiles),
		)
	}
	if v, ok := fixedScores[activityType]; ok {
		return v
	}
	return unknownTypeScore
}

// ScoreCommit 提交评分；低影响规则优先于高影响
func ScoreCommit(message string) int {
	msg := strings.ToLower(strings.TrimSpace(message))
	if utf8.RuneCountInString(msg) < minCommitMessageLen {
		return 0
	}
	if _, ok := commitStoplist[msg]; ok {
		return 0
	}
	switch {
	case lowImpactCommit.MatchString(msg):
		return commitLowScore
	case highImpactCommit.MatchString(msg):
		return commitHighScore
	default:
		return commitDefaultScore
	}
}

// ScoreMergedPR 合并 PR 评分；极小的合并只拿保底分
func ScoreMergedPR(additions, deletions, changedFiles int) int {
	if additions+deletions < trivialPRLines && changedFiles < trivialPRFiles {
		return trivialPRScore
	}
	return mergedPRScore
}

// ApplyMultiplier 乘系数后向下取整；原始分为正时结果至少为 1
func ApplyMultiplier(raw int, multiplier float64) int {
	if raw <= 0 {
		return 0
	}
	v := int(math.Floor(float64(raw) * multiplier))
	if v < 1 {
		return 1
	}
	return v
}

// PodMultiplier 小团队（已接受成员数低于阈值）使用惩罚系数
func PodMultiplier(acceptedMembers, threshold int, smallPodMultiplier float64) float64 {
	if acceptedMembers < threshold {
		return smallPodMultiplier
	}
	return 1.0
}
