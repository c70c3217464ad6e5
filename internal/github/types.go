package github

import (
	"context"
	"time"
)

// AuthUser 当前 token 对应的用户
type AuthUser struct {
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Repo 仓库
type Repo struct {
	ID       int64
	Name     string
	FullName string
	Owner    string
	Private  bool
	Fork     bool
	Language string
	HTMLURL  string
	Created  time.Time
	Pushed   time.Time
}

// Commit 提交；AuthorLogin 只有在邮箱关联了 GitHub 账号时才有值
type Commit struct {
	SHA         string
	Message     string
	AuthorLogin string
	AuthorName  string
	AuthorEmail string
	HTMLURL     string
	Date        time.Time
}

// PullRequest PR
type PullRequest struct {
	Number      int
	Title       string
	HTMLURL     string
	State       string
	AuthorLogin string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	MergedAt    *time.Time
}

// Issue 已关闭的 Issue
type Issue struct {
	Number      int
	Title       string
	HTMLURL     string
	AuthorLogin string
	Assignees   []string
	CreatedAt   time.Time
	ClosedAt    *time.Time
}

// ReviewComment PR 评审评论
type ReviewComment struct {
	ID          int64
	AuthorLogin string
	Body        string
	HTMLURL     string
	PRURL       string
	CreatedAt   time.Time
}

// DiffStats PR 的变更统计
type DiffStats struct {
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	ChangedFiles int `json:"changed_files"`
}

// TotalLines 变更行数
func (d DiffStats) TotalLines() int {
	return d.Additions + d.Deletions
}

// API 同步编排依赖的最小接口
type API interface {
	GetAuthenticatedUser(ctx context.Context, token string) (*AuthUser, error)
	ListRepositories(ctx context.Context, token string) ([]Repo, error)
	ListCommits(ctx context.Context, token, owner, repo string, since time.Time) ([]Commit, error)
	ListPullRequests(ctx context.Context, token, owner, repo string, since time.Time) ([]PullRequest, error)
	ListClosedIssues(ctx context.Context, token, owner, repo string, since time.Time) ([]Issue, error)
	ListReviewComments(ctx context.Context, token, owner, repo string, since time.Time) ([]ReviewComment, error)
	GetPullRequestDiffStats(ctx context.Context, token, owner, repo string, number int) (*DiffStats, error)
	ListLanguages(ctx context.Context, token, owner, repo string) (map[string]int64, error)
}

var _ API = (*Client)(nil)
