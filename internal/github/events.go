package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

type rawUser struct {
	Login string `json:"login"`
}

type rawCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *rawUser `json:"author"`
}

type rawPull struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	HTMLURL   string     `json:"html_url"`
	State     string     `json:"state"`
	User      rawUser    `json:"user"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	MergedAt  *time.Time `json:"merged_at"`
}

type rawIssue struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	HTMLURL     string     `json:"html_url"`
	User        rawUser    `json:"user"`
	Assignees   []rawUser  `json:"assignees"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at"`
	PullRequest *struct{}  `json:"pull_request"`
}

type rawReviewComment struct {
	ID             int64     `json:"id"`
	User           rawUser   `json:"user"`
	Body           string    `json:"body"`
	HTMLURL        string    `json:"html_url"`
	PullRequestURL string    `json:"pull_request_url"`
	CreatedAt      time.Time `json:"created_at"`
}

func repoPath(owner, repo, suffix string) string {
	return fmt.Sprintf("/repos/%s/%s%s", url.PathEscape(owner), url.PathEscape(repo), suffix)
}

// ListCommits 列出 since 之后的提交（最多 MaxCommitPages 页）。
// 空仓库返回 409，按空结果处理。
func (c *Client) ListCommits(ctx context.Context, token, owner, repo string, since time.Time) ([]Commit, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	var out []Commit
	err := paginate(ctx, c, token, repoPath(owner, repo, "/commits"), query, MaxCommitPages, func(page []rawCommit) bool {
		for _, rc := range page {
			cm := Commit{
				SHA:         rc.SHA,
				Message:     rc.Commit.Message,
				AuthorName:  rc.Commit.Author.Name,
				AuthorEmail: rc.Commit.Author.Email,
				HTMLURL:     rc.HTMLURL,
				Date:        rc.Commit.Author.Date,
			}
			if rc.Author != nil {
				cm.AuthorLogin = rc.Author.Login
			}
			out = append(out, cm)
		}
		return true
	})
	if err != nil {
		if IsStatus(err, http.StatusConflict) {
			slog.Debug("空仓库，跳过提交", "component", "github", "repo", owner+"/"+repo)
			return nil, nil
		}
		return nil, fmt.Errorf("列出 %s/%s 提交失败: %w", owner, repo, err)
	}
	return out, nil
}

// ListPullRequests 列出 since 之后有更新的 PR。
// 接口没有 since 过滤：按更新时间倒序拉取，整页过滤后若页内最旧一条已早于 since 就停止翻页。
func (c *Client) ListPullRequests(ctx context.Context, token, owner, repo string, since time.Time) ([]PullRequest, error) {
	query := url.Values{}
	query.Set("state", "all")
	query.Set("sort", "updated")
	query.Set("direction", "desc")

	var out []PullRequest
	err := paginate(ctx, c, token, repoPath(owner, repo, "/pulls"), query, MaxPRPages, func(page []rawPull) bool {
		var oldest time.Time
		for i, rp := range page {
			if i == 0 || rp.UpdatedAt.Before(oldest) {
				oldest = rp.UpdatedAt
			}
			if !since.IsZero() && rp.UpdatedAt.Before(since) {
				continue
			}
			out = append(out, PullRequest{
				Number:      rp.Number,
				Title:       rp.Title,
				HTMLURL:     rp.HTMLURL,
				State:       rp.State,
				AuthorLogin: rp.User.Login,
				CreatedAt:   rp.CreatedAt,
				UpdatedAt:   rp.UpdatedAt,
				MergedAt:    rp.MergedAt,
			})
		}
		return since.IsZero() || len(page) == 0 || !oldest.Before(since)
	})
	if err != nil {
		return nil, fmt.Errorf("列出 %s/%s PR 失败: %w", owner, repo, err)
	}
	return out, nil
}

// ListClosedIssues 列出 since 之后关闭的 Issue（排除 PR）
func (c *Client) ListClosedIssues(ctx context.Context, token, owner, repo string, since time.Time) ([]Issue, error) {
	query := url.Values{}
	query.Set("state", "closed")
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	var out []Issue
	err := paginate(ctx, c, token, repoPath(owner, repo, "/issues"), query, MaxIssuePages, func(page []rawIssue) bool {
		for _, ri := range page {
			if ri.PullRequest != nil || ri.ClosedAt == nil {
				continue
			}
			if !since.IsZero() && ri.ClosedAt.Before(since) {
				continue
			}
			assignees := make([]string, 0, len(ri.Assignees))
			for _, a := range ri.Assignees {
				assignees = append(assignees, a.Login)
			}
			out = append(out, Issue{
				Number:      ri.Number,
				Title:       ri.Title,
				HTMLURL:     ri.HTMLURL,
				AuthorLogin: ri.User.Login,
				Assignees:   assignees,
				CreatedAt:   ri.CreatedAt,
				ClosedAt:    ri.ClosedAt,
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("列出 %s/%s Issue 失败: %w", owner, repo, err)
	}
	return out, nil
}

// ListReviewComments 列出 since 之后的 PR 评审评论
func (c *Client) ListReviewComments(ctx context.Context, token, owner, repo string, since time.Time) ([]ReviewComment, error) {
	query := url.Values{}
	query.Set("sort", "created")
	query.Set("direction", "desc")
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	var out []ReviewComment
	err := paginate(ctx, c, token, repoPath(owner, repo, "/pulls/comments"), query, MaxReviewPages, func(page []rawReviewComment) bool {
		for _, rc := range page {
			if !since.IsZero() && rc.CreatedAt.Before(since) {
				continue
			}
			out = append(out, ReviewComment{
				ID:          rc.ID,
				AuthorLogin: rc.User.Login,
				Body:        rc.Body,
				HTMLURL:     rc.HTMLURL,
				PRURL:       rc.PullRequestURL,
				CreatedAt:   rc.CreatedAt,
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("列出 %s/%s 评审评论失败: %w", owner, repo, err)
	}
	return out, nil
}

// GetPullRequestDiffStats 获取 PR 的增删行与文件数
func (c *Client) GetPullRequestDiffStats(ctx context.Context, token, owner, repo string, number int) (*DiffStats, error) {
	var stats DiffStats
	path := repoPath(owner, repo, fmt.Sprintf("/pulls/%d", number))
	if err := c.getJSON(ctx, token, c.endpoint(path, nil), &stats); err != nil {
		return nil, fmt.Errorf("获取 %s/%s#%d diff 统计失败: %w", owner, repo, number, err)
	}
	return &stats, nil
}
