package github

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

type rawRepo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
	Private   bool      `json:"private"`
	Fork      bool      `json:"fork"`
	Language  string    `json:"language"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	PushedAt  time.Time `json:"pushed_at"`
}

// GetAuthenticatedUser 解析 token 对应的登录名
func (c *Client) GetAuthenticatedUser(ctx context.Context, token string) (*AuthUser, error) {
	var u AuthUser
	if err := c.getJSON(ctx, token, c.endpoint("/user", nil), &u); err != nil {
		return nil, err
	}
	if u.Login == "" {
		return nil, fmt.Errorf("github: /user 未返回 login")
	}
	return &u, nil
}

// ListRepositories 列出用户可访问的仓库（最多 MaxRepoPages 页）
func (c *Client) ListRepositories(ctx context.Context, token string) ([]Repo, error) {
	query := url.Values{}
	query.Set("sort", "updated")
	query.Set("affiliation", "owner,collaborator,organization_member")

	var out []Repo
	err := paginate(ctx, c, token, "/user/repos", query, MaxRepoPages, func(page []rawRepo) bool {
		for _, r := range page {
			out = append(out, Repo{
				ID:       r.ID,
				Name:     r.Name,
				FullName: r.FullName,
				Owner:    r.Owner.Login,
				Private:  r.Private,
				Fork:     r.Fork,
				Language: r.Language,
				HTMLURL:  r.HTMLURL,
				Created:  r.CreatedAt,
				Pushed:   r.PushedAt,
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("列出仓库失败: %w", err)
	}
	return out, nil
}

// ListLanguages 仓库语言字节数
func (c *Client) ListLanguages(ctx context.Context, token, owner, repo string) (map[string]int64, error) {
	path := fmt.Sprintf("/repos/%s/%s/languages", url.PathEscape(owner), url.PathEscape(repo))
	out := make(map[string]int64)
	if err := c.getJSON(ctx, token, c.endpoint(path, nil), &out); err != nil {
		return nil, fmt.Errorf("获取 %s/%s 语言失败: %w", owner, repo, err)
	}
	return out, nil
}
