package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/yuqie6/PodPulse/internal/github"
	"github.com/yuqie6/PodPulse/internal/repository"
	"golang.org/x/sync/errgroup"
)

// ProfileConfig 语言画像参数
type ProfileConfig struct {
	ActiveWindowDays int
	MaxRepos         int
	Concurrency      int
}

// DefaultProfileConfig 默认：近 90 天活跃，最多 10 个仓库，5 并发
func DefaultProfileConfig() ProfileConfig {
	return ProfileConfig{ActiveWindowDays: 90, MaxRepos: 10, Concurrency: 5}
}

// LanguageShare 语言占比
type LanguageShare struct {
	Language string  `json:"language"`
	Bytes    int64   `json:"bytes"`
	Percent  float64 `json:"percent"`
}

// LanguageProfile 用户语言画像
type LanguageProfile struct {
	UserID    string          `json:"user_id"`
	Repos     []string        `json:"repos"`
	Languages []LanguageShare `json:"languages"`
	Errors    []string        `json:"errors"`
}

// ProfileService 语言画像：活跃仓库的语言统计并发拉取
type ProfileService struct {
	gh    github.API
	users UserRepository
	cfg   ProfileConfig
	now   func() time.Time
}

// NewProfileService 创建画像服务
func NewProfileService(gh github.API, users UserRepository, cfg ProfileConfig) *ProfileService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &ProfileService{gh: gh, users: users, cfg: cfg, now: time.Now}
}

// ActiveRepos 窗口内推送过的仓库，按推送时间倒序截断
func ActiveRepos(repos []github.Repo, since time.Time, max int) []github.Repo {
	out := make([]github.Repo, 0, len(repos))
	for _, r := range repos {
		if r.Pushed.After(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pushed.After(out[j].Pushed) })
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// MergeLanguages 合并字节数并计算百分比（保留一位小数），按字节数降序
func MergeLanguages(stats []map[string]int64) []LanguageShare {
	totals := make(map[string]int64)
	var sum int64
	for _, m := range stats {
		for lang, n := range m {
			totals[lang] += n
			sum += n
		}
	}
	out := make([]LanguageShare, 0, len(totals))
	for lang, n := range totals {
		pct := 0.0
		if sum > 0 {
			pct = math.Round(float64(n)/float64(sum)*1000) / 10
		}
		out = append(out, LanguageShare{Language: lang, Bytes: n, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bytes != out[j].Bytes {
			return out[i].Bytes > out[j].Bytes
		}
		return out[i].Language < out[j].Language
	})
	return out
}

// Languages 用户语言画像；单仓库失败只记录，401 直接返回
func (s *ProfileService) Languages(ctx context.Context, userID string) (*LanguageProfile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.GithubToken == "" {
		return nil, ErrNoUserToken
	}

	repos, err := s.gh.ListRepositories(ctx, user.GithubToken)
	if err != nil {
		return nil, fmt.Errorf("拉取仓库列表失败: %w", err)
	}
	active := ActiveRepos(repos, repository.SinceDays(s.now(), s.cfg.ActiveWindowDays), s.cfg.MaxRepos)

	profile := &LanguageProfile{UserID: userID, Repos: make([]string, 0, len(active)), Errors: []string{}}
	stats := make([]map[string]int64, len(active))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, repo := range active {
		profile.Repos = append(profile.Repos, repo.FullName)
		g.Go(func() error {
			langs, err := s.gh.ListLanguages(gctx, user.GithubToken, repo.Owner, repo.Name)
			if err != nil {
				if errors.Is(err, github.ErrUnauthorized) {
					return err
				}
				slog.Warn("拉取仓库语言失败", "repo", repo.FullName, "error", err)
				mu.Lock()
				profile.Errors = append(profile.Errors, fmt.Sprintf("%s: %v", repo.FullName, err))
				mu.Unlock()
				return nil
			}
			stats[i] = langs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	profile.Languages = MergeLanguages(stats)
	return profile, nil
}
