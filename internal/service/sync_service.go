package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuqie6/PodPulse/internal/eventbus"
	"github.com/yuqie6/PodPulse/internal/github"
	"github.com/yuqie6/PodPulse/internal/repository"
	"github.com/yuqie6/PodPulse/internal/schema"
)

// 同步类型（指标与事件标签）
const (
	SyncKindUser = "user"
	SyncKindPod  = "pod"
)

// SyncConfig 同步窗口与评分参数
type SyncConfig struct {
	UserWindowDays        int
	RepoCreatedWindowDays int
	PodWindowDays         int
	BatchCap              int
	SmallPodThreshold     int
	SmallPodMultiplier    float64
	WeakNameMatch         bool
}

// DefaultSyncConfig 默认同步参数
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		UserWindowDays:        30,
		RepoCreatedWindowDays: 7,
		PodWindowDays:         365,
		BatchCap:              DefaultBatchCap,
		SmallPodThreshold:     3,
		SmallPodMultiplier:    0.5,
		WeakNameMatch:         true,
	}
}

// SyncResult 一次同步的汇总；部分仓库失败时 Errors 非空但结果仍然有效
type SyncResult struct {
	ReposFetched      int      `json:"repos_fetched"`
	CommitsFetched    int      `json:"commits_fetched"`
	PRsFetched        int      `json:"prs_fetched"`
	ActivitiesCreated int      `json:"activities_created"`
	RewardsCreated    int      `json:"rewards_created"`
	Errors            []string `json:"errors"`
}

func (r *SyncResult) addError(repo string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", repo, err))
}

// RepoRef owner/name
type RepoRef struct {
	Owner string
	Name  string
}

// FullName owner/name
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Name
}

// attributor 把外部作者映射到本地用户
type attributor func(login, name, email string) (userID string, ok bool)

// SyncService 同步编排：拉取 GitHub 事件 → 评分去重入账 → 奖励汇总
// 同一用户/团队的同步由调用方串行化
type SyncService struct {
	gh         github.API
	activities *ActivityService
	users      UserRepository
	pods       PodRepository
	rewards    RewardRepository
	pub        Publisher
	metrics    MetricsRecorder
	cfg        SyncConfig
	now        func() time.Time
}

// SyncDeps 同步服务依赖
type SyncDeps struct {
	GitHub     github.API
	Activities *ActivityService
	Users      UserRepository
	Pods       PodRepository
	Rewards    RewardRepository
	Publisher  Publisher
	Metrics    MetricsRecorder
}

// NewSyncService 创建同步服务
func NewSyncService(deps SyncDeps, cfg SyncConfig) *SyncService {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &SyncService{
		gh:         deps.GitHub,
		activities: deps.Activities,
		users:      deps.Users,
		pods:       deps.Pods,
		rewards:    deps.Rewards,
		pub:        deps.Publisher,
		metrics:    deps.Metrics,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetConfig 替换同步参数；调用方保证与同步调用串行
func (s *SyncService) SetConfig(cfg SyncConfig) {
	s.cfg = cfg
}

// SyncUser 全局同步：当前 token 可见的所有仓库，30 天窗口
func (s *SyncService) SyncUser(ctx context.Context, userID string) (*SyncResult, error) {
	res := &SyncResult{Errors: []string{}}
	err := s.syncUser(ctx, userID, res)
	s.finish(SyncKindUser, map[string]any{"user_id": userID}, res, err)
	return res, err
}

func (s *SyncService) syncUser(ctx context.Context, userID string, res *SyncResult) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.GithubToken == "" {
		return ErrNoUserToken
	}
	token := user.GithubToken

	me, err := s.gh.GetAuthenticatedUser(ctx, token)
	if err != nil {
		return s.credentialFailure(ctx, userID, err)
	}
	if err := s.users.SetTokenValid(ctx, userID, true); err != nil {
		return err
	}
	if !strings.EqualFold(user.GithubUsername, me.Login) {
		if err := s.users.SetGithubUsername(ctx, userID, me.Login); err != nil {
			return err
		}
	}

	repos, err := s.gh.ListRepositories(ctx, token)
	if err != nil {
		return s.credentialFailure(ctx, userID, err)
	}
	res.ReposFetched = len(repos)

	now := s.now()
	since := repository.SinceDays(now, s.cfg.UserWindowDays)
	createdSince := repository.SinceDays(now, s.cfg.RepoCreatedWindowDays)
	attr := loginAttributor(me.Login, userID)

	var created []schema.Activity
	for _, repo := range repos {
		ref := RepoRef{Owner: repo.Owner, Name: repo.Name}
		out, err := s.syncUserRepo(ctx, token, userID, repo, ref, since, createdSince, attr, res)
		created = append(created, out...)
		if err == nil {
			continue
		}
		if errors.Is(err, github.ErrUnauthorized) {
			res.ActivitiesCreated = len(created)
			return s.credentialFailure(ctx, userID, err)
		}
		slog.Warn("仓库同步失败", "repo", ref.FullName(), "user", userID, "error", err)
		s.metrics.SyncError(SyncKindUser)
		res.addError(ref.FullName(), err)
	}

	res.ActivitiesCreated = len(created)
	if len(created) > 0 {
		if err := s.grant(ctx, userID, created); err != nil {
			return err
		}
		res.RewardsCreated = 1
	}
	return nil
}

func (s *SyncService) syncUserRepo(ctx context.Context, token, userID string, repo github.Repo, ref RepoRef, since, createdSince time.Time, attr attributor, res *SyncResult) ([]schema.Activity, error) {
	batch := s.activities.NewBatch(s.cfg.BatchCap, 1.0)
	var err error
	if repo.Created.After(createdSince) {
		err = batch.Add(ctx, Candidate{
			UserID: userID,
			Type:   schema.ActivityRepoCreated,
			Meta: schema.JSONMap{
				schema.MetaRepoFullName: repo.FullName,
				schema.MetaCreatedAt:    formatTime(repo.Created),
			},
		})
	}
	if err == nil {
		err = s.collectRepo(ctx, token, ref, since, "", attr, batch, res)
	}
	out, flushErr := batch.Flush(ctx)
	if err == nil {
		err = flushErr
	}
	return out, err
}

// SyncPodRepository 团队维度同步单个仓库
func (s *SyncService) SyncPodRepository(ctx context.Context, podID, owner, repo string) (*SyncResult, error) {
	return s.SyncPodRepositories(ctx, podID, []RepoRef{{Owner: owner, Name: repo}})
}

// SyncPod 同步团队关联的全部仓库
func (s *SyncService) SyncPod(ctx context.Context, podID string) (*SyncResult, error) {
	linked, err := s.pods.ListRepos(ctx, podID)
	if err != nil {
		return &SyncResult{Errors: []string{}}, err
	}
	refs := make([]RepoRef, 0, len(linked))
	for _, r := range linked {
		refs = append(refs, RepoRef{Owner: r.Owner, Name: r.Name})
	}
	return s.SyncPodRepositories(ctx, podID, refs)
}

// SyncPodRepositories 团队维度同步：事件按成员归属，365 天窗口，小团队降权
// 单个仓库失败只记录错误，不影响其余仓库
func (s *SyncService) SyncPodRepositories(ctx context.Context, podID string, refs []RepoRef) (*SyncResult, error) {
	res := &SyncResult{Errors: []string{}}
	err := s.syncPod(ctx, podID, refs, res)
	s.finish(SyncKindPod, map[string]any{"pod_id": podID}, res, err)
	return res, err
}

func (s *SyncService) syncPod(ctx context.Context, podID string, refs []RepoRef, res *SyncResult) error {
	pod, err := s.pods.GetByID(ctx, podID)
	if err != nil {
		return err
	}
	if pod == nil {
		return ErrPodNotFound
	}

	members, err := s.pods.ListMembers(ctx, podID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := s.users.GetByIDs(ctx, uniqueStrings(ids))
	if err != nil {
		return err
	}

	tokenOwner, token, ok := resolvePodToken(members, users)
	if !ok {
		return ErrNoPodToken
	}

	accepted, err := s.pods.CountAccepted(ctx, podID)
	if err != nil {
		return err
	}
	multiplier := PodMultiplier(int(accepted), s.cfg.SmallPodThreshold, s.cfg.SmallPodMultiplier)
	attr := podAttributor(podID, members, users, s.cfg.WeakNameMatch)
	since := repository.SinceDays(s.now(), s.cfg.PodWindowDays)

	var created []schema.Activity
	for _, ref := range refs {
		batch := s.activities.NewBatch(s.cfg.BatchCap, multiplier)
		err := s.collectRepo(ctx, token, ref, since, podID, attr, batch, res)
		out, flushErr := batch.Flush(ctx)
		created = append(created, out...)
		if err == nil {
			err = flushErr
		}
		if err != nil {
			if errors.Is(err, github.ErrUnauthorized) {
				res.ActivitiesCreated = len(created)
				return s.credentialFailure(ctx, tokenOwner, err)
			}
			slog.Warn("团队仓库同步失败", "pod", podID, "repo", ref.FullName(), "error", err)
			s.metrics.SyncError(SyncKindPod)
			res.addError(ref.FullName(), err)
			continue
		}
		res.ReposFetched++
		if err := s.pods.TouchRepoSync(ctx, podID, ref.Owner, ref.Name, s.now().UnixMilli()); err != nil {
			slog.Warn("更新仓库同步时间失败", "pod", podID, "repo", ref.FullName(), "error", err)
		}
	}

	res.ActivitiesCreated = len(created)
	byUser := make(map[string][]schema.Activity)
	var order []string
	for _, a := range created {
		if _, ok := byUser[a.UserID]; !ok {
			order = append(order, a.UserID)
		}
		byUser[a.UserID] = append(byUser[a.UserID], a)
	}
	for _, uid := range order {
		if err := s.grant(ctx, uid, byUser[uid]); err != nil {
			return err
		}
		res.RewardsCreated++
	}
	return nil
}

// collectRepo 拉取单个仓库的提交/PR/Issue/评审并放入批次
func (s *SyncService) collectRepo(ctx context.Context, token string, ref RepoRef, since time.Time, podID string, attr attributor, batch *Batch, res *SyncResult) error {
	full := ref.FullName()

	commits, err := s.gh.ListCommits(ctx, token, ref.Owner, ref.Name, since)
	if err != nil {
		return fmt.Errorf("拉取提交失败: %w", err)
	}
	res.CommitsFetched += len(commits)
	for _, c := range commits {
		uid, ok := attr(c.AuthorLogin, c.AuthorName, c.AuthorEmail)
		if !ok {
			continue
		}
		if err := batch.Add(ctx, Candidate{UserID: uid, PodID: podID, Type: schema.ActivityCommit, Meta: schema.JSONMap{
			schema.MetaSHA:       c.SHA,
			schema.MetaMessage:   c.Message,
			schema.MetaRepo:      full,
			schema.MetaCreatedAt: formatTime(c.Date),
		}}); err != nil {
			return err
		}
	}

	prs, err := s.gh.ListPullRequests(ctx, token, ref.Owner, ref.Name, since)
	if err != nil {
		return fmt.Errorf("拉取 PR 失败: %w", err)
	}
	res.PRsFetched += len(prs)
	for _, pr := range prs {
		uid, ok := attr(pr.AuthorLogin, "", "")
		if !ok {
			continue
		}
		base := schema.JSONMap{
			schema.MetaPRURL:  pr.HTMLURL,
			schema.MetaTitle:  pr.Title,
			schema.MetaNumber: pr.Number,
			schema.MetaRepo:   full,
		}
		if !pr.CreatedAt.Before(since) {
			opened := cloneMeta(base)
			opened[schema.MetaCreatedAt] = formatTime(pr.CreatedAt)
			if err := batch.Add(ctx, Candidate{UserID: uid, PodID: podID, Type: schema.ActivityPROpened, Meta: opened}); err != nil {
				return err
			}
		}

		if pr.MergedAt == nil || pr.MergedAt.Before(since) {
			continue
		}
		merged := cloneMeta(base)
		merged[schema.MetaCreatedAt] = formatTime(*pr.MergedAt)
		cand := Candidate{UserID: uid, PodID: podID, Type: schema.ActivityPRMerged, Meta: merged}
		known, err := s.activities.Recorded(ctx, cand)
		if err != nil {
			return err
		}
		if known {
			continue
		}
		stats, err := s.gh.GetPullRequestDiffStats(ctx, token, ref.Owner, ref.Name, pr.Number)
		if err != nil {
			if errors.Is(err, github.ErrUnauthorized) {
				return err
			}
			// 下次同步重试
			slog.Warn("获取 PR 变更统计失败，跳过合并记账", "repo", full, "number", pr.Number, "error", err)
			continue
		}
		merged[schema.MetaAdditions] = stats.Additions
		merged[schema.MetaDeletions] = stats.Deletions
		merged[schema.MetaChangedFiles] = stats.ChangedFiles
		if err := batch.Add(ctx, cand); err != nil {
			return err
		}
	}

	issues, err := s.gh.ListClosedIssues(ctx, token, ref.Owner, ref.Name, since)
	if err != nil {
		return fmt.Errorf("拉取 Issue 失败: %w", err)
	}
	for _, is := range issues {
		meta := schema.JSONMap{
			schema.MetaIssueURL: is.HTMLURL,
			schema.MetaTitle:    is.Title,
			schema.MetaNumber:   is.Number,
			schema.MetaRepo:     full,
		}
		if uid, ok := attr(is.AuthorLogin, "", ""); ok && !is.CreatedAt.Before(since) {
			opened := cloneMeta(meta)
			opened[schema.MetaCreatedAt] = formatTime(is.CreatedAt)
			if err := batch.Add(ctx, Candidate{UserID: uid, PodID: podID, Type: schema.ActivityIssueOpened, Meta: opened}); err != nil {
				return err
			}
		}
		if is.ClosedAt == nil {
			continue
		}
		if uid, ok := closerOf(is, attr); ok {
			closed := cloneMeta(meta)
			closed[schema.MetaCreatedAt] = formatTime(*is.ClosedAt)
			if err := batch.Add(ctx, Candidate{UserID: uid, PodID: podID, Type: schema.ActivityIssueClosed, Meta: closed}); err != nil {
				return err
			}
		}
	}

	comments, err := s.gh.ListReviewComments(ctx, token, ref.Owner, ref.Name, since)
	if err != nil {
		return fmt.Errorf("拉取评审评论失败: %w", err)
	}
	for _, rc := range comments {
		uid, ok := attr(rc.AuthorLogin, "", "")
		if !ok {
			continue
		}
		if err := batch.Add(ctx, Candidate{UserID: uid, PodID: podID, Type: schema.ActivityReviewComment, Meta: schema.JSONMap{
			schema.MetaCommentID: rc.ID,
			schema.MetaPRURL:     rc.PRURL,
			schema.MetaRepo:      full,
			schema.MetaCreatedAt: formatTime(rc.CreatedAt),
		}}); err != nil {
			return err
		}
	}
	return nil
}

// closerOf Issue 关闭归属：优先指派人中的成员，否则作者
func closerOf(is github.Issue, attr attributor) (string, bool) {
	for _, login := range is.Assignees {
		if uid, ok := attr(login, "", ""); ok {
			return uid, true
		}
	}
	return attr(is.AuthorLogin, "", "")
}

// credentialFailure 401 时先记录 token 失效再返回
func (s *SyncService) credentialFailure(ctx context.Context, userID string, err error) error {
	if !errors.Is(err, github.ErrUnauthorized) {
		return err
	}
	if markErr := s.users.SetTokenValid(ctx, userID, false); markErr != nil {
		slog.Error("标记 token 失效失败", "user", userID, "error", markErr)
	}
	slog.Warn("GitHub token 已失效", "user", userID)
	return err
}

// grant 为一个用户的本批次新活动发放一次奖励
func (s *SyncService) grant(ctx context.Context, userID string, created []schema.Activity) error {
	points := 0
	for _, a := range created {
		points += a.Value
	}
	reward := &schema.Reward{
		UserID:  userID,
		BatchID: uuid.NewString(),
		Points:  points,
		Badges:  BadgesFor(created),
		Reason:  fmt.Sprintf("同步新增 %d 条活动", len(created)),
	}
	if err := s.rewards.Create(ctx, reward); err != nil {
		return fmt.Errorf("发放奖励失败: %w", err)
	}
	return nil
}

func (s *SyncService) finish(kind string, data map[string]any, res *SyncResult, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "failed"
	case len(res.Errors) > 0:
		outcome = "partial"
	}
	s.metrics.SyncRun(kind, outcome)

	data["kind"] = kind
	data["outcome"] = outcome
	data["activities_created"] = res.ActivitiesCreated
	data["errors"] = len(res.Errors)
	if s.pub != nil {
		s.pub.Publish(eventbus.Event{Type: eventbus.TypeSyncCompleted, Data: data})
	}
	slog.Info("同步完成", "kind", kind, "outcome", outcome,
		"repos", res.ReposFetched, "commits", res.CommitsFetched, "prs", res.PRsFetched,
		"activities", res.ActivitiesCreated, "rewards", res.RewardsCreated, "errors", len(res.Errors))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func cloneMeta(m schema.JSONMap) schema.JSONMap {
	out := make(schema.JSONMap, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}
