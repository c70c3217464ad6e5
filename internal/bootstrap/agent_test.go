package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/yuqie6/PodPulse/internal/github"
	"github.com/yuqie6/PodPulse/internal/pkg/config"
	"github.com/yuqie6/PodPulse/internal/repository"
	"github.com/yuqie6/PodPulse/internal/schema"
	"github.com/yuqie6/PodPulse/internal/testutil"
)

// stubGitHub 每个仓库返回一条提交
type stubGitHub struct {
	login string
}

func (s stubGitHub) GetAuthenticatedUser(context.Context, string) (*github.AuthUser, error) {
	return &github.AuthUser{Login: s.login}, nil
}

func (s stubGitHub) ListRepositories(context.Context, string) ([]github.Repo, error) {
	return []github.Repo{{Name: "app", Owner: s.login, FullName: s.login + "/app", Created: time.Now().AddDate(-1, 0, 0)}}, nil
}

func (s stubGitHub) ListCommits(_ context.Context, _, owner, repo string, _ time.Time) ([]github.Commit, error) {
	return []github.Commit{{
		SHA:         "sha-" + owner + "-" + repo,
		Message:     "feat: add poller loop",
		AuthorLogin: s.login,
		Date:        time.Now().Add(-time.Hour),
	}}, nil
}

func (stubGitHub) ListPullRequests(context.Context, string, string, string, time.Time) ([]github.PullRequest, error) {
	return nil, nil
}

func (stubGitHub) ListClosedIssues(context.Context, string, string, string, time.Time) ([]github.Issue, error) {
	return nil, nil
}

func (stubGitHub) ListReviewComments(context.Context, string, string, string, time.Time) ([]github.ReviewComment, error) {
	return nil, nil
}

func (stubGitHub) GetPullRequestDiffStats(context.Context, string, string, string, int) (*github.DiffStats, error) {
	return &github.DiffStats{}, nil
}

func (stubGitHub) ListLanguages(context.Context, string, string, string) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func newTestRuntime(t *testing.T) *AgentRuntime {
	t.Helper()
	db := &repository.Database{DB: testutil.OpenTestDB(t)}
	core := Assemble(config.Default(), db, stubGitHub{login: "octo"})
	return newAgentRuntime(core)
}

func TestRunOnceSyncsUsersAndPods(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime(t)

	u := schema.NewUser("u1", "Octo", "octo@example.com")
	u.GithubToken = "tok"
	u.TokenValid = true
	if err := rt.Repos.User.Upsert(ctx, u); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	if err := rt.Repos.Pod.Upsert(ctx, &schema.Pod{ID: "p1", Name: "pod"}); err != nil {
		t.Fatalf("upsert pod: %v", err)
	}
	if err := rt.Repos.Pod.UpsertMember(ctx, &schema.PodMember{PodID: "p1", UserID: "u1", Role: "lead", Status: schema.MemberAccepted}); err != nil {
		t.Fatalf("upsert member: %v", err)
	}
	if err := rt.Repos.Pod.LinkRepo(ctx, &schema.PodRepo{PodID: "p1", Owner: "octo", Name: "team"}); err != nil {
		t.Fatalf("link repo: %v", err)
	}

	sum := rt.RunOnce(ctx)
	if sum.Users != 1 || sum.Pods != 1 || sum.Failures != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Activities != 2 {
		t.Fatalf("activities=%d, want 2", sum.Activities)
	}

	// 再跑一轮不应重复计分
	again := rt.RunOnce(ctx)
	if again.Activities != 0 {
		t.Fatalf("second run created %d activities", again.Activities)
	}

	st, err := rt.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.OK || st.Users != 1 || st.Activities != 2 || st.LinkedRepos != 1 || st.LastSyncAt == 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestApplyConfigKeepsLatest(t *testing.T) {
	rt := newTestRuntime(t)

	first := config.Default()
	first.Sync.BatchCap = 3
	second := config.Default()
	second.Sync.BatchCap = 7
	rt.ApplyConfig(first)
	rt.ApplyConfig(second)
	rt.ApplyConfig(nil)

	select {
	case got := <-rt.reload:
		if got.Sync.BatchCap != 7 {
			t.Fatalf("batch cap=%d, want 7", got.Sync.BatchCap)
		}
	default:
		t.Fatalf("expected pending config")
	}
}
