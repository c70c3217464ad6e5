package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/yuqie6/PodPulse/internal/eventbus"
	"github.com/yuqie6/PodPulse/internal/github"
	"github.com/yuqie6/PodPulse/internal/schema"
)

// fakeGitHub 按仓库全名返回固定数据
type fakeGitHub struct {
	login     string
	authErr   error
	repos     []github.Repo
	commits   map[string][]github.Commit
	prs       map[string][]github.PullRequest
	issues    map[string][]github.Issue
	comments  map[string][]github.ReviewComment
	stats     map[int]github.DiffStats
	failRepo  map[string]error
	langs     map[string]map[string]int64
	diffCalls int
	tokens    []string
}

func (f *fakeGitHub) GetAuthenticatedUser(ctx context.Context, token string) (*github.AuthUser, error) {
	f.tokens = append(f.tokens, token)
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &github.AuthUser{Login: f.login}, nil
}

func (f *fakeGitHub) ListRepositories(ctx context.Context, token string) ([]github.Repo, error) {
	return f.repos, nil
}

func (f *fakeGitHub) ListCommits(ctx context.Context, token, owner, repo string, since time.Time) ([]github.Commit, error) {
	f.tokens = append(f.tokens, token)
	if err := f.failRepo[owner+"/"+repo]; err != nil {
		return nil, err
	}
	return f.commits[owner+"/"+repo], nil
}

func (f *fakeGitHub) ListPullRequests(ctx context.Context, token, owner, repo string, since time.Time) ([]github.PullRequest, error) {
	return f.prs[owner+"/"+repo], nil
}

func (f *fakeGitHub) ListClosedIssues(ctx context.Context, token, owner, repo string, since time.Time) ([]github.Issue, error) {
	return f.issues[owner+"/"+repo], nil
}

func (f *fakeGitHub) ListReviewComments(ctx context.Context, token, owner, repo string, since time.Time) ([]github.ReviewComment, error) {
	return f.comments[owner+"/"+repo], nil
}

func (f *fakeGitHub) GetPullRequestDiffStats(ctx context.Context, token, owner, repo string, number int) (*github.DiffStats, error) {
	f.diffCalls++
	st, ok := f.stats[number]
	if !ok {
		return nil, fmt.Errorf("no stats for %d", number)
	}
	return &st, nil
}

func (f *fakeGitHub) ListLanguages(ctx context.Context, token, owner, repo string) (map[string]int64, error) {
	return f.langs[owner+"/"+repo], nil
}

type syncFixture struct {
	gh         *fakeGitHub
	activities *fakeActivityRepo
	users      *fakeUserRepo
	pods       *fakePodRepo
	rewards    *fakeRewardRepo
	pub        *fakePublisher
	metrics    *countingMetrics
	svc        *SyncService
	now        time.Time
}

func newSyncFixture(gh *fakeGitHub, users ...schema.User) *syncFixture {
	f := &syncFixture{
		gh:         gh,
		activities: &fakeActivityRepo{},
		users:      newFakeUserRepo(users...),
		pods: &fakePodRepo{
			pods:    map[string]schema.Pod{},
			members: map[string][]schema.PodMember{},
			repos:   map[string][]schema.PodRepo{},
		},
		rewards: &fakeRewardRepo{},
		pub:     &fakePublisher{},
		metrics: newCountingMetrics(),
		now:     time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	actSvc := NewActivityService(f.activities, nil, f.metrics)
	actSvc.now = func() time.Time { return f.now }
	f.svc = NewSyncService(SyncDeps{
		GitHub:     gh,
		Activities: actSvc,
		Users:      f.users,
		Pods:       f.pods,
		Rewards:    f.rewards,
		Publisher:  f.pub,
		Metrics:    f.metrics,
	}, DefaultSyncConfig())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func tokenUser(id, name, email, token string) schema.User {
	u := schema.NewUser(id, name, email)
	u.GithubToken = token
	u.TokenValid = true
	return *u
}

func TestSyncUser_CreatesActivitiesAndOneReward(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	merged := now.Add(-2 * time.Hour)
	gh := &fakeGitHub{
		login: "octo",
		repos: []github.Repo{
			{Owner: "octo", Name: "fresh", FullName: "octo/fresh", Created: now.Add(-24 * time.Hour)},
			{Owner: "octo", Name: "old", FullName: "octo/old", Created: now.AddDate(-1, 0, 0)},
		},
		commits: map[string][]github.Commit{
			"octo/fresh": {
				{SHA: "a1", Message: "implement login api auth flow", AuthorLogin: "octo", Date: now.Add(-3 * time.Hour)},
				{SHA: "a2", Message: "fix", AuthorLogin: "octo", Date: now.Add(-3 * time.Hour)},
				{SHA: "a3", Message: "implement other stuff", AuthorLogin: "someone", Date: now.Add(-3 * time.Hour)},
			},
		},
		prs: map[string][]github.PullRequest{
			"octo/old": {
				{Number: 7, HTMLURL: "https://github.com/octo/old/pull/7", AuthorLogin: "Octo", CreatedAt: now.Add(-48 * time.Hour), MergedAt: &merged},
			},
		},
		stats: map[int]github.DiffStats{7: {Additions: 4, Deletions: 2, ChangedFiles: 1}},
	}
	f := newSyncFixture(gh, tokenUser("u1", "Octo Cat", "octo@example.com", "tok"))

	res, err := f.svc.SyncUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("SyncUser: %v", err)
	}
	if res.ReposFetched != 2 || res.CommitsFetched != 3 || res.PRsFetched != 1 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	// repo_created + 2 commits + pr_opened + pr_merged
	if res.ActivitiesCreated != 5 || res.RewardsCreated != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := f.activities.byType(schema.ActivityPRMerged); len(got) != 1 || got[0].Value != 30 {
		t.Fatalf("trivial merged pr should score 30: %+v", got)
	}
	if len(f.rewards.items) != 1 {
		t.Fatalf("rewards=%d, want 1", len(f.rewards.items))
	}
	r := f.rewards.items[0]
	if r.Points != 50+8+0+20+30 {
		t.Fatalf("reward points=%d", r.Points)
	}
	if !r.Badges.Contains(BadgeFounder) || !r.Badges.Contains(BadgeSuperCommitter) {
		t.Fatalf("badges=%v", r.Badges)
	}
	if r.BatchID == "" {
		t.Fatalf("reward should carry batch id")
	}
	if u, _ := f.users.GetByID(context.Background(), "u1"); u.GithubUsername != "octo" || !u.TokenValid {
		t.Fatalf("user not updated: %+v", u)
	}
	if types := f.pub.types(); len(types) != 1 || types[0] != eventbus.TypeSyncCompleted {
		t.Fatalf("events=%v", types)
	}

	// 第二次同步不重复记账，也不再发奖励，也不再拉 diff
	calls := gh.diffCalls
	res, err = f.svc.SyncUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second SyncUser: %v", err)
	}
	if res.ActivitiesCreated != 0 || res.RewardsCreated != 0 || len(f.rewards.items) != 1 {
		t.Fatalf("second sync should be a no-op: %+v", res)
	}
	if gh.diffCalls != calls {
		t.Fatalf("diff stats refetched for recorded merge")
	}
}

func TestSyncUser_UnauthorizedMarksTokenInvalid(t *testing.T) {
	gh := &fakeGitHub{authErr: fmt.Errorf("%w: /user", github.ErrUnauthorized)}
	f := newSyncFixture(gh, tokenUser("u1", "Octo", "", "tok"))

	res, err := f.svc.SyncUser(context.Background(), "u1")
	if !errors.Is(err, github.ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
	if res == nil {
		t.Fatalf("result should be returned on failure")
	}
	if u, _ := f.users.GetByID(context.Background(), "u1"); u.TokenValid {
		t.Fatalf("token should be marked invalid")
	}
	if f.metrics.runs[SyncKindUser+"/failed"] != 1 {
		t.Fatalf("failed run not counted: %v", f.metrics.runs)
	}
}

func TestSyncUser_RepoErrorDoesNotAbort(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	gh := &fakeGitHub{
		login: "octo",
		repos: []github.Repo{
			{Owner: "octo", Name: "broken", FullName: "octo/broken", Created: now.AddDate(-1, 0, 0)},
			{Owner: "octo", Name: "ok", FullName: "octo/ok", Created: now.AddDate(-1, 0, 0)},
		},
		commits: map[string][]github.Commit{
			"octo/ok": {{SHA: "b1", Message: "implement feature", AuthorLogin: "octo", Date: now}},
		},
		failRepo: map[string]error{"octo/broken": errors.New("boom")},
	}
	f := newSyncFixture(gh, tokenUser("u1", "Octo", "", "tok"))

	res, err := f.svc.SyncUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("SyncUser: %v", err)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "octo/broken") {
		t.Fatalf("errors=%v", res.Errors)
	}
	if res.ActivitiesCreated != 1 {
		t.Fatalf("ok repo should still be processed: %+v", res)
	}
	if f.metrics.runs[SyncKindUser+"/partial"] != 1 || f.metrics.errs[SyncKindUser] != 1 {
		t.Fatalf("metrics runs=%v errs=%v", f.metrics.runs, f.metrics.errs)
	}
}

func TestSyncUser_MissingUser(t *testing.T) {
	f := newSyncFixture(&fakeGitHub{})
	if _, err := f.svc.SyncUser(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err=%v, want ErrUserNotFound", err)
	}
}

func seedPod(f *syncFixture, podID string, members ...schema.PodMember) {
	f.pods.pods[podID] = schema.Pod{ID: podID, Name: podID}
	f.pods.members[podID] = members
}

func TestSyncPodRepository_AttributionAndMultiplier(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	gh := &fakeGitHub{
		commits: map[string][]github.Commit{
			"acme/app": {
				{SHA: "c1", Message: "implement login api auth flow", AuthorLogin: "alice-gh", Date: now.Add(-time.Hour)},
				{SHA: "c2", Message: "implement payment core", AuthorEmail: "BOB@example.com", Date: now.Add(-time.Hour)},
				{SHA: "c3", Message: "implement search logic", AuthorLogin: "outsider", Date: now.Add(-time.Hour)},
			},
		},
	}
	alice := tokenUser("alice", "Alice", "alice@example.com", "lead-token")
	bob := tokenUser("bob", "Bob", "bob@example.com", "bob-token")
	f := newSyncFixture(gh, alice, bob)
	seedPod(f, "pod-1",
		schema.PodMember{PodID: "pod-1", UserID: "bob", Role: schema.RoleMember, Status: schema.MemberAccepted},
		schema.PodMember{PodID: "pod-1", UserID: "alice", Role: schema.RoleLead, Status: schema.MemberAccepted, GithubUsername: "alice-gh"},
	)

	res, err := f.svc.SyncPodRepository(context.Background(), "pod-1", "acme", "app")
	if err != nil {
		t.Fatalf("SyncPodRepository: %v", err)
	}
	if res.ActivitiesCreated != 2 || res.RewardsCreated != 2 || res.ReposFetched != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	for _, a := range f.activities.byType(schema.ActivityCommit) {
		if a.PodID != "pod-1" {
			t.Fatalf("activity not pod scoped: %+v", a)
		}
		if a.Value != 4 {
			t.Fatalf("2-member pod should halve 8 to 4, got %d", a.Value)
		}
	}
	if gh.tokens[0] != "lead-token" {
		t.Fatalf("pod sync should use the lead token, got %v", gh.tokens)
	}
	if len(f.pods.touched) != 1 || f.pods.touched[0] != "acme/app" {
		t.Fatalf("touched=%v", f.pods.touched)
	}
}

func TestSyncPodRepository_WeakNameMatch(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	gh := &fakeGitHub{
		commits: map[string][]github.Commit{
			"acme/app": {{SHA: "w1", Message: "implement weak path", AuthorLogin: "carol", Date: now}},
		},
	}
	carol := tokenUser("carol-id", "carol", "", "tok")
	f := newSyncFixture(gh, carol)
	seedPod(f, "pod-1", schema.PodMember{PodID: "pod-1", UserID: "carol-id", Status: schema.MemberAccepted})

	res, err := f.svc.SyncPodRepository(context.Background(), "pod-1", "acme", "app")
	if err != nil || res.ActivitiesCreated != 1 {
		t.Fatalf("weak match should attribute: res=%+v err=%v", res, err)
	}

	f2 := newSyncFixture(gh, carol)
	f2.svc.cfg.WeakNameMatch = false
	seedPod(f2, "pod-1", schema.PodMember{PodID: "pod-1", UserID: "carol-id", Status: schema.MemberAccepted})
	res, err = f2.svc.SyncPodRepository(context.Background(), "pod-1", "acme", "app")
	if err != nil || res.ActivitiesCreated != 0 {
		t.Fatalf("disabled weak match should not attribute: res=%+v err=%v", res, err)
	}
}

func TestSyncPodRepositories_ContainsRepoErrors(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	closed := now.Add(-time.Hour)
	gh := &fakeGitHub{
		failRepo: map[string]error{"acme/bad": errors.New("500")},
		issues: map[string][]github.Issue{
			"acme/good": {{Number: 3, HTMLURL: "https://github.com/acme/good/issues/3", AuthorLogin: "outsider", Assignees: []string{"dave"}, CreatedAt: now.AddDate(-2, 0, 0), ClosedAt: &closed}},
		},
	}
	dave := tokenUser("dave", "Dave", "", "tok")
	f := newSyncFixture(gh, dave)
	seedPod(f, "pod-1", schema.PodMember{PodID: "pod-1", UserID: "dave", Status: schema.MemberAccepted, GithubUsername: "dave"})

	res, err := f.svc.SyncPodRepositories(context.Background(), "pod-1", []RepoRef{{"acme", "bad"}, {"acme", "good"}})
	if err != nil {
		t.Fatalf("SyncPodRepositories: %v", err)
	}
	if len(res.Errors) != 1 || res.ReposFetched != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	closedActs := f.activities.byType(schema.ActivityIssueClosed)
	if len(closedActs) != 1 || closedActs[0].UserID != "dave" {
		t.Fatalf("issue close should go to member assignee: %+v", closedActs)
	}
	if len(f.activities.byType(schema.ActivityIssueOpened)) != 0 {
		t.Fatalf("outsider issue open must not be recorded")
	}
}

func TestSyncPod_NoToken(t *testing.T) {
	u := schema.NewUser("eve", "Eve", "")
	f := newSyncFixture(&fakeGitHub{}, *u)
	seedPod(f, "pod-1", schema.PodMember{PodID: "pod-1", UserID: "eve", Status: schema.MemberAccepted})
	f.pods.repos["pod-1"] = []schema.PodRepo{{PodID: "pod-1", Owner: "acme", Name: "app"}}

	if _, err := f.svc.SyncPod(context.Background(), "pod-1"); !errors.Is(err, ErrNoPodToken) {
		t.Fatalf("err=%v, want ErrNoPodToken", err)
	}
	if _, err := f.svc.SyncPod(context.Background(), "missing"); !errors.Is(err, ErrPodNotFound) {
		t.Fatalf("err=%v, want ErrPodNotFound", err)
	}
}

func TestSyncPod_UnauthorizedAborts(t *testing.T) {
	gh := &fakeGitHub{failRepo: map[string]error{"acme/app": fmt.Errorf("%w: commits", github.ErrUnauthorized)}}
	lead := tokenUser("lead", "Lead", "", "tok")
	f := newSyncFixture(gh, lead)
	seedPod(f, "pod-1", schema.PodMember{PodID: "pod-1", UserID: "lead", Role: schema.RoleOwner, Status: schema.MemberAccepted})
	f.pods.repos["pod-1"] = []schema.PodRepo{{PodID: "pod-1", Owner: "acme", Name: "app"}, {PodID: "pod-1", Owner: "acme", Name: "other"}}

	_, err := f.svc.SyncPod(context.Background(), "pod-1")
	if !errors.Is(err, github.ErrUnauthorized) {
		t.Fatalf("err=%v, want ErrUnauthorized", err)
	}
	if u, _ := f.users.GetByID(context.Background(), "lead"); u.TokenValid {
		t.Fatalf("lead token should be marked invalid")
	}
}

func TestSyncPod_BatchCapPerRepo(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	var commits []github.Commit
	for i := 0; i < 11; i++ {
		commits = append(commits, github.Commit{SHA: fmt.Sprintf("s%02d", i), Message: "implement module", AuthorLogin: "max", Date: now.Add(-time.Duration(i) * time.Minute)})
	}
	gh := &fakeGitHub{commits: map[string][]github.Commit{"acme/a": commits, "acme/b": commits[:1]}}
	members := []schema.PodMember{
		{PodID: "pod-1", UserID: "max", Status: schema.MemberAccepted, GithubUsername: "max"},
		{PodID: "pod-1", UserID: "x", Status: schema.MemberAccepted},
		{PodID: "pod-1", UserID: "y", Status: schema.MemberAccepted},
	}
	f := newSyncFixture(gh, tokenUser("max", "Max", "", "tok"))
	seedPod(f, "pod-1", members...)

	res, err := f.svc.SyncPodRepositories(context.Background(), "pod-1", []RepoRef{{"acme", "a"}})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if res.ActivitiesCreated != 11 {
		t.Fatalf("activities=%d, want 11", res.ActivitiesCreated)
	}
	zero := 0
	for _, a := range f.activities.byType(schema.ActivityCommit) {
		if a.Value == 0 {
			zero++
		} else if a.Value != 8 {
			t.Fatalf("3-member pod should keep full value, got %d", a.Value)
		}
	}
	if zero != 1 {
		t.Fatalf("11th commit should be capped to 0, zero=%d", zero)
	}
}
