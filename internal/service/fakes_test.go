package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yuqie6/PodPulse/internal/eventbus"
	"github.com/yuqie6/PodPulse/internal/schema"
)

// ===== Fake Implementations =====

// fakeActivityRepo 内存账本，按 (user, type, key) 唯一
type fakeActivityRepo struct {
	mu      sync.Mutex
	nextID  int64
	items   []schema.Activity
	healed  []int64
	creates int
}

func activityIdentity(userID, typ, key string) string { return userID + "|" + typ + "|" + key }

func (f *fakeActivityRepo) FindByNaturalKey(ctx context.Context, userID, activityType, key string) (*schema.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		a := f.items[i]
		if a.UserID == userID && a.Type == activityType && a.NaturalKey == key {
			return &a, nil
		}
	}
	return nil, nil
}

func (f *fakeActivityRepo) Create(ctx context.Context, a *schema.Activity) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	id := activityIdentity(a.UserID, a.Type, a.NaturalKey)
	for _, e := range f.items {
		if activityIdentity(e.UserID, e.Type, e.NaturalKey) == id {
			return false, nil
		}
	}
	f.nextID++
	a.ID = f.nextID
	f.items = append(f.items, *a)
	return true, nil
}

func (f *fakeActivityRepo) UpdateCreatedAt(ctx context.Context, id int64, createdAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			f.items[i].CreatedAt = createdAt.UTC()
			f.healed = append(f.healed, id)
		}
	}
	return nil
}

func (f *fakeActivityRepo) CountByPodTypeSince(ctx context.Context, podID, activityType string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.items {
		if a.PodID == podID && a.Type == activityType && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (f *fakeActivityRepo) SumValueByPod(ctx context.Context, podID string, userIDs []string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := toSet(userIDs)
	out := make(map[string]int)
	for _, a := range f.items {
		if _, ok := want[a.UserID]; ok && a.PodID == podID {
			out[a.UserID] += a.Value
		}
	}
	return out, nil
}

func (f *fakeActivityRepo) RecentPositiveByUsers(ctx context.Context, userIDs []string, limit int) ([]schema.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := toSet(userIDs)
	var out []schema.Activity
	for _, a := range f.items {
		if _, ok := want[a.UserID]; ok && a.Value > 0 {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeActivityRepo) byType(typ string) []schema.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []schema.Activity
	for _, a := range f.items {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

type fakeRewardRepo struct {
	items []schema.Reward
}

func (f *fakeRewardRepo) Create(ctx context.Context, r *schema.Reward) error {
	r.ID = int64(len(f.items) + 1)
	f.items = append(f.items, *r)
	return nil
}

func (f *fakeRewardRepo) SumPointsByUsers(ctx context.Context, userIDs []string) (map[string]int, error) {
	want := toSet(userIDs)
	out := make(map[string]int)
	for _, r := range f.items {
		if _, ok := want[r.UserID]; ok {
			out[r.UserID] += r.Points
		}
	}
	return out, nil
}

func (f *fakeRewardRepo) RecentQualifying(ctx context.Context, userIDs []string, limit int) ([]schema.Reward, error) {
	want := toSet(userIDs)
	var out []schema.Reward
	for _, r := range f.items {
		if _, ok := want[r.UserID]; ok && (r.Points > 0 || len(r.Badges) > 0) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeUserRepo struct {
	users map[string]*schema.User
}

func newFakeUserRepo(users ...schema.User) *fakeUserRepo {
	f := &fakeUserRepo{users: make(map[string]*schema.User)}
	for i := range users {
		u := users[i]
		f.users[u.ID] = &u
	}
	return f
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*schema.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByIDs(ctx context.Context, ids []string) (map[string]schema.User, error) {
	out := make(map[string]schema.User)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = *u
		}
	}
	return out, nil
}

func (f *fakeUserRepo) SetTokenValid(ctx context.Context, id string, valid bool) error {
	if u, ok := f.users[id]; ok {
		u.TokenValid = valid
	}
	return nil
}

func (f *fakeUserRepo) SetGithubUsername(ctx context.Context, id, login string) error {
	if u, ok := f.users[id]; ok {
		u.GithubUsername = login
	}
	return nil
}

func (f *fakeUserRepo) UpdateReputation(ctx context.Context, id string, score float64, dyn schema.DynamicsMetrics) error {
	if u, ok := f.users[id]; ok {
		u.ReliabilityScore = score
		u.Dynamics = dyn
	}
	return nil
}

type fakePodRepo struct {
	pods    map[string]schema.Pod
	members map[string][]schema.PodMember
	repos   map[string][]schema.PodRepo
	touched []string
}

func (f *fakePodRepo) GetByID(ctx context.Context, id string) (*schema.Pod, error) {
	p, ok := f.pods[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePodRepo) ListMembers(ctx context.Context, podID string) ([]schema.PodMember, error) {
	return f.members[podID], nil
}

func (f *fakePodRepo) CountAccepted(ctx context.Context, podID string) (int64, error) {
	var n int64
	for _, m := range f.members[podID] {
		if m.Status == schema.MemberAccepted {
			n++
		}
	}
	return n, nil
}

func (f *fakePodRepo) ListRepos(ctx context.Context, podID string) ([]schema.PodRepo, error) {
	return f.repos[podID], nil
}

func (f *fakePodRepo) TouchRepoSync(ctx context.Context, podID, owner, name string, ts int64) error {
	f.touched = append(f.touched, owner+"/"+name)
	return nil
}

type fakeRoadmapRepo struct {
	items       map[string]schema.PodRoadmap
	invalidated []string
}

func newFakeRoadmapRepo() *fakeRoadmapRepo {
	return &fakeRoadmapRepo{items: make(map[string]schema.PodRoadmap)}
}

func (f *fakeRoadmapRepo) Get(ctx context.Context, podID string) (*schema.PodRoadmap, error) {
	rm, ok := f.items[podID]
	if !ok {
		return nil, nil
	}
	return &rm, nil
}

func (f *fakeRoadmapRepo) Upsert(ctx context.Context, rm *schema.PodRoadmap) error {
	f.items[rm.PodID] = *rm
	return nil
}

func (f *fakeRoadmapRepo) Invalidate(ctx context.Context, podID string) (bool, error) {
	f.invalidated = append(f.invalidated, podID)
	rm, ok := f.items[podID]
	if !ok {
		return false, nil
	}
	rm.Stale = true
	f.items[podID] = rm
	return true, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (f *fakePublisher) Publish(evt eventbus.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type countingMetrics struct {
	mu      sync.Mutex
	runs    map[string]int
	errs    map[string]int
	created map[string]int
	reps    map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{runs: map[string]int{}, errs: map[string]int{}, created: map[string]int{}, reps: map[string]int{}}
}

func (m *countingMetrics) SyncRun(kind, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[kind+"/"+outcome]++
}

func (m *countingMetrics) SyncError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[kind]++
}

func (m *countingMetrics) ActivityCreated(activityType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created[activityType]++
}

func (m *countingMetrics) ReputationUpdate(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reps[outcome]++
}
