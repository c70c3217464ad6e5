package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yuqie6/PodPulse/internal/github"
)

func TestActiveRepos(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	since := now.AddDate(0, 0, -90)
	var repos []github.Repo
	for i := 0; i < 14; i++ {
		repos = append(repos, github.Repo{FullName: fmt.Sprintf("o/r%d", i), Pushed: now.Add(-time.Duration(i) * 24 * time.Hour)})
	}
	repos = append(repos, github.Repo{FullName: "o/stale", Pushed: now.AddDate(-1, 0, 0)})

	got := ActiveRepos(repos, since, 10)
	if len(got) != 10 {
		t.Fatalf("len=%d, want 10", len(got))
	}
	if got[0].FullName != "o/r0" || got[9].FullName != "o/r9" {
		t.Fatalf("unexpected order: %s .. %s", got[0].FullName, got[9].FullName)
	}
}

func TestMergeLanguages(t *testing.T) {
	got := MergeLanguages([]map[string]int64{
		{"Go": 600, "Shell": 100},
		{"Go": 200, "TypeScript": 100},
		nil,
	})
	if len(got) != 3 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].Language != "Go" || got[0].Percent != 80 {
		t.Fatalf("first=%+v", got[0])
	}
	if got[1].Language != "Shell" || got[1].Percent != 10 || got[2].Language != "TypeScript" {
		t.Fatalf("tie order by name: %+v", got)
	}
}

// concurrencyGitHub 统计同时在途的 ListLanguages 调用
type concurrencyGitHub struct {
	fakeGitHub
	inflight atomic.Int32
	peak     atomic.Int32
}

func (c *concurrencyGitHub) ListLanguages(ctx context.Context, token, owner, repo string) (map[string]int64, error) {
	n := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	if repo == "broken" {
		return nil, errors.New("502")
	}
	return map[string]int64{"Go": 100}, nil
}

func TestProfileService_BoundedFanOut(t *testing.T) {
	now := time.Now()
	gh := &concurrencyGitHub{}
	for i := 0; i < 12; i++ {
		gh.repos = append(gh.repos, github.Repo{Owner: "o", Name: fmt.Sprintf("r%d", i), FullName: fmt.Sprintf("o/r%d", i), Pushed: now.Add(-time.Hour)})
	}
	gh.repos = append(gh.repos, github.Repo{Owner: "o", Name: "broken", FullName: "o/broken", Pushed: now})
	users := newFakeUserRepo(tokenUser("u1", "U", "", "tok"))
	svc := NewProfileService(gh, users, DefaultProfileConfig())

	profile, err := svc.Languages(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Languages: %v", err)
	}
	if len(profile.Repos) != 10 {
		t.Fatalf("repos=%d, want 10", len(profile.Repos))
	}
	if peak := gh.peak.Load(); peak > 5 {
		t.Fatalf("peak concurrency=%d, want <=5", peak)
	}
	if len(profile.Errors) != 1 {
		t.Fatalf("errors=%v", profile.Errors)
	}
	if len(profile.Languages) != 1 || profile.Languages[0].Bytes != 900 || profile.Languages[0].Percent != 100 {
		t.Fatalf("languages=%+v", profile.Languages)
	}
}
