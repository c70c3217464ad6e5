package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yuqie6/PodPulse/internal/eventbus"
	"github.com/yuqie6/PodPulse/internal/schema"
)

func completion(completer, original string, due *time.Time, at time.Time) TaskStatusChange {
	return TaskStatusChange{
		TaskID:             "t1",
		PodID:              "pod-1",
		AssigneeID:         completer,
		CompleterID:        completer,
		OriginalAssigneeID: original,
		DueAt:              due,
		CompletedAt:        at,
		PreviousStatus:     TaskStatusInProgress,
		NewStatus:          TaskStatusDone,
	}
}

func TestApplyCompletion_Deltas(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	start := Reputation{Score: 80, Dynamics: schema.DynamicsMetrics{OnTimeRate: 100}}

	cases := []struct {
		name  string
		evt   TaskStatusChange
		delta float64
	}{
		{"late rescue", completion("bob", "alice", &past, now), -3},
		{"late", completion("bob", "bob", &past, now), -5},
		{"rescue", completion("bob", "alice", &future, now), 2},
		{"on time", completion("bob", "", &future, now), 0.5},
		{"no due date", completion("bob", "", nil, now), 0.5},
	}
	for _, c := range cases {
		next, out := ApplyCompletion(start, c.evt)
		if out.Delta != c.delta || next.Score != start.Score+c.delta {
			t.Fatalf("%s: delta=%v score=%v, want delta %v", c.name, out.Delta, next.Score, c.delta)
		}
		if next.Dynamics.TotalCompleted != 1 {
			t.Fatalf("%s: total=%d", c.name, next.Dynamics.TotalCompleted)
		}
	}
	if start.Dynamics.TotalCompleted != 0 {
		t.Fatalf("ApplyCompletion must not mutate input")
	}
}

func TestApplyCompletion_ClampAndRate(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	top, _ := ApplyCompletion(Reputation{Score: 100}, completion("a", "", nil, now))
	if top.Score != 100 {
		t.Fatalf("score should clamp at 100, got %v", top.Score)
	}
	bottom, _ := ApplyCompletion(Reputation{Score: 2}, completion("a", "", &past, now))
	if bottom.Score != 0 {
		t.Fatalf("score should clamp at 0, got %v", bottom.Score)
	}

	rep := Reputation{Score: 100}
	rep, _ = ApplyCompletion(rep, completion("a", "", nil, now))
	rep, _ = ApplyCompletion(rep, completion("a", "", &past, now))
	rep, _ = ApplyCompletion(rep, completion("a", "b", nil, now))
	if rep.Dynamics.TotalCompleted != 3 || rep.Dynamics.MissedDeadlines != 1 || rep.Dynamics.RescueCount != 1 {
		t.Fatalf("counters=%+v", rep.Dynamics)
	}
	if rep.Dynamics.OnTimeRate != 67 {
		t.Fatalf("on time rate=%d, want 67", rep.Dynamics.OnTimeRate)
	}
}

type recordingInvalidator struct{ pods []string }

func (r *recordingInvalidator) Invalidate(ctx context.Context, podID string) error {
	r.pods = append(r.pods, podID)
	return nil
}

func TestReputationService_HandleStatusChange(t *testing.T) {
	ctx := context.Background()
	users := newFakeUserRepo(*schema.NewUser("bob", "Bob", ""))
	inv := &recordingInvalidator{}
	pub := &fakePublisher{}
	metrics := newCountingMetrics()
	svc := NewReputationService(users, inv, pub, metrics)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	rep, err := svc.HandleStatusChange(ctx, completion("bob", "alice", &past, now))
	if err != nil || rep == nil {
		t.Fatalf("HandleStatusChange: rep=%v err=%v", rep, err)
	}
	u, _ := users.GetByID(ctx, "bob")
	if u.ReliabilityScore != 97 || u.Dynamics.RescueCount != 1 || u.Dynamics.MissedDeadlines != 1 {
		t.Fatalf("persisted user=%+v", u)
	}
	if len(inv.pods) != 1 || inv.pods[0] != "pod-1" {
		t.Fatalf("roadmap not invalidated: %v", inv.pods)
	}
	if types := pub.types(); len(types) != 1 || types[0] != eventbus.TypeReputationUpdated {
		t.Fatalf("events=%v", types)
	}

	// 已完成的任务再次变更不触发
	again := completion("bob", "alice", &past, now)
	again.PreviousStatus = TaskStatusDone
	rep, err = svc.HandleStatusChange(ctx, again)
	if err != nil || rep != nil {
		t.Fatalf("repeat done should be a no-op: rep=%v err=%v", rep, err)
	}
	u, _ = users.GetByID(ctx, "bob")
	if u.Dynamics.TotalCompleted != 1 {
		t.Fatalf("repeat done changed counters: %+v", u.Dynamics)
	}
	if metrics.reps["updated"] != 1 || metrics.reps["skipped"] != 1 {
		t.Fatalf("metrics=%v", metrics.reps)
	}

	if _, err := svc.HandleStatusChange(ctx, completion("ghost", "", nil, now)); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err=%v, want ErrUserNotFound", err)
	}
}
