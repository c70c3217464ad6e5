package observability

import (
	"context"
	"errors"
	"time"

	"github.com/yuqie6/PodPulse/internal/pkg/buildinfo"
)

// ErrNotReady 依赖尚未初始化
var ErrNotReady = errors.New("服务未就绪")

// StatusSource 健康状态需要的计数
type StatusSource interface {
	CountUsers(ctx context.Context) (int64, error)
	CountActivities(ctx context.Context) (int64, error)
	CountLinkedRepos(ctx context.Context) (int64, error)
}

// Status /health 返回体
type Status struct {
	OK           bool   `json:"ok"`
	Version      string `json:"version"`
	Commit       string `json:"commit"`
	UptimeSec    int64  `json:"uptime_sec"`
	Users        int64  `json:"users"`
	Activities   int64  `json:"activities"`
	LinkedRepos  int64  `json:"linked_repos"`
	LastSyncAt   int64  `json:"last_sync_at"` // Unix ms，0 表示尚未同步
	LastSyncNote string `json:"last_sync_note,omitempty"`
}

// BuildStatus 汇总健康状态；计数失败只降级为 ok=false
func BuildStatus(ctx context.Context, src StatusSource, startedAt time.Time, lastSyncAt int64, note string) (*Status, error) {
	if src == nil {
		return nil, ErrNotReady
	}
	st := &Status{
		OK:           true,
		Version:      buildinfo.Version,
		Commit:       buildinfo.Commit,
		UptimeSec:    int64(time.Since(startedAt).Seconds()),
		LastSyncAt:   lastSyncAt,
		LastSyncNote: note,
	}
	var err error
	if st.Users, err = src.CountUsers(ctx); err != nil {
		st.OK = false
	}
	if st.Activities, err = src.CountActivities(ctx); err != nil {
		st.OK = false
	}
	if st.LinkedRepos, err = src.CountLinkedRepos(ctx); err != nil {
		st.OK = false
	}
	return st, nil
}
