package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/PodPulse/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PodRepository 团队、成员与关联仓库
type PodRepository struct {
	db *gorm.DB
}

// NewPodRepository 创建团队仓储
func NewPodRepository(db *gorm.DB) *PodRepository {
	return &PodRepository{db: db}
}

// Upsert 新建或更新团队
func (r *PodRepository) Upsert(ctx context.Context, pod *schema.Pod) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name"}),
	}).Create(pod).Error
	if err != nil {
		return fmt.Errorf("保存团队失败: %w", err)
	}
	return nil
}

// GetByID 根据 ID 查询团队，未找到返回 nil
func (r *PodRepository) GetByID(ctx context.Context, id string) (*schema.Pod, error) {
	var p schema.Pod
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询团队失败: %w", err)
	}
	return &p, nil
}

// ListAll 列出全部团队
func (r *PodRepository) ListAll(ctx context.Context) ([]schema.Pod, error) {
	var pods []schema.Pod
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&pods).Error; err != nil {
		return nil, fmt.Errorf("查询团队失败: %w", err)
	}
	return pods, nil
}

// UpsertMember 加入或更新成员
func (r *PodRepository) UpsertMember(ctx context.Context, m *schema.PodMember) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pod_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "status", "github_username"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("保存团队成员失败: %w", err)
	}
	return nil
}

// ListMembers 按加入顺序列出成员
func (r *PodRepository) ListMembers(ctx context.Context, podID string) ([]schema.PodMember, error) {
	var members []schema.PodMember
	if err := r.db.WithContext(ctx).
		Where("pod_id = ?", podID).
		Order("joined_at ASC, user_id ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("查询团队成员失败: %w", err)
	}
	return members, nil
}

// CountAccepted 统计已接受的成员数
func (r *PodRepository) CountAccepted(ctx context.Context, podID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.PodMember{}).
		Where("pod_id = ? AND status = ?", podID, schema.MemberAccepted).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计团队成员失败: %w", err)
	}
	return count, nil
}

// LinkRepo 关联仓库（重复关联忽略）
func (r *PodRepository) LinkRepo(ctx context.Context, repo *schema.PodRepo) error {
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(repo).Error; err != nil {
		return fmt.Errorf("关联仓库失败: %w", err)
	}
	return nil
}

// ListRepos 列出团队关联的仓库
func (r *PodRepository) ListRepos(ctx context.Context, podID string) ([]schema.PodRepo, error) {
	var repos []schema.PodRepo
	if err := r.db.WithContext(ctx).
		Where("pod_id = ?", podID).
		Order("id ASC").
		Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("查询关联仓库失败: %w", err)
	}
	return repos, nil
}

// TouchRepoSync 记录仓库最近一次同步时间（Unix ms）
func (r *PodRepository) TouchRepoSync(ctx context.Context, podID, owner, name string, ts int64) error {
	if err := r.db.WithContext(ctx).Model(&schema.PodRepo{}).
		Where("pod_id = ? AND owner = ? AND name = ?", podID, owner, name).
		Update("last_sync", ts).Error; err != nil {
		return fmt.Errorf("更新仓库同步时间失败: %w", err)
	}
	return nil
}

// CountRepos 关联仓库总数
func (r *PodRepository) CountRepos(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.PodRepo{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计关联仓库失败: %w", err)
	}
	return count, nil
}

// ListPodIDsWithRepos 有关联仓库的团队
func (r *PodRepository) ListPodIDsWithRepos(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&schema.PodRepo{}).
		Distinct("pod_id").
		Order("pod_id ASC").
		Pluck("pod_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("查询团队失败: %w", err)
	}
	return ids, nil
}
