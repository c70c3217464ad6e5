package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/PodPulse/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户仓储
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert 新建或更新用户基础资料（不覆盖信誉字段）
func (r *UserRepository) Upsert(ctx context.Context, u *schema.User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "github_username", "github_token", "token_valid", "updated_at"}),
	}).Create(u).Error
	if err != nil {
		return fmt.Errorf("保存用户失败: %w", err)
	}
	return nil
}

// GetByID 根据 ID 查询用户，未找到返回 nil
func (r *UserRepository) GetByID(ctx context.Context, id string) (*schema.User, error) {
	var u schema.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &u, nil
}

// GetByIDs 批量查询用户
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]schema.User, error) {
	out := make(map[string]schema.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []schema.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// ListWithValidToken 列出凭据仍有效的用户
func (r *UserRepository) ListWithValidToken(ctx context.Context) ([]schema.User, error) {
	var users []schema.User
	if err := r.db.WithContext(ctx).
		Where("token_valid = ? AND github_token != ''", true).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return users, nil
}

// SetTokenValid 写回凭据有效性标记
func (r *UserRepository) SetTokenValid(ctx context.Context, id string, valid bool) error {
	if err := r.db.WithContext(ctx).Model(&schema.User{}).
		Where("id = ?", id).
		Update("token_valid", valid).Error; err != nil {
		return fmt.Errorf("更新凭据状态失败: %w", err)
	}
	return nil
}

// SetGithubUsername 记录解析出的源登录名
func (r *UserRepository) SetGithubUsername(ctx context.Context, id, login string) error {
	if err := r.db.WithContext(ctx).Model(&schema.User{}).
		Where("id = ?", id).
		Update("github_username", login).Error; err != nil {
		return fmt.Errorf("更新 GitHub 用户名失败: %w", err)
	}
	return nil
}

// UpdateReputation 写入信誉分与协作计数器
func (r *UserRepository) UpdateReputation(ctx context.Context, id string, score float64, dyn schema.DynamicsMetrics) error {
	// map 更新：0 值也必须落库
	updates := map[string]interface{}{
		"reliability_score":    score,
		"dyn_on_time_rate":     dyn.OnTimeRate,
		"dyn_rescue_count":     dyn.RescueCount,
		"dyn_missed_deadlines": dyn.MissedDeadlines,
		"dyn_total_completed":  dyn.TotalCompleted,
	}
	if err := r.db.WithContext(ctx).Model(&schema.User{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("更新信誉失败: %w", err)
	}
	return nil
}

// Count 用户总数
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计用户数量失败: %w", err)
	}
	return count, nil
}
