package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/PodPulse/internal/schema"
	"gorm.io/gorm"
)

// RewardRepository 奖励仓储
type RewardRepository struct {
	db *gorm.DB
}

// NewRewardRepository 创建奖励仓储
func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// Create 写入奖励
func (r *RewardRepository) Create(ctx context.Context, reward *schema.Reward) error {
	if err := r.db.WithContext(ctx).Create(reward).Error; err != nil {
		return fmt.Errorf("写入奖励失败: %w", err)
	}
	return nil
}

// SumPointsByUsers 按用户汇总全部奖励积分（不区分团队）
func (r *RewardRepository) SumPointsByUsers(ctx context.Context, userIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	type row struct {
		UserID string
		Total  int
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&schema.Reward{}).
		Select("user_id, COALESCE(SUM(points), 0) AS total").
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("汇总奖励积分失败: %w", err)
	}
	for _, rw := range rows {
		out[rw.UserID] = rw.Total
	}
	return out, nil
}

// RecentQualifying 最近有徽章或积分的奖励
func (r *RewardRepository) RecentQualifying(ctx context.Context, userIDs []string, limit int) ([]schema.Reward, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	var out []schema.Reward
	if err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Where("points > 0 OR (badges IS NOT NULL AND badges NOT IN ('', '[]', 'null'))").
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询最近奖励失败: %w", err)
	}
	return out, nil
}

// ListByUser 查询用户的奖励（倒序）
func (r *RewardRepository) ListByUser(ctx context.Context, userID string, limit int) ([]schema.Reward, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []schema.Reward
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询奖励失败: %w", err)
	}
	return out, nil
}
