package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/PodPulse/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivityRepository 活动账本仓储
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository 创建活动仓储
func NewActivityRepository(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// FindByNaturalKey 按 (user_id, type, natural_key) 查询，未找到返回 nil
func (r *ActivityRepository) FindByNaturalKey(ctx context.Context, userID, activityType, key string) (*schema.Activity, error) {
	var a schema.Activity
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND type = ? AND natural_key = ?", userID, activityType, key).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询活动失败: %w", err)
	}
	return &a, nil
}

// Create 写入一条活动；命中唯一索引时不写入并返回 created=false
func (r *ActivityRepository) Create(ctx context.Context, a *schema.Activity) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(a)
	if res.Error != nil {
		return false, fmt.Errorf("写入活动失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		slog.Debug("活动已存在，跳过写入", "user", a.UserID, "type", a.Type, "key", a.NaturalKey)
		return false, nil
	}
	return true, nil
}

// UpdateCreatedAt 只修正源事件时间（自愈），不触碰 value
func (r *ActivityRepository) UpdateCreatedAt(ctx context.Context, id int64, createdAt time.Time) error {
	if err := r.db.WithContext(ctx).Model(&schema.Activity{}).
		Where("id = ?", id).
		Update("created_at", createdAt.UTC()).Error; err != nil {
		return fmt.Errorf("修正活动时间失败: %w", err)
	}
	return nil
}

// ListByPod 查询团队下指定类型的活动（types 为空则不过滤类型）
func (r *ActivityRepository) ListByPod(ctx context.Context, podID string, types []string) ([]schema.Activity, error) {
	q := r.db.WithContext(ctx).Where("pod_id = ?", podID)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}
	var out []schema.Activity
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询团队活动失败: %w", err)
	}
	return out, nil
}

// CountByPodTypeSince 统计团队某类型在 since 之后的活动数
func (r *ActivityRepository) CountByPodTypeSince(ctx context.Context, podID, activityType string, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.Activity{}).
		Where("pod_id = ? AND type = ? AND created_at >= ?", podID, activityType, since.UTC()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计团队活动失败: %w", err)
	}
	return count, nil
}

// SumValueByPod 按用户汇总团队范围内的活动分
func (r *ActivityRepository) SumValueByPod(ctx context.Context, podID string, userIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	type row struct {
		UserID string
		Total  int
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&schema.Activity{}).
		Select("user_id, COALESCE(SUM(value), 0) AS total").
		Where("pod_id = ? AND user_id IN ?", podID, userIDs).
		Group("user_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("汇总团队活动分失败: %w", err)
	}
	for _, rw := range rows {
		out[rw.UserID] = rw.Total
	}
	return out, nil
}

// RecentPositiveByUsers 最近的正分活动（按源事件时间倒序）
func (r *ActivityRepository) RecentPositiveByUsers(ctx context.Context, userIDs []string, limit int) ([]schema.Activity, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	var out []schema.Activity
	if err := r.db.WithContext(ctx).
		Where("user_id IN ? AND value > 0", userIDs).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("查询最近活动失败: %w", err)
	}
	return out, nil
}

// CountByUser 统计用户活动总数
func (r *ActivityRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.Activity{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计活动数量失败: %w", err)
	}
	return count, nil
}

// Count 活动总数
func (r *ActivityRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&schema.Activity{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("统计活动数量失败: %w", err)
	}
	return count, nil
}
