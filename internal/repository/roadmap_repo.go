package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/PodPulse/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoadmapRepository 团队路线图缓存
type RoadmapRepository struct {
	db *gorm.DB
}

// NewRoadmapRepository 创建路线图仓储
func NewRoadmapRepository(db *gorm.DB) *RoadmapRepository {
	return &RoadmapRepository{db: db}
}

// Get 查询缓存，未找到返回 nil
func (r *RoadmapRepository) Get(ctx context.Context, podID string) (*schema.PodRoadmap, error) {
	var rm schema.PodRoadmap
	if err := r.db.WithContext(ctx).First(&rm, "pod_id = ?", podID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询路线图失败: %w", err)
	}
	return &rm, nil
}

// Upsert 写入或覆盖缓存
func (r *RoadmapRepository) Upsert(ctx context.Context, rm *schema.PodRoadmap) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pod_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "stale", "generated_at", "updated_at"}),
	}).Create(rm).Error
	if err != nil {
		return fmt.Errorf("保存路线图失败: %w", err)
	}
	return nil
}

// Invalidate 标记缓存失效；返回是否存在缓存
func (r *RoadmapRepository) Invalidate(ctx context.Context, podID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&schema.PodRoadmap{}).
		Where("pod_id = ?", podID).
		Update("stale", true)
	if res.Error != nil {
		return false, fmt.Errorf("标记路线图失效失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
